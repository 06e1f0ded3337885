package eventsource

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/order-realtime/internal/core/domain"
)

var errMissingOrderID = errors.New("message missing order_id")

// changeMessage is the JSON form of a mutation event on the change feed.
type changeMessage struct {
	Operation     string         `json:"operation"`
	OrderID       string         `json:"order_id"`
	UpdatedFields map[string]any `json:"updated_fields,omitempty"`
	TS            int64          `json:"ts"`
}

func encodeEvent(ev domain.MutationEvent) ([]byte, error) {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	return json.Marshal(changeMessage{
		Operation:     string(ev.Kind),
		OrderID:       ev.OrderID,
		UpdatedFields: ev.UpdatedFields,
		TS:            at.UnixMilli(),
	})
}

func decodeEvent(b []byte) (domain.MutationEvent, error) {
	var m changeMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return domain.MutationEvent{}, fmt.Errorf("decode change message: %w", err)
	}
	if m.OrderID == "" {
		return domain.MutationEvent{}, errMissingOrderID
	}
	ev := domain.MutationEvent{
		Kind:    domain.ParseEventKind(m.Operation),
		OrderID: m.OrderID,
		At:      time.UnixMilli(m.TS).UTC(),
	}
	if ev.Kind == domain.EventUpdate {
		ev.UpdatedFields = m.UpdatedFields
	}
	return ev, nil
}
