package domain

import "time"

type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
	EventOther  EventKind = "other"
)

// ParseEventKind maps a change-feed operation name to its kind. Anything
// unrecognised is EventOther.
func ParseEventKind(op string) EventKind {
	switch EventKind(op) {
	case EventInsert, EventUpdate, EventDelete:
		return EventKind(op)
	}
	return EventOther
}

// MutationEvent describes one write against the order table. UpdatedFields
// is only set for updates and may not list every changed column.
type MutationEvent struct {
	Kind          EventKind
	OrderID       string
	UpdatedFields map[string]any
	At            time.Time
}
