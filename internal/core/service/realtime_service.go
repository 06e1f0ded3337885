package service

import (
	"context"
	"errors"

	"github.com/rl1809/order-realtime/internal/port"
)

// Event names on the real-time channel.
const (
	EventConnected    = "connected"
	EventOrderDetails = "order_details"
	EventOrderUpdated = "order_updated"
	EventOrders       = "orders"
	EventError        = "error"
)

type errorPayload struct {
	Error string `json:"error"`
}

// RealtimeService handles what a connected client asks for: it records the
// interest, then answers at once with the current view.
type RealtimeService struct {
	registry *SubscriptionRegistry
	resolver *OrderViewResolver
	users    port.UserRepository
	out      port.Broadcaster
}

func NewRealtimeService(registry *SubscriptionRegistry, resolver *OrderViewResolver, users port.UserRepository, out port.Broadcaster) *RealtimeService {
	return &RealtimeService{registry: registry, resolver: resolver, users: users, out: out}
}

// GetOrderDetails subscribes connID to orderID and emits order_details.
// The reply carries an error body when the order is unknown or the requester
// may not see it.
func (s *RealtimeService) GetOrderDetails(ctx context.Context, connID, userID, orderID string) error {
	if orderID == "" {
		return ErrInvalidRequest
	}
	s.registry.SubscribeOrderDetail(connID, userID, orderID)

	view, err := s.resolver.ResolveOrder(ctx, orderID)
	if errors.Is(err, ErrOrderNotFound) {
		return s.out.Emit(connID, EventOrderDetails, errorPayload{Error: "Order not found"})
	}
	if err != nil {
		return err
	}

	ok, err := newAccessChecker(s.users).canView(ctx, userID, view.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return s.out.Emit(connID, EventOrderDetails, errorPayload{Error: "Unauthorized access!"})
	}
	return s.out.Emit(connID, EventOrderDetails, view)
}

// GetOrders subscribes connID to a listing page and emits orders.
func (s *RealtimeService) GetOrders(ctx context.Context, connID string, page int, searchTerm string) error {
	if page < 1 {
		page = 1
	}
	s.registry.SubscribeOrderListing(connID, page, searchTerm)

	listing, err := s.resolver.ResolveListing(ctx, page, searchTerm)
	if err != nil {
		return err
	}
	return s.out.Emit(connID, EventOrders, listing)
}

// Disconnect drops everything connID was watching.
func (s *RealtimeService) Disconnect(connID string) {
	s.registry.Unsubscribe(connID)
}
