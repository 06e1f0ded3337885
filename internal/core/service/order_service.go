package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/order-realtime/internal/core/domain"
	"github.com/rl1809/order-realtime/internal/port"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrEmptyOrder     = errors.New("order has no items")
	ErrInvalidStatus  = errors.New("invalid order status")
	ErrInvalidRequest = errors.New("invalid request")
	ErrNoOrders       = errors.New("no orders found")
)

const UserOrderPageSize = 4

// OrderService is the write path for orders. Every committed write is
// announced on the change feed so the watchers can react to it.
type OrderService struct {
	orders            port.OrderRepository
	publisher         port.EventPublisher
	cache             *ReadThrough
	invalidateOnWrite bool
}

// NewOrderService builds the service. When invalidateOnWrite is set, placing
// or cancelling an order drops the cached detail pages of its products;
// otherwise those pages go stale until their TTL runs out.
func NewOrderService(orders port.OrderRepository, publisher port.EventPublisher, cache *ReadThrough, invalidateOnWrite bool) *OrderService {
	return &OrderService{
		orders:            orders,
		publisher:         publisher,
		cache:             cache,
		invalidateOnWrite: invalidateOnWrite,
	}
}

func (s *OrderService) PlaceOrder(ctx context.Context, userID, email string, items []domain.LineItem) (domain.Order, error) {
	if userID == "" {
		return domain.Order{}, ErrInvalidRequest
	}
	if len(items) == 0 {
		return domain.Order{}, ErrEmptyOrder
	}
	for _, it := range items {
		if it.ProductID == "" || it.Quantity <= 0 || it.UnitPrice < 0 {
			return domain.Order{}, fmt.Errorf("%w: bad line item for product %q", ErrInvalidRequest, it.ProductID)
		}
	}

	order := domain.Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Email:     email,
		Items:     items,
		Status:    domain.OrderStatusPlaced,
		Total:     orderTotal(items),
		CreatedAt: time.Now().UTC(),
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	s.announce(ctx, domain.MutationEvent{Kind: domain.EventInsert, OrderID: order.ID, At: order.CreatedAt})
	s.invalidate(ctx, items)
	return order, nil
}

func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	prev, err := s.orders.UpdateOrderStatus(ctx, orderID, status)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if prev == "" {
		return ErrOrderNotFound
	}

	s.announce(ctx, domain.MutationEvent{
		Kind:          domain.EventUpdate,
		OrderID:       orderID,
		UpdatedFields: map[string]any{"status": string(status)},
		At:            time.Now().UTC(),
	})

	if status == domain.OrderStatusCancelled && prev != domain.OrderStatusCancelled && s.invalidateOnWrite {
		order, err := s.orders.GetOrder(ctx, orderID)
		if err == nil && order != nil {
			s.invalidate(ctx, order.Items)
		}
	}
	return nil
}

// UserOrders returns one page of userID's own orders, newest first.
func (s *OrderService) UserOrders(ctx context.Context, userID string, page int) (domain.OrderHistory, error) {
	if userID == "" {
		return domain.OrderHistory{}, ErrUnauthorized
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * UserOrderPageSize

	orders, err := s.orders.ListUserOrders(ctx, userID, offset, UserOrderPageSize)
	if err != nil {
		return domain.OrderHistory{}, fmt.Errorf("list user orders: %w", err)
	}
	if len(orders) == 0 {
		return domain.OrderHistory{}, ErrNoOrders
	}
	total, err := s.orders.CountUserOrders(ctx, userID)
	if err != nil {
		return domain.OrderHistory{}, fmt.Errorf("count user orders: %w", err)
	}

	history := domain.OrderHistory{
		Orders:            make([]domain.OrderView, 0, len(orders)),
		NextPageAvailable: total > offset+UserOrderPageSize,
	}
	for _, o := range orders {
		history.Orders = append(history.Orders, newOrderView(o))
	}
	return history, nil
}

// HasPurchased reports whether userID ever ordered productID. Cancelled
// orders count too.
func (s *OrderService) HasPurchased(ctx context.Context, userID, productID string) (bool, error) {
	if userID == "" {
		return false, ErrUnauthorized
	}
	if productID == "" {
		return false, ErrInvalidRequest
	}
	ok, err := s.orders.HasPurchased(ctx, userID, productID)
	if err != nil {
		return false, fmt.Errorf("purchase check: %w", err)
	}
	return ok, nil
}

// announce never fails the write: it is already committed, and delivery to
// watchers is best effort.
func (s *OrderService) announce(ctx context.Context, ev domain.MutationEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Error().Err(err).Str("order_id", ev.OrderID).Str("kind", string(ev.Kind)).Msg("publish mutation event failed")
	}
}

func (s *OrderService) invalidate(ctx context.Context, items []domain.LineItem) {
	if !s.invalidateOnWrite || s.cache == nil {
		return
	}
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		if err := s.cache.InvalidatePrefix(ctx, productKind, it.ProductID); err != nil {
			log.Warn().Err(err).Str("product_id", it.ProductID).Msg("invalidate product cache failed")
		}
	}
}
