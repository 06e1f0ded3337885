package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rl1809/order-realtime/internal/core/domain"
	"github.com/rl1809/order-realtime/internal/metrics"
	"github.com/rl1809/order-realtime/internal/port"
)

const OrderListPageSize = 10

// OrderViewResolver builds the payloads pushed over the real-time channel.
type OrderViewResolver struct {
	orders   port.OrderRepository
	products port.ProductRepository
	metrics  *metrics.Registry
}

func NewOrderViewResolver(orders port.OrderRepository, products port.ProductRepository, m *metrics.Registry) *OrderViewResolver {
	return &OrderViewResolver{orders: orders, products: products, metrics: m}
}

// ResolveOrder loads an order and joins every line item with its current
// product. Products are looked up one item at a time; an item whose product
// no longer exists keeps only its own fields.
func (r *OrderViewResolver) ResolveOrder(ctx context.Context, orderID string) (*domain.OrderView, error) {
	start := time.Now()
	defer func() { r.metrics.ResolveSec.WithLabelValues("order").Observe(time.Since(start).Seconds()) }()

	order, err := r.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	view := newOrderView(*order)
	for i := range view.Items {
		product, err := r.products.GetProduct(ctx, view.Items[i].ProductID)
		if err != nil {
			return nil, fmt.Errorf("get product %s: %w", view.Items[i].ProductID, err)
		}
		if product != nil {
			view.Items[i].ProductSummary = product.Summary()
		}
	}
	return &view, nil
}

// ResolveListing returns one page of the admin order list, newest first.
func (r *OrderViewResolver) ResolveListing(ctx context.Context, page int, search string) (domain.OrderListing, error) {
	start := time.Now()
	defer func() { r.metrics.ResolveSec.WithLabelValues("listing").Observe(time.Since(start).Seconds()) }()

	if page < 1 {
		page = 1
	}
	orders, err := r.orders.ListOrders(ctx, search, (page-1)*OrderListPageSize, OrderListPageSize)
	if err != nil {
		return domain.OrderListing{}, fmt.Errorf("list orders: %w", err)
	}
	total, err := r.orders.CountOrders(ctx, search)
	if err != nil {
		return domain.OrderListing{}, fmt.Errorf("count orders: %w", err)
	}

	listing := domain.OrderListing{
		Orders:     make([]domain.OrderView, 0, len(orders)),
		TotalPages: totalPages(total, OrderListPageSize),
	}
	for _, o := range orders {
		listing.Orders = append(listing.Orders, newOrderView(o))
	}
	return listing, nil
}

func newOrderView(o domain.Order) domain.OrderView {
	items := make([]domain.ItemView, len(o.Items))
	for i, it := range o.Items {
		items[i] = domain.ItemView{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
	}
	return domain.OrderView{
		ID:        o.ID,
		UserID:    o.UserID,
		Email:     o.Email,
		Items:     items,
		Status:    o.Status,
		Total:     o.Total,
		CreatedAt: o.CreatedAt,
	}
}

func totalPages(count, size int) int {
	if count <= 0 {
		return 0
	}
	return (count + size - 1) / size
}
