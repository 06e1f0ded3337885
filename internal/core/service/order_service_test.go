package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rl1809/order-realtime/internal/core/domain"
	"github.com/rl1809/order-realtime/internal/metrics"
)

func TestPlaceOrder_Success(t *testing.T) {
	store := newMockStore()
	pub := &mockPublisher{}
	svc := NewOrderService(store, pub, nil, false)

	order, err := svc.PlaceOrder(context.Background(), "user-1", "a@b.c", []domain.LineItem{
		{ProductID: "p1", Quantity: 2, UnitPrice: 1.25},
		{ProductID: "p2", Quantity: 1, UnitPrice: 0.1},
	})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if order.ID == "" || order.Status != domain.OrderStatusPlaced {
		t.Errorf("unexpected order %+v", order)
	}
	if order.Total != 2.6 {
		t.Errorf("expected total 2.6, got %v", order.Total)
	}
	if _, ok := store.orders[order.ID]; !ok {
		t.Error("order not persisted")
	}

	events := pub.published()
	if len(events) != 1 || events[0].Kind != domain.EventInsert || events[0].OrderID != order.ID {
		t.Errorf("expected one insert event, got %+v", events)
	}
}

func TestPlaceOrder_Validation(t *testing.T) {
	svc := NewOrderService(newMockStore(), &mockPublisher{}, nil, false)
	ctx := context.Background()

	if _, err := svc.PlaceOrder(ctx, "user-1", "", nil); !errors.Is(err, ErrEmptyOrder) {
		t.Errorf("expected ErrEmptyOrder, got: %v", err)
	}
	if _, err := svc.PlaceOrder(ctx, "", "", []domain.LineItem{{ProductID: "p", Quantity: 1}}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for missing user, got: %v", err)
	}
	if _, err := svc.PlaceOrder(ctx, "user-1", "", []domain.LineItem{{ProductID: "p", Quantity: 0}}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for zero quantity, got: %v", err)
	}
}

func TestPlaceOrder_StoreErrorPublishesNothing(t *testing.T) {
	store := newMockStore()
	store.orderErr = errors.New("deadlock")
	pub := &mockPublisher{}
	svc := NewOrderService(store, pub, nil, false)

	_, err := svc.PlaceOrder(context.Background(), "user-1", "", []domain.LineItem{{ProductID: "p", Quantity: 1}})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(pub.published()) != 0 {
		t.Error("nothing should be published for a failed write")
	}
}

func TestPlaceOrder_PublishFailureIsNotReturned(t *testing.T) {
	store := newMockStore()
	svc := NewOrderService(store, &mockPublisher{err: errors.New("broker down")}, nil, false)

	order, err := svc.PlaceOrder(context.Background(), "user-1", "", []domain.LineItem{{ProductID: "p", Quantity: 1}})
	if err != nil {
		t.Fatalf("expected committed write to succeed, got: %v", err)
	}
	if _, ok := store.orders[order.ID]; !ok {
		t.Error("order not persisted")
	}
}

func TestPlaceOrder_InvalidatesProductPagesWhenEnabled(t *testing.T) {
	for _, enabled := range []bool{false, true} {
		cache := newMockCache()
		cache.entries[ProductDetailKey("p1", 1, ProductDetailPageSize)] = []byte("x")
		cache.entries[ProductDetailKey("p2", 1, ProductDetailPageSize)] = []byte("x")
		svc := NewOrderService(newMockStore(), &mockPublisher{}, NewReadThrough(cache, metrics.NewRegistry()), enabled)

		_, err := svc.PlaceOrder(context.Background(), "user-1", "", []domain.LineItem{{ProductID: "p1", Quantity: 1}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cache.has(ProductDetailKey("p1", 1, ProductDetailPageSize)) == enabled {
			t.Errorf("enabled=%v: unexpected p1 cache state", enabled)
		}
		if !cache.has(ProductDetailKey("p2", 1, ProductDetailPageSize)) {
			t.Errorf("enabled=%v: unrelated product invalidated", enabled)
		}
	}
}

func TestUpdateStatus(t *testing.T) {
	store := newMockStore()
	store.putOrder(testOrder("o1", "u1"))
	pub := &mockPublisher{}
	svc := NewOrderService(store, pub, nil, false)

	if err := svc.UpdateStatus(context.Background(), "o1", domain.OrderStatusFulfilled); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.orders["o1"].Status != domain.OrderStatusFulfilled {
		t.Errorf("expected Fulfilled, got %s", store.orders["o1"].Status)
	}
	events := pub.published()
	if len(events) != 1 || events[0].Kind != domain.EventUpdate || events[0].UpdatedFields["status"] != "Fulfilled" {
		t.Errorf("expected update event with status, got %+v", events)
	}
}

func TestUpdateStatus_Errors(t *testing.T) {
	store := newMockStore()
	pub := &mockPublisher{}
	svc := NewOrderService(store, pub, nil, false)
	ctx := context.Background()

	if err := svc.UpdateStatus(ctx, "o1", "Shipped"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got: %v", err)
	}
	if err := svc.UpdateStatus(ctx, "missing", domain.OrderStatusCancelled); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got: %v", err)
	}
	if len(pub.published()) != 0 {
		t.Error("nothing should be published for a rejected update")
	}
}

func TestUserOrders_PagesNewestFirst(t *testing.T) {
	store := newMockStore()
	for i := 0; i < 5; i++ {
		o := testOrder(fmt.Sprintf("o%d", i), "user-1")
		o.CreatedAt = baseTime.Add(time.Duration(i) * time.Minute)
		store.putOrder(o)
	}
	store.putOrder(testOrder("other", "user-2"))
	svc := NewOrderService(store, nil, nil, false)
	ctx := context.Background()

	first, err := svc.UserOrders(ctx, "user-1", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first.Orders) != UserOrderPageSize || !first.NextPageAvailable {
		t.Errorf("expected a full page with more to come, got %d next=%v", len(first.Orders), first.NextPageAvailable)
	}
	if first.Orders[0].ID != "o4" {
		t.Errorf("expected newest order first, got %s", first.Orders[0].ID)
	}

	second, err := svc.UserOrders(ctx, "user-1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second.Orders) != 1 || second.NextPageAvailable || second.Orders[0].ID != "o0" {
		t.Errorf("expected only o0 on the last page, got %+v", second)
	}

	if _, err := svc.UserOrders(ctx, "user-1", 3); !errors.Is(err, ErrNoOrders) {
		t.Errorf("expected ErrNoOrders past the end, got %v", err)
	}
	if _, err := svc.UserOrders(ctx, "", 1); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized without a user, got %v", err)
	}
}

func TestHasPurchased(t *testing.T) {
	store := newMockStore()
	o := testOrder("o1", "user-1")
	o.Items = []domain.LineItem{{ProductID: "p1", Quantity: 1, UnitPrice: 5}}
	store.putOrder(o)
	svc := NewOrderService(store, nil, nil, false)
	ctx := context.Background()

	if ok, err := svc.HasPurchased(ctx, "user-1", "p1"); err != nil || !ok {
		t.Errorf("expected user-1 to have bought p1, got %v %v", ok, err)
	}
	if ok, _ := svc.HasPurchased(ctx, "user-2", "p1"); ok {
		t.Error("expected user-2 not to have bought p1")
	}
	if ok, _ := svc.HasPurchased(ctx, "user-1", "p2"); ok {
		t.Error("expected user-1 not to have bought p2")
	}
	if _, err := svc.HasPurchased(ctx, "user-1", ""); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest without a product, got %v", err)
	}
}
