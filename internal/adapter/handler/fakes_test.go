package handler

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rl1809/order-realtime/internal/core/domain"
)

type fakeStore struct {
	mu       sync.Mutex
	orders   map[string]domain.Order
	products map[string]domain.Product
	reviews  map[string][]domain.Review
	users    map[string]domain.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:   make(map[string]domain.Order),
		products: make(map[string]domain.Product),
		reviews:  make(map[string][]domain.Review),
		users:    make(map[string]domain.User),
	}
}

func (f *fakeStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (f *fakeStore) ListOrders(ctx context.Context, search string, offset, limit int) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Order
	for _, o := range f.orders {
		if search == "" || strings.Contains(o.ID, search) {
			out = append(out, o)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (f *fakeStore) order(id string) (domain.Order, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	return o, ok
}

func (f *fakeStore) CountOrders(ctx context.Context, search string) (int, error) {
	o, _ := f.ListOrders(ctx, search, 0, 1<<30)
	return len(o), nil
}

func (f *fakeStore) ListUserOrders(ctx context.Context, userID string, offset, limit int) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (f *fakeStore) CountUserOrders(ctx context.Context, userID string) (int, error) {
	o, _ := f.ListUserOrders(ctx, userID, 0, 1<<30)
	return len(o), nil
}

func (f *fakeStore) HasPurchased(ctx context.Context, userID, productID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.UserID != userID {
			continue
		}
		for _, it := range o.Items {
			if it.ProductID == productID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (f *fakeStore) CreateOrder(ctx context.Context, o domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[o.ID] = o
	return nil
}

func (f *fakeStore) UpdateOrderStatus(ctx context.Context, id string, s domain.OrderStatus) (domain.OrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return "", nil
	}
	prev := o.Status
	o.Status = s
	f.orders[id] = o
	return prev, nil
}

func (f *fakeStore) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeStore) ListReviews(ctx context.Context, id string) ([]domain.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reviews[id], nil
}

func (f *fakeStore) AddReview(ctx context.Context, id string, r domain.Review) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.products[id]; !ok {
		return false, nil
	}
	f.reviews[id] = append(f.reviews[id], r)
	return true, nil
}

func (f *fakeStore) reviewsOf(id string) []domain.Review {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Review(nil), f.reviews[id]...)
}

func (f *fakeStore) ListProducts(ctx context.Context, category string, offset, limit int) ([]domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Product
	for _, p := range f.products {
		if category == "" || p.Category == category {
			out = append(out, p)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	return out[offset:], nil
}

func (f *fakeStore) ListRatings(ctx context.Context, ids []string) (map[string][]int, error) {
	return map[string][]int{}, nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) IsAdmin(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id].IsAdmin, nil
}

// nullCache always misses
type nullCache struct{}

func (nullCache) Get(ctx context.Context, key string) ([]byte, bool, error) { return nil, false, nil }

func (nullCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (nullCache) Delete(ctx context.Context, keys ...string) error { return nil }

func (nullCache) DeletePrefix(ctx context.Context, prefix string) error { return nil }

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.MutationEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, ev domain.MutationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}
