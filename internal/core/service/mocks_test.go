package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rl1809/order-realtime/internal/core/domain"
	"github.com/rl1809/order-realtime/internal/port"
)

// Mock store covering the order, product and user repositories
type mockStore struct {
	mu       sync.Mutex
	orders   map[string]domain.Order
	products map[string]domain.Product
	reviews  map[string][]domain.Review
	users    map[string]domain.User

	orderErr    error
	productErr  error
	adminErr    error
	getOrders   atomic.Int32
	getProducts atomic.Int32
	adminCalls  atomic.Int32
	listCalls   atomic.Int32
}

func newMockStore() *mockStore {
	return &mockStore{
		orders:   make(map[string]domain.Order),
		products: make(map[string]domain.Product),
		reviews:  make(map[string][]domain.Review),
		users:    make(map[string]domain.User),
	}
}

func (m *mockStore) putOrder(o domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

func (m *mockStore) putProduct(p domain.Product, reviews ...domain.Review) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	m.reviews[p.ID] = reviews
}

func (m *mockStore) putUser(u domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *mockStore) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	m.getOrders.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.orderErr != nil {
		return nil, m.orderErr
	}
	o, ok := m.orders[orderID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *mockStore) matching(search string) []domain.Order {
	var out []domain.Order
	needle := strings.ToLower(search)
	for _, o := range m.orders {
		if needle == "" || strings.Contains(strings.ToLower(o.ID), needle) || strings.Contains(strings.ToLower(o.Email), needle) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *mockStore) ListOrders(ctx context.Context, search string, offset, limit int) ([]domain.Order, error) {
	m.listCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.orderErr != nil {
		return nil, m.orderErr
	}
	all := m.matching(search)
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *mockStore) CountOrders(ctx context.Context, search string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.orderErr != nil {
		return 0, m.orderErr
	}
	return len(m.matching(search)), nil
}

func (m *mockStore) CreateOrder(ctx context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.orderErr != nil {
		return m.orderErr
	}
	m.orders[order.ID] = order
	return nil
}

func (m *mockStore) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.OrderStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.orderErr != nil {
		return "", m.orderErr
	}
	o, ok := m.orders[orderID]
	if !ok {
		return "", nil
	}
	prev := o.Status
	o.Status = status
	m.orders[orderID] = o
	return prev, nil
}

func (m *mockStore) userOrders(userID string) []domain.Order {
	var out []domain.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *mockStore) ListUserOrders(ctx context.Context, userID string, offset, limit int) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.orderErr != nil {
		return nil, m.orderErr
	}
	all := m.userOrders(userID)
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *mockStore) CountUserOrders(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.orderErr != nil {
		return 0, m.orderErr
	}
	return len(m.userOrders(userID)), nil
}

func (m *mockStore) HasPurchased(ctx context.Context, userID, productID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.orderErr != nil {
		return false, m.orderErr
	}
	for _, o := range m.orders {
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

func (m *mockStore) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	m.getProducts.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.productErr != nil {
		return nil, m.productErr
	}
	p, ok := m.products[productID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *mockStore) ListReviews(ctx context.Context, productID string) ([]domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.productErr != nil {
		return nil, m.productErr
	}
	return m.reviews[productID], nil
}

func (m *mockStore) AddReview(ctx context.Context, productID string, r domain.Review) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.productErr != nil {
		return false, m.productErr
	}
	if _, ok := m.products[productID]; !ok {
		return false, nil
	}
	m.reviews[productID] = append(m.reviews[productID], r)
	return true, nil
}

func (m *mockStore) ListProducts(ctx context.Context, category string, offset, limit int) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.productErr != nil {
		return nil, m.productErr
	}
	var all []domain.Product
	for _, p := range m.products {
		if category == "" || p.Category == category {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *mockStore) ListRatings(ctx context.Context, productIDs []string) (map[string][]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]int)
	for _, id := range productIDs {
		for _, r := range m.reviews[id] {
			out[id] = append(out[id], r.Rating)
		}
	}
	return out, nil
}

func (m *mockStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (m *mockStore) IsAdmin(ctx context.Context, userID string) (bool, error) {
	m.adminCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.adminErr != nil {
		return false, m.adminErr
	}
	return m.users[userID].IsAdmin, nil
}

// Mock CacheRepository. Entries expire against a manual clock moved by advance.
type mockCache struct {
	mu        sync.Mutex
	entries   map[string][]byte
	ttls      map[string]time.Duration
	deadlines map[string]time.Time
	now       time.Time
	getErr    error
	setErr    error
	sets      atomic.Int32
}

func newMockCache() *mockCache {
	return &mockCache{
		entries:   make(map[string][]byte),
		ttls:      make(map[string]time.Duration),
		deadlines: make(map[string]time.Time),
	}
}

func (m *mockCache) advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	if d, ok := m.deadlines[key]; ok && !m.now.Before(d) {
		delete(m.entries, key)
		delete(m.deadlines, key)
	}
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.sets.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.entries[key] = value
	m.ttls[key] = ttl
	if ttl > 0 {
		m.deadlines[key] = m.now.Add(ttl)
	}
	return nil
}

func (m *mockCache) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

func (m *mockCache) DeletePrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	return nil
}

func (m *mockCache) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

// Recording Broadcaster
type emitted struct {
	connID  string
	event   string
	payload any
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []emitted
}

func (b *recordingBroadcaster) Emit(connID, event string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, emitted{connID: connID, event: event, payload: payload})
	return nil
}

func (b *recordingBroadcaster) all() []emitted {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]emitted, len(b.sent))
	copy(out, b.sent)
	return out
}

func (b *recordingBroadcaster) to(connID string) []emitted {
	var out []emitted
	for _, e := range b.all() {
		if e.connID == connID {
			out = append(out, e)
		}
	}
	return out
}

// Mock EventPublisher
type mockPublisher struct {
	mu     sync.Mutex
	events []domain.MutationEvent
	err    error
}

func (p *mockPublisher) Publish(ctx context.Context, ev domain.MutationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *mockPublisher) published() []domain.MutationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.MutationEvent, len(p.events))
	copy(out, p.events)
	return out
}

// Scripted EventSource: yields events, then err (or blocks until ctx is done)
type scriptedSource struct {
	events []domain.MutationEvent
	err    error
	closed atomic.Bool
}

func (s *scriptedSource) Next(ctx context.Context) (domain.MutationEvent, error) {
	if len(s.events) > 0 {
		ev := s.events[0]
		s.events = s.events[1:]
		return ev, nil
	}
	if s.err != nil {
		return domain.MutationEvent{}, s.err
	}
	<-ctx.Done()
	return domain.MutationEvent{}, ctx.Err()
}

func (s *scriptedSource) Close() error {
	s.closed.Store(true)
	return nil
}

var _ port.EventSource = (*scriptedSource)(nil)

// Recording HealthReporter
type recordingHealth struct {
	mu      sync.Mutex
	changes []bool
}

func (h *recordingHealth) SetServing(component string, serving bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.changes = append(h.changes, serving)
}

func (h *recordingHealth) history() []bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]bool, len(h.changes))
	copy(out, h.changes)
	return out
}
