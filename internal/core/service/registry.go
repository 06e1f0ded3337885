package service

import (
	"sort"
	"sync"

	"github.com/rl1809/order-realtime/internal/core/domain"
)

type connState struct {
	detail  *domain.DetailInterest
	listing *domain.ListingInterest
}

// SubscriptionRegistry maps each live connection to the views it wants kept
// fresh. A connection's newer subscription replaces its older one of the same
// kind; other connections are never affected. All reads return copies.
type SubscriptionRegistry struct {
	mu      sync.RWMutex
	conns   map[string]connState
	byOrder map[string]map[string]struct{}
}

func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{
		conns:   make(map[string]connState),
		byOrder: make(map[string]map[string]struct{}),
	}
}

// SubscribeOrderDetail records that connID watches orderID as subscriberID.
// Ownership is not checked here; watchers check it at delivery time.
func (r *SubscriptionRegistry) SubscribeOrderDetail(connID, subscriberID, orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.conns[connID]
	if st.detail != nil {
		r.unindex(st.detail.OrderID, connID)
	}
	st.detail = &domain.DetailInterest{ConnID: connID, SubscriberID: subscriberID, OrderID: orderID}
	r.conns[connID] = st

	set, ok := r.byOrder[orderID]
	if !ok {
		set = make(map[string]struct{})
		r.byOrder[orderID] = set
	}
	set[connID] = struct{}{}
}

func (r *SubscriptionRegistry) SubscribeOrderListing(connID string, page int, searchTerm string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.conns[connID]
	st.listing = &domain.ListingInterest{ConnID: connID, Page: page, SearchTerm: searchTerm}
	r.conns[connID] = st
}

// Unsubscribe forgets every interest of a closed connection.
func (r *SubscriptionRegistry) Unsubscribe(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.conns[connID]
	if !ok {
		return
	}
	if st.detail != nil {
		r.unindex(st.detail.OrderID, connID)
	}
	delete(r.conns, connID)
}

// InterestsMatching returns the detail interests on orderID, ordered by
// connection ID.
func (r *SubscriptionRegistry) InterestsMatching(orderID string) []domain.DetailInterest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byOrder[orderID]
	out := make([]domain.DetailInterest, 0, len(set))
	for connID := range set {
		if st, ok := r.conns[connID]; ok && st.detail != nil {
			out = append(out, *st.detail)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnID < out[j].ConnID })
	return out
}

// AllListingInterests returns every listing interest, ordered by connection ID.
func (r *SubscriptionRegistry) AllListingInterests() []domain.ListingInterest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.ListingInterest
	for _, st := range r.conns {
		if st.listing != nil {
			out = append(out, *st.listing)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnID < out[j].ConnID })
	return out
}

// Interests returns what connID currently watches.
func (r *SubscriptionRegistry) Interests(connID string) domain.ConnInterests {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := r.conns[connID]
	var out domain.ConnInterests
	if st.detail != nil {
		d := *st.detail
		out.Detail = &d
	}
	if st.listing != nil {
		l := *st.listing
		out.Listing = &l
	}
	return out
}

// Len is the number of connections holding at least one interest.
func (r *SubscriptionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// unindex must be called with mu held.
func (r *SubscriptionRegistry) unindex(orderID, connID string) {
	set, ok := r.byOrder[orderID]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.byOrder, orderID)
	}
}
