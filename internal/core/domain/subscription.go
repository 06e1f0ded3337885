package domain

// DetailInterest is a connection watching a single order on behalf of a user.
type DetailInterest struct {
	ConnID       string
	SubscriberID string
	OrderID      string
}

// ListingInterest is a connection watching one page of the admin order list.
type ListingInterest struct {
	ConnID     string
	Page       int
	SearchTerm string
}

// ConnInterests is everything a single connection currently watches.
type ConnInterests struct {
	Detail  *DetailInterest
	Listing *ListingInterest
}
