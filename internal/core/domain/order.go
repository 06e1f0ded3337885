package domain

import "time"

type OrderStatus string

const (
	OrderStatusPlaced    OrderStatus = "Placed"
	OrderStatusConfirmed OrderStatus = "Confirmed"
	OrderStatusProcessed OrderStatus = "Processed"
	OrderStatusFulfilled OrderStatus = "Fulfilled"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPlaced, OrderStatusConfirmed, OrderStatusProcessed,
		OrderStatusFulfilled, OrderStatusCancelled:
		return true
	}
	return false
}

type Order struct {
	ID        string
	UserID    string
	Email     string
	Items     []LineItem
	Status    OrderStatus
	Total     float64
	CreatedAt time.Time
}

// LineItem keeps the unit price the customer saw when the order was placed.
type LineItem struct {
	ProductID string
	Quantity  int
	UnitPrice float64
}

// OrderView is an order with every line item joined to its current product.
type OrderView struct {
	ID        string      `json:"_id"`
	UserID    string      `json:"userId"`
	Email     string      `json:"email,omitempty"`
	Items     []ItemView  `json:"items"`
	Status    OrderStatus `json:"status"`
	Total     float64     `json:"total"`
	CreatedAt time.Time   `json:"date"`
}

// ItemView flattens the product fields next to the line item. A nil Product
// leaves them out of the JSON entirely.
type ItemView struct {
	ProductID string  `json:"_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	*ProductSummary
}

type OrderListing struct {
	Orders     []OrderView `json:"orders"`
	TotalPages int         `json:"total_pages"`
}

// OrderHistory is one page of a customer's own orders.
type OrderHistory struct {
	Orders            []OrderView `json:"orders"`
	NextPageAvailable bool        `json:"next_page_available"`
}
