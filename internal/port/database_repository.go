package port

import (
	"context"

	"github.com/rl1809/order-realtime/internal/core/domain"
)

// Lookups return (nil, nil) when the row does not exist.

type OrderRepository interface {
	// GetOrder loads an order with its line items
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// ListOrders returns a page of orders, newest first, whose ID or email contains search
	ListOrders(ctx context.Context, search string, offset, limit int) ([]domain.Order, error)

	// CountOrders counts the orders ListOrders would page over
	CountOrders(ctx context.Context, search string) (int, error)

	// CreateOrder persists an order and decrements stock for its items in one transaction
	CreateOrder(ctx context.Context, order domain.Order) error

	// UpdateOrderStatus sets the status and returns the previous one, or "" if the order is unknown
	UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.OrderStatus, error)

	// ListUserOrders returns a page of one user's orders, newest first
	ListUserOrders(ctx context.Context, userID string, offset, limit int) ([]domain.Order, error)

	CountUserOrders(ctx context.Context, userID string) (int, error)

	// HasPurchased reports whether any order of the user contains the product
	HasPurchased(ctx context.Context, userID, productID string) (bool, error)
}

type ProductRepository interface {
	// GetProduct loads a product without its reviews
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)

	// ListReviews returns every review of a product
	ListReviews(ctx context.Context, productID string) ([]domain.Review, error)

	// AddReview appends a review and returns false if the product is unknown
	AddReview(ctx context.Context, productID string, review domain.Review) (bool, error)

	// ListProducts returns up to limit products of a category ("" for all)
	ListProducts(ctx context.Context, category string, offset, limit int) ([]domain.Product, error)

	// ListRatings returns the review ratings per product ID
	ListRatings(ctx context.Context, productIDs []string) (map[string][]int, error)
}

type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// IsAdmin reports whether the user exists and holds admin privilege
	IsAdmin(ctx context.Context, userID string) (bool, error)
}
