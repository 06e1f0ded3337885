package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/rl1809/order-realtime/internal/core/domain"
	"github.com/rl1809/order-realtime/internal/port"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrNoProducts      = errors.New("no products found")
	ErrUserNotFound    = errors.New("user not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
)

// CatalogService serves the read-mostly catalog endpoints. Every result is
// returned as the encoded JSON body so cache hits skip decoding.
type CatalogService struct {
	products          port.ProductRepository
	users             port.UserRepository
	cache             *ReadThrough
	invalidateOnWrite bool
}

// NewCatalogService builds the service. With invalidateOnWrite a new review
// drops the cached pages of its product at once instead of waiting out the
// TTL.
func NewCatalogService(products port.ProductRepository, users port.UserRepository, cache *ReadThrough, invalidateOnWrite bool) *CatalogService {
	return &CatalogService{products: products, users: users, cache: cache, invalidateOnWrite: invalidateOnWrite}
}

// ProductDetail returns one product with a page of its reviews, best rated
// first. average_rating always covers every review.
func (s *CatalogService) ProductDetail(ctx context.Context, productID string, page int) ([]byte, error) {
	if productID == "" {
		return nil, ErrInvalidRequest
	}
	if page < 1 {
		page = 1
	}
	key := ProductDetailKey(productID, page, ProductDetailPageSize)

	return s.cache.GetOrCompute(ctx, key, ProductDetailTTL, func(ctx context.Context) ([]byte, error) {
		p, err := s.products.GetProduct(ctx, productID)
		if err != nil {
			return nil, fmt.Errorf("get product %s: %w", productID, err)
		}
		if p == nil {
			return nil, ErrProductNotFound
		}
		reviews, err := s.products.ListReviews(ctx, productID)
		if err != nil {
			return nil, fmt.Errorf("list reviews %s: %w", productID, err)
		}

		sorted := make([]domain.Review, len(reviews))
		copy(sorted, reviews)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Rating > sorted[j].Rating })

		start := (page - 1) * ProductDetailPageSize
		end := start + ProductDetailPageSize
		pageReviews := []domain.Review{}
		if start < len(sorted) {
			if end > len(sorted) {
				end = len(sorted)
			}
			pageReviews = sorted[start:end]
		}

		return json.Marshal(domain.ProductDetail{
			ProductPayload:    newProductPayload(*p, AverageRating(reviews)),
			Reviews:           pageReviews,
			NextPageAvailable: len(sorted) > page*ProductDetailPageSize,
		})
	})
}

// ProductList returns a page of products in category, or of all products when
// category is empty. Reviews are left out; only their average is shown.
func (s *CatalogService) ProductList(ctx context.Context, category string, page int) ([]byte, error) {
	if page < 1 {
		page = 1
	}
	key := ProductListKey(category, page, ProductListPageSize)

	return s.cache.GetOrCompute(ctx, key, ProductListTTL, func(ctx context.Context) ([]byte, error) {
		// one extra row tells us whether another page exists
		products, err := s.products.ListProducts(ctx, category, (page-1)*ProductListPageSize, ProductListPageSize+1)
		if err != nil {
			return nil, fmt.Errorf("list products: %w", err)
		}
		if len(products) == 0 {
			return nil, ErrNoProducts
		}
		next := len(products) > ProductListPageSize
		if next {
			products = products[:ProductListPageSize]
		}

		ids := make([]string, len(products))
		for i, p := range products {
			ids[i] = p.ID
		}
		ratings, err := s.products.ListRatings(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("list ratings: %w", err)
		}

		listing := domain.ProductListing{
			Data:              make([]domain.ProductPayload, 0, len(products)),
			NextPageAvailable: next,
		}
		for _, p := range products {
			payload := newProductPayload(p, averageOf(ratings[p.ID]))
			payload.Reviews = nil
			listing.Data = append(listing.Data, payload)
		}
		return json.Marshal(listing)
	})
}

// AddReview appends a review to productID.
func (s *CatalogService) AddReview(ctx context.Context, productID string, review domain.Review) error {
	if productID == "" || review.UserID == "" {
		return ErrInvalidRequest
	}
	if review.Rating < 1 || review.Rating > 5 {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, ErrInvalidRating)
	}

	ok, err := s.products.AddReview(ctx, productID, review)
	if err != nil {
		return fmt.Errorf("add review %s: %w", productID, err)
	}
	if !ok {
		return ErrProductNotFound
	}

	if s.invalidateOnWrite {
		if err := s.cache.InvalidatePrefix(ctx, productKind, productID); err != nil {
			log.Warn().Err(err).Str("product_id", productID).Msg("invalidate product cache failed")
		}
	}
	return nil
}

// UserProfile returns the account projection for email.
func (s *CatalogService) UserProfile(ctx context.Context, email string) ([]byte, error) {
	if email == "" {
		return nil, ErrUnauthorized
	}
	return s.cache.GetOrCompute(ctx, UserKey(email), UserProfileTTL, func(ctx context.Context) ([]byte, error) {
		u, err := s.users.GetUserByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("get user: %w", err)
		}
		if u == nil {
			return nil, ErrUserNotFound
		}
		return json.Marshal(u.Profile())
	})
}

func newProductPayload(p domain.Product, avg float64) domain.ProductPayload {
	return domain.ProductPayload{
		ID:                 p.ID,
		Title:              p.Title,
		Description:        p.Description,
		Price:              p.Price,
		DiscountPercentage: p.DiscountPercentage,
		Stock:              p.Stock,
		Brand:              p.Brand,
		Category:           p.Category,
		Thumbnail:          p.Thumbnail,
		Images:             p.Images,
		Reviews:            p.Reviews,
		AverageRating:      avg,
	}
}
