package service

import (
	"github.com/shopspring/decimal"

	"github.com/rl1809/order-realtime/internal/core/domain"
)

// AverageRating is the mean review rating rounded half-up to one decimal.
// It is computed in decimal so repeated runs over the same reviews agree.
func AverageRating(reviews []domain.Review) float64 {
	ratings := make([]int, len(reviews))
	for i, r := range reviews {
		ratings[i] = r.Rating
	}
	return averageOf(ratings)
}

func averageOf(ratings []int) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := decimal.Zero
	for _, r := range ratings {
		sum = sum.Add(decimal.NewFromInt(int64(r)))
	}
	// Round is half away from zero, which is half-up for non-negative ratings.
	avg, _ := sum.Div(decimal.NewFromInt(int64(len(ratings)))).Round(1).Float64()
	return avg
}

// orderTotal sums quantity * unit price and rounds half-up to cents.
func orderTotal(items []domain.LineItem) float64 {
	total := decimal.Zero
	for _, it := range items {
		line := decimal.NewFromFloat(it.UnitPrice).Mul(decimal.NewFromInt(int64(it.Quantity)))
		total = total.Add(line)
	}
	f, _ := total.Round(2).Float64()
	return f
}
