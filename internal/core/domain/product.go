package domain

type Product struct {
	ID                 string
	Title              string
	Description        string
	Price              float64
	DiscountPercentage float64
	Stock              int
	Brand              string
	Category           string
	Thumbnail          string
	Images             []string
	Reviews            []Review
}

type Review struct {
	UserID  string `json:"userId"`
	Name    string `json:"name"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// ProductSummary is the slice of a product that order views show per item.
type ProductSummary struct {
	Title              string  `json:"title"`
	Price              float64 `json:"price"`
	DiscountPercentage float64 `json:"discount_percentage"`
	Brand              string  `json:"brand"`
	Category           string  `json:"category"`
	Thumbnail          string  `json:"thumbnail"`
}

func (p Product) Summary() *ProductSummary {
	return &ProductSummary{
		Title:              p.Title,
		Price:              p.Price,
		DiscountPercentage: p.DiscountPercentage,
		Brand:              p.Brand,
		Category:           p.Category,
		Thumbnail:          p.Thumbnail,
	}
}

type ProductPayload struct {
	ID                 string   `json:"_id"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Price              float64  `json:"price"`
	DiscountPercentage float64  `json:"discount_percentage"`
	Stock              int      `json:"stock"`
	Brand              string   `json:"brand"`
	Category           string   `json:"category"`
	Thumbnail          string   `json:"thumbnail"`
	Images             []string `json:"images,omitempty"`
	Reviews            []Review `json:"reviews,omitempty"`
	AverageRating      float64  `json:"average_rating"`
}

// ProductDetail always carries its reviews page, even an empty one. Its
// Reviews field shadows the one in ProductPayload.
type ProductDetail struct {
	ProductPayload
	Reviews           []Review `json:"reviews"`
	NextPageAvailable bool     `json:"next_page_available"`
}

type ProductListing struct {
	Data              []ProductPayload `json:"data"`
	NextPageAvailable bool             `json:"next_page_available"`
}
