package service

import (
	"fmt"
	"time"
)

const (
	ProductDetailTTL = 60 * time.Second
	ProductListTTL   = 300 * time.Second
	UserProfileTTL   = time.Hour

	ProductDetailPageSize = 7
	ProductListPageSize   = 10

	productKind = "products"
	userKind    = "user"
)

// ProductDetailKey and ProductListKey share the products:<ref>:<page>:<limit>
// layout. The page sizes differ, so a product ID never collides with a
// category of the same name.
func ProductDetailKey(productID string, page, limit int) string {
	return productKey(productID, page, limit)
}

func ProductListKey(category string, page, limit int) string {
	return productKey(category, page, limit)
}

func UserKey(email string) string {
	return userKind + ":" + email
}

func productKey(ref string, page, limit int) string {
	return fmt.Sprintf("%s:%s:%d:%d", productKind, ref, page, limit)
}
