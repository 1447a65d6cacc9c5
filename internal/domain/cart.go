package domain

import (
	"fmt"
	"time"
)

// ProductSnapshot is the catalog data copied onto a cart line when added.
type ProductSnapshot struct {
	Name        string   `json:"name"`
	Price       float64  `json:"price"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Images      []string `json:"images,omitempty"`
	InStock     bool     `json:"inStock"`
}

// CartItem is one line of the cart. At most one line exists per product.
type CartItem struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"productId"`
	Name        string    `json:"name"`
	Price       float64   `json:"price"`
	Quantity    int       `json:"quantity"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Images      []string  `json:"images,omitempty"`
	InStock     bool      `json:"inStock"`
	AddedAt     time.Time `json:"addedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// LineTotal returns price times quantity.
func (c CartItem) LineTotal() float64 {
	return c.Price * float64(c.Quantity)
}

// CheckCartUniqueness returns an error if two lines share a product id or a
// line has a quantity below one.
func CheckCartUniqueness(items []CartItem) error {
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if seen[it.ProductID] {
			return &InvariantError{Name: "cart-line-uniqueness", Detail: "duplicate product " + it.ProductID}
		}
		seen[it.ProductID] = true
		if it.Quantity < 1 {
			return &InvariantError{Name: "cart-line-uniqueness", Detail: fmt.Sprintf("product %s has quantity %d", it.ProductID, it.Quantity)}
		}
	}
	return nil
}
