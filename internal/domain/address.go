package domain

import (
	"fmt"
	"sort"
	"time"
)

// AddressType classifies an address.
type AddressType string

const (
	AddressHome  AddressType = "home"
	AddressWork  AddressType = "work"
	AddressOther AddressType = "other"
)

// Address is one saved shipping address.
type Address struct {
	ID         string      `json:"id"`
	Type       AddressType `json:"type" validate:"required,oneof=home work other"`
	IsDefault  bool        `json:"isDefault"`
	Name       string      `json:"name" validate:"required,max=100"`
	Phone      string      `json:"phone,omitempty" validate:"omitempty,max=32"`
	Line1      string      `json:"line1" validate:"required,max=200"`
	Line2      string      `json:"line2,omitempty" validate:"max=200"`
	City       string      `json:"city" validate:"required,max=100"`
	State      string      `json:"state,omitempty" validate:"max=100"`
	PostalCode string      `json:"postalCode" validate:"required,max=16"`
	Country    string      `json:"country" validate:"required,iso3166_1_alpha2"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// ShippingAddress converts a saved address to the snapshot stored on orders.
func (a Address) ShippingAddress() ShippingAddress {
	return ShippingAddress{
		Name:       a.Name,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}

// SortAddresses orders addresses for display: the default first, then the
// rest newest first, ties broken by id.
func SortAddresses(addrs []Address) {
	sort.SliceStable(addrs, func(i, j int) bool {
		a, b := addrs[i], addrs[j]
		if a.IsDefault != b.IsDefault {
			return a.IsDefault
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// CountDefaults returns how many addresses are flagged default.
func CountDefaults(addrs []Address) int {
	n := 0
	for _, a := range addrs {
		if a.IsDefault {
			n++
		}
	}
	return n
}

// CheckDefaultInvariant returns an error unless a non-empty set has exactly
// one default and an empty set has none.
func CheckDefaultInvariant(addrs []Address) error {
	n := CountDefaults(addrs)
	switch {
	case len(addrs) == 0 && n == 0:
		return nil
	case len(addrs) > 0 && n == 1:
		return nil
	}
	return &InvariantError{Name: "single-default", Detail: fmt.Sprintf("addresses=%d defaults=%d", len(addrs), n)}
}
