package domain

import "errors"

var (
	// ErrUnauthenticated means an operation ran without a user id.
	// Components return it before any remote call.
	ErrUnauthenticated = errors.New("no authenticated user")

	// ErrNotFound means the addressed address, cart line or order is gone.
	ErrNotFound = errors.New("not found")

	// ErrEmptyOrder means a checkout record produced no order items.
	ErrEmptyOrder = errors.New("order has no items")

	// ErrInvalidTotals means totals are negative or do not add up.
	ErrInvalidTotals = errors.New("order totals are inconsistent")

	// ErrInvalidTransition means a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid order status transition")

	// ErrValidation means input failed field or schema validation.
	ErrValidation = errors.New("validation failed")
)
