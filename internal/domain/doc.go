// Package domain holds the commerce entities (Order, Address, CartItem,
// CheckoutRecord), their invariants, and the error taxonomy shared by the
// order, address and cart components.
//
// The document store enforces no schema. Every document read from it is
// checked here: structurally against the CUE definitions in schema.cue, and
// semantically by the Validate methods on each entity.
package domain
