package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/storefront/internal/doc"
	"github.com/roach88/storefront/internal/domain"
)

// checkInvariants verifies the commerce invariants against both the session
// caches and the stored documents. All violations are joined.
func (h *Harness) checkInvariants(ctx context.Context) error {
	return errors.Join(
		h.checkAddresses(ctx),
		h.checkCart(ctx),
		h.checkOrders(ctx),
	)
}

func (h *Harness) checkAddresses(ctx context.Context) error {
	if err := domain.CheckDefaultInvariant(h.sess.Addresses.Addresses()); err != nil {
		return fmt.Errorf("cached addresses: %w", err)
	}

	docs, err := h.store.List(ctx, doc.Collection(h.user, doc.FamilyAddresses))
	if err != nil {
		return err
	}
	stored := make([]domain.Address, 0, len(docs))
	for _, d := range docs {
		var a domain.Address
		if err := doc.Decode(d.Fields, &a); err != nil {
			return fmt.Errorf("address %s: %w", d.ID, err)
		}
		stored = append(stored, a)
	}
	if err := domain.CheckDefaultInvariant(stored); err != nil {
		return fmt.Errorf("stored addresses: %w", err)
	}
	return nil
}

// checkCart requires unique cached lines whose quantities equal the stored
// quantities per product.
func (h *Harness) checkCart(ctx context.Context) error {
	cached := h.sess.Cart.Items()
	if err := domain.CheckCartUniqueness(cached); err != nil {
		return fmt.Errorf("cached cart: %w", err)
	}

	docs, err := h.store.List(ctx, doc.Collection(h.user, doc.FamilyCart))
	if err != nil {
		return err
	}
	stored := make(map[string]int, len(docs))
	for _, d := range docs {
		var it domain.CartItem
		if err := doc.Decode(d.Fields, &it); err != nil {
			return fmt.Errorf("cart line %s: %w", d.ID, err)
		}
		stored[it.ProductID] += it.Quantity
	}

	if len(stored) != len(cached) {
		return fmt.Errorf("cart cache has %d lines, store has %d products", len(cached), len(stored))
	}
	for _, it := range cached {
		if q, ok := stored[it.ProductID]; !ok || q != it.Quantity {
			return fmt.Errorf("cart product %s: cached quantity %d, stored %d", it.ProductID, it.Quantity, q)
		}
	}
	return nil
}

// checkOrders validates every stored order and requires at most one order
// per checkout session.
func (h *Harness) checkOrders(ctx context.Context) error {
	docs, err := h.store.List(ctx, doc.Collection(h.user, doc.FamilyOrders))
	if err != nil {
		return err
	}

	sessions := make(map[string]string, len(docs))
	for _, d := range docs {
		var o domain.Order
		if err := domain.DecodeDocument(domain.KindOrder, d.Fields, &o); err != nil {
			return fmt.Errorf("order %s: %w", d.ID, err)
		}
		if err := o.Validate(); err != nil {
			return fmt.Errorf("order %s: %w", d.ID, err)
		}
		if o.CheckoutSessionID == "" {
			continue
		}
		if other, dup := sessions[o.CheckoutSessionID]; dup {
			return fmt.Errorf("checkout session %s produced orders %s and %s", o.CheckoutSessionID, other, d.ID)
		}
		sessions[o.CheckoutSessionID] = d.ID
	}
	return nil
}
