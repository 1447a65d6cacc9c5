package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/storefront/internal/doc"
	"github.com/roach88/storefront/internal/domain"
	"github.com/roach88/storefront/internal/store"
)

// UpdateStatus moves a remote order to status and appends a history entry.
// Only forward transitions are allowed; anything else returns
// ErrInvalidTransition and writes nothing.
func (r *Reconciler) UpdateStatus(ctx context.Context, userID, orderID string, status domain.OrderStatus, note string) (domain.Order, error) {
	return r.mutate(ctx, userID, orderID, func(o *domain.Order) error {
		return applyStatus(o, status, note, r.opts.Clock.Now())
	})
}

// UpdateTracking records shipment tracking on a remote order. A confirmed or
// processing order is moved to shipped at the same time.
func (r *Reconciler) UpdateTracking(ctx context.Context, userID, orderID string, tracking domain.Tracking) (domain.Order, error) {
	return r.mutate(ctx, userID, orderID, func(o *domain.Order) error {
		return applyTracking(o, tracking, r.opts.Clock.Now())
	})
}

// mutate loads, changes and rewrites one order in a single transaction.
func (r *Reconciler) mutate(ctx context.Context, userID, orderID string, fn func(o *domain.Order) error) (domain.Order, error) {
	if userID == "" {
		return domain.Order{}, domain.ErrUnauthenticated
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	coll := doc.Collection(userID, doc.FamilyOrders)
	var updated domain.Order
	_, err := r.store.RunTx(ctx, func(tx *store.Tx) error {
		order, err := loadOrder(ctx, tx, coll, orderID)
		if err != nil {
			return err
		}
		if err := fn(&order); err != nil {
			return err
		}
		if err := order.Validate(); err != nil {
			return err
		}
		fields, err := doc.Encode(order)
		if err != nil {
			return fmt.Errorf("encode order: %w", err)
		}
		if err := tx.Set(ctx, coll, order.ID, fields); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order %s: %w", orderID, err)
	}

	r.log.Info("order updated", "user", userID, "order", orderID, "status", updated.Status)
	return updated, nil
}

func applyStatus(o *domain.Order, status domain.OrderStatus, note string, now time.Time) error {
	if !domain.CanTransition(o.Status, status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, o.Status, status)
	}
	o.AppendStatus(status, now, note)
	return nil
}

func applyTracking(o *domain.Order, tracking domain.Tracking, now time.Time) error {
	if strings.TrimSpace(tracking.Number) == "" {
		return fmt.Errorf("%w: tracking number is required", domain.ErrValidation)
	}
	t := tracking
	o.Tracking = &t
	o.UpdatedAt = now

	switch o.Status {
	case domain.StatusConfirmed, domain.StatusProcessing:
		note := "Shipped"
		if t.Carrier != "" {
			note = "Shipped via " + t.Carrier
		}
		o.AppendStatus(domain.StatusShipped, now, note)
	}
	return nil
}
