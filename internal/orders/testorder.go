package orders

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/storefront/internal/domain"
)

// NewTestOrder builds a local order for exercising the order views without
// a payment. It is pending, has one history entry and is never written to
// the document store.
func (r *Reconciler) NewTestOrder(userID string, items []domain.OrderItem, addr domain.ShippingAddress) (domain.Order, error) {
	if userID == "" {
		return domain.Order{}, domain.ErrUnauthenticated
	}
	if len(items) == 0 {
		return domain.Order{}, domain.ErrEmptyOrder
	}

	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(decimal.NewFromFloat(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	sub := subtotal.Round(2).InexactFloat64()

	now := r.opts.Clock.Now()
	confirmation, err := ConfirmationNumber(r.opts.Random, userID, now)
	if err != nil {
		return domain.Order{}, err
	}

	id := r.opts.IDs.Generate()
	order := domain.Order{
		ID:                 id,
		OrderNumber:        OrderNumber(r.opts.StoreID, "test_"+id, now),
		ConfirmationNumber: confirmation,
		CustomerID:         userID,
		CustomerName:       addr.Name,
		Items:              append([]domain.OrderItem(nil), items...),
		Totals:             domain.Totals{Subtotal: sub, Total: sub},
		ShippingAddress:    addr,
		ShippingMethod:     "standard",
		EstimatedDelivery:  now.AddDate(0, 0, r.opts.DefaultDeliveryDays),
		PaymentMethod:      "test",
		Source:             domain.SourceLocal,
		CreatedAt:          now,
	}
	order.AppendStatus(domain.StatusPending, now, "Test order created")

	if err := order.Validate(); err != nil {
		return domain.Order{}, fmt.Errorf("test order: %w", err)
	}
	return order, nil
}
