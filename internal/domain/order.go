package domain

import (
	"fmt"
	"math"
	"time"
)

// TotalsTolerance is the allowed drift between total and the sum of parts.
const TotalsTolerance = 1e-6

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusConfirmed  OrderStatus = "confirmed"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
	StatusRefunded   OrderStatus = "refunded"
)

// transitions lists the statuses reachable from each status.
var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusConfirmed, StatusProcessing, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusShipped, StatusCancelled, StatusRefunded},
	StatusProcessing: {StatusShipped, StatusCancelled, StatusRefunded},
	StatusShipped:    {StatusDelivered, StatusRefunded},
	StatusDelivered:  {StatusRefunded},
}

// ParseOrderStatus validates a status name.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCancelled, StatusRefunded:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown order status %q", ErrValidation, s)
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OrderSource tells where an order lives.
type OrderSource string

const (
	// SourceRemote orders are persisted in the document store.
	SourceRemote OrderSource = "remote"
	// SourceLocal orders were built locally for testing and are only kept in
	// the local cache.
	SourceLocal OrderSource = "local"
)

// OrderItem is one purchased line.
type OrderItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Image     string  `json:"image,omitempty"`
}

// Totals are the monetary amounts of an order.
type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Shipping float64 `json:"shipping"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

// Validate checks non-negativity and total == subtotal+shipping+tax.
func (t Totals) Validate() error {
	if t.Subtotal < 0 || t.Shipping < 0 || t.Tax < 0 || t.Total < 0 {
		return fmt.Errorf("%w: negative amount", ErrInvalidTotals)
	}
	if math.Abs(t.Total-(t.Subtotal+t.Shipping+t.Tax)) > TotalsTolerance {
		return fmt.Errorf("%w: total %.2f != %.2f + %.2f + %.2f",
			ErrInvalidTotals, t.Total, t.Subtotal, t.Shipping, t.Tax)
	}
	return nil
}

// ShippingAddress is the destination snapshot stored on an order.
type ShippingAddress struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// StatusEntry is one append-only status history record.
type StatusEntry struct {
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Note      string      `json:"note,omitempty"`
}

// Tracking holds shipment tracking details.
type Tracking struct {
	Carrier string `json:"carrier,omitempty"`
	Number  string `json:"number,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Order is the canonical user-visible order.
type Order struct {
	ID                 string          `json:"id"`
	OrderNumber        string          `json:"orderNumber"`
	ConfirmationNumber string          `json:"confirmationNumber"`
	CustomerID         string          `json:"customerId"`
	CustomerEmail      string          `json:"customerEmail"`
	CustomerName       string          `json:"customerName"`
	Items              []OrderItem     `json:"items"`
	Totals             Totals          `json:"totals"`
	ShippingAddress    ShippingAddress `json:"shippingAddress"`
	ShippingMethod     string          `json:"shippingMethod"`
	EstimatedDelivery  time.Time       `json:"estimatedDelivery"`
	PaymentMethod      string          `json:"paymentMethod"`
	PaymentIntentID    string          `json:"paymentIntentId,omitempty"`
	CheckoutSessionID  string          `json:"checkoutSessionId,omitempty"`
	Status             OrderStatus     `json:"status"`
	StatusHistory      []StatusEntry   `json:"statusHistory"`
	Tracking           *Tracking       `json:"tracking,omitempty"`
	Source             OrderSource     `json:"source"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// ItemCount returns the total quantity across all lines.
func (o Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// Validate checks every Order invariant:
// non-empty items, consistent totals, and a non-empty, time-ordered status
// history ending in the current status.
func (o Order) Validate() error {
	if len(o.Items) == 0 {
		return ErrEmptyOrder
	}
	for i, it := range o.Items {
		if it.Quantity < 1 {
			return fmt.Errorf("%w: item %d quantity %d", ErrValidation, i, it.Quantity)
		}
		if it.Price < 0 {
			return fmt.Errorf("%w: item %d negative price", ErrValidation, i)
		}
	}
	if err := o.Totals.Validate(); err != nil {
		return err
	}
	if len(o.StatusHistory) == 0 {
		return fmt.Errorf("%w: empty status history", ErrValidation)
	}
	for i := 1; i < len(o.StatusHistory); i++ {
		if o.StatusHistory[i].Timestamp.Before(o.StatusHistory[i-1].Timestamp) {
			return fmt.Errorf("%w: status history out of order at %d", ErrValidation, i)
		}
	}
	if last := o.StatusHistory[len(o.StatusHistory)-1]; last.Status != o.Status {
		return fmt.Errorf("%w: history ends in %s but status is %s", ErrValidation, last.Status, o.Status)
	}
	return nil
}

// AppendStatus moves the order to status and records it in the history.
// The entry timestamp is clamped so history stays non-decreasing even when
// the wall clock steps backwards.
func (o *Order) AppendStatus(status OrderStatus, at time.Time, note string) {
	if n := len(o.StatusHistory); n > 0 {
		if prev := o.StatusHistory[n-1].Timestamp; at.Before(prev) {
			at = prev
		}
	}
	o.Status = status
	o.StatusHistory = append(o.StatusHistory, StatusEntry{Status: status, Timestamp: at, Note: note})
	o.UpdatedAt = at
}
