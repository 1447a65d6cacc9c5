package orders

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/storefront/internal/clock"
	"github.com/roach88/storefront/internal/doc"
	"github.com/roach88/storefront/internal/domain"
	"github.com/roach88/storefront/internal/store"
)

// DocumentStore is the part of the store the reconciler needs.
type DocumentStore interface {
	List(ctx context.Context, collection string) ([]store.Document, error)
	RunTx(ctx context.Context, fn func(tx *store.Tx) error) (int64, error)
}

// CartClearer empties a user's cart after a successful reconciliation.
type CartClearer interface {
	Clear(ctx context.Context) error
}

// Options configures a Reconciler. Zero values get defaults.
type Options struct {
	StoreID             string
	DefaultDeliveryDays int
	OperationTimeout    time.Duration

	IDs    doc.IDGenerator
	Clock  clock.Wall
	Random io.Reader
	Logger *slog.Logger
}

// Reconciler creates and updates remote orders.
// Safe for concurrent use.
type Reconciler struct {
	store DocumentStore
	opts  Options
	log   *slog.Logger
}

// NewReconciler creates a Reconciler backed by st.
func NewReconciler(st DocumentStore, opts Options) *Reconciler {
	if opts.StoreID == "" {
		opts.StoreID = "SF"
	}
	if opts.DefaultDeliveryDays <= 0 {
		opts.DefaultDeliveryDays = DefaultDeliveryDays
	}
	if opts.IDs == nil {
		opts.IDs = doc.UUIDv7Generator{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Random == nil {
		opts.Random = rand.Reader
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{store: st, opts: opts, log: log}
}

// Result is the outcome of a reconciliation.
type Result struct {
	Order   domain.Order `json:"order"`
	Created bool         `json:"created"`
}

func (r *Reconciler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opts.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.opts.OperationTimeout)
}

// idempotencyScope namespaces session-id claims per user.
func idempotencyScope(userID string) string {
	return doc.Collection(userID, doc.FamilyOrders)
}

// Reconcile converts the checkout record sessionID of userID into an order.
//
// Calling it any number of times, concurrently or not, yields one order. The
// second and later calls return the existing order with Created=false.
// When cart is non-nil it is cleared only by the call that created the
// order; a failed reconciliation leaves the cart alone. A cart clear failure
// is logged and does not undo the order.
func (r *Reconciler) Reconcile(ctx context.Context, userID, sessionID string, cart CartClearer) (Result, error) {
	if userID == "" {
		return Result{}, domain.ErrUnauthenticated
	}
	if strings.TrimSpace(sessionID) == "" {
		return Result{}, fmt.Errorf("reconcile: %w: empty session id", domain.ErrValidation)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	ordersColl := doc.Collection(userID, doc.FamilyOrders)
	scope := idempotencyScope(userID)

	var res Result
	_, err := r.store.RunTx(ctx, func(tx *store.Tx) error {
		if ownerID, err := tx.LookupKey(ctx, scope, sessionID); err == nil {
			existing, err := loadOrder(ctx, tx, ordersColl, ownerID)
			if err != nil {
				return err
			}
			res = Result{Order: existing}
			return nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		recDoc, err := tx.Get(ctx, doc.Collection(userID, doc.FamilyCheckoutSessions), sessionID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("checkout session %s: %w", sessionID, domain.ErrNotFound)
		}
		if err != nil {
			return err
		}

		var rec domain.CheckoutRecord
		if err := domain.DecodeDocument(domain.KindCheckoutRecord, recDoc.Fields, &rec); err != nil {
			return fmt.Errorf("checkout session %s: %w", sessionID, err)
		}

		order, err := r.buildOrder(userID, rec)
		if err != nil {
			return fmt.Errorf("checkout session %s: %w", sessionID, err)
		}

		ownerID, claimed, err := tx.ClaimKey(ctx, scope, sessionID, order.ID)
		if err != nil {
			return err
		}
		if !claimed {
			existing, err := loadOrder(ctx, tx, ordersColl, ownerID)
			if err != nil {
				return err
			}
			res = Result{Order: existing}
			return nil
		}

		fields, err := doc.Encode(order)
		if err != nil {
			return fmt.Errorf("encode order: %w", err)
		}
		if err := tx.Set(ctx, ordersColl, order.ID, fields); err != nil {
			return err
		}
		res = Result{Order: order, Created: true}
		return nil
	})
	if err != nil {
		r.log.Warn("reconcile failed", "user", userID, "session", sessionID, "error", err)
		return Result{}, fmt.Errorf("reconcile: %w", err)
	}

	r.log.Info("order reconciled",
		"user", userID,
		"session", sessionID,
		"order", res.Order.ID,
		"order_number", res.Order.OrderNumber,
		"created", res.Created,
	)

	if res.Created && cart != nil {
		if err := cart.Clear(ctx); err != nil {
			r.log.Warn("cart clear after reconcile failed", "user", userID, "order", res.Order.ID, "error", err)
		}
	}
	return res, nil
}

// buildOrder is the pure conversion from checkout record to order.
func (r *Reconciler) buildOrder(userID string, rec domain.CheckoutRecord) (domain.Order, error) {
	items := ParseItems(rec.Metadata)
	if len(items) == 0 {
		return domain.Order{}, domain.ErrEmptyOrder
	}

	totals, err := ParseTotals(rec.Metadata, items)
	if err != nil {
		return domain.Order{}, err
	}

	now := r.opts.Clock.Now()
	confirmation, err := ConfirmationNumber(r.opts.Random, userID, now)
	if err != nil {
		return domain.Order{}, err
	}

	created := now
	if rec.Created > 0 {
		created = time.Unix(rec.Created, 0).UTC()
	}

	customerName := firstNonEmpty(rec.CustomerName, rec.Meta(domain.MetaCustomerName), rec.Meta(domain.MetaShippingName))

	order := domain.Order{
		ID:                 r.opts.IDs.Generate(),
		OrderNumber:        OrderNumber(r.opts.StoreID, rec.ID, now),
		ConfirmationNumber: confirmation,
		CustomerID:         userID,
		CustomerEmail:      rec.CustomerEmail,
		CustomerName:       customerName,
		Items:              items,
		Totals:             totals,
		ShippingAddress: domain.ShippingAddress{
			Name:       firstNonEmpty(rec.Meta(domain.MetaShippingName), customerName),
			Line1:      rec.Meta(domain.MetaShippingLine1),
			Line2:      rec.Meta(domain.MetaShippingLine2),
			City:       rec.Meta(domain.MetaShippingCity),
			State:      rec.Meta(domain.MetaShippingState),
			PostalCode: rec.Meta(domain.MetaShippingPostalCode),
			Country:    rec.Meta(domain.MetaShippingCountry),
			Phone:      rec.Meta(domain.MetaShippingPhone),
		},
		ShippingMethod:    firstNonEmpty(rec.Meta(domain.MetaShippingMethod), "standard"),
		EstimatedDelivery: EstimatedDelivery(created, rec.Meta(domain.MetaEstimatedDeliveryDays), r.opts.DefaultDeliveryDays),
		PaymentMethod:     firstNonEmpty(rec.PaymentMethod, "card"),
		PaymentIntentID:   rec.PaymentIntent,
		CheckoutSessionID: rec.ID,
		Source:            domain.SourceRemote,
		CreatedAt:         now,
	}
	order.AppendStatus(domain.StatusConfirmed, now, "Payment confirmed")

	if err := order.Validate(); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func loadOrder(ctx context.Context, tx *store.Tx, collection, id string) (domain.Order, error) {
	d, err := tx.Get(ctx, collection, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, err
	}
	var order domain.Order
	if err := domain.DecodeDocument(domain.KindOrder, d.Fields, &order); err != nil {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, err)
	}
	return order, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
