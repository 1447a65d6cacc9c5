// Package session holds the commerce state of one signed-in user.
//
// A Session owns one address manager, one cart engine and one order book,
// all scoped to the same user and sharing the same store, clock and id
// source. Nothing is global: two sessions for two users (or two tabs of the
// same user) are fully independent values.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/storefront/internal/address"
	"github.com/roach88/storefront/internal/cart"
	"github.com/roach88/storefront/internal/clock"
	"github.com/roach88/storefront/internal/doc"
	"github.com/roach88/storefront/internal/domain"
	"github.com/roach88/storefront/internal/orders"
	"github.com/roach88/storefront/internal/store"
)

// Options configures a Session. Zero values get component defaults.
type Options struct {
	StoreID             string
	DefaultDeliveryDays int
	OperationTimeout    time.Duration

	// LocalOrdersPath is the JSON file for local test orders. Empty keeps
	// them in memory only.
	LocalOrdersPath string

	IDs    doc.IDGenerator
	Clock  clock.Wall
	Random io.Reader
	Logger *slog.Logger
}

// Session is one user's state container.
type Session struct {
	UserID    string
	Addresses *address.Manager
	Cart      *cart.Engine
	Orders    *orders.Book
}

// Open creates a Session for userID. Nothing is loaded yet.
func Open(st *store.Store, userID string, opts Options) (*Session, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	rec := NewReconciler(st, opts)

	var cache *orders.LocalCache
	if opts.LocalOrdersPath != "" {
		cache = orders.NewLocalCache(opts.LocalOrdersPath)
	}

	return &Session{
		UserID: userID,
		Addresses: address.NewManager(st, userID, address.Options{
			OperationTimeout: opts.OperationTimeout,
			IDs:              opts.IDs,
			Clock:            opts.Clock,
			Logger:           log,
		}),
		Cart: cart.NewEngine(st, userID, cart.Options{
			OperationTimeout: opts.OperationTimeout,
			IDs:              opts.IDs,
			Clock:            opts.Clock,
			Logger:           log,
		}),
		Orders: orders.NewBook(rec, userID, cache),
	}, nil
}

// NewReconciler builds the order reconciler for opts. The webhook server
// uses it directly, without a session.
func NewReconciler(st *store.Store, opts Options) *orders.Reconciler {
	return orders.NewReconciler(st, orders.Options{
		StoreID:             opts.StoreID,
		DefaultDeliveryDays: opts.DefaultDeliveryDays,
		OperationTimeout:    opts.OperationTimeout,
		IDs:                 opts.IDs,
		Clock:               opts.Clock,
		Random:              opts.Random,
		Logger:              opts.Logger,
	})
}

// Load fills every component from the store. All three are attempted; the
// returned error joins their failures.
func (s *Session) Load(ctx context.Context) error {
	return errors.Join(
		s.Addresses.Load(ctx),
		s.Cart.Load(ctx),
		s.Orders.Load(ctx),
	)
}

// CompleteCheckout reconciles a finished checkout into an order and, when
// this call created it, clears the cart.
func (s *Session) CompleteCheckout(ctx context.Context, checkoutSessionID string) (orders.Result, error) {
	return s.Orders.Reconcile(ctx, checkoutSessionID, s.Cart)
}

// OrderFromCart builds a local test order from the cart contents, shipped to
// the default address.
func (s *Session) OrderFromCart() (domain.Order, error) {
	lines := s.Cart.Items()
	if len(lines) == 0 {
		return domain.Order{}, domain.ErrEmptyOrder
	}

	items := make([]domain.OrderItem, 0, len(lines))
	for _, l := range lines {
		var image string
		if len(l.Images) > 0 {
			image = l.Images[0]
		}
		items = append(items, domain.OrderItem{
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     l.Price,
			Quantity:  l.Quantity,
			Image:     image,
		})
	}

	var ship domain.ShippingAddress
	if def, ok := s.Addresses.Default(); ok {
		ship = def.ShippingAddress()
	}
	return s.Orders.CreateTestOrder(items, ship)
}

// Close stops the cart's live feed.
func (s *Session) Close() {
	s.Cart.Close()
}
