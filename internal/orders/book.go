package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/storefront/internal/doc"
	"github.com/roach88/storefront/internal/domain"
)

// Book is one user's order history: remote orders from the document store
// merged with local test orders from the LocalCache.
//
// Every method records its error, readable through Err. Safe for concurrent
// use.
type Book struct {
	rec    *Reconciler
	userID string
	cache  *LocalCache

	mu     sync.RWMutex
	remote []domain.Order
	local  []domain.Order
	err    error
}

// NewBook creates a Book for userID. cache may be nil, in which case test
// orders live only in memory.
func NewBook(rec *Reconciler, userID string, cache *LocalCache) *Book {
	return &Book{rec: rec, userID: userID, cache: cache}
}

// Load replaces the in-memory history with the stored one. Remote documents
// that fail schema validation are skipped and logged.
func (b *Book) Load(ctx context.Context) error {
	if b.userID == "" {
		return b.record(domain.ErrUnauthenticated)
	}

	ctx, cancel := b.rec.withTimeout(ctx)
	defer cancel()

	docs, err := b.rec.store.List(ctx, doc.Collection(b.userID, doc.FamilyOrders))
	if err != nil {
		return b.record(fmt.Errorf("load orders: %w", err))
	}

	remote := make([]domain.Order, 0, len(docs))
	for _, d := range docs {
		var o domain.Order
		if err := domain.DecodeDocument(domain.KindOrder, d.Fields, &o); err != nil {
			b.rec.log.Warn("skipping malformed order", "user", b.userID, "order", d.ID, "error", err)
			continue
		}
		remote = append(remote, o)
	}

	var local []domain.Order
	if b.cache != nil {
		local, err = b.cache.Load(b.userID)
		if err != nil {
			return b.record(fmt.Errorf("load local orders: %w", err))
		}
	} else {
		b.mu.RLock()
		local = append(local, b.local...)
		b.mu.RUnlock()
	}

	b.mu.Lock()
	b.remote = remote
	b.local = local
	b.err = nil
	b.mu.Unlock()
	return nil
}

// Orders returns every order newest first.
func (b *Book) Orders() []domain.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	all := make([]domain.Order, 0, len(b.remote)+len(b.local))
	all = append(all, b.remote...)
	all = append(all, b.local...)
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	return all
}

// Get returns the order with id.
func (b *Book) Get(id string) (domain.Order, bool) {
	for _, o := range b.Orders() {
		if o.ID == id {
			return o, true
		}
	}
	return domain.Order{}, false
}

// Err returns the error of the last failed operation, or nil after a
// successful one.
func (b *Book) Err() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.err
}

// Reconcile converts a checkout session into an order and reloads.
func (b *Book) Reconcile(ctx context.Context, sessionID string, cart CartClearer) (Result, error) {
	res, err := b.rec.Reconcile(ctx, b.userID, sessionID, cart)
	if err != nil {
		return Result{}, b.record(err)
	}
	return res, b.Load(ctx)
}

// CreateTestOrder adds a local pending order.
func (b *Book) CreateTestOrder(items []domain.OrderItem, addr domain.ShippingAddress) (domain.Order, error) {
	order, err := b.rec.NewTestOrder(b.userID, items, addr)
	if err != nil {
		return domain.Order{}, b.record(err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	local := append(append([]domain.Order(nil), b.local...), order)
	if err := b.saveLocked(local); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// UpdateStatus changes the status of a remote or local order.
func (b *Book) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, note string) (domain.Order, error) {
	return b.update(ctx, orderID,
		func(ctx context.Context) (domain.Order, error) {
			return b.rec.UpdateStatus(ctx, b.userID, orderID, status, note)
		},
		func(o *domain.Order) error {
			return applyStatus(o, status, note, b.rec.opts.Clock.Now())
		})
}

// UpdateTracking sets tracking details on a remote or local order.
func (b *Book) UpdateTracking(ctx context.Context, orderID string, tracking domain.Tracking) (domain.Order, error) {
	return b.update(ctx, orderID,
		func(ctx context.Context) (domain.Order, error) {
			return b.rec.UpdateTracking(ctx, b.userID, orderID, tracking)
		},
		func(o *domain.Order) error {
			return applyTracking(o, tracking, b.rec.opts.Clock.Now())
		})
}

func (b *Book) update(ctx context.Context, orderID string, remote func(context.Context) (domain.Order, error), local func(*domain.Order) error) (domain.Order, error) {
	if b.userID == "" {
		return domain.Order{}, b.record(domain.ErrUnauthenticated)
	}

	b.mu.Lock()
	for i := range b.local {
		if b.local[i].ID != orderID {
			continue
		}
		defer b.mu.Unlock()
		updated := b.local[i]
		updated.StatusHistory = append([]domain.StatusEntry(nil), updated.StatusHistory...)
		if err := local(&updated); err != nil {
			b.err = err
			return domain.Order{}, err
		}
		next := append([]domain.Order(nil), b.local...)
		next[i] = updated
		if err := b.saveLocked(next); err != nil {
			return domain.Order{}, err
		}
		return updated, nil
	}
	b.mu.Unlock()

	order, err := remote(ctx)
	if err != nil {
		return domain.Order{}, b.record(err)
	}
	return order, b.Load(ctx)
}

// saveLocked persists local and installs it. Caller holds b.mu.
func (b *Book) saveLocked(local []domain.Order) error {
	if b.cache != nil {
		if err := b.cache.Save(b.userID, local); err != nil {
			b.err = err
			return err
		}
	}
	b.local = local
	b.err = nil
	return nil
}

func (b *Book) record(err error) error {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
	return err
}
