package cart

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/storefront/internal/clock"
	"github.com/roach88/storefront/internal/doc"
	"github.com/roach88/storefront/internal/domain"
	"github.com/roach88/storefront/internal/store"
)

// Store is the part of the document store the engine needs.
type Store interface {
	Snapshot(ctx context.Context, collection string) (store.Snapshot, error)
	RunTx(ctx context.Context, fn func(tx *store.Tx) error) (int64, error)
	Watch(ctx context.Context, collection string) (<-chan store.Snapshot, func(), error)
}

// Options configures an Engine. Zero values get defaults.
type Options struct {
	OperationTimeout time.Duration
	IDs              doc.IDGenerator
	Clock            clock.Wall
	Seq              clock.Sequencer
	Logger           *slog.Logger
}

// Engine is one client's view of users/{uid}/cart.
// Safe for concurrent use.
type Engine struct {
	store  Store
	userID string
	opts   Options
	log    *slog.Logger

	// opsMu is held shared by single-product operations and exclusively
	// by Clear.
	opsMu   sync.RWMutex
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
	feedMu  sync.Mutex

	mu          sync.Mutex
	items       map[string]domain.CartItem // by product id
	inflight    map[string]int64           // product id -> local seq of the running write
	committed   map[string]int64           // product id -> store version of the last local commit
	skipped     map[string]remoteLine      // product id -> newest feed value ignored while busy
	feedVersion int64
	err         error
	subs        map[int]*subscriber
	nextSub     int
	feedCancel  func()
	closed      bool
}

// NewEngine creates an Engine for userID. Call Load or Subscribe to fill
// the cache.
func NewEngine(st Store, userID string, opts Options) *Engine {
	if opts.IDs == nil {
		opts.IDs = doc.UUIDv7Generator{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Seq == nil {
		opts.Seq = clock.NewLogical()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:     st,
		userID:    userID,
		opts:      opts,
		log:       log.With("user", userID),
		locks:     make(map[string]*sync.Mutex),
		items:     make(map[string]domain.CartItem),
		inflight:  make(map[string]int64),
		committed: make(map[string]int64),
		skipped:   make(map[string]remoteLine),
		subs:      make(map[int]*subscriber),
	}
}

func (e *Engine) collection() string {
	return doc.Collection(e.userID, doc.FamilyCart)
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opts.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.opts.OperationTimeout)
}

// Load reads the remote cart and applies it to the cache.
func (e *Engine) Load(ctx context.Context) error {
	if e.userID == "" {
		return e.record(domain.ErrUnauthenticated)
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	snap, err := e.store.Snapshot(ctx, e.collection())
	if err != nil {
		return e.record(fmt.Errorf("load cart: %w", err))
	}
	e.apply(snap)
	return e.record(nil)
}

// Err returns the error of the last operation, or nil if it succeeded.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *Engine) record(err error) error {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
	return err
}

// IsBusy reports whether a write for productID is in flight.
func (e *Engine) IsBusy(productID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.inflight[productID]
	return ok
}

// Items returns the cached lines, oldest first.
func (e *Engine) Items() []domain.CartItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.itemsLocked()
}

func (e *Engine) itemsLocked() []domain.CartItem {
	out := make([]domain.CartItem, 0, len(e.items))
	for _, it := range e.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].AddedAt.Before(out[j].AddedAt)
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}

// TotalItems returns the sum of quantities.
func (e *Engine) TotalItems() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, it := range e.items {
		n += it.Quantity
	}
	return n
}

// TotalPrice returns the sum of price times quantity, summed in decimal.
func (e *Engine) TotalPrice() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := decimal.Zero
	for _, it := range e.items {
		total = total.Add(decimal.NewFromFloat(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total.InexactFloat64()
}

// IsInCart reports whether productID has a cached line.
func (e *Engine) IsInCart(productID string) bool {
	_, ok := e.GetCartItem(productID)
	return ok
}

// GetCartItem returns the cached line for productID.
func (e *Engine) GetCartItem(productID string) (domain.CartItem, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	it, ok := e.items[productID]
	return it, ok
}

// remoteLine is the remote state of one product at a store version.
type remoteLine struct {
	item    domain.CartItem
	present bool
	version int64
}

// remoteView is a reread of the whole remote cart. ok is false when the
// read failed.
type remoteView struct {
	lines   map[string]domain.CartItem
	version int64
	ok      bool
}

// decode turns a snapshot into one line per product.
func (e *Engine) decode(snap store.Snapshot) map[string]domain.CartItem {
	remote := make(map[string]domain.CartItem, len(snap.Documents))
	for _, d := range snap.Documents {
		var it domain.CartItem
		if err := domain.DecodeDocument(domain.KindCartItem, d.Fields, &it); err != nil {
			e.log.Warn("skipping malformed cart line", "line", d.ID, "error", err)
			continue
		}
		if prev, dup := remote[it.ProductID]; dup {
			// Legacy duplicate lines: show one line with the combined quantity
			// until the next write for the product merges them.
			it.Quantity += prev.Quantity
			if prev.AddedAt.Before(it.AddedAt) {
				it.ID, it.AddedAt = prev.ID, prev.AddedAt
			}
		}
		remote[it.ProductID] = it
	}
	return remote
}

// apply merges a remote snapshot into the cache, skipping fenced products.
// The value of a product skipped because a write is running is kept, so a
// failed write can settle on it.
func (e *Engine) apply(snap store.Snapshot) {
	remote := e.decode(snap)

	e.mu.Lock()
	defer e.mu.Unlock()

	if snap.Version < e.feedVersion {
		e.log.Debug("dropping stale cart snapshot", "version", snap.Version, "applied", e.feedVersion)
		return
	}
	e.feedVersion = snap.Version

	next := make(map[string]domain.CartItem, len(remote))
	for pid, it := range remote {
		if !e.fencedLocked(pid, snap.Version) {
			next[pid] = it
		}
	}
	for pid, it := range e.items {
		if e.fencedLocked(pid, snap.Version) {
			next[pid] = it
		}
	}
	for pid := range e.inflight {
		it, ok := remote[pid]
		e.skipped[pid] = remoteLine{item: it, present: ok, version: snap.Version}
	}
	for pid, v := range e.committed {
		if v <= snap.Version {
			delete(e.committed, pid)
		}
	}
	e.items = next
	e.notifyLocked()
}

// reread reads the remote cart after a failed write. The write's own
// context may already be done, so the read gets a fresh operation timeout.
func (e *Engine) reread(ctx context.Context) remoteView {
	ctx, cancel := e.withTimeout(context.WithoutCancel(ctx))
	defer cancel()

	snap, err := e.store.Snapshot(ctx, e.collection())
	if err != nil {
		e.log.Warn("cart reread failed", "error", err)
		return remoteView{}
	}
	return remoteView{lines: e.decode(snap), version: snap.Version, ok: true}
}

// settleLocked sets productID's line to the newest state known once a write
// ends: base, a feed value skipped during the write, or the reread after a
// failure, whichever has the highest version.
func (e *Engine) settleLocked(productID string, base remoteLine, fresh remoteView) {
	best := base
	if s, ok := e.skipped[productID]; ok && s.version > best.version {
		best = s
	}
	if fresh.ok && fresh.version >= best.version {
		it, present := fresh.lines[productID]
		best = remoteLine{item: it, present: present, version: fresh.version}
	}
	if best.present {
		e.items[productID] = best.item
	} else {
		delete(e.items, productID)
	}
}

// fencedLocked reports whether the feed must not touch productID.
func (e *Engine) fencedLocked(productID string, version int64) bool {
	if _, busy := e.inflight[productID]; busy {
		return true
	}
	return e.committed[productID] > version
}
