// Package address keeps a user's saved addresses with exactly one default.
//
// Every mutation that touches the default flag rewrites all affected
// documents in a single store transaction, so concurrent editors (two tabs,
// two devices) can never leave the set with zero or two defaults.
package address

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/roach88/storefront/internal/clock"
	"github.com/roach88/storefront/internal/doc"
	"github.com/roach88/storefront/internal/domain"
	"github.com/roach88/storefront/internal/store"
)

// Store is the part of the document store the manager needs.
type Store interface {
	List(ctx context.Context, collection string) ([]store.Document, error)
	RunTx(ctx context.Context, fn func(tx *store.Tx) error) (int64, error)
}

// Options configures a Manager. Zero values get defaults.
type Options struct {
	OperationTimeout time.Duration
	IDs              doc.IDGenerator
	Clock            clock.Wall
	Logger           *slog.Logger
}

// Manager owns users/{uid}/addresses for one user.
//
// Mutations return their error and also record it for Err. After every
// successful mutation the manager reloads from the store.
type Manager struct {
	store  Store
	userID string
	opts   Options
	log    *slog.Logger

	mu    sync.RWMutex
	addrs []domain.Address
	err   error
}

// NewManager creates a Manager for userID.
func NewManager(st Store, userID string, opts Options) *Manager {
	if opts.IDs == nil {
		opts.IDs = doc.UUIDv7Generator{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Manager{store: st, userID: userID, opts: opts, log: log.With("user", userID)}
}

func (m *Manager) collection() string {
	return doc.Collection(m.userID, doc.FamilyAddresses)
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.opts.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.opts.OperationTimeout)
}

// Addresses returns the cached set in display order: default first, then
// newest first.
func (m *Manager) Addresses() []domain.Address {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Address(nil), m.addrs...)
}

// Default returns the default address, if any.
func (m *Manager) Default() (domain.Address, bool) {
	for _, a := range m.Addresses() {
		if a.IsDefault {
			return a, true
		}
	}
	return domain.Address{}, false
}

// Err returns the error of the last operation, or nil if it succeeded.
func (m *Manager) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

func (m *Manager) record(err error) error {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
	return err
}

// Load replaces the cached set with the stored one.
func (m *Manager) Load(ctx context.Context) error {
	if m.userID == "" {
		return m.record(domain.ErrUnauthenticated)
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	docs, err := m.store.List(ctx, m.collection())
	if err != nil {
		return m.record(fmt.Errorf("load addresses: %w", err))
	}
	addrs, err := decodeAll(docs)
	if err != nil {
		return m.record(fmt.Errorf("load addresses: %w", err))
	}
	domain.SortAddresses(addrs)

	m.mu.Lock()
	m.addrs = addrs
	m.err = nil
	m.mu.Unlock()
	return nil
}

// Add saves a new address. The first address of a user always becomes the
// default; an address added with IsDefault demotes the current default in
// the same transaction.
func (m *Manager) Add(ctx context.Context, input domain.Address) (domain.Address, error) {
	var added domain.Address
	err := m.mutate(ctx, "add", func(ctx context.Context, tx *store.Tx, existing []domain.Address) error {
		if err := validate(input); err != nil {
			return err
		}

		now := m.opts.Clock.Now()
		added = normalize(input)
		added.ID = m.opts.IDs.Generate()
		added.CreatedAt = now
		added.UpdatedAt = now
		added.IsDefault = input.IsDefault || len(existing) == 0

		if added.IsDefault {
			if err := m.setFlags(ctx, tx, existing, "", now); err != nil {
				return err
			}
		}
		return m.write(ctx, tx, added)
	})
	if err != nil {
		return domain.Address{}, err
	}
	return added, nil
}

// Update replaces the editable fields of address id.
//
// Setting IsDefault demotes every other address. Clearing IsDefault on the
// current default is refused: the flag stays true, since the set must keep
// one default. Use SetDefault on another address instead.
func (m *Manager) Update(ctx context.Context, id string, input domain.Address) (domain.Address, error) {
	var updated domain.Address
	err := m.mutate(ctx, "update", func(ctx context.Context, tx *store.Tx, existing []domain.Address) error {
		if err := validate(input); err != nil {
			return err
		}
		current, ok := find(existing, id)
		if !ok {
			return fmt.Errorf("address %s: %w", id, domain.ErrNotFound)
		}

		now := m.opts.Clock.Now()
		updated = normalize(input)
		updated.ID = current.ID
		updated.CreatedAt = current.CreatedAt
		updated.UpdatedAt = now

		switch {
		case input.IsDefault && !current.IsDefault:
			if err := m.setFlags(ctx, tx, existing, "", now); err != nil {
				return err
			}
		case !input.IsDefault && current.IsDefault:
			m.log.Info("refusing to clear the only default address", "address", id)
			updated.IsDefault = true
		}
		return m.write(ctx, tx, updated)
	})
	if err != nil {
		return domain.Address{}, err
	}
	return updated, nil
}

// Delete removes address id. Deleting the default promotes the most recently
// created remaining address in the same transaction.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.mutate(ctx, "delete", func(ctx context.Context, tx *store.Tx, existing []domain.Address) error {
		target, ok := find(existing, id)
		if !ok {
			return fmt.Errorf("address %s: %w", id, domain.ErrNotFound)
		}
		if _, err := tx.Delete(ctx, m.collection(), id); err != nil {
			return err
		}
		if !target.IsDefault {
			return nil
		}

		remaining := make([]domain.Address, 0, len(existing)-1)
		for _, a := range existing {
			if a.ID != id {
				remaining = append(remaining, a)
			}
		}
		if len(remaining) == 0 {
			return nil
		}
		domain.SortAddresses(remaining)
		promoted := remaining[0].ID
		m.log.Info("promoting address after default was deleted", "deleted", id, "promoted", promoted)
		return m.setFlags(ctx, tx, remaining, promoted, m.opts.Clock.Now())
	})
}

// SetDefault makes address id the only default.
func (m *Manager) SetDefault(ctx context.Context, id string) error {
	return m.mutate(ctx, "set default", func(ctx context.Context, tx *store.Tx, existing []domain.Address) error {
		if _, ok := find(existing, id); !ok {
			return fmt.Errorf("address %s: %w", id, domain.ErrNotFound)
		}
		return m.setFlags(ctx, tx, existing, id, m.opts.Clock.Now())
	})
}

// mutate runs fn in one transaction over the current stored set, then
// reloads.
func (m *Manager) mutate(ctx context.Context, op string, fn func(context.Context, *store.Tx, []domain.Address) error) error {
	if m.userID == "" {
		return m.record(domain.ErrUnauthenticated)
	}

	txCtx, cancel := m.withTimeout(ctx)
	defer cancel()

	_, err := m.store.RunTx(txCtx, func(tx *store.Tx) error {
		docs, err := tx.List(txCtx, m.collection())
		if err != nil {
			return err
		}
		existing, err := decodeAll(docs)
		if err != nil {
			return err
		}
		return fn(txCtx, tx, existing)
	})
	if err != nil {
		m.log.Warn("address "+op+" failed", "error", err)
		return m.record(fmt.Errorf("%s address: %w", op, err))
	}
	return m.Load(ctx)
}

// setFlags rewrites the default flag of every address so that only
// defaultID is set. An empty defaultID clears them all, for a caller about
// to write a new default. Unchanged documents are not rewritten.
func (m *Manager) setFlags(ctx context.Context, tx *store.Tx, addrs []domain.Address, defaultID string, now time.Time) error {
	for _, a := range addrs {
		want := a.ID == defaultID
		if a.IsDefault == want {
			continue
		}
		if err := tx.Merge(ctx, m.collection(), a.ID, doc.Fields{
			"isDefault": want,
			"updatedAt": now.Format(time.RFC3339Nano),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) write(ctx context.Context, tx *store.Tx, a domain.Address) error {
	fields, err := doc.Encode(a)
	if err != nil {
		return fmt.Errorf("encode address: %w", err)
	}
	return tx.Set(ctx, m.collection(), a.ID, fields)
}

func decodeAll(docs []store.Document) ([]domain.Address, error) {
	addrs := make([]domain.Address, 0, len(docs))
	for _, d := range docs {
		var a domain.Address
		if err := domain.DecodeDocument(domain.KindAddress, d.Fields, &a); err != nil {
			return nil, fmt.Errorf("address %s: %w", d.ID, err)
		}
		addrs = append(addrs, a)
	}
	return addrs, nil
}

func find(addrs []domain.Address, id string) (domain.Address, bool) {
	for _, a := range addrs {
		if a.ID == id {
			return a, true
		}
	}
	return domain.Address{}, false
}

func normalize(a domain.Address) domain.Address {
	a.Name = strings.TrimSpace(a.Name)
	a.Line1 = strings.TrimSpace(a.Line1)
	a.Line2 = strings.TrimSpace(a.Line2)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	a.Phone = strings.TrimSpace(a.Phone)
	if a.Type == "" {
		a.Type = domain.AddressHome
	}
	return a
}

func validate(input domain.Address) error {
	return domain.ValidateStruct(normalize(input))
}
