package cart

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/storefront/internal/doc"
	"github.com/roach88/storefront/internal/domain"
	"github.com/roach88/storefront/internal/store"
	"github.com/roach88/storefront/internal/testutil"
)

// hookStore wraps a real store and lets a test intercept transactions and
// reads.
type hookStore struct {
	*store.Store
	beforeTx       func(ctx context.Context) error
	afterTx        func(ctx context.Context) error
	beforeSnapshot func(ctx context.Context) error
}

func (h *hookStore) RunTx(ctx context.Context, fn func(tx *store.Tx) error) (int64, error) {
	if h.beforeTx != nil {
		if err := h.beforeTx(ctx); err != nil {
			return 0, err
		}
	}
	v, err := h.Store.RunTx(ctx, fn)
	if err == nil && h.afterTx != nil {
		if err := h.afterTx(ctx); err != nil {
			return 0, err
		}
	}
	return v, err
}

func (h *hookStore) Snapshot(ctx context.Context, collection string) (store.Snapshot, error) {
	if h.beforeSnapshot != nil {
		if err := h.beforeSnapshot(ctx); err != nil {
			return store.Snapshot{}, err
		}
	}
	return h.Store.Snapshot(ctx, collection)
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "cart.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEngine(t *testing.T, st Store, userID string) *Engine {
	t.Helper()
	e := NewEngine(st, userID, Options{
		IDs:   doc.NewSequentialGenerator("line-" + userID),
		Clock: testutil.NewStepClock(testutil.DefaultEpoch, time.Second),
		Seq:   testutil.NewDeterministicClock(),
	})
	t.Cleanup(e.Close)
	return e
}

func product(name string, price float64) domain.ProductSnapshot {
	return domain.ProductSnapshot{Name: name, Price: price, InStock: true}
}

func remoteLines(t *testing.T, st *store.Store, userID string) []store.Document {
	t.Helper()
	docs, err := st.List(context.Background(), doc.Collection(userID, doc.FamilyCart))
	require.NoError(t, err)
	return docs
}
