package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storefront/internal/doc"
	"github.com/roach88/storefront/internal/domain"
	"github.com/roach88/storefront/internal/store"
	"github.com/roach88/storefront/internal/testutil"
)

func TestAddItem_SameProductCollapses(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	e := newTestEngine(t, st, "u1")
	require.NoError(t, e.Load(ctx))

	for _, qty := range []int{1, 2, 3} {
		_, err := e.AddItem(ctx, "p1", product("Vase", 25), qty)
		require.NoError(t, err)
	}

	items := e.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 6, items[0].Quantity)
	assert.Equal(t, "line-u1-0001", items[0].ID)
	assert.Len(t, remoteLines(t, st, "u1"), 1)
	assert.NoError(t, domain.CheckCartUniqueness(items))
}

func TestAddItem_ConcurrentSameEngine(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	e := newTestEngine(t, st, "u1")

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(qty int) {
			defer wg.Done()
			_, err := e.AddItem(ctx, "p1", product("Vase", 25), qty)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	item, ok := e.GetCartItem("p1")
	require.True(t, ok)
	assert.Equal(t, 55, item.Quantity)
	assert.Len(t, remoteLines(t, st, "u1"), 1)
}

func TestAddItem_ConcurrentEngines(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	tabs := []*Engine{newTestEngine(t, st, "u1"), newTestEngine(t, st, "u1"), newTestEngine(t, st, "u1")}

	var wg sync.WaitGroup
	for _, tab := range tabs {
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(e *Engine) {
				defer wg.Done()
				_, err := e.AddItem(ctx, "p1", product("Vase", 25), 1)
				assert.NoError(t, err)
			}(tab)
		}
	}
	wg.Wait()

	lines := remoteLines(t, st, "u1")
	require.Len(t, lines, 1)

	fresh := newTestEngine(t, st, "u1")
	require.NoError(t, fresh.Load(ctx))
	assert.Equal(t, 12, fresh.TotalItems())
}

func TestAddItem_Validation(t *testing.T) {
	e := newTestEngine(t, openStore(t), "u1")

	_, err := e.AddItem(context.Background(), "p1", product("Vase", 25), 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = e.AddItem(context.Background(), "", product("Vase", 25), 1)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.ErrorIs(t, e.Err(), domain.ErrValidation)
}

func TestSetQuantity_ZeroRemovesLine(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	e := newTestEngine(t, st, "u1")
	_, err := e.AddItem(ctx, "p1", product("Vase", 25), 3)
	require.NoError(t, err)
	_, err = e.AddItem(ctx, "p2", product("Lamp", 40), 2)
	require.NoError(t, err)
	require.Equal(t, 5, e.TotalItems())

	_, err = e.SetQuantity(ctx, "p1", 0)
	require.NoError(t, err)

	assert.False(t, e.IsInCart("p1"))
	assert.Equal(t, 2, e.TotalItems())
	assert.Len(t, remoteLines(t, st, "u1"), 1)
}

func TestSetQuantity(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, openStore(t), "u1")
	_, err := e.AddItem(ctx, "p1", product("Vase", 25), 1)
	require.NoError(t, err)

	it, err := e.SetQuantity(ctx, "p1", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, it.Quantity)
	assert.Equal(t, 100.0, e.TotalPrice())

	_, err = e.SetQuantity(ctx, "missing", 2)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, e.IsInCart("missing"))
}

func TestRemoveItem(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	e := newTestEngine(t, st, "u1")
	_, err := e.AddItem(ctx, "p1", product("Vase", 25), 1)
	require.NoError(t, err)

	require.NoError(t, e.RemoveItem(ctx, "p1"))
	assert.Empty(t, e.Items())
	assert.Empty(t, remoteLines(t, st, "u1"))

	assert.ErrorIs(t, e.RemoveItem(ctx, "p1"), domain.ErrNotFound)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	e := newTestEngine(t, st, "u1")
	_, err := e.AddItem(ctx, "p1", product("Vase", 25), 1)
	require.NoError(t, err)
	_, err = e.AddItem(ctx, "p2", product("Lamp", 40), 1)
	require.NoError(t, err)

	// A second engine that never loaded can still clear the remote cart.
	other := newTestEngine(t, st, "u1")
	require.NoError(t, other.Clear(ctx))
	assert.Empty(t, remoteLines(t, st, "u1"))

	require.NoError(t, e.Clear(ctx))
	assert.Empty(t, e.Items())
	assert.Zero(t, e.TotalItems())
}

func TestViews(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, openStore(t), "u1")
	_, err := e.AddItem(ctx, "p2", product("Cup", 0.1), 3)
	require.NoError(t, err)
	_, err = e.AddItem(ctx, "p1", product("Saucer", 0.2), 1)
	require.NoError(t, err)

	assert.Equal(t, 4, e.TotalItems())
	assert.Equal(t, 0.5, e.TotalPrice())
	assert.True(t, e.IsInCart("p1"))
	assert.False(t, e.IsInCart("p3"))

	items := e.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "p2", items[0].ProductID, "oldest first")

	it, ok := e.GetCartItem("p1")
	require.True(t, ok)
	assert.Equal(t, "Saucer", it.Name)
}

func TestUnauthenticated(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, openStore(t), "")

	assert.ErrorIs(t, e.Load(ctx), domain.ErrUnauthenticated)
	_, err := e.AddItem(ctx, "p1", product("Vase", 25), 1)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.ErrorIs(t, e.Clear(ctx), domain.ErrUnauthenticated)

	ch, unsubscribe := e.Subscribe(ctx)
	defer unsubscribe()
	_, open := <-ch
	assert.False(t, open)
}

func TestLegacyDuplicateLinesAreMerged(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	coll := doc.Collection("u1", doc.FamilyCart)
	for _, id := range []string{"a", "b"} {
		fields, err := doc.Encode(domain.CartItem{ID: id, ProductID: "p1", Name: "Vase", Price: 25, Quantity: 2, AddedAt: testutil.DefaultEpoch})
		require.NoError(t, err)
		_, err = st.Set(ctx, coll, id, fields)
		require.NoError(t, err)
	}

	e := newTestEngine(t, st, "u1")
	require.NoError(t, e.Load(ctx))
	require.Len(t, e.Items(), 1)
	assert.Equal(t, 4, e.TotalItems())

	_, err := e.AddItem(ctx, "p1", product("Vase", 25), 1)
	require.NoError(t, err)
	assert.Equal(t, 5, e.TotalItems())

	lines := remoteLines(t, st, "u1")
	require.Len(t, lines, 1)
	assert.Equal(t, "a", lines[0].ID)
}

func TestStaleFeedDoesNotResurrectRemovedLine(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	coll := doc.Collection("u1", doc.FamilyCart)
	e := newTestEngine(t, st, "u1")
	require.NoError(t, e.Load(ctx))

	beforeAdd, err := st.Snapshot(ctx, coll)
	require.NoError(t, err)

	_, err = e.AddItem(ctx, "p1", product("Vase", 25), 2)
	require.NoError(t, err)
	afterAdd, err := st.Snapshot(ctx, coll)
	require.NoError(t, err)

	// An event from before the add must not drop the new line.
	e.apply(beforeAdd)
	assert.True(t, e.IsInCart("p1"))

	require.NoError(t, e.RemoveItem(ctx, "p1"))

	// A late event still carrying the line must not bring it back.
	e.apply(afterAdd)
	assert.False(t, e.IsInCart("p1"))

	// Changes to other products in the same late event are applied.
	other := NewEngine(st, "u1", Options{})
	defer other.Close()
	_, err = other.AddItem(ctx, "p2", product("Lamp", 40), 1)
	require.NoError(t, err)
	current, err := st.Snapshot(ctx, coll)
	require.NoError(t, err)
	e.apply(current)
	assert.True(t, e.IsInCart("p2"))
	assert.False(t, e.IsInCart("p1"))

	// Older snapshots than one already applied are dropped wholesale.
	e.apply(afterAdd)
	assert.True(t, e.IsInCart("p2"))
}

func TestBusyFlagAndOptimisticUpdate(t *testing.T) {
	ctx := context.Background()
	hs := &hookStore{Store: openStore(t)}
	e := newTestEngine(t, hs, "u1")

	entered := make(chan struct{})
	release := make(chan struct{})
	hs.beforeTx = func(context.Context) error {
		close(entered)
		<-release
		return nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := e.AddItem(ctx, "p1", product("Vase", 25), 2)
		done <- err
	}()

	<-entered
	assert.True(t, e.IsBusy("p1"))
	assert.False(t, e.IsBusy("p2"))
	it, ok := e.GetCartItem("p1")
	require.True(t, ok, "optimistic line is visible while the write is in flight")
	assert.Equal(t, 2, it.Quantity)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, e.IsBusy("p1"))
}

func TestFailedWriteRollsBack(t *testing.T) {
	ctx := context.Background()
	hs := &hookStore{Store: openStore(t)}
	e := newTestEngine(t, hs, "u1")
	_, err := e.AddItem(ctx, "p1", product("Vase", 25), 1)
	require.NoError(t, err)

	hs.beforeTx = func(context.Context) error { return errors.New("network down") }

	_, err = e.SetQuantity(ctx, "p1", 9)
	require.ErrorContains(t, err, "network down")
	assert.ErrorContains(t, e.Err(), "network down")

	it, ok := e.GetCartItem("p1")
	require.True(t, ok)
	assert.Equal(t, 1, it.Quantity)
	assert.False(t, e.IsBusy("p1"))

	require.Error(t, e.Clear(ctx))
	assert.True(t, e.IsInCart("p1"), "failed clear restores the cache")
}

func TestOperationTimeoutClearsBusy(t *testing.T) {
	hs := &hookStore{Store: openStore(t)}
	hs.beforeTx = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	e := NewEngine(hs, "u1", Options{OperationTimeout: 20 * time.Millisecond})
	defer e.Close()

	_, err := e.AddItem(context.Background(), "p1", product("Vase", 25), 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, e.IsBusy("p1"))
	assert.False(t, e.IsInCart("p1"))
	assert.ErrorIs(t, e.Err(), context.DeadlineExceeded)
}

// deliver hands the current remote cart to e as the live feed would.
func deliver(t *testing.T, e *Engine, st *store.Store) {
	t.Helper()
	snap, err := st.Snapshot(context.Background(), doc.Collection(e.userID, doc.FamilyCart))
	require.NoError(t, err)
	e.apply(snap)
}

func TestFailedWriteKeepsRemoteChangeSeenWhileBusy(t *testing.T) {
	ctx := context.Background()
	hs := &hookStore{Store: openStore(t)}
	e := newTestEngine(t, hs, "u1")
	other := NewEngine(hs.Store, "u1", Options{})
	defer other.Close()
	_, err := e.AddItem(ctx, "p1", product("Vase", 25), 1)
	require.NoError(t, err)

	hs.beforeTx = func(ctx context.Context) error {
		_, err := other.SetQuantity(ctx, "p1", 7)
		require.NoError(t, err)
		deliver(t, e, hs.Store)
		assert.Equal(t, 3, mustItem(t, e, "p1").Quantity, "busy product keeps its optimistic value")
		hs.beforeSnapshot = func(context.Context) error { return errors.New("network down") }
		return errors.New("network down")
	}

	_, err = e.SetQuantity(ctx, "p1", 3)
	require.ErrorContains(t, err, "network down")
	assert.False(t, e.IsBusy("p1"))
	assert.Equal(t, 7, mustItem(t, e, "p1").Quantity)
}

func TestFailedWriteRereadsRemoteCart(t *testing.T) {
	ctx := context.Background()
	hs := &hookStore{Store: openStore(t)}
	e := newTestEngine(t, hs, "u1")
	other := NewEngine(hs.Store, "u1", Options{})
	defer other.Close()
	_, err := e.AddItem(ctx, "p1", product("Vase", 25), 1)
	require.NoError(t, err)

	hs.beforeTx = func(ctx context.Context) error {
		_, err := other.SetQuantity(ctx, "p1", 7)
		require.NoError(t, err)
		return errors.New("network down")
	}

	_, err = e.SetQuantity(ctx, "p1", 3)
	require.Error(t, err)
	assert.Equal(t, 7, mustItem(t, e, "p1").Quantity)
}

func TestUncertainWriteShowsCommittedLine(t *testing.T) {
	ctx := context.Background()
	hs := &hookStore{Store: openStore(t)}
	e := newTestEngine(t, hs, "u1")
	hs.afterTx = func(context.Context) error { return context.DeadlineExceeded }

	_, err := e.AddItem(ctx, "p1", product("Vase", 25), 2)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	it := mustItem(t, e, "p1")
	assert.Equal(t, 2, it.Quantity, "the write reached the store")
	assert.Len(t, remoteLines(t, hs.Store, "u1"), 1)
}

func TestWriteKeepsNewerRemoteChangeSeenWhileBusy(t *testing.T) {
	ctx := context.Background()
	hs := &hookStore{Store: openStore(t)}
	e := newTestEngine(t, hs, "u1")
	other := NewEngine(hs.Store, "u1", Options{})
	defer other.Close()
	_, err := e.AddItem(ctx, "p1", product("Vase", 25), 1)
	require.NoError(t, err)

	hs.afterTx = func(ctx context.Context) error {
		hs.afterTx = nil
		_, err := other.SetQuantity(ctx, "p1", 7)
		require.NoError(t, err)
		deliver(t, e, hs.Store)
		return nil
	}

	_, err = e.SetQuantity(ctx, "p1", 3)
	require.NoError(t, err)
	assert.Equal(t, 7, mustItem(t, e, "p1").Quantity)
}

func TestFailedClearRereadsRemoteCart(t *testing.T) {
	ctx := context.Background()
	hs := &hookStore{Store: openStore(t)}
	e := newTestEngine(t, hs, "u1")
	other := NewEngine(hs.Store, "u1", Options{})
	defer other.Close()
	_, err := e.AddItem(ctx, "p1", product("Vase", 25), 1)
	require.NoError(t, err)

	hs.beforeTx = func(ctx context.Context) error {
		_, err := other.SetQuantity(ctx, "p1", 4)
		require.NoError(t, err)
		_, err = other.AddItem(ctx, "p2", product("Lamp", 40), 1)
		require.NoError(t, err)
		return errors.New("network down")
	}

	require.Error(t, e.Clear(ctx))
	assert.Equal(t, 4, mustItem(t, e, "p1").Quantity)
	assert.True(t, e.IsInCart("p2"))
	assert.False(t, e.IsBusy("p1"))
}

func mustItem(t *testing.T, e *Engine, productID string) domain.CartItem {
	t.Helper()
	it, ok := e.GetCartItem(productID)
	require.True(t, ok, "%s not in cart", productID)
	return it
}
