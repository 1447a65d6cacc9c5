package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "channel closed")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func TestWatch_InitialSnapshot(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Set(ctx, "users/u1/cart", "c1", item("p1", 1))
	require.NoError(t, err)

	ch, cancel, err := s.Watch(ctx, "users/u1/cart")
	require.NoError(t, err)
	defer cancel()

	snap := receive(t, ch)
	assert.Equal(t, int64(1), snap.Version)
	require.Len(t, snap.Documents, 1)
	assert.Equal(t, "c1", snap.Documents[0].ID)
}

func TestWatch_DeliversAfterCommit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ch, cancel, err := s.Watch(ctx, "users/u1/cart")
	require.NoError(t, err)
	defer cancel()
	receive(t, ch)

	_, err = s.Set(ctx, "users/u1/cart", "c1", item("p1", 1))
	require.NoError(t, err)

	snap := receive(t, ch)
	assert.Equal(t, int64(1), snap.Version)
	assert.Len(t, snap.Documents, 1)
}

func TestWatch_IgnoresOtherCollections(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ch, cancel, err := s.Watch(ctx, "users/u1/cart")
	require.NoError(t, err)
	defer cancel()
	receive(t, ch)

	_, err = s.Set(ctx, "users/u2/cart", "c1", item("p1", 1))
	require.NoError(t, err)

	select {
	case snap := <-ch:
		t.Fatalf("unexpected snapshot for %s", snap.Collection)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatch_CoalescesToNewest(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ch, cancel, err := s.Watch(ctx, "c")
	require.NoError(t, err)
	defer cancel()
	receive(t, ch)

	for i := 1; i <= 5; i++ {
		_, err := s.Set(ctx, "c", "a", item("p1", i))
		require.NoError(t, err)
	}

	snap := receive(t, ch)
	assert.Equal(t, int64(5), snap.Version, "only the newest pending snapshot is kept")
}

func TestWatch_CancelClosesChannel(t *testing.T) {
	s := createTestStore(t)

	ch, cancel, err := s.Watch(context.Background(), "c")
	require.NoError(t, err)
	receive(t, ch)

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
}

func TestWatch_ContextCancelClosesChannel(t *testing.T) {
	s := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch, _, err := s.Watch(ctx, "c")
	require.NoError(t, err)
	receive(t, ch)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after context cancel")
	}
}

func TestWatch_StoreCloseClosesChannel(t *testing.T) {
	path := t.TempDir() + "/w.db"
	s, err := Open(path)
	require.NoError(t, err)

	ch, _, err := s.Watch(context.Background(), "c")
	require.NoError(t, err)
	receive(t, ch)

	require.NoError(t, s.Close())
	_, ok := <-ch
	assert.False(t, ok)

	_, _, err = s.Watch(context.Background(), "c")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHub_NeverDeliversOlderVersion(t *testing.T) {
	h := newHub()
	w, err := h.add("c")
	require.NoError(t, err)

	h.deliver(w, Snapshot{Collection: "c", Version: 5})
	h.deliver(w, Snapshot{Collection: "c", Version: 3})

	snap := <-w.ch
	assert.Equal(t, int64(5), snap.Version)
	select {
	case snap := <-w.ch:
		t.Fatalf("stale snapshot delivered: v%d", snap.Version)
	default:
	}
}
