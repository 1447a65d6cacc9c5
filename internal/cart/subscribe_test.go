package cart

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storefront/internal/domain"
)

func recv(t *testing.T, ch <-chan []domain.CartItem) []domain.CartItem {
	t.Helper()
	select {
	case items, ok := <-ch:
		require.True(t, ok, "channel closed")
		return items
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cart update")
		return nil
	}
}

func TestSubscribe_ReceivesRemoteChanges(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	e := newTestEngine(t, st, "u1")

	ch, unsubscribe := e.Subscribe(ctx)
	defer unsubscribe()
	assert.Empty(t, recv(t, ch))

	other := NewEngine(st, "u1", Options{})
	defer other.Close()
	_, err := other.AddItem(ctx, "p1", product("Vase", 25), 2)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return e.TotalItems() == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSubscribe_LocalChanges(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, openStore(t), "u1")

	ch, unsubscribe := e.Subscribe(ctx)
	defer unsubscribe()
	recv(t, ch)

	_, err := e.AddItem(ctx, "p1", product("Vase", 25), 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		select {
		case items := <-ch:
			return len(items) == 1 && items[0].Quantity == 1
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSubscribe_ContextCancelCloses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := newTestEngine(t, openStore(t), "u1")

	ch, unsubscribe := e.Subscribe(ctx)
	recv(t, ch)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
	unsubscribe()
}

func TestClose_EndsSubscriptions(t *testing.T) {
	e := newTestEngine(t, openStore(t), "u1")
	ch, _ := e.Subscribe(context.Background())
	recv(t, ch)

	e.Close()
	_, ok := <-ch
	assert.False(t, ok)

	late, _ := e.Subscribe(context.Background())
	_, ok = <-late
	assert.False(t, ok)
}
