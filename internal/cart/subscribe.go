package cart

import (
	"context"
	"fmt"

	"github.com/roach88/storefront/internal/domain"
)

// Subscribe streams the cached cart. The channel receives the current items
// at once and again after every change, local or remote. It holds at most
// one pending value; a newer one replaces an unread older one.
//
// The first subscription attaches the engine to the store's live feed. The
// subscription ends when ctx is done or unsubscribe is called; either
// closes the channel.
func (e *Engine) Subscribe(ctx context.Context) (<-chan []domain.CartItem, func()) {
	ch := make(chan []domain.CartItem, 1)

	if e.userID == "" {
		e.record(domain.ErrUnauthenticated)
		close(ch)
		return ch, func() {}
	}
	if err := e.startFeed(); err != nil {
		e.log.Warn("cart feed unavailable", "error", err)
		e.record(fmt.Errorf("subscribe cart: %w", err))
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := e.nextSub
	e.nextSub++
	sub := &subscriber{ch: ch, done: make(chan struct{})}
	e.subs[id] = sub
	ch <- e.itemsLocked()
	e.mu.Unlock()

	unsubscribe := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.subs[id]; ok {
			delete(e.subs, id)
			sub.close()
		}
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-sub.done:
		}
	}()

	return ch, unsubscribe
}

// Close detaches from the live feed and ends every subscription.
func (e *Engine) Close() {
	e.mu.Lock()
	cancel := e.feedCancel
	e.feedCancel = nil
	e.closed = true
	for id, sub := range e.subs {
		delete(e.subs, id)
		sub.close()
	}
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (e *Engine) startFeed() error {
	e.feedMu.Lock()
	defer e.feedMu.Unlock()

	e.mu.Lock()
	running := e.feedCancel != nil || e.closed
	e.mu.Unlock()
	if running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	snaps, stop, err := e.store.Watch(ctx, e.collection())
	if err != nil {
		cancel()
		return err
	}

	e.mu.Lock()
	e.feedCancel = func() {
		stop()
		cancel()
	}
	e.mu.Unlock()

	go func() {
		for snap := range snaps {
			e.apply(snap)
		}
	}()
	return nil
}

// notifyLocked pushes the current items to every subscriber, replacing an
// unread value. Caller holds e.mu.
func (e *Engine) notifyLocked() {
	if len(e.subs) == 0 {
		return
	}
	items := e.itemsLocked()
	for _, sub := range e.subs {
		select {
		case <-sub.ch:
		default:
		}
		sub.ch <- append([]domain.CartItem(nil), items...)
	}
}

type subscriber struct {
	ch   chan []domain.CartItem
	done chan struct{}
}

func (s *subscriber) close() {
	close(s.ch)
	close(s.done)
}
