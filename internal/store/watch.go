package store

import (
	"context"
	"log/slog"
	"sync"
)

// Watch subscribes to a collection.
//
// The returned channel first receives the current snapshot, then a fresh
// snapshot after every commit touching the collection. The channel holds at
// most one pending snapshot; a newer one replaces an unread older one.
//
// The subscription ends when ctx is done or the returned cancel func is
// called; either closes the channel. Cancel is safe to call more than once.
func (s *Store) Watch(ctx context.Context, collection string) (<-chan Snapshot, func(), error) {
	w, err := s.hub.add(collection)
	if err != nil {
		return nil, nil, err
	}
	cancel := func() { s.hub.remove(collection, w) }

	snap, err := s.Snapshot(ctx, collection)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	s.hub.deliver(w, snap)

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-w.done:
		}
	}()

	return w.ch, cancel, nil
}

// publish reads a fresh snapshot and hands it to every watcher of collection.
func (s *Store) publish(ctx context.Context, collection string) {
	if !s.hub.has(collection) {
		return
	}

	// The triggering operation may be cancelled right after commit; the
	// notification still has to go out.
	snap, err := s.Snapshot(context.WithoutCancel(ctx), collection)
	if err != nil {
		slog.Warn("watch: snapshot failed", "collection", collection, "error", err)
		return
	}
	s.hub.broadcast(collection, snap)
}

type watcher struct {
	ch        chan Snapshot
	done      chan struct{}
	delivered bool
	last      int64
}

// hub fans snapshots out to watchers. All channel sends happen under mu, so
// a send never races with close.
type hub struct {
	mu       sync.Mutex
	closed   bool
	watchers map[string]map[*watcher]struct{}
}

func newHub() *hub {
	return &hub{watchers: make(map[string]map[*watcher]struct{})}
}

func (h *hub) add(collection string) (*watcher, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	w := &watcher{
		ch:   make(chan Snapshot, 1),
		done: make(chan struct{}),
	}
	if h.watchers[collection] == nil {
		h.watchers[collection] = make(map[*watcher]struct{})
	}
	h.watchers[collection][w] = struct{}{}
	return w, nil
}

func (h *hub) remove(collection string, w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.watchers[collection]
	if !ok {
		return
	}
	if _, ok := set[w]; !ok {
		return
	}
	delete(set, w)
	if len(set) == 0 {
		delete(h.watchers, collection)
	}
	close(w.done)
	close(w.ch)
}

func (h *hub) has(collection string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers[collection]) > 0
}

func (h *hub) deliver(w *watcher, snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliverLocked(w, snap)
}

func (h *hub) broadcast(collection string, snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for w := range h.watchers[collection] {
		h.deliverLocked(w, snap)
	}
}

func (h *hub) deliverLocked(w *watcher, snap Snapshot) {
	select {
	case <-w.done:
		return
	default:
	}

	if w.delivered && snap.Version <= w.last {
		return
	}
	w.delivered = true
	w.last = snap.Version

	select {
	case w.ch <- snap:
	default:
		// Replace the unread, older snapshot.
		select {
		case <-w.ch:
		default:
		}
		w.ch <- snap
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for collection, set := range h.watchers {
		for w := range set {
			close(w.done)
			close(w.ch)
		}
		delete(h.watchers, collection)
	}
}
