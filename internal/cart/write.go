package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/storefront/internal/doc"
	"github.com/roach88/storefront/internal/domain"
	"github.com/roach88/storefront/internal/store"
)

// AddItem adds qty of productID. An existing line for the product, local or
// remote, has its quantity increased instead.
func (e *Engine) AddItem(ctx context.Context, productID string, product domain.ProductSnapshot, qty int) (domain.CartItem, error) {
	if qty < 1 {
		return domain.CartItem{}, e.record(fmt.Errorf("add to cart: %w: quantity %d", domain.ErrValidation, qty))
	}
	newID := e.opts.IDs.Generate()
	now := e.opts.Clock.Now()

	return e.writeProduct(ctx, "add", productID,
		func(cur domain.CartItem, ok bool) (domain.CartItem, bool) {
			if ok {
				cur.Quantity += qty
				cur.UpdatedAt = now
				return cur, true
			}
			return newLine(newID, productID, product, qty, now), true
		},
		func(ctx context.Context, tx *store.Tx, lines []domain.CartItem) (*domain.CartItem, error) {
			if len(lines) == 0 {
				it := newLine(newID, productID, product, qty, now)
				return &it, e.put(ctx, tx, it)
			}
			it, err := e.collapse(ctx, tx, lines)
			if err != nil {
				return nil, err
			}
			it.Quantity += qty
			it.Name = product.Name
			it.Price = product.Price
			it.Description = product.Description
			it.Category = product.Category
			it.Images = product.Images
			it.InStock = product.InStock
			it.UpdatedAt = now
			return &it, e.put(ctx, tx, it)
		})
}

// SetQuantity sets the quantity of productID's line. A quantity of zero or
// less removes the line.
func (e *Engine) SetQuantity(ctx context.Context, productID string, qty int) (domain.CartItem, error) {
	if qty <= 0 {
		return domain.CartItem{}, e.RemoveItem(ctx, productID)
	}
	now := e.opts.Clock.Now()

	return e.writeProduct(ctx, "set quantity", productID,
		func(cur domain.CartItem, ok bool) (domain.CartItem, bool) {
			if !ok {
				return cur, false
			}
			cur.Quantity = qty
			cur.UpdatedAt = now
			return cur, true
		},
		func(ctx context.Context, tx *store.Tx, lines []domain.CartItem) (*domain.CartItem, error) {
			if len(lines) == 0 {
				return nil, fmt.Errorf("cart line %s: %w", productID, domain.ErrNotFound)
			}
			it, err := e.collapse(ctx, tx, lines)
			if err != nil {
				return nil, err
			}
			it.Quantity = qty
			it.UpdatedAt = now
			return &it, e.put(ctx, tx, it)
		})
}

// RemoveItem deletes productID's line. Removing a line that exists neither
// locally nor remotely returns ErrNotFound.
func (e *Engine) RemoveItem(ctx context.Context, productID string) error {
	cached := e.IsInCart(productID)
	_, err := e.writeProduct(ctx, "remove", productID,
		func(cur domain.CartItem, ok bool) (domain.CartItem, bool) {
			return domain.CartItem{}, false
		},
		func(ctx context.Context, tx *store.Tx, lines []domain.CartItem) (*domain.CartItem, error) {
			if len(lines) == 0 && !cached {
				return nil, fmt.Errorf("cart line %s: %w", productID, domain.ErrNotFound)
			}
			for _, l := range lines {
				if _, err := tx.Delete(ctx, e.collection(), l.ID); err != nil {
					return nil, err
				}
			}
			return nil, nil
		})
	return err
}

// Clear deletes every line. It does not need a prior Load.
func (e *Engine) Clear(ctx context.Context) error {
	if e.userID == "" {
		return e.record(domain.ErrUnauthenticated)
	}

	e.opsMu.Lock()
	defer e.opsMu.Unlock()

	seq := e.opts.Seq.Next()
	e.mu.Lock()
	prev := e.items
	for pid := range prev {
		e.inflight[pid] = seq
	}
	e.items = make(map[string]domain.CartItem)
	e.notifyLocked()
	e.mu.Unlock()

	txCtx, cancel := e.withTimeout(ctx)
	defer cancel()

	removed := make(map[string]struct{}, len(prev))
	for pid := range prev {
		removed[pid] = struct{}{}
	}
	version, err := e.store.RunTx(txCtx, func(tx *store.Tx) error {
		lines, err := e.lines(txCtx, tx, "")
		if err != nil {
			return err
		}
		for _, l := range lines {
			removed[l.ProductID] = struct{}{}
		}
		_, err = tx.DeleteCollection(txCtx, e.collection())
		return err
	})

	var fresh remoteView
	if err != nil {
		fresh = e.reread(ctx)
	}

	e.mu.Lock()
	for pid := range prev {
		if e.inflight[pid] == seq {
			delete(e.inflight, pid)
		}
	}
	if err != nil {
		for pid, it := range prev {
			e.settleLocked(pid, remoteLine{item: it, present: true, version: e.committed[pid]}, fresh)
		}
		for pid := range fresh.lines {
			if _, ok := prev[pid]; !ok {
				cur, had := e.items[pid]
				e.settleLocked(pid, remoteLine{item: cur, present: had, version: e.feedVersion}, fresh)
			}
		}
	} else {
		for pid := range prev {
			e.settleLocked(pid, remoteLine{version: version}, remoteView{})
		}
		if version > 0 {
			for pid := range removed {
				e.committed[pid] = version
			}
		}
	}
	for pid := range prev {
		delete(e.skipped, pid)
	}
	e.notifyLocked()
	e.mu.Unlock()

	if err != nil {
		e.log.Warn("cart clear failed", "error", err)
		return e.record(fmt.Errorf("clear cart: %w", err))
	}
	e.log.Info("cart cleared", "lines", len(removed), "version", version)
	return e.record(nil)
}

// writeProduct runs one single-product write: optimistic cache update,
// store transaction over the product's remote lines, then settle.
func (e *Engine) writeProduct(
	ctx context.Context,
	op, productID string,
	optimistic func(cur domain.CartItem, ok bool) (domain.CartItem, bool),
	commit func(ctx context.Context, tx *store.Tx, lines []domain.CartItem) (*domain.CartItem, error),
) (domain.CartItem, error) {
	if e.userID == "" {
		return domain.CartItem{}, e.record(domain.ErrUnauthenticated)
	}
	if productID == "" {
		return domain.CartItem{}, e.record(fmt.Errorf("%s: %w: empty product id", op, domain.ErrValidation))
	}

	e.opsMu.RLock()
	defer e.opsMu.RUnlock()
	lock := e.productLock(productID)
	lock.Lock()
	defer lock.Unlock()

	seq := e.opts.Seq.Next()
	e.mu.Lock()
	prev, had := e.items[productID]
	e.inflight[productID] = seq
	if next, keep := optimistic(prev, had); keep {
		e.items[productID] = next
	} else {
		delete(e.items, productID)
	}
	e.notifyLocked()
	e.mu.Unlock()

	txCtx, cancel := e.withTimeout(ctx)
	defer cancel()

	var result *domain.CartItem
	version, err := e.store.RunTx(txCtx, func(tx *store.Tx) error {
		lines, err := e.lines(txCtx, tx, productID)
		if err != nil {
			return err
		}
		result, err = commit(txCtx, tx, lines)
		return err
	})

	// A failed write may still have committed, and feed snapshots skipped
	// the product while it ran.
	var fresh remoteView
	if err != nil {
		fresh = e.reread(ctx)
	}

	e.mu.Lock()
	if e.inflight[productID] == seq {
		delete(e.inflight, productID)
	}
	if err != nil {
		e.settleLocked(productID, remoteLine{item: prev, present: had, version: e.committed[productID]}, fresh)
	} else {
		line := remoteLine{present: result != nil, version: version}
		if result != nil {
			line.item = *result
		}
		e.settleLocked(productID, line, remoteView{})
		if version > 0 && version > e.committed[productID] {
			e.committed[productID] = version
		}
	}
	delete(e.skipped, productID)
	e.notifyLocked()
	e.mu.Unlock()

	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			e.log.Warn("cart "+op+" failed", "product", productID, "seq", seq, "error", err)
		}
		return domain.CartItem{}, e.record(fmt.Errorf("%s %s: %w", op, productID, err))
	}

	e.log.Debug("cart "+op, "product", productID, "seq", seq, "version", version)
	e.record(nil)
	if result == nil {
		return domain.CartItem{}, nil
	}
	return *result, nil
}

func (e *Engine) productLock(productID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[productID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[productID] = l
	}
	return l
}

// lines returns the remote lines for productID, oldest first, or every line
// when productID is empty. Malformed documents are skipped.
func (e *Engine) lines(ctx context.Context, tx *store.Tx, productID string) ([]domain.CartItem, error) {
	docs, err := tx.List(ctx, e.collection())
	if err != nil {
		return nil, err
	}
	var out []domain.CartItem
	for _, d := range docs {
		var it domain.CartItem
		if err := domain.DecodeDocument(domain.KindCartItem, d.Fields, &it); err != nil {
			e.log.Warn("skipping malformed cart line", "line", d.ID, "error", err)
			continue
		}
		if productID == "" || it.ProductID == productID {
			out = append(out, it)
		}
	}
	return out, nil
}

// collapse merges duplicate lines of one product into the oldest, deleting
// the rest. Returns the surviving line with the combined quantity.
func (e *Engine) collapse(ctx context.Context, tx *store.Tx, lines []domain.CartItem) (domain.CartItem, error) {
	keep := lines[0]
	for _, dup := range lines[1:] {
		keep.Quantity += dup.Quantity
		if _, err := tx.Delete(ctx, e.collection(), dup.ID); err != nil {
			return domain.CartItem{}, err
		}
		e.log.Info("merged duplicate cart line", "product", keep.ProductID, "kept", keep.ID, "deleted", dup.ID)
	}
	return keep, nil
}

func (e *Engine) put(ctx context.Context, tx *store.Tx, it domain.CartItem) error {
	fields, err := doc.Encode(it)
	if err != nil {
		return fmt.Errorf("encode cart line: %w", err)
	}
	return tx.Set(ctx, e.collection(), it.ID, fields)
}

func newLine(id, productID string, p domain.ProductSnapshot, qty int, now time.Time) domain.CartItem {
	return domain.CartItem{
		ID:          id,
		ProductID:   productID,
		Name:        p.Name,
		Price:       p.Price,
		Quantity:    qty,
		Description: p.Description,
		Category:    p.Category,
		Images:      p.Images,
		InStock:     p.InStock,
		AddedAt:     now,
		UpdatedAt:   now,
	}
}
