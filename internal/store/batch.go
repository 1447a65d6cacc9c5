package store

import (
	"context"

	"github.com/roach88/storefront/internal/doc"
)

type batchOpKind int

const (
	batchSet batchOpKind = iota + 1
	batchMerge
	batchDelete
)

type batchOp struct {
	kind       batchOpKind
	collection string
	id         string
	fields     doc.Fields
}

// Batch collects writes to be committed together.
//
//	b := st.Batch()
//	b.Merge(coll, "a1", doc.Fields{"isDefault": false})
//	b.Merge(coll, "a2", doc.Fields{"isDefault": true})
//	version, err := b.Commit(ctx)
type Batch struct {
	store *Store
	ops   []batchOp
}

// Batch starts an empty batch.
func (s *Store) Batch() *Batch {
	return &Batch{store: s}
}

// Set queues a create-or-replace.
func (b *Batch) Set(collection, id string, fields doc.Fields) *Batch {
	b.ops = append(b.ops, batchOp{kind: batchSet, collection: collection, id: id, fields: fields})
	return b
}

// Merge queues a partial update. The commit fails if the document is missing.
func (b *Batch) Merge(collection, id string, fields doc.Fields) *Batch {
	b.ops = append(b.ops, batchOp{kind: batchMerge, collection: collection, id: id, fields: fields})
	return b
}

// Delete queues a delete.
func (b *Batch) Delete(collection, id string) *Batch {
	b.ops = append(b.ops, batchOp{kind: batchDelete, collection: collection, id: id})
	return b
}

// Len returns the number of queued writes.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Commit applies every queued write in one transaction, all or nothing.
func (b *Batch) Commit(ctx context.Context) (int64, error) {
	return b.store.RunTx(ctx, func(tx *Tx) error {
		return b.apply(ctx, tx)
	})
}

func (b *Batch) apply(ctx context.Context, tx *Tx) error {
	for _, op := range b.ops {
		var err error
		switch op.kind {
		case batchSet:
			err = tx.Set(ctx, op.collection, op.id, op.fields)
		case batchMerge:
			err = tx.Merge(ctx, op.collection, op.id, op.fields)
		case batchDelete:
			_, err = tx.Delete(ctx, op.collection, op.id)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
