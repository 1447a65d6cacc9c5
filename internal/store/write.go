package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/storefront/internal/doc"
)

// Tx is a read-write transaction.
//
// Reads observe the transaction's own writes. A Tx must only be used inside
// the function passed to RunTx; calling Store methods from inside that
// function deadlocks on the single connection.
type Tx struct {
	tx      *sql.Tx
	version int64
	touched map[string]struct{}
}

// RunTx runs fn inside one transaction and commits if fn returns nil.
// Any error from fn rolls back every write.
//
// Returns the version stamped on the writes, or 0 when fn wrote nothing.
// Watchers of touched collections are notified after commit.
func (s *Store) RunTx(ctx context.Context, fn func(tx *Tx) error) (int64, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback() // No-op if committed

	tx := &Tx{tx: sqlTx, touched: make(map[string]struct{})}
	if err := fn(tx); err != nil {
		return 0, err
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	for collection := range tx.touched {
		s.publish(ctx, collection)
	}
	return tx.version, nil
}

// Set writes one document in its own transaction.
func (s *Store) Set(ctx context.Context, collection, id string, fields doc.Fields) (int64, error) {
	return s.RunTx(ctx, func(tx *Tx) error {
		return tx.Set(ctx, collection, id, fields)
	})
}

// Delete removes one document in its own transaction.
// Deleting a missing document is not an error.
func (s *Store) Delete(ctx context.Context, collection, id string) (int64, error) {
	return s.RunTx(ctx, func(tx *Tx) error {
		_, err := tx.Delete(ctx, collection, id)
		return err
	})
}

// Get reads a document inside the transaction.
func (t *Tx) Get(ctx context.Context, collection, id string) (Document, error) {
	return getDocument(ctx, t.tx, collection, id)
}

// List reads a collection inside the transaction.
func (t *Tx) List(ctx context.Context, collection string) ([]Document, error) {
	return listDocuments(ctx, t.tx, collection)
}

// Set creates or replaces a document. Replacing keeps the creation version.
func (t *Tx) Set(ctx context.Context, collection, id string, fields doc.Fields) error {
	data, err := doc.MarshalCanonical(fields)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}

	version, err := t.claimVersion(ctx)
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, version, created_version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			data = excluded.data,
			version = excluded.version
	`, collection, id, string(data), version, version)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}

	t.touched[collection] = struct{}{}
	return nil
}

// Merge overlays fields onto an existing document.
// Returns ErrNotFound if the document does not exist.
func (t *Tx) Merge(ctx context.Context, collection, id string, fields doc.Fields) error {
	existing, err := t.Get(ctx, collection, id)
	if err != nil {
		return err
	}

	merged := existing.Fields.Clone()
	for k, v := range fields {
		merged[k] = v
	}
	return t.Set(ctx, collection, id, merged)
}

// Delete removes a document and reports whether it existed.
func (t *Tx) Delete(ctx context.Context, collection, id string) (bool, error) {
	if _, err := t.claimVersion(ctx); err != nil {
		return false, err
	}

	result, err := t.tx.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = ? AND id = ?
	`, collection, id)
	if err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s/%s: rows affected: %w", collection, id, err)
	}

	t.touched[collection] = struct{}{}
	return n > 0, nil
}

// DeleteCollection removes every document of a collection and returns how
// many were removed.
func (t *Tx) DeleteCollection(ctx context.Context, collection string) (int64, error) {
	if _, err := t.claimVersion(ctx); err != nil {
		return 0, err
	}

	result, err := t.tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, collection)
	if err != nil {
		return 0, fmt.Errorf("delete collection %s: %w", collection, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete collection %s: rows affected: %w", collection, err)
	}

	t.touched[collection] = struct{}{}
	return n, nil
}

// ClaimKey records that (scope, key) is owned by documentID.
//
// Uses ON CONFLICT(scope, key) DO NOTHING. If the key was already claimed,
// returns the owning document id and claimed=false; the caller must then not
// create a new document. Because the claim runs in the caller's transaction,
// a rolled-back transaction releases the key.
func (t *Tx) ClaimKey(ctx context.Context, scope, key, documentID string) (ownerID string, claimed bool, err error) {
	version, err := t.claimVersion(ctx)
	if err != nil {
		return "", false, err
	}

	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO idempotency_keys (scope, key, document_id, version)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(scope, key) DO NOTHING
	`, scope, key, documentID, version)
	if err != nil {
		return "", false, fmt.Errorf("claim key: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("claim key: rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return documentID, true, nil
	}

	err = t.tx.QueryRowContext(ctx, `
		SELECT document_id FROM idempotency_keys WHERE scope = ? AND key = ?
	`, scope, key).Scan(&ownerID)
	if err != nil {
		return "", false, fmt.Errorf("claim key: select existing: %w", err)
	}
	return ownerID, false, nil
}

// LookupKey returns the document id that owns (scope, key).
// Returns ErrNotFound if the key is unclaimed.
func (t *Tx) LookupKey(ctx context.Context, scope, key string) (string, error) {
	var ownerID string
	err := t.tx.QueryRowContext(ctx, `
		SELECT document_id FROM idempotency_keys WHERE scope = ? AND key = ?
	`, scope, key).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("key %s/%s: %w", scope, key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("lookup key: %w", err)
	}
	return ownerID, nil
}

// claimVersion bumps the store version on the first write of the transaction.
func (t *Tx) claimVersion(ctx context.Context) (int64, error) {
	if t.version != 0 {
		return t.version, nil
	}

	if _, err := t.tx.ExecContext(ctx, `UPDATE store_meta SET version = version + 1 WHERE id = 1`); err != nil {
		return 0, fmt.Errorf("claim version: %w", err)
	}
	if err := t.tx.QueryRowContext(ctx, `SELECT version FROM store_meta WHERE id = 1`).Scan(&t.version); err != nil {
		return 0, fmt.Errorf("claim version: %w", err)
	}
	return t.version, nil
}
