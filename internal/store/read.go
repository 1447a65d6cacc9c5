package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/storefront/internal/doc"
)

// Document is one stored record.
type Document struct {
	Collection string
	ID         string
	Fields     doc.Fields

	// Version is the store version of the last write to this document.
	Version int64

	// CreatedVersion is the store version of the write that created it.
	CreatedVersion int64
}

// Snapshot is the full content of a collection at a store version.
type Snapshot struct {
	Collection string
	Version    int64
	Documents  []Document
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Get retrieves a single document.
// Returns ErrNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, collection, id string) (Document, error) {
	return getDocument(ctx, s.db, collection, id)
}

// List returns every document of a collection ordered by creation.
// Ordering is deterministic: ORDER BY created_version ASC, id ASC.
//
// Returns an empty slice (not nil) for an empty collection.
func (s *Store) List(ctx context.Context, collection string) ([]Document, error) {
	return listDocuments(ctx, s.db, collection)
}

// Snapshot reads a collection and the current store version in one
// transaction, so the documents are exactly the state at that version.
func (s *Store) Snapshot(ctx context.Context, collection string) (Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: begin tx: %w", err)
	}
	defer tx.Rollback()

	var version int64
	if err := tx.QueryRowContext(ctx, `SELECT version FROM store_meta WHERE id = 1`).Scan(&version); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: read version: %w", err)
	}

	docs, err := listDocuments(ctx, tx, collection)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: commit: %w", err)
	}

	return Snapshot{Collection: collection, Version: version, Documents: docs}, nil
}

func getDocument(ctx context.Context, q queryer, collection, id string) (Document, error) {
	row := q.QueryRowContext(ctx, `
		SELECT collection, id, data, version, created_version
		FROM documents
		WHERE collection = ? AND id = ?
	`, collection, id)

	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return Document{}, err
	}
	return d, nil
}

func listDocuments(ctx context.Context, q queryer, collection string) ([]Document, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT collection, id, data, version, created_version
		FROM documents
		WHERE collection = ?
		ORDER BY created_version ASC, id COLLATE BINARY ASC
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	return scanDocuments(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func scanDocument(row rowScanner) (Document, error) {
	var (
		d    Document
		data string
	)
	if err := row.Scan(&d.Collection, &d.ID, &data, &d.Version, &d.CreatedVersion); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, err
		}
		return Document{}, fmt.Errorf("scan document: %w", err)
	}

	fields, err := doc.Parse([]byte(data))
	if err != nil {
		return Document{}, fmt.Errorf("document %s/%s: %w", d.Collection, d.ID, err)
	}
	d.Fields = fields
	return d, nil
}
