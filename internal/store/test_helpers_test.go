package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/storefront/internal/doc"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// item builds a minimal cart-like document.
func item(productID string, qty int) doc.Fields {
	return doc.Fields{"productId": productID, "quantity": qty}
}
