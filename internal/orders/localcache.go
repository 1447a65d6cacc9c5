package orders

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/roach88/storefront/internal/domain"
)

const localCacheVersion = 1

type localCacheFile struct {
	Version int                       `json:"version"`
	Users   map[string][]domain.Order `json:"users"`
}

// LocalCache persists local test orders in a JSON file, keyed by user.
// Remote orders are dropped on save; the document store is their only home.
type LocalCache struct {
	path string
	mu   sync.Mutex
}

// NewLocalCache returns a cache stored at path. The file is created on the
// first save.
func NewLocalCache(path string) *LocalCache {
	return &LocalCache{path: path}
}

// Load returns the local orders saved for userID. A missing file is empty.
func (c *LocalCache) Load(userID string) ([]domain.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := c.read()
	if err != nil {
		return nil, err
	}
	return append([]domain.Order(nil), f.Users[userID]...), nil
}

// Save replaces the local orders of userID.
func (c *LocalCache) Save(userID string, orders []domain.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := c.read()
	if err != nil {
		return err
	}

	local := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		if o.Source == domain.SourceLocal {
			local = append(local, o)
		}
	}
	if len(local) == 0 {
		delete(f.Users, userID)
	} else {
		f.Users[userID] = local
	}
	return c.write(f)
}

func (c *LocalCache) read() (localCacheFile, error) {
	f := localCacheFile{Version: localCacheVersion, Users: map[string][]domain.Order{}}

	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return f, fmt.Errorf("read local orders: %w", err)
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse local orders %s: %w", c.path, err)
	}
	if f.Users == nil {
		f.Users = map[string][]domain.Order{}
	}
	return f, nil
}

// write replaces the file atomically via a temp file and rename.
func (c *LocalCache) write(f localCacheFile) error {
	f.Version = localCacheVersion
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode local orders: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create local orders dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".orders-*.json")
	if err != nil {
		return fmt.Errorf("write local orders: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write local orders: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write local orders: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("write local orders: %w", err)
	}
	return nil
}
