package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ashenomo/tomigaya/internal/models"
)

// FileStore keeps one JSON file per identity in a flat directory. The file
// modification time doubles as the fetch timestamp.
type FileStore struct {
	dir string
}

// NewFileStore creates the cache directory if needed and returns a store
// backed by it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Write persists the listing as JSON under its identity file name.
func (s *FileStore) Write(_ context.Context, identity string, listing *models.Listing) error {
	data, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", identity, err)
	}
	path := filepath.Join(s.dir, identity)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("write cache entry %s: %w", identity, err)
	}
	return nil
}

// Read loads and decodes the listing stored under identity.
func (s *FileStore) Read(_ context.Context, identity string) (models.Listing, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, identity))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.Listing{}, fmt.Errorf("%w: %s", ErrNotCached, identity)
		}
		return models.Listing{}, fmt.Errorf("read cache entry %s: %w", identity, err)
	}
	var listing models.Listing
	if err := json.Unmarshal(data, &listing); err != nil {
		return models.Listing{}, fmt.Errorf("decode cache entry %s: %w", identity, err)
	}
	return listing, nil
}

// List enumerates the directory; every regular file is one entry.
func (s *FileStore) List(_ context.Context) ([]Meta, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list cache directory %s: %w", s.dir, err)
	}
	metas := make([]Meta, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat cache entry %s: %w", entry.Name(), err)
		}
		metas = append(metas, Meta{Identity: entry.Name(), FetchedAt: info.ModTime()})
	}
	return metas, nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error { return nil }
