// Package cache implements the persistent, identity-keyed listing cache.
// Each entry is one listing stored under its "<building>___<room>" identity;
// entries are replaced wholesale on re-fetch, never merged.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/ashenomo/tomigaya/internal/models"
)

// ErrNotCached is returned by Store.Read for an unknown identity.
var ErrNotCached = errors.New("identity not in cache")

// Meta describes one stored entry without loading its payload.
type Meta struct {
	Identity  string
	FetchedAt time.Time
}

// Store is the persistence backend for cache entries. Implementations are
// not required to be safe for concurrent writers; the cache assumes a
// single in-process owner.
type Store interface {
	// Write persists the listing under its identity, replacing any
	// existing entry.
	Write(ctx context.Context, identity string, listing *models.Listing) error

	// Read loads the listing stored under identity. Returns ErrNotCached
	// when the identity is unknown.
	Read(ctx context.Context, identity string) (models.Listing, error)

	// List enumerates all stored identities with their fetch timestamps.
	List(ctx context.Context) ([]Meta, error)

	Close() error
}
