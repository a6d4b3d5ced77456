package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ashenomo/tomigaya/internal/database"
	"github.com/ashenomo/tomigaya/internal/models"
)

// PostgresStore persists cache entries in a listings table, keyed by
// identity with the building id denormalized for grouping queries. It is
// the transactional alternative to the default file store.
type PostgresStore struct {
	db *database.Database
}

const listingsSchema = `
	CREATE TABLE IF NOT EXISTS listings (
		identity    TEXT PRIMARY KEY,
		building_id TEXT NOT NULL,
		payload     JSONB NOT NULL,
		fetched_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS listings_building_id_idx ON listings (building_id);
`

// NewPostgresStore ensures the listings schema exists and returns a store
// backed by the given pool.
func NewPostgresStore(ctx context.Context, db *database.Database) (*PostgresStore, error) {
	if _, err := db.Pool.Exec(ctx, listingsSchema); err != nil {
		return nil, fmt.Errorf("ensure listings schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Write upserts the listing under its identity, refreshing fetched_at.
func (s *PostgresStore) Write(ctx context.Context, identity string, listing *models.Listing) error {
	payload, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", identity, err)
	}

	query := `
		INSERT INTO listings (identity, building_id, payload, fetched_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (identity) DO UPDATE
		SET building_id = EXCLUDED.building_id,
		    payload = EXCLUDED.payload,
		    fetched_at = EXCLUDED.fetched_at
	`
	if _, err := s.db.Pool.Exec(ctx, query, identity, models.BuildingOf(identity), payload); err != nil {
		return fmt.Errorf("write cache entry %s: %w", identity, err)
	}
	return nil
}

// Read loads the listing stored under identity.
func (s *PostgresStore) Read(ctx context.Context, identity string) (models.Listing, error) {
	var payload []byte
	err := s.db.Pool.QueryRow(ctx,
		`SELECT payload FROM listings WHERE identity = $1`, identity,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Listing{}, fmt.Errorf("%w: %s", ErrNotCached, identity)
		}
		return models.Listing{}, fmt.Errorf("read cache entry %s: %w", identity, err)
	}

	var listing models.Listing
	if err := json.Unmarshal(payload, &listing); err != nil {
		return models.Listing{}, fmt.Errorf("decode cache entry %s: %w", identity, err)
	}
	return listing, nil
}

// List enumerates all stored identities with their fetch timestamps.
func (s *PostgresStore) List(ctx context.Context) ([]Meta, error) {
	rows, err := s.db.Pool.Query(ctx, `SELECT identity, fetched_at FROM listings`)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	defer rows.Close()

	var metas []Meta
	for rows.Next() {
		var identity string
		var fetchedAt time.Time
		if err := rows.Scan(&identity, &fetchedAt); err != nil {
			return nil, fmt.Errorf("scan cache entry row: %w", err)
		}
		metas = append(metas, Meta{Identity: identity, FetchedAt: fetchedAt})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache entry rows: %w", err)
	}
	return metas, nil
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
