package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashenomo/tomigaya/internal/logger"
	"github.com/ashenomo/tomigaya/internal/models"
)

// countingFetcher records every link fetched and serves canned listings.
type countingFetcher struct {
	calls    []string
	listings map[string][]models.Listing
}

func (f *countingFetcher) Fetch(_ context.Context, link string) ([]models.Listing, error) {
	f.calls = append(f.calls, link)
	return f.listings[link], nil
}

func buildingListings() []models.Listing {
	return []models.Listing{
		{Link: "/id/100/1", Name: "サンプルハイツ", RoomNumber: "1"},
		{Link: "/id/100/2", Name: "サンプルハイツ", RoomNumber: "2"},
	}
}

func newTestCache(t *testing.T, fetcher Fetcher, ttl time.Duration) (*Cache, *FileStore) {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	c, err := New(context.Background(), store, fetcher, ttl, logger.New("test"))
	require.NoError(t, err)
	return c, store
}

func TestFetchCached_MissThenBuildingHit(t *testing.T) {
	fetcher := &countingFetcher{
		listings: map[string][]models.Listing{"/id/100": buildingListings()},
	}
	c, _ := newTestCache(t, fetcher, 0)
	ctx := context.Background()

	// First lookup misses and fetches both rooms.
	listings, err := c.FetchCached(ctx, "/id/100")
	require.NoError(t, err)
	assert.Len(t, listings, 2)
	assert.Equal(t, []string{"/id/100"}, fetcher.calls)

	// Second building-level lookup is served from the cache.
	listings, err = c.FetchCached(ctx, "/id/100")
	require.NoError(t, err)
	assert.Len(t, listings, 2)
	assert.Equal(t, []string{"/id/100"}, fetcher.calls, "no second fetch")

	names := []string{listings[0].Name, listings[1].Name}
	assert.Contains(t, names, "サンプルハイツ")
}

func TestFetchCached_RoomHitAfterBuildingFetch(t *testing.T) {
	fetcher := &countingFetcher{
		listings: map[string][]models.Listing{"/id/100": buildingListings()},
	}
	c, _ := newTestCache(t, fetcher, 0)
	ctx := context.Background()

	_, err := c.FetchCached(ctx, "/id/100")
	require.NoError(t, err)

	// A room-level lookup for a room cached by the building fetch does not
	// touch the network.
	listings, err := c.FetchCached(ctx, "/id/100/2")
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "2", listings[0].RoomNumber)
	assert.Equal(t, []string{"/id/100"}, fetcher.calls)
}

func TestFetchCached_RoomMissFetches(t *testing.T) {
	fetcher := &countingFetcher{
		listings: map[string][]models.Listing{
			"/id/200/5": {{Link: "/id/200/5", RoomNumber: "5"}},
		},
	}
	c, _ := newTestCache(t, fetcher, 0)

	listings, err := c.FetchCached(context.Background(), "/id/200/5")
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, []string{"/id/200/5"}, fetcher.calls)
}

func TestFetchCached_InvalidLink(t *testing.T) {
	fetcher := &countingFetcher{}
	c, _ := newTestCache(t, fetcher, 0)

	_, err := c.FetchCached(context.Background(), "/id")

	assert.ErrorIs(t, err, models.ErrInvalidLink)
	assert.Empty(t, fetcher.calls)
}

func TestFetchCached_TTLExpiry(t *testing.T) {
	fetcher := &countingFetcher{
		listings: map[string][]models.Listing{"/id/100": buildingListings()},
	}
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	c, err := New(ctx, store, fetcher, time.Hour, logger.New("test"))
	require.NoError(t, err)

	_, err = c.FetchCached(ctx, "/id/100")
	require.NoError(t, err)
	require.Len(t, fetcher.calls, 1)

	// Age one room beyond the TTL. The building-level hit requires every
	// cached room to be fresh, so the whole building is re-fetched.
	stale := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(store.dir, "100___2"), stale, stale))
	require.NoError(t, c.refresh(ctx))

	_, err = c.FetchCached(ctx, "/id/100")
	require.NoError(t, err)
	assert.Len(t, fetcher.calls, 2)
}

func TestFetchCached_ZeroTTLNeverExpires(t *testing.T) {
	fetcher := &countingFetcher{
		listings: map[string][]models.Listing{"/id/100": buildingListings()},
	}
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	c, err := New(ctx, store, fetcher, 0, logger.New("test"))
	require.NoError(t, err)

	_, err = c.FetchCached(ctx, "/id/100")
	require.NoError(t, err)

	stale := time.Now().Add(-24 * 365 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(store.dir, "100___1"), stale, stale))
	require.NoError(t, c.refresh(ctx))

	_, err = c.FetchCached(ctx, "/id/100")
	require.NoError(t, err)
	assert.Len(t, fetcher.calls, 1)
}

func TestFetchCached_SkipsListingsWithoutIdentity(t *testing.T) {
	fetcher := &countingFetcher{
		listings: map[string][]models.Listing{
			"/id/300": {
				{Link: "/id/300/1", RoomNumber: "1"},
				{Link: ""}, // malformed row on the page
			},
		},
	}
	c, store := newTestCache(t, fetcher, 0)
	ctx := context.Background()

	listings, err := c.FetchCached(ctx, "/id/300")
	require.NoError(t, err)
	assert.Len(t, listings, 2, "fetched listings are returned as-is")

	metas, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, metas, 1, "only the identified listing is persisted")
}
