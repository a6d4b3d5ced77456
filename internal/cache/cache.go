package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/ashenomo/tomigaya/internal/logger"
	"github.com/ashenomo/tomigaya/internal/models"
)

// Fetcher retrieves listings for a link on a cache miss. A building-level
// link may yield several listings, a room-level link exactly one.
type Fetcher interface {
	Fetch(ctx context.Context, link string) ([]models.Listing, error)
}

// Cache resolves listing links against the persistent store, delegating to
// the fetcher only on a miss. It keeps an in-memory index of identities and
// their building grouping, rebuilt from the store after every write burst.
// Not safe for concurrent use; the design assumes one run at a time.
type Cache struct {
	store     Store
	fetcher   Fetcher
	log       *logger.Logger
	ttl       time.Duration
	entries   map[string]time.Time
	buildings map[string][]string
}

// New builds a cache over the given store and fetcher and loads the index.
// A zero ttl means cached entries never expire.
func New(ctx context.Context, store Store, fetcher Fetcher, ttl time.Duration, log *logger.Logger) (*Cache, error) {
	c := &Cache{
		store:   store,
		fetcher: fetcher,
		log:     log,
		ttl:     ttl,
	}
	if err := c.refresh(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// refresh rebuilds the identity set and the building grouping from the
// store.
func (c *Cache) refresh(ctx context.Context) error {
	metas, err := c.store.List(ctx)
	if err != nil {
		return fmt.Errorf("refresh cache index: %w", err)
	}
	c.entries = make(map[string]time.Time, len(metas))
	c.buildings = make(map[string][]string)
	for _, meta := range metas {
		c.entries[meta.Identity] = meta.FetchedAt
		building := models.BuildingOf(meta.Identity)
		c.buildings[building] = append(c.buildings[building], meta.Identity)
	}
	c.log.Debug("cache index refreshed", map[string]interface{}{
		"listings":  len(c.entries),
		"buildings": len(c.buildings),
	})
	return nil
}

func (c *Cache) fresh(fetchedAt time.Time) bool {
	return c.ttl == 0 || time.Since(fetchedAt) <= c.ttl
}

// freshBuilding returns the cached identities for a building when the
// building-level hit can be honored: at least one cached room, all of them
// within the TTL.
func (c *Cache) freshBuilding(buildingID string) []string {
	ids := c.buildings[buildingID]
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if !c.fresh(c.entries[id]) {
			return nil
		}
	}
	return ids
}

// FetchCached resolves a listing link against the cache.
//
// A room-level link with a cached identity returns that single entry. A
// building-level link with any cached rooms returns all of them: once one
// room in a building has been fetched, building-level lookups skip the
// network entirely, even if the site has since added rooms. That staleness
// is a deliberate bandwidth trade-off, bounded by the configured TTL.
//
// On a miss the fetcher is invoked, every returned listing is persisted
// under its identity, and the index is rebuilt.
func (c *Cache) FetchCached(ctx context.Context, link string) ([]models.Listing, error) {
	parts, err := models.ParseLink(link)
	if err != nil {
		return nil, err
	}

	if parts.HasRoom {
		identity := models.JoinIdentity(parts.BuildingID, parts.Room)
		if fetchedAt, ok := c.entries[identity]; ok && c.fresh(fetchedAt) {
			listing, err := c.store.Read(ctx, identity)
			if err != nil {
				return nil, err
			}
			return []models.Listing{listing}, nil
		}
	} else if ids := c.freshBuilding(parts.BuildingID); len(ids) > 0 {
		listings := make([]models.Listing, 0, len(ids))
		for _, identity := range ids {
			listing, err := c.store.Read(ctx, identity)
			if err != nil {
				return nil, err
			}
			listings = append(listings, listing)
		}
		return listings, nil
	}

	// Cache miss.
	listings, err := c.fetcher.Fetch(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", link, err)
	}
	for i := range listings {
		identity, err := listings[i].Identity()
		if err != nil {
			c.log.Warn("skipping listing without identity", map[string]interface{}{
				"link":  listings[i].Link,
				"error": err.Error(),
			})
			continue
		}
		if err := c.store.Write(ctx, identity, &listings[i]); err != nil {
			return nil, err
		}
	}
	c.log.Info("fetched listings", map[string]interface{}{
		"link":  link,
		"count": len(listings),
	})
	if err := c.refresh(ctx); err != nil {
		return nil, err
	}
	return listings, nil
}
