// Package services ties the scrape cycle together: fetch summaries, resolve
// them through the cache, classify, export, and notify.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ashenomo/tomigaya/internal/classify"
	"github.com/ashenomo/tomigaya/internal/export"
	"github.com/ashenomo/tomigaya/internal/logger"
	"github.com/ashenomo/tomigaya/internal/models"
)

// SiteClient is the site-specific page fetcher consumed by the orchestrator.
type SiteClient interface {
	// FetchSummaries retrieves summary listings from the start page at path.
	FetchSummaries(ctx context.Context, path string) ([]models.Listing, error)

	// ReadSiteMap returns the link targets of the site map on the root page.
	ReadSiteMap(ctx context.Context) ([]string, error)
}

// ListingCache resolves listing links, fetching on a miss.
type ListingCache interface {
	FetchCached(ctx context.Context, link string) ([]models.Listing, error)
}

// DedupGate queues and sends notifications for not-yet-seen listings.
type DedupGate interface {
	MaybeSend(ctx context.Context, listings []models.Listing) (int, error)
}

// Run-fatal error classes, matched by the trigger surface with errors.Is.
var (
	ErrFetchFailed  = errors.New("fetching the target site failed")
	ErrExportFailed = errors.New("spreadsheet export failed")
)

// Column offset of the database-sheet block, leaving room for manual notes.
const dbColumnOffset = 3

// Scraper runs one scrape cycle per invocation: synchronous, run to
// completion, no internal parallelism. Fetch failures on the start page and
// export failures abort the run; malformed individual listings are skipped
// with a warning.
type Scraper struct {
	site     SiteClient
	cache    ListingCache
	gate     DedupGate
	exporter export.Exporter
	renderer export.Renderer
	rules    classify.Rules
	log      *logger.Logger
	nowFn    func() time.Time
}

// NewScraper wires an orchestrator from its collaborators.
func NewScraper(site SiteClient, cache ListingCache, gate DedupGate, exporter export.Exporter, renderer export.Renderer, rules classify.Rules, log *logger.Logger) *Scraper {
	return &Scraper{
		site:     site,
		cache:    cache,
		gate:     gate,
		exporter: exporter,
		renderer: renderer,
		rules:    rules,
		log:      log,
		nowFn:    time.Now,
	}
}

// SetNow overrides the clock, for tests.
func (s *Scraper) SetNow(fn func() time.Time) { s.nowFn = fn }

// Rescan fetches the summary listings at path and resolves each through the
// cache. Listings with malformed links are skipped; a failed detail fetch
// aborts the run.
func (s *Scraper) Rescan(ctx context.Context, path string) ([]models.Listing, error) {
	summaries, err := s.site.FetchSummaries(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: summaries for %s: %w", ErrFetchFailed, path, err)
	}

	var listings []models.Listing
	for i := range summaries {
		resolved, err := s.cache.FetchCached(ctx, summaries[i].Link)
		if err != nil {
			if errors.Is(err, models.ErrInvalidLink) {
				s.log.Warn("skipping summary with malformed link", map[string]interface{}{
					"link": summaries[i].Link,
				})
				continue
			}
			return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
		}
		listings = append(listings, resolved...)
	}
	return listings, nil
}

// RunRescan performs a full rescan of path and renders the result into the
// named sheet.
func (s *Scraper) RunRescan(ctx context.Context, path, sheet string) error {
	if _, err := s.exporter.UseSheet(sheet); err != nil {
		return fmt.Errorf("select sheet %q: %w", sheet, err)
	}
	listings, err := s.Rescan(ctx, path)
	if err != nil {
		return err
	}
	return s.RenderListings(ctx, listings)
}

// RunCrawl rescans every path in the site map and renders the combined
// listing set into the named sheet.
func (s *Scraper) RunCrawl(ctx context.Context, sheet string) error {
	links, err := s.site.ReadSiteMap(ctx)
	if err != nil {
		return fmt.Errorf("read site map: %w", err)
	}
	var combined []models.Listing
	for _, link := range links {
		s.log.Info("crawling", map[string]interface{}{"link": link})
		listings, err := s.Rescan(ctx, link)
		if err != nil {
			return err
		}
		combined = append(combined, listings...)
	}
	if _, err := s.exporter.UseSheet(sheet); err != nil {
		return fmt.Errorf("select sheet %q: %w", sheet, err)
	}
	return s.RenderListings(ctx, combined)
}

// RenderListings deduplicates the listings by identity (last write wins),
// sorts them by floor area descending, classifies them into tiers, exports
// everything to the selected sheet, and sends the tier1 digest through the
// dedup gate. Finishes with an identity-uniqueness sanity check.
func (s *Scraper) RenderListings(ctx context.Context, listings []models.Listing) error {
	byID := make(map[string]models.Listing, len(listings))
	for i := range listings {
		identity, err := listings[i].Identity()
		if err != nil {
			s.log.Warn("skipping listing without identity", map[string]interface{}{
				"link":  listings[i].Link,
				"error": err.Error(),
			})
			continue
		}
		byID[identity] = listings[i]
	}

	sorted := make([]models.Listing, 0, len(byID))
	for _, listing := range byID {
		sorted = append(sorted, listing)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		ai, aj := areaOrZero(&sorted[i]), areaOrZero(&sorted[j])
		if ai != aj {
			return ai > aj
		}
		return sorted[i].Link < sorted[j].Link
	})

	var tier1, tier2 []models.Listing
	for i := range sorted {
		if s.rules.Evaluate(&sorted[i]).Tier == models.Tier1 {
			tier1 = append(tier1, sorted[i])
		} else {
			tier2 = append(tier2, sorted[i])
		}
	}

	if err := s.exportTiers(tier1, tier2); err != nil {
		return err
	}

	s.log.Info("sending digest", map[string]interface{}{"tier1": len(tier1)})
	queued, err := s.gate.MaybeSend(ctx, tier1)
	if err != nil {
		// Not run-fatal: the log was not advanced, so the next run retries.
		s.log.Error("digest send failed", err, map[string]interface{}{"queued": queued})
	} else {
		s.log.Info("digest handled", map[string]interface{}{"queued": queued})
	}

	s.sanityCheck(tier1, tier2)
	return nil
}

func (s *Scraper) exportTiers(tier1, tier2 []models.Listing) error {
	if err := s.exporter.Clear(); err != nil {
		return fmt.Errorf("%w: %w", ErrExportFailed, err)
	}

	header := []export.Cell{export.String(s.nowFn().Format(time.DateTime) + " 更新")}
	if err := s.exporter.WriteRow(0, 0, header); err != nil {
		return fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	labels := make([]export.Cell, 0, len(export.ListingFields))
	for _, field := range export.ListingFields {
		labels = append(labels, export.String(field))
	}
	if err := s.exporter.WriteRow(0, 1, labels); err != nil {
		return fmt.Errorf("%w: %w", ErrExportFailed, err)
	}

	row := 0
	for i := range tier1 {
		row++
		if err := s.exporter.WriteRow(row, 1, s.renderer.Row(&tier1[i], export.ListingFields)); err != nil {
			return fmt.Errorf("%w: %w", ErrExportFailed, err)
		}
	}
	row += 2
	if err := s.exporter.WriteRow(row, 1, []export.Cell{export.String("以下ゴミ物件")}); err != nil {
		return fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	for i := range tier2 {
		row++
		if err := s.exporter.WriteRow(row, 1, s.renderer.Row(&tier2[i], export.ListingFields)); err != nil {
			return fmt.Errorf("%w: %w", ErrExportFailed, err)
		}
	}
	if err := s.exporter.Flush(); err != nil {
		return fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	return nil
}

// sanityCheck warns when rendered listings share identities, which would
// indicate a resolver or scraping bug.
func (s *Scraper) sanityCheck(tiers ...[]models.Listing) {
	total := 0
	unique := map[string]struct{}{}
	for _, tier := range tiers {
		for i := range tier {
			total++
			identity, err := tier[i].Identity()
			if err != nil {
				continue
			}
			unique[identity] = struct{}{}
		}
	}
	fields := map[string]interface{}{
		"listings":   total,
		"unique_ids": len(unique),
	}
	if len(unique) != total {
		s.log.Warn("identity collision detected", fields)
		return
	}
	s.log.Info("identity sanity check passed", fields)
}

func areaOrZero(l *models.Listing) float64 {
	if l.Area.Parsed {
		return l.Area.Value
	}
	return 0
}

// RunScrapeDB maintains the long-lived database sheet for path: loads the
// persisted records, reconciles them against a fresh scrape, rewrites the
// sheet, and appends a counters row to the history sheet. Returns the run
// counters.
func (s *Scraper) RunScrapeDB(ctx context.Context, path string) (map[string]int, error) {
	counters := map[string]int{}
	now := s.nowFn()

	dbSheet := fmt.Sprintf("%s%s db", s.renderer.Host, path)
	created, err := s.exporter.UseSheet(dbSheet)
	if err != nil {
		return nil, fmt.Errorf("select sheet %q: %w", dbSheet, err)
	}
	if created {
		counters["sheet_created"]++
		labels := make([]export.Cell, 0, len(export.DBFields))
		for _, field := range export.DBFields {
			labels = append(labels, export.String(field))
		}
		if err := s.exporter.WriteRow(0, dbColumnOffset, labels); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrExportFailed, err)
		}
	}

	db := map[string]models.Listing{}
	if !created {
		if err := s.loadDB(db, counters); err != nil {
			return nil, err
		}
	}

	if err := s.updateDB(ctx, db, path, now, counters); err != nil {
		return nil, err
	}

	if err := s.rewriteDB(db, created, counters); err != nil {
		return nil, err
	}

	if err := s.appendHistory(path, now, counters); err != nil {
		return nil, err
	}

	if err := s.exporter.Flush(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	return counters, nil
}

// loadDB reads the persisted records back from the payload column.
func (s *Scraper) loadDB(db map[string]models.Listing, counters map[string]int) error {
	payloads, err := s.exporter.ReadColumn(export.FieldPayload)
	if err != nil {
		return fmt.Errorf("read persisted records: %w", err)
	}
	for _, payload := range payloads {
		var listing models.Listing
		if err := json.Unmarshal([]byte(payload), &listing); err != nil {
			counters["bad_payloads"]++
			s.log.Warn("unreadable persisted record", map[string]interface{}{"error": err.Error()})
			continue
		}
		identity, err := listing.Identity()
		if err != nil {
			counters["bad_payloads"]++
			continue
		}
		db[identity] = listing
	}
	return nil
}

// updateDB reconciles the database against a fresh scrape: new identities
// are fetched and stamped with FirstSeen, everything seen gets LastSeen and
// Active, and records missing from the scrape flip to inactive.
func (s *Scraper) updateDB(ctx context.Context, db map[string]models.Listing, path string, now time.Time, counters map[string]int) error {
	summaries, err := s.site.FetchSummaries(ctx, path)
	if err != nil {
		return fmt.Errorf("%w: summaries for %s: %w", ErrFetchFailed, path, err)
	}

	for i := range summaries {
		counters["total_active"]++
		identity, err := summaries[i].Identity()
		if err != nil {
			counters["invalid_links"]++
			s.log.Warn("skipping summary without identity", map[string]interface{}{
				"link":  summaries[i].Link,
				"error": err.Error(),
			})
			continue
		}
		entry, known := db[identity]
		if !known {
			counters["new_rooms"]++
			fetched, err := s.cache.FetchCached(ctx, summaries[i].Link)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrFetchFailed, err)
			}
			if len(fetched) == 0 {
				counters["empty_fetches"]++
				continue
			}
			entry = fetched[0]
			entry.FirstSeen = now
		}
		entry.Active = true
		entry.LastSeen = now
		entry.SeenThisPass = true
		db[identity] = entry
	}

	for identity, entry := range db {
		if entry.SeenThisPass {
			continue
		}
		if entry.Active {
			counters["newly_inactive"]++
		}
		entry.Active = false
		counters["total_inactive"]++
		db[identity] = entry
	}
	return nil
}

// rewriteDB updates existing sheet rows in place and appends rows for
// records the sheet does not know yet.
func (s *Scraper) rewriteDB(db map[string]models.Listing, created bool, counters map[string]int) error {
	var existing []string
	if !created {
		var err error
		existing, err = s.exporter.ReadColumn(export.FieldID)
		if err != nil {
			return fmt.Errorf("read identity column: %w", err)
		}
	}

	row := 0
	for _, identity := range existing {
		row++
		entry, ok := db[identity]
		if !ok {
			counters["unknown_ids_in_sheet"]++
			s.log.Warn("sheet row without database record", map[string]interface{}{
				"identity": identity,
			})
			continue
		}
		if err := s.exporter.WriteRow(row, dbColumnOffset, s.renderer.Row(&entry, export.DBFields)); err != nil {
			return fmt.Errorf("%w: %w", ErrExportFailed, err)
		}
		counters["sheet_rows_updated"]++
		entry.WrittenThisPass = true
		db[identity] = entry
	}

	rest := make([]string, 0, len(db))
	for identity, entry := range db {
		if !entry.WrittenThisPass {
			rest = append(rest, identity)
		}
	}
	sort.Strings(rest)
	for _, identity := range rest {
		row++
		entry := db[identity]
		if err := s.exporter.WriteRow(row, dbColumnOffset, s.renderer.Row(&entry, export.DBFields)); err != nil {
			return fmt.Errorf("%w: %w", ErrExportFailed, err)
		}
		counters["sheet_rows_added"]++
		entry.WrittenThisPass = true
		db[identity] = entry
	}
	return nil
}

// appendHistory records the run counters on the history sheet.
func (s *Scraper) appendHistory(path string, now time.Time, counters map[string]int) error {
	histSheet := fmt.Sprintf("%s%s history", s.renderer.Host, path)
	created, err := s.exporter.UseSheet(histSheet)
	if err != nil {
		return fmt.Errorf("select sheet %q: %w", histSheet, err)
	}
	if created {
		counters["sheet_created"]++
		header := []export.Cell{export.String("timestamp"), export.String("counters")}
		if err := s.exporter.WriteRow(0, 0, header); err != nil {
			return fmt.Errorf("%w: %w", ErrExportFailed, err)
		}
	}
	used := 0
	if !created {
		timestamps, err := s.exporter.ReadColumn("timestamp")
		if err != nil {
			return fmt.Errorf("read history column: %w", err)
		}
		used = len(timestamps)
	}
	row := []export.Cell{
		export.String(now.Format(time.DateTime)),
		export.String(FormatCounters(counters)),
	}
	if err := s.exporter.WriteRow(used+1, 0, row); err != nil {
		return fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	return nil
}

// FormatCounters renders run counters as "name=value" pairs in sorted
// order.
func FormatCounters(counters map[string]int) string {
	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, fmt.Sprintf("%s=%d", name, counters[name]))
	}
	return strings.Join(pairs, " ")
}
