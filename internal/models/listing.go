// Package models defines the domain types shared across the scraper:
// the normalized listing record, locale-aware parsed numbers, and the
// identity resolver that derives stable cache keys from listing links.
package models

import (
	"regexp"
	"strings"
	"time"
)

// Tier labels assigned by the classifier. The tier is derived from a
// listing's attributes and is never persisted on the record itself.
const (
	Tier1 = "tier1"
	Tier2 = "tier2"
)

// Listing represents one rental unit normalized from a scraped page.
// String fields keep the site's original (Japanese) text; numeric fields
// go through ParseNumber so that unparsable values are preserved verbatim.
// JSON tags match the persisted cache entry format.
type Listing struct {
	Link         string       `json:"link"`
	Text         string       `json:"text,omitempty"`
	Rent         ParsedNumber `json:"rent"`
	FloorPlan    string       `json:"ldk,omitempty"`
	Area         ParsedNumber `json:"msq"`
	Address      string       `json:"address,omitempty"`
	Name         string       `json:"name,omitempty"`
	RoomNumber   string       `json:"roomnumber,omitempty"`
	LeaseTerm    string       `json:"leaseterm,omitempty"`
	BuildYear    string       `json:"year,omitempty"`
	Construction string       `json:"build,omitempty"`
	Images       []string     `json:"images,omitempty"`
	Active       bool         `json:"active,omitempty"`
	FirstSeen    time.Time    `json:"firstseen,omitzero"`
	LastSeen     time.Time    `json:"lastseen,omitzero"`

	// Reconciliation flags set during a single database-sheet pass.
	// They are process-local bookkeeping and are never persisted.
	SeenThisPass    bool `json:"-"`
	WrittenThisPass bool `json:"-"`
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeValue trims a scraped cell value and collapses internal
// whitespace runs into single spaces.
func NormalizeValue(value string) string {
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(value), " ")
}
