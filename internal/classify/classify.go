// Package classify implements the rule-based tiering of listings.
// All predicates are pure functions of the listing's attributes; missing or
// unparsable data fails open so that a scraping hiccup never hides a room.
package classify

import (
	"strconv"
	"strings"

	"github.com/ashenomo/tomigaya/internal/models"
)

// Rules holds the classification thresholds. Marker matching is a plain
// substring check against the scraped Japanese text.
type Rules struct {
	OfficeMarkers    []string
	WoodMarkers      []string
	MinBuildYear     int
	WoodMinBuildYear int
	MinAreaSqm       float64
	MaxRentYen       float64
}

// DefaultRules returns the production thresholds: no office/retail units,
// nothing built before the 1981 earthquake code revision (2001 for
// wood-frame), at least 70m², at most 400,000 yen.
func DefaultRules() Rules {
	return Rules{
		OfficeMarkers:    []string{"事務所", "店舗"},
		WoodMarkers:      []string{"木造"},
		MinBuildYear:     1981,
		WoodMinBuildYear: 2001,
		MinAreaSqm:       70,
		MaxRentYen:       400000,
	}
}

// Evaluation is the derived classification of a single listing. It is kept
// separate from the Listing record rather than written back onto it.
type Evaluation struct {
	Grantable bool
	Tier      string
}

// IsGrantable reports whether a listing is worth considering at all:
// not an office or retail unit, and not older than the build-year gates.
// An unparsable build year skips the year gate entirely; this lenient
// default is deliberate.
func (r Rules) IsGrantable(l *models.Listing) bool {
	for _, marker := range r.OfficeMarkers {
		if strings.Contains(l.FloorPlan, marker) {
			return false
		}
	}
	year, ok := buildYear(l.BuildYear)
	if !ok {
		return true
	}
	if year < r.MinBuildYear {
		return false
	}
	if r.isWoodFrame(l.Construction) && year < r.WoodMinBuildYear {
		return false
	}
	return true
}

// IsInteresting reports whether a grantable listing clears the area and
// rent gates. Unparsed numeric fields never gate a listing out.
func (r Rules) IsInteresting(l *models.Listing) bool {
	if !r.IsGrantable(l) {
		return false
	}
	if l.Area.Parsed && l.Area.Value < r.MinAreaSqm {
		return false
	}
	if l.Rent.Parsed && l.Rent.Value > r.MaxRentYen {
		return false
	}
	return true
}

// Evaluate computes the full derived classification: tier1 for interesting
// listings, tier2 for everything else.
func (r Rules) Evaluate(l *models.Listing) Evaluation {
	eval := Evaluation{Grantable: r.IsGrantable(l)}
	if r.IsInteresting(l) {
		eval.Tier = models.Tier1
	} else {
		eval.Tier = models.Tier2
	}
	return eval
}

func (r Rules) isWoodFrame(construction string) bool {
	for _, marker := range r.WoodMarkers {
		if strings.Contains(construction, marker) {
			return true
		}
	}
	return false
}

// buildYear extracts the year from a loosely formatted build-date string
// such as "1995年11月": the first four characters parsed as an integer.
func buildYear(s string) (int, bool) {
	runes := []rune(s)
	if len(runes) < 4 {
		return 0, false
	}
	year, err := strconv.Atoi(string(runes[:4]))
	if err != nil {
		return 0, false
	}
	return year, true
}
