package models

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

// NumberFormat describes the digit-grouping conventions used when parsing
// a scraped numeric string. It is passed explicitly to ParseNumber instead
// of relying on process-wide locale state.
type NumberFormat struct {
	GroupSeparator   string
	DecimalSeparator string
}

// JapaneseFormat matches how the target site prints numbers, e.g.
// "400,000円" or "70.66m²". Full-width digits are folded to ASCII before
// parsing.
var JapaneseFormat = NumberFormat{GroupSeparator: ",", DecimalSeparator: "."}

// ParsedNumber wraps a scraped numeric string together with its expected
// unit suffix. When Parsed is false, Value is meaningless: consumers must
// fall back to Text for display and treat the field as unknown, never as
// zero, when filtering.
type ParsedNumber struct {
	Text   string  `json:"text"`
	Unit   string  `json:"unit,omitempty"`
	Value  float64 `json:"value,omitempty"`
	Parsed bool    `json:"parsed"`
}

// ParseNumber parses a locale-formatted numeric string, stripping one exact
// trailing occurrence of unit first. It never fails: on a malformed value it
// returns a ParsedNumber with Parsed=false carrying the original text.
func ParseNumber(text, unit string, format NumberFormat) ParsedNumber {
	norm := strings.TrimSuffix(text, unit)
	norm = width.Narrow.String(strings.TrimSpace(norm))
	if format.GroupSeparator != "" {
		norm = strings.ReplaceAll(norm, format.GroupSeparator, "")
	}
	if format.DecimalSeparator != "" && format.DecimalSeparator != "." {
		norm = strings.ReplaceAll(norm, format.DecimalSeparator, ".")
	}

	value, err := strconv.ParseFloat(norm, 64)
	if err != nil {
		return ParsedNumber{Text: text, Unit: unit}
	}
	return ParsedNumber{Text: text, Unit: unit, Value: value, Parsed: true}
}

// String renders the parsed value with its unit, or flags the raw text as
// unparsed. Used for spreadsheet cells and log output.
func (p ParsedNumber) String() string {
	if p.Parsed {
		return fmt.Sprintf("[%f,%s]", p.Value, p.Unit)
	}
	return fmt.Sprintf("[? %s]", p.Text)
}
