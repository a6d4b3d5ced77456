// Package export renders listings into typed spreadsheet rows and writes
// them to an xlsx workbook.
package export

// CellKind discriminates the typed cell values an exporter accepts.
type CellKind int

// Supported cell kinds.
const (
	CellString CellKind = iota
	CellNumber
	CellFormula
)

// Cell is one typed spreadsheet cell value.
type Cell struct {
	Kind    CellKind
	Str     string
	Num     float64
	Formula string
}

// String builds a string cell.
func String(s string) Cell { return Cell{Kind: CellString, Str: s} }

// Number builds a numeric cell.
func Number(v float64) Cell { return Cell{Kind: CellNumber, Num: v} }

// Formula builds a formula cell.
func Formula(f string) Cell { return Cell{Kind: CellFormula, Formula: f} }
