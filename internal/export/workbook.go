package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// Exporter is the spreadsheet collaborator: a sheet-selection call plus
// ordered rows of typed cells. Export failures are run-fatal for the caller.
type Exporter interface {
	// UseSheet selects the named sheet, creating it when absent. Reports
	// whether a new sheet was created.
	UseSheet(title string) (bool, error)

	// Clear removes all content from the selected sheet.
	Clear() error

	// WriteRow writes cells starting at the zero-based row and column of
	// the selected sheet.
	WriteRow(row, col int, cells []Cell) error

	// ReadColumn returns the values below the named header cell in the
	// selected sheet, stopping at the first empty cell.
	ReadColumn(header string) ([]string, error)

	// Flush persists all pending writes.
	Flush() error
}

// scratchSheet is the workbook's initial sheet. It is never written to; it
// exists so that Clear can always delete and recreate a data sheet.
const scratchSheet = "Sheet1"

// Workbook is an Exporter writing a local xlsx file.
type Workbook struct {
	path  string
	file  *excelize.File
	sheet string
}

// OpenWorkbook opens the workbook at path, creating it (and its parent
// directory) when absent.
func OpenWorkbook(path string) (*Workbook, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create workbook directory %s: %w", dir, err)
		}
	}
	file, err := excelize.OpenFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open workbook %s: %w", path, err)
		}
		file = excelize.NewFile()
	}
	return &Workbook{path: path, file: file}, nil
}

// UseSheet selects the named sheet, creating it when absent.
func (w *Workbook) UseSheet(title string) (bool, error) {
	idx, err := w.file.GetSheetIndex(title)
	if err != nil {
		return false, fmt.Errorf("look up sheet %q: %w", title, err)
	}
	if idx >= 0 {
		w.sheet = title
		w.file.SetActiveSheet(idx)
		return false, nil
	}
	idx, err = w.file.NewSheet(title)
	if err != nil {
		return false, fmt.Errorf("create sheet %q: %w", title, err)
	}
	w.sheet = title
	w.file.SetActiveSheet(idx)
	return true, nil
}

// Clear deletes and recreates the selected sheet.
func (w *Workbook) Clear() error {
	if w.sheet == "" {
		return fmt.Errorf("no sheet selected")
	}
	// Park the active sheet on the scratch sheet so the data sheet is
	// deletable even when it is the only other one.
	scratchIdx, err := w.file.GetSheetIndex(scratchSheet)
	if err != nil || scratchIdx < 0 {
		scratchIdx, err = w.file.NewSheet(scratchSheet)
		if err != nil {
			return fmt.Errorf("create scratch sheet: %w", err)
		}
	}
	w.file.SetActiveSheet(scratchIdx)
	if err := w.file.DeleteSheet(w.sheet); err != nil {
		return fmt.Errorf("clear sheet %q: %w", w.sheet, err)
	}
	idx, err := w.file.NewSheet(w.sheet)
	if err != nil {
		return fmt.Errorf("recreate sheet %q: %w", w.sheet, err)
	}
	w.file.SetActiveSheet(idx)
	return nil
}

// WriteRow writes cells starting at the zero-based row and column.
func (w *Workbook) WriteRow(row, col int, cells []Cell) error {
	if w.sheet == "" {
		return fmt.Errorf("no sheet selected")
	}
	for i, cell := range cells {
		name, err := excelize.CoordinatesToCellName(col+i+1, row+1)
		if err != nil {
			return fmt.Errorf("cell coordinates (%d,%d): %w", row, col+i, err)
		}
		switch cell.Kind {
		case CellNumber:
			err = w.file.SetCellValue(w.sheet, name, cell.Num)
		case CellFormula:
			err = w.file.SetCellFormula(w.sheet, name, cell.Formula)
		default:
			err = w.file.SetCellValue(w.sheet, name, cell.Str)
		}
		if err != nil {
			return fmt.Errorf("write cell %s!%s: %w", w.sheet, name, err)
		}
	}
	return nil
}

// ReadColumn returns the values below the named header cell, stopping at
// the first empty cell.
func (w *Workbook) ReadColumn(header string) ([]string, error) {
	if w.sheet == "" {
		return nil, fmt.Errorf("no sheet selected")
	}
	rows, err := w.file.GetRows(w.sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", w.sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	colIdx := -1
	for i, value := range rows[0] {
		if value == header {
			colIdx = i
			break
		}
	}
	if colIdx < 0 {
		return nil, fmt.Errorf("header %q not found in sheet %q", header, w.sheet)
	}
	var values []string
	for _, row := range rows[1:] {
		if colIdx >= len(row) || row[colIdx] == "" {
			break
		}
		values = append(values, row[colIdx])
	}
	return values, nil
}

// Flush saves the workbook to disk.
func (w *Workbook) Flush() error {
	if err := w.file.SaveAs(w.path); err != nil {
		return fmt.Errorf("save workbook %s: %w", w.path, err)
	}
	return nil
}
