package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ─── PARSING ──────────────────────────────────────────────────────────────────

// ErrEmptyRoster is returned for files with no header row at all.
var ErrEmptyRoster = errors.New("roster: file contains no rows")

// Table is the format-neutral result of parsing a roster file: a header row
// plus data rows. Rows may be shorter than Headers; Load pads with empty
// cells. Header cells are whitespace-trimmed during parsing, data cells are
// kept verbatim.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Parse reads a roster in the format implied by filename's extension.
// Supported: .csv, .xlsx, .xlsm.
func Parse(filename string, r io.Reader) (Table, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".csv":
		return parseCSV(r)
	case ".xlsx", ".xlsm":
		return parseXLSX(r)
	case ".xls":
		return Table{}, fmt.Errorf("roster: legacy .xls is not supported, save %q as .xlsx or .csv", filename)
	default:
		return Table{}, fmt.Errorf("roster: unsupported file type %q (want .csv or .xlsx)", ext)
	}
}

// ParseFile opens path and parses it by extension.
func ParseFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, fmt.Errorf("roster: open: %w", err)
	}
	defer f.Close()
	return Parse(filepath.Base(path), f)
}

func parseCSV(r io.Reader) (Table, error) {
	rdr := csv.NewReader(r)
	rdr.FieldsPerRecord = -1 // ragged rows are fine, Load pads them

	records, err := rdr.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("roster: parse csv: %w", err)
	}
	if len(records) == 0 {
		return Table{}, ErrEmptyRoster
	}

	return Table{Headers: trimHeaders(records[0]), Rows: records[1:]}, nil
}

func parseXLSX(r io.Reader) (Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Table{}, fmt.Errorf("roster: open xlsx: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return Table{}, errors.New("roster: xlsx has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return Table{}, fmt.Errorf("roster: read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return Table{}, ErrEmptyRoster
	}

	return Table{Headers: trimHeaders(rows[0]), Rows: rows[1:]}, nil
}

// trimHeaders strips surrounding whitespace and, on the first cell, the UTF-8
// BOM that Excel prepends to CSV exports.
func trimHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	for i, h := range raw {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		headers[i] = strings.TrimSpace(h)
	}
	return headers
}
