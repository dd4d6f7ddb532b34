package core

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"unicode/utf8"
)

// MaxHeaderSearchRows is how far into a CSV export the header row is looked
// for. Exports often start with a title or filter preamble.
const MaxHeaderSearchRows = 10

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVValues parses a CSV export into the same cell grid a sheet tab read
// returns, starting at the first row that contains keyColumn. Invalid UTF-8 is
// replaced with U+FFFD and a leading byte order mark is dropped.
func CSVValues(r io.Reader, keyColumn string) ([][]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	data = sanitizeUTF8(bytes.TrimPrefix(data, utf8BOM))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, validationError("malformed csv: %v", err)
	}

	start := findHeaderRow(records, keyColumn)
	if start < 0 {
		return nil, validationError("key column %q not found in the first %d rows", keyColumn, MaxHeaderSearchRows)
	}

	values := make([][]any, 0, len(records)-start)
	for _, rec := range records[start:] {
		row := make([]any, len(rec))
		for i, cell := range rec {
			row[i] = cell
		}
		values = append(values, row)
	}
	return values, nil
}

func findHeaderRow(records [][]string, keyColumn string) int {
	for i := range min(len(records), MaxHeaderSearchRows) {
		header := make([]string, len(records[i]))
		for j, cell := range records[i] {
			header[j] = CleanCell(cell)
		}
		if _, ok := lookupColumn(MakeHeaderIndex(header), header, keyColumn); ok {
			return i
		}
	}
	return -1
}

func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}
	return bytes.ToValidUTF8(data, []byte("�"))
}

// SyncCSV syncs a CSV export into collection, keyed by keyColumn. All columns
// are kept.
func (s *Service) SyncCSV(ctx context.Context, collection, keyColumn string, r io.Reader, onProgress ProgressFunc) (SyncResult, error) {
	if keyColumn == "" {
		return SyncResult{}, validationError("key column is required")
	}
	values, err := CSVValues(r, keyColumn)
	if err != nil {
		return SyncResult{}, err
	}
	mapped, err := RowsFromValues(SheetTab{CollectionName: collection, KeyColumn: keyColumn}, values)
	if err != nil {
		return SyncResult{}, err
	}

	result, err := s.sync(ctx, collection, "", mapped.Rows, onProgress)
	if err != nil {
		return SyncResult{}, err
	}
	result.Skipped = mapped.Skipped
	return result, nil
}

// SyncSheetTabCSV syncs a CSV export of a configured tab, as if the same cells
// had been read from the spreadsheet.
func (s *Service) SyncSheetTabCSV(ctx context.Context, tabID string, r io.Reader, onProgress ProgressFunc) (SyncResult, error) {
	tab, err := s.GetSheetTab(ctx, tabID)
	if err != nil {
		return SyncResult{}, err
	}
	values, err := CSVValues(r, tab.KeyColumn)
	if err != nil {
		return SyncResult{}, err
	}
	return s.SyncSheetTab(ctx, tabID, values, onProgress)
}
