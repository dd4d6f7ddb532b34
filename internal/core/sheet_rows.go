package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxDocumentIDBytes is the longest document ID Firestore accepts.
const maxDocumentIDBytes = 1500

// SheetRows is the result of mapping raw tab values to sync rows.
type SheetRows struct {
	Rows            []Row
	HeaderOrder     []string
	OriginalHeaders []string
	Skipped         int
}

// HeaderIndex maps lowercased header names to their column position.
type HeaderIndex map[string]int

// MakeHeaderIndex creates a HeaderIndex from a cleaned header row.
// Keys are lowercased for case-insensitive matching; the first of several
// equal headers wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

// RowsFromValues maps the values of a sheet tab (header row first) to sync
// rows keyed by the tab's key column.
//
// Only the selected columns are kept when a selection is configured; the key
// column is always kept. Rows that are entirely empty, or whose key cell is
// empty, are skipped and counted.
func RowsFromValues(tab SheetTab, values [][]any) (SheetRows, error) {
	if len(values) == 0 {
		return SheetRows{}, validationError("sheet tab %q has no header row", tab.TabName)
	}

	header := make([]string, len(values[0]))
	for i, v := range values[0] {
		header[i] = CleanCell(cellString(v))
	}
	idx := MakeHeaderIndex(header)

	keyPos, ok := lookupColumn(idx, header, tab.KeyColumn)
	if !ok {
		return SheetRows{}, validationError("key column %q not found in sheet tab %q", tab.KeyColumn, tab.TabName)
	}

	columns, err := selectColumns(idx, header, tab.SelectedColumns, keyPos)
	if err != nil {
		return SheetRows{}, err
	}

	out := SheetRows{
		Rows:            make([]Row, 0, len(values)-1),
		HeaderOrder:     make([]string, 0, len(columns)),
		OriginalHeaders: make([]string, 0, len(columns)),
	}
	fields := make([]string, len(columns))
	for i, pos := range columns {
		fields[i] = SanitizeFieldName(header[pos])
		out.HeaderOrder = append(out.HeaderOrder, fields[i])
		out.OriginalHeaders = append(out.OriginalHeaders, header[pos])
	}

	for _, raw := range values[1:] {
		if isEmptyRow(raw) {
			out.Skipped++
			continue
		}
		key := SanitizeKey(CleanCell(cellString(cellAt(raw, keyPos))))
		if key == "" {
			out.Skipped++
			continue
		}

		data := make(map[string]any, len(columns))
		for i, pos := range columns {
			data[fields[i]] = cellValue(cellAt(raw, pos))
		}
		out.Rows = append(out.Rows, Row{ID: key, Data: data})
	}
	return out, nil
}

// lookupColumn finds a configured column by its header text or by its
// sanitized field name.
func lookupColumn(idx HeaderIndex, header []string, name string) (int, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, false
	}
	if pos, ok := idx[strings.ToLower(name)]; ok {
		return pos, true
	}
	want := SanitizeFieldName(name)
	for i, h := range header {
		if SanitizeFieldName(h) == want {
			return i, true
		}
	}
	return 0, false
}

func selectColumns(idx HeaderIndex, header []string, selected []string, keyPos int) ([]int, error) {
	var cols []int

	if len(selected) == 0 {
		names := make(map[string]bool, len(header))
		for i, h := range header {
			f := SanitizeFieldName(h)
			if f == "" || names[f] {
				continue
			}
			names[f] = true
			cols = append(cols, i)
		}
		return cols, nil
	}

	seen := make(map[int]bool, len(selected))
	for _, name := range selected {
		pos, ok := lookupColumn(idx, header, name)
		if !ok {
			return nil, validationError("selected column %q not found", name)
		}
		if !seen[pos] {
			seen[pos] = true
			cols = append(cols, pos)
		}
	}
	if !seen[keyPos] {
		cols = append([]int{keyPos}, cols...)
	}
	return cols, nil
}

// CleanCell removes common spreadsheet export artifacts from a cell value:
// surrounding whitespace, a formula prefix (="..." or =) and surrounding
// quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.Trim(s, `"'`)
}

// SanitizeFieldName turns a header into a storage-safe field name: lowercase,
// with whitespace and path characters replaced by underscores.
func SanitizeFieldName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	lastUnderscore := false
	for _, r := range name {
		if unicode.IsSpace(r) || strings.ContainsRune(".~*/[]`\\", r) || unicode.IsControl(r) {
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
			continue
		}
		b.WriteRune(r)
		lastUnderscore = r == '_'
	}
	return strings.Trim(b.String(), "_")
}

// SanitizeKey turns a key cell into a valid document ID. Slashes would be
// read as a path separator and control characters are rejected by the
// store, so both become underscores. "." and ".." are reserved.
func SanitizeKey(key string) string {
	key = strings.TrimSpace(key)
	key = strings.Map(func(r rune) rune {
		if r == '/' || unicode.IsControl(r) {
			return '_'
		}
		return r
	}, key)
	if key == "." || key == ".." {
		return strings.Repeat("_", len(key))
	}
	if len(key) > maxDocumentIDBytes {
		key = truncateUTF8(key, maxDocumentIDBytes)
	}
	return key
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func cellAt(row []any, pos int) any {
	if pos < len(row) {
		return row[pos]
	}
	return nil
}

// cellString renders a cell as text for keys and headers.
func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// cellValue keeps numbers and booleans typed and cleans strings.
func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return CleanCell(t)
	default:
		return t
	}
}

func isEmptyRow(row []any) bool {
	for _, v := range row {
		if strings.TrimSpace(cellString(v)) != "" {
			return false
		}
	}
	return true
}
