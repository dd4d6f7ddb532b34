package core

// Row is one unit of input to a sync run: the document key plus the fields
// to merge into that document.
type Row struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

// Progress is a cumulative snapshot of a sync run. Values never decrease
// within one run.
type Progress struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Total     int `json:"total"`
}

// ProgressFunc receives throttled progress snapshots. It is called from the
// goroutine running the sync and must not block for long.
type ProgressFunc func(Progress)

// SyncResult reports how many documents a sync run created and updated.
type SyncResult struct {
	RunID      string `json:"runId"`
	Created    int    `json:"created"`
	Updated    int    `json:"updated"`
	Skipped    int    `json:"skipped,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// BackfillOptions controls a search-token backfill. Zero values fall back to
// the configured defaults.
type BackfillOptions struct {
	BatchSize int  `schema:"batchSize" json:"batchSize"`
	MaxDocs   int  `schema:"maxDocs" json:"maxDocs"`
	Overwrite bool `schema:"overwrite" json:"overwrite"`
}

// BackfillResult reports how many documents a backfill visited and how many
// had their tokens written.
type BackfillResult struct {
	RunID     string `json:"runId"`
	Processed int    `json:"processed"`
	Updated   int    `json:"updated"`
}

// SheetTab is the configuration of one spreadsheet tab: where its rows come
// from, which collection they are written to, and which column keys them.
type SheetTab struct {
	ID              string   `json:"id"`
	SpreadsheetID   string   `json:"spreadsheetId"`
	TabName         string   `json:"tabName"`
	CollectionName  string   `json:"collectionName"`
	KeyColumn       string   `json:"keyColumn"`
	SelectedColumns []string `json:"selectedColumns,omitempty"`
	HeaderOrder     []string `json:"headerOrder,omitempty"`
	OriginalHeaders []string `json:"originalHeaders,omitempty"`
}

// SearchHit is one document matched by Search.
type SearchHit struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}
