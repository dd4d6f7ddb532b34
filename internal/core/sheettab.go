package core

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/JonMunkholm/sheetsync/internal/logging"
	"github.com/JonMunkholm/sheetsync/internal/store"
)

// Field names of sheet-tab configuration documents.
const (
	fieldSpreadsheetID   = "spreadsheetId"
	fieldTabName         = "tabName"
	fieldCollectionName  = "collectionName"
	fieldKeyColumn       = "keyColumn"
	fieldSelectedColumns = "selectedColumns"
	fieldHeaderOrder     = "headerOrder"
	fieldOriginalHeaders = "originalHeaders"
)

// GetSheetTab loads a sheet-tab configuration. It fails with
// ErrConfigurationMissing when the document is absent or names no collection.
func (s *Service) GetSheetTab(ctx context.Context, tabID string) (SheetTab, error) {
	if tabID == "" {
		return SheetTab{}, validationError("sheet tab id is required")
	}
	doc, err := s.store.Get(ctx, store.SheetTabsCollection, tabID)
	if errors.Is(err, store.ErrNotFound) {
		return SheetTab{}, fmt.Errorf("sheet tab %q: %w", tabID, ErrConfigurationMissing)
	}
	if err != nil {
		return SheetTab{}, storageError("load sheet tab", err)
	}

	tab := sheetTabFromDocument(doc)
	if tab.CollectionName == "" {
		return SheetTab{}, fmt.Errorf("sheet tab %q has no collection name: %w", tabID, ErrConfigurationMissing)
	}
	return tab, nil
}

// SaveSheetTab registers or replaces the configuration of a sheet tab.
func (s *Service) SaveSheetTab(ctx context.Context, tab SheetTab) error {
	switch {
	case tab.ID == "":
		return validationError("sheet tab id is required")
	case tab.CollectionName == "":
		return validationError("collectionName is required")
	case tab.KeyColumn == "":
		return validationError("keyColumn is required")
	}

	doc := store.Document{ID: tab.ID, Fields: sheetTabFields(tab)}
	if err := s.store.CommitMerge(ctx, store.SheetTabsCollection, []store.Document{doc}); err != nil {
		return storageError("save sheet tab", err)
	}
	logging.WithFields(ctx, "sheet_tab_id", tab.ID, "collection", tab.CollectionName).Info("sheet tab saved")
	return nil
}

// UpdateSelectedColumns stores a new column selection. The cached header
// order no longer matches the selection, so it is cleared and regenerated on
// the next sheet sync.
func (s *Service) UpdateSelectedColumns(ctx context.Context, tabID string, columns []string) (SheetTab, error) {
	tab, err := s.GetSheetTab(ctx, tabID)
	if err != nil {
		return SheetTab{}, err
	}

	tab.SelectedColumns = slices.Clone(columns)
	tab.HeaderOrder = nil
	update := store.Document{ID: tabID, Fields: map[string]any{
		fieldSelectedColumns: orEmpty(tab.SelectedColumns),
		fieldHeaderOrder:     []string{},
	}}
	if err := s.store.CommitMerge(ctx, store.SheetTabsCollection, []store.Document{update}); err != nil {
		return SheetTab{}, storageError("update selected columns", err)
	}

	logging.WithFields(ctx, "sheet_tab_id", tabID).Info("selected columns updated", "columns", len(columns))
	return tab, nil
}

// DeleteSheetTab deletes every document of the tab's collection, in batches
// within the store's write limit, and then the configuration itself. It
// returns the number of documents removed from the collection.
func (s *Service) DeleteSheetTab(ctx context.Context, tabID string) (int, error) {
	tab, err := s.GetSheetTab(ctx, tabID)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		docs, err := s.store.Page(ctx, tab.CollectionName, "", store.MaxBatchWrites)
		if err != nil {
			return deleted, storageError("list documents", err)
		}
		if len(docs) == 0 {
			break
		}
		ids := make([]string, len(docs))
		for i, d := range docs {
			ids[i] = d.ID
		}
		if err := s.store.Delete(ctx, tab.CollectionName, ids); err != nil {
			return deleted, storageError("delete documents", err)
		}
		deleted += len(ids)
	}

	if err := s.store.Delete(ctx, store.SheetTabsCollection, []string{tabID}); err != nil {
		return deleted, storageError("delete sheet tab", err)
	}

	logging.WithFields(ctx, "sheet_tab_id", tabID, "collection", tab.CollectionName).
		Info("sheet tab deleted", "documents_deleted", deleted)
	return deleted, nil
}

// SyncSheetTab syncs the values of a sheet tab (header row first) into the
// tab's collection. A header order cleared by a column selection change is
// regenerated and saved before the rows are written.
func (s *Service) SyncSheetTab(ctx context.Context, tabID string, values [][]any, onProgress ProgressFunc) (SyncResult, error) {
	tab, err := s.GetSheetTab(ctx, tabID)
	if err != nil {
		return SyncResult{}, err
	}

	mapped, err := RowsFromValues(tab, values)
	if err != nil {
		return SyncResult{}, err
	}

	if len(tab.HeaderOrder) == 0 || !slices.Equal(tab.OriginalHeaders, mapped.OriginalHeaders) {
		update := store.Document{ID: tabID, Fields: map[string]any{
			fieldHeaderOrder:     mapped.HeaderOrder,
			fieldOriginalHeaders: mapped.OriginalHeaders,
		}}
		if err := s.store.CommitMerge(ctx, store.SheetTabsCollection, []store.Document{update}); err != nil {
			return SyncResult{}, storageError("save header order", err)
		}
		logging.WithFields(ctx, "sheet_tab_id", tabID).Debug("header order regenerated", "columns", len(mapped.HeaderOrder))
	}

	result, err := s.sync(ctx, tab.CollectionName, tabID, mapped.Rows, onProgress)
	if err != nil {
		return SyncResult{}, err
	}
	result.Skipped = mapped.Skipped
	return result, nil
}

// SyncFromSheet reads the tab from the spreadsheet source and syncs it.
func (s *Service) SyncFromSheet(ctx context.Context, tabID string, onProgress ProgressFunc) (SyncResult, error) {
	if s.sheets == nil {
		return SyncResult{}, ErrSheetsDisabled
	}
	tab, err := s.GetSheetTab(ctx, tabID)
	if err != nil {
		return SyncResult{}, err
	}
	if tab.SpreadsheetID == "" || tab.TabName == "" {
		return SyncResult{}, fmt.Errorf("sheet tab %q has no spreadsheet source: %w", tabID, ErrConfigurationMissing)
	}

	values, err := s.sheets.ReadTab(ctx, tab.SpreadsheetID, tab.TabName)
	if err != nil {
		return SyncResult{}, sourceError(fmt.Sprintf("read sheet tab %q", tabID), err)
	}
	return s.SyncSheetTab(ctx, tabID, values, onProgress)
}

func sheetTabFromDocument(doc store.Document) SheetTab {
	str := func(key string) string {
		v, _ := doc.Fields[key].(string)
		return v
	}
	return SheetTab{
		ID:              doc.ID,
		SpreadsheetID:   str(fieldSpreadsheetID),
		TabName:         str(fieldTabName),
		CollectionName:  str(fieldCollectionName),
		KeyColumn:       str(fieldKeyColumn),
		SelectedColumns: stringSlice(doc.Fields[fieldSelectedColumns]),
		HeaderOrder:     stringSlice(doc.Fields[fieldHeaderOrder]),
		OriginalHeaders: stringSlice(doc.Fields[fieldOriginalHeaders]),
	}
}

func sheetTabFields(tab SheetTab) map[string]any {
	return map[string]any{
		fieldSpreadsheetID:   tab.SpreadsheetID,
		fieldTabName:         tab.TabName,
		fieldCollectionName:  tab.CollectionName,
		fieldKeyColumn:       tab.KeyColumn,
		fieldSelectedColumns: orEmpty(tab.SelectedColumns),
		fieldHeaderOrder:     orEmpty(tab.HeaderOrder),
		fieldOriginalHeaders: orEmpty(tab.OriginalHeaders),
	}
}

// stringSlice accepts the slice shapes the different stores decode to.
func stringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return slices.Clone(t)
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
