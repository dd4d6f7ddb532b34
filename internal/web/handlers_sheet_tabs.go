package web

import (
	"net/http"
	"strconv"

	"github.com/JonMunkholm/sheetsync/internal/core"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/schema"
)

var queryDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

// columnsRequest is the body of PUT /api/sheet-tabs/{tabID}/columns.
type columnsRequest struct {
	Columns []string `json:"columns"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleStatus reports sync slot usage.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"syncs":         s.service.Limiter().Status(),
		"sheetsEnabled": s.service.SheetsEnabled(),
	})
}

func (s *Server) handleGetSheetTab(w http.ResponseWriter, r *http.Request) {
	tab, err := s.service.GetSheetTab(r.Context(), chi.URLParam(r, "tabID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, tab)
}

// handleSaveSheetTab creates or replaces a tab configuration. The ID in the
// path wins over any ID in the body.
func (s *Server) handleSaveSheetTab(w http.ResponseWriter, r *http.Request) {
	var tab core.SheetTab
	if !decodeJSON(w, r, &tab) {
		return
	}
	tab.ID = chi.URLParam(r, "tabID")

	if err := s.service.SaveSheetTab(r.Context(), tab); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, tab)
}

func (s *Server) handleUpdateColumns(w http.ResponseWriter, r *http.Request) {
	var req columnsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tab, err := s.service.UpdateSelectedColumns(r.Context(), chi.URLParam(r, "tabID"), req.Columns)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, tab)
}

// handleDeleteSheetTab removes a tab configuration and every document in its
// collection.
func (s *Server) handleDeleteSheetTab(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.service.DeleteSheetTab(r.Context(), chi.URLParam(r, "tabID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]int{"deleted": deleted})
}

// handleBackfill writes search tokens for existing documents. Options come
// from the query string: batchSize, maxDocs, overwrite.
func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	var opts core.BackfillOptions
	if err := queryDecoder.Decode(&opts, r.URL.Query()); err != nil {
		writeError(w, r, http.StatusBadRequest, "VAL004", "invalid backfill options: "+err.Error())
		return
	}

	result, err := s.service.Backfill(r.Context(), chi.URLParam(r, "tabID"), opts)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// handleSearch looks up documents by the first word of q.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "VAL001", "limit must be an integer")
			return
		}
		limit = n
	}

	hits, err := s.service.Search(r.Context(), chi.URLParam(r, "tabID"), r.URL.Query().Get("q"), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"results": hits, "count": len(hits)})
}
