package web

import (
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/sheetsync/internal/core"
	"github.com/JonMunkholm/sheetsync/internal/logging"
	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
)

// syncRequest is the body of POST /api/collections/{collection}/sync.
type syncRequest struct {
	Rows []core.Row `json:"rows"`
}

// sheetValuesRequest is the optional body of POST /api/sheet-tabs/{tabID}/sync.
// Without values the tab is read from the Sheets API.
type sheetValuesRequest struct {
	Values [][]any `json:"values"`
}

// syncRun starts a sync that reports progress through the given callback.
type syncRun func(onProgress core.ProgressFunc) (core.SyncResult, error)

// handleSyncCollection upserts the posted rows into a collection. A text/csv
// body is parsed as an export keyed by the "key" query parameter.
func (s *Server) handleSyncCollection(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	if isCSV(r) {
		body := http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
		key := r.URL.Query().Get("key")
		s.runSync(w, r, func(onProgress core.ProgressFunc) (core.SyncResult, error) {
			return s.service.SyncCSV(r.Context(), collection, key, body, onProgress)
		})
		return
	}

	var req syncRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s.runSync(w, r, func(onProgress core.ProgressFunc) (core.SyncResult, error) {
		return s.service.Sync(r.Context(), collection, req.Rows, onProgress)
	})
}

// handleSyncSheetTab syncs a configured sheet tab from a CSV export, from
// values in a JSON body, or by reading the tab from the Sheets API.
func (s *Server) handleSyncSheetTab(w http.ResponseWriter, r *http.Request) {
	tabID := chi.URLParam(r, "tabID")

	if isCSV(r) {
		body := http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
		s.runSync(w, r, func(onProgress core.ProgressFunc) (core.SyncResult, error) {
			return s.service.SyncSheetTabCSV(r.Context(), tabID, body, onProgress)
		})
		return
	}

	var req sheetValuesRequest
	if _, ok := decodeOptionalJSON(w, r, &req); !ok {
		return
	}

	s.runSync(w, r, func(onProgress core.ProgressFunc) (core.SyncResult, error) {
		if req.Values != nil {
			return s.service.SyncSheetTab(r.Context(), tabID, req.Values, onProgress)
		}
		return s.service.SyncFromSheet(r.Context(), tabID, onProgress)
	})
}

func isCSV(r *http.Request) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mediaType == "text/csv"
}

// runSync executes run and writes its result. With ?stream=1 progress is
// streamed as server-sent events followed by a complete or error event.
func (s *Server) runSync(w http.ResponseWriter, r *http.Request, run syncRun) {
	if stream, _ := strconv.ParseBool(r.URL.Query().Get("stream")); !stream {
		result, err := run(nil)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, result)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "ERR001", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	send := func(event string, v any) {
		data, err := sonic.Marshal(v)
		if err != nil {
			logging.FromContext(r.Context()).Error("sse encode error", "event", event, "error", err)
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	result, err := run(func(p core.Progress) {
		send("progress", p)
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("streamed sync failed", "status", core.StatusCode(err), "error", err)
		send("error", newErrorResponse(r, core.MapError(err)))
		return
	}
	send("complete", result)
}
