package web

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/sheetsync/internal/core"
	"github.com/JonMunkholm/sheetsync/internal/logging"
	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5/middleware"
)

// ErrorResponse is the JSON body of every failed API request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Action    string `json:"action,omitempty"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

// respondError maps a service error to its status code and user-facing
// message. The full error is logged server-side only.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := core.StatusCode(err)
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	switch {
	case !core.IsUserFacing(err):
		logger.Error("unmapped error", "status", status, "error", err)
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "code", msg.Code, "error", err)
	default:
		logger.Warn("request rejected", "status", status, "code", msg.Code, "error", err)
	}

	writeJSONStatus(w, status, newErrorResponse(r, msg))
}

// writeError writes an error that did not come from the service, such as a
// malformed request body.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	logging.FromContext(r.Context()).Warn("request rejected", "status", status, "code", code, "error", message)
	writeJSONStatus(w, status, ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func newErrorResponse(r *http.Request, msg core.UserMessage) ErrorResponse {
	return ErrorResponse{
		Error:     msg.Message,
		Action:    msg.Action,
		Code:      msg.Code,
		RequestID: middleware.GetReqID(r.Context()),
	}
}

// writeJSON encodes v as a 200 JSON response.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v as JSON with the given status. Encoding errors are
// logged since headers are already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := sonic.ConfigStd.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// decodeJSON reads a JSON request body into v, rejecting bodies larger than
// MaxRequestBodySize.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := sonic.ConfigStd.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "REQ003", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// decodeOptionalJSON is decodeJSON for bodies that may be absent. An empty or
// whitespace-only body, including a chunked one, reports present=false.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) (present, ok bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "REQ003", "invalid JSON body: "+err.Error())
		return false, false
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, true
	}
	if err := sonic.ConfigStd.Unmarshal(data, v); err != nil {
		writeError(w, r, http.StatusBadRequest, "REQ003", "invalid JSON body: "+err.Error())
		return true, false
	}
	return true, true
}
