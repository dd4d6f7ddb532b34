package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{
			name:     "nil error returns empty",
			err:      nil,
			wantCode: "",
		},
		{
			name:     "missing configuration",
			err:      fmt.Errorf("sheet tab %q: %w", "tab1", ErrConfigurationMissing),
			wantCode: "CFG001",
		},
		{
			name:     "sheets disabled",
			err:      ErrSheetsDisabled,
			wantCode: "CFG002",
		},
		{
			name:     "spreadsheet read failure",
			err:      sourceError("read sheet tab", errors.New("googleapi: Error 403: The caller does not have permission, forbidden")),
			wantCode: "SRC001",
		},
		{
			name:     "storage failure",
			err:      storageError("commit batch", errors.New("connection reset by peer")),
			wantCode: "STO001",
		},
		{
			name:     "permission failure inside storage error",
			err:      storageError("commit batch", errors.New("rpc error: code = PermissionDenied desc = Missing or insufficient permissions")),
			wantCode: "STO002",
		},
		{
			name:     "quota failure",
			err:      storageError("check existence", errors.New("rpc error: code = ResourceExhausted desc = Quota exceeded")),
			wantCode: "STO003",
		},
		{
			name:     "empty row id",
			err:      validationError("row %d has an empty id", 3),
			wantCode: "VAL003",
		},
		{
			name:     "key column",
			err:      validationError("key column %q not found in sheet tab %q", "Email", "Leads"),
			wantCode: "VAL002",
		},
		{
			name:     "batch size",
			err:      validationError("batchSize must be between 1 and %d, got %d", 2000, 5000),
			wantCode: "VAL004",
		},
		{
			name:     "other validation",
			err:      validationError("collection name is required"),
			wantCode: "VAL001",
		},
		{
			name:     "too many syncs",
			err:      ErrTooManySyncs,
			wantCode: "SYN001",
		},
		{
			name:     "cancelled",
			err:      fmt.Errorf("check existence: %w", context.Canceled),
			wantCode: "REQ001",
		},
		{
			name:     "deadline",
			err:      context.DeadlineExceeded,
			wantCode: "REQ002",
		},
		{
			name:     "unknown error returns default",
			err:      errors.New("some random internal error"),
			wantCode: "ERR000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError().Code = %q, want %q", got.Code, tt.wantCode)
			}
			if tt.err != nil && got.Message == "" {
				t.Error("MapError().Message is empty")
			}
		})
	}
}

func TestIsUserFacing(t *testing.T) {
	if !IsUserFacing(ErrValidation) {
		t.Error("IsUserFacing(ErrValidation) = false, want true")
	}
	if IsUserFacing(errors.New("boom")) {
		t.Error("IsUserFacing(unknown) = true, want false")
	}
	if IsUserFacing(nil) {
		t.Error("IsUserFacing(nil) = true, want false")
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("x: %w", ErrConfigurationMissing), http.StatusNotFound},
		{validationError("bad"), http.StatusBadRequest},
		{ErrTooManySyncs, http.StatusTooManyRequests},
		{storageError("op", errors.New("down")), http.StatusServiceUnavailable},
		{ErrSheetsDisabled, http.StatusServiceUnavailable},
		{sourceError("read", errors.New("googleapi: Error 403: forbidden")), http.StatusBadGateway},
		{sourceError("read", context.Canceled), 499},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusCode(tt.err); got != tt.want {
			t.Errorf("StatusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestStorageError_PassesCancellationThrough(t *testing.T) {
	err := storageError("commit batch", context.Canceled)
	if errors.Is(err, ErrStorageUnavailable) {
		t.Error("cancellation should not be reported as storage unavailable")
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("cancellation cause lost")
	}
}
