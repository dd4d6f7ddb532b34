package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error kinds returned by the sync engine. Callers test for them with
// errors.Is; the wrapped cause is preserved for logging.
var (
	// ErrConfigurationMissing means the sheet-tab configuration document does
	// not exist or has no collection name. No work was attempted.
	ErrConfigurationMissing = errors.New("sheet tab configuration not found")

	// ErrStorageUnavailable means a read or write against the document store
	// failed. Batches committed before the failure stay committed; the whole
	// operation is safe to retry.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrValidation means the input was rejected before any I/O.
	ErrValidation = errors.New("validation failed")

	// ErrSheetsDisabled means a sheet-driven operation was requested but no
	// spreadsheet reader is configured.
	ErrSheetsDisabled = errors.New("sheets source not configured")

	// ErrSourceUnavailable means the spreadsheet source could not be read,
	// either because access was denied or because retries ran out.
	ErrSourceUnavailable = errors.New("spreadsheet source unavailable")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// storageError wraps a store failure as ErrStorageUnavailable. Cancellation is
// passed through untouched so callers can tell it apart from a backend fault.
func storageError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// sourceError wraps a spreadsheet read failure as ErrSourceUnavailable.
// Cancellation is passed through untouched.
func sourceError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrSourceUnavailable, err)
}

// StatusCode maps an engine error to the HTTP status that best describes it.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrConfigurationMissing):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrTooManySyncs):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrStorageUnavailable), errors.Is(err, ErrSheetsDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrSourceUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// nginx's "client closed request"
		return 499
	default:
		return http.StatusInternalServerError
	}
}
