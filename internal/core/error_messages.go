package core

// error_messages.go maps engine errors to user-facing messages with codes
// for support reference.
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Sheet tab not configured: configuration missing or no collection
//	         Action: Register the sheet tab with a collection and key column
//	         Matches: ErrConfigurationMissing
//
//	CFG002 - Sheets source unavailable: no spreadsheet reader configured
//	         Action: Configure Google Sheets credentials on the server
//	         Matches: ErrSheetsDisabled
//
// # Storage Errors (STO001-STO099)
//
//	STO002 - Permission denied: the store rejected the credentials
//	         Action: Check the service account's database permissions
//	         Patterns: "permission denied", "permissiondenied"
//
//	STO003 - Quota exceeded: the store or sheet API is throttling requests
//	         Action: Wait a minute and retry the sync
//	         Patterns: "resource exhausted", "quota", "rate limit"
//
//	STO001 - Storage unavailable: any other read or write failure
//	         Action: Retry the operation; completed batches are kept
//	         Matches: ErrStorageUnavailable
//
// # Source Errors (SRC001-SRC099)
//
//	SRC001 - Spreadsheet unreadable: access denied or retries exhausted
//	         Action: Share the spreadsheet with the service account and check the tab name
//	         Matches: ErrSourceUnavailable
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL002 - Key column missing: the key column is not in the sheet header
//	         Patterns: "key column"
//
//	VAL003 - Empty row id: a row has no key value
//	         Patterns: "empty id"
//
//	VAL004 - Batch size out of range
//	         Patterns: "batchsize", "maxdocs"
//
//	VAL001 - Invalid request: any other validation failure
//	         Matches: ErrValidation
//
// # Sync Errors (SYN001-SYN099)
//
//	SYN001 - System busy: every sync slot is taken
//	         Matches: ErrTooManySyncs
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Request cancelled: context.Canceled
//	REQ002 - Request timeout: context.DeadlineExceeded
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Support staff should check application logs
// for the technical error, which is logged with the request and run IDs.
//
// Patterns are tried before sentinels, so a specific cause wrapped in a
// general kind (a permission failure inside ErrStorageUnavailable) reports
// the specific code. Patterns match case-insensitively with strings.Contains
// and the first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

type errorKind struct {
	target error
	msg    UserMessage
}

var errorPatterns = []errorPattern{
	{
		pattern: "permission denied",
		msg: UserMessage{
			Message: "The document store denied access",
			Action:  "Check the service account's database permissions",
			Code:    "STO002",
		},
	},
	{
		pattern: "permissiondenied",
		msg: UserMessage{
			Message: "The document store denied access",
			Action:  "Check the service account's database permissions",
			Code:    "STO002",
		},
	},
	{
		pattern: "resource exhausted",
		msg: UserMessage{
			Message: "Request quota exceeded",
			Action:  "Wait a minute and retry the sync",
			Code:    "STO003",
		},
	},
	{
		pattern: "quota",
		msg: UserMessage{
			Message: "Request quota exceeded",
			Action:  "Wait a minute and retry the sync",
			Code:    "STO003",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Request quota exceeded",
			Action:  "Wait a minute and retry the sync",
			Code:    "STO003",
		},
	},
	{
		pattern: "key column",
		msg: UserMessage{
			Message: "The key column was not found in the sheet",
			Action:  "Check that the configured key column matches a header in the first row",
			Code:    "VAL002",
		},
	},
	{
		pattern: "empty id",
		msg: UserMessage{
			Message: "A row has no key value",
			Action:  "Give every row a value in the key column",
			Code:    "VAL003",
		},
	},
	{
		pattern: "batchsize",
		msg: UserMessage{
			Message: "Batch size is out of range",
			Action:  fmt.Sprintf("Use a batch size between 1 and %d", MaxBackfillBatchSize),
			Code:    "VAL004",
		},
	},
	{
		pattern: "maxdocs",
		msg: UserMessage{
			Message: "Document limit is out of range",
			Action:  "Use a positive maxDocs value",
			Code:    "VAL004",
		},
	},
}

var errorKinds = []errorKind{
	{
		target: ErrConfigurationMissing,
		msg: UserMessage{
			Message: "Sheet tab is not configured",
			Action:  "Register the sheet tab with a collection and key column",
			Code:    "CFG001",
		},
	},
	{
		target: ErrSheetsDisabled,
		msg: UserMessage{
			Message: "Spreadsheet source is not available",
			Action:  "Configure Google Sheets credentials on the server",
			Code:    "CFG002",
		},
	},
	{
		target: ErrSourceUnavailable,
		msg: UserMessage{
			Message: "The spreadsheet could not be read",
			Action:  "Share the spreadsheet with the service account and check the tab name",
			Code:    "SRC001",
		},
	},
	{
		target: ErrStorageUnavailable,
		msg: UserMessage{
			Message: "The document store is unavailable",
			Action:  "Retry the operation; batches already written are kept",
			Code:    "STO001",
		},
	},
	{
		target: ErrValidation,
		msg: UserMessage{
			Message: "The request is invalid",
			Action:  "Check the request parameters",
			Code:    "VAL001",
		},
	},
	{
		target: ErrTooManySyncs,
		msg: UserMessage{
			Message: "System is busy processing other syncs",
			Action:  "Please wait a moment and try again",
			Code:    "SYN001",
		},
	},
	{
		target: context.Canceled,
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ001",
		},
	},
	{
		target: context.DeadlineExceeded,
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Sync a smaller tab or raise SYNC_TIMEOUT",
			Code:    "REQ002",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
//	err := fmt.Errorf("commit: %w: %w", ErrStorageUnavailable, cause)
//	msg := MapError(err)
//	// msg.Code == "STO001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.msg
		}
	}

	return defaultMessage
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
