// Package sheets reads spreadsheet tabs through the Google Sheets API.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Reader returns the raw cell values of a tab, header row first.
type Reader interface {
	ReadTab(ctx context.Context, spreadsheetID, tabName string) ([][]any, error)
}

// Options tunes retry behaviour on rate-limit responses.
type Options struct {
	MaxRetries int
	MaxBackoff time.Duration
}

// Client is a Reader backed by the Sheets v4 API.
type Client struct {
	service    *sheets.Service
	maxRetries int
	maxBackoff time.Duration
	sleep      func(context.Context, time.Duration) error
}

// NewClient creates a Sheets client. Extra client options (credentials,
// endpoint, HTTP client) are passed through to the API library.
func NewClient(ctx context.Context, opts Options, clientOpts ...option.ClientOption) (*Client, error) {
	srv, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 60 * time.Second
	}

	return &Client{
		service:    srv,
		maxRetries: opts.MaxRetries,
		maxBackoff: opts.MaxBackoff,
		sleep:      sleepCtx,
	}, nil
}

// ReadTab fetches every populated row of the tab. Rate-limit responses are
// retried with exponential backoff up to MaxRetries; see isRateLimited.
func (c *Client) ReadTab(ctx context.Context, spreadsheetID, tabName string) ([][]any, error) {
	var (
		resp *sheets.ValueRange
		err  error
	)

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		resp, err = c.service.Spreadsheets.Values.Get(spreadsheetID, quoteTab(tabName)).
			ValueRenderOption("UNFORMATTED_VALUE").
			DateTimeRenderOption("FORMATTED_STRING").
			Context(ctx).
			Do()
		if err == nil {
			return resp.Values, nil
		}

		if !isRateLimited(err) {
			return nil, fmt.Errorf("read tab %q: %w", tabName, err)
		}
		if attempt == c.maxRetries-1 {
			break
		}

		backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
		slog.Warn("sheets: rate limited, backing off",
			"spreadsheet_id", spreadsheetID,
			"tab", tabName,
			"attempt", attempt+1,
			"backoff", backoff,
		)
		if serr := c.sleep(ctx, backoff); serr != nil {
			return nil, serr
		}
	}

	return nil, fmt.Errorf("read tab %q after %d attempts: %w", tabName, c.maxRetries, err)
}

// rateLimitReasons are the 403 reasons that signal throttling rather than a
// permission problem.
var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
}

// isRateLimited reports whether err is a 429, or a 403 whose reason is a rate
// limit. Other 403s (no access to the spreadsheet) are permanent.
func isRateLimited(err error) bool {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return false
	}
	switch gErr.Code {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		for _, item := range gErr.Errors {
			if rateLimitReasons[item.Reason] {
				return true
			}
		}
	}
	return false
}

// quoteTab builds an A1 range selecting the whole tab.
func quoteTab(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
