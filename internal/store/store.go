// Package store defines the document storage contract used by the sync engine
// and provides its backends: Firestore (primary), PostgreSQL jsonb, and an
// in-memory adapter used for development and tests.
package store

import (
	"context"
	"errors"
	"fmt"
)

// MaxBatchWrites is the hard per-transaction write limit of the backing store.
// Every backend rejects a commit that exceeds it.
const MaxBatchWrites = 500

// SearchTokensField is the document field holding precomputed search tokens.
const SearchTokensField = "searchTokens"

// SheetTabsCollection holds one configuration document per sheet tab.
const SheetTabsCollection = "sheetTabs"

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrBatchTooLarge is returned when a commit exceeds MaxBatchWrites.
var ErrBatchTooLarge = fmt.Errorf("batch exceeds %d writes", MaxBatchWrites)

// Document is a stored document: an ID within a collection plus free-form fields.
type Document struct {
	ID     string
	Fields map[string]any
}

// FieldUpdate sets a single top-level field on an existing document.
type FieldUpdate struct {
	ID    string
	Field string
	Value any
}

// Store is the document database contract.
//
// Commit and Update are atomic per call: either every write in the call is
// applied or none is. Callers must keep each call within MaxBatchWrites.
type Store interface {
	// Exists reports whether the document with the given ID exists.
	Exists(ctx context.Context, collection, id string) (bool, error)

	// Get returns a single document or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)

	// CommitMerge writes all documents as one atomic batch with merge semantics:
	// absent documents are created, present documents keep fields not named
	// in the new payload.
	CommitMerge(ctx context.Context, collection string, docs []Document) error

	// Update applies field updates to existing documents as one atomic batch.
	Update(ctx context.Context, collection string, updates []FieldUpdate) error

	// Delete removes the given documents as one atomic batch.
	Delete(ctx context.Context, collection string, ids []string) error

	// Page returns up to limit documents in ascending ID order, starting
	// strictly after the cursor ID ("" starts at the beginning).
	Page(ctx context.Context, collection, after string, limit int) ([]Document, error)

	// FindByToken returns up to limit documents whose search tokens contain token.
	FindByToken(ctx context.Context, collection, token string, limit int) ([]Document, error)

	// Close releases backend resources.
	Close() error
}

func checkBatch(n int) error {
	if n > MaxBatchWrites {
		return fmt.Errorf("%w: got %d", ErrBatchTooLarge, n)
	}
	return nil
}
