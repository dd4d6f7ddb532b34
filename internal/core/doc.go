// Package core implements the sheet-to-document sync engine.
//
// The package has no transport dependencies; the web handlers, the CLI and
// the tests all drive it through [Service].
//
// # Sync pipeline
//
// [Service.Sync] takes rows (a document ID plus fields) and merge-upserts
// them into a collection:
//
//  1. Rows are split into write batches of at most 500 documents, the write
//     limit of the document store.
//  2. Each write batch is split into existence groups of 50. The documents of
//     a group are looked up concurrently and classified as created or
//     updated; groups run one after another.
//  3. The write batch is committed as one atomic merge write.
//  4. A throttled [ProgressFunc] receives cumulative counts at most once per
//     interval, and always once at the end.
//
// A failing batch aborts the run. Batches committed before it stay written;
// because writes are merges, re-running the same rows is safe.
//
// # Search tokens
//
// [BuildSearchTokens] turns a record into lowercase words and word prefixes
// (at most 10 characters, at most 2000 per document). Syncs store them in the
// searchTokens field, [Service.Backfill] fills them in for existing
// documents, and [Service.Search] looks them up.
//
// # Error Handling
//
// Operations return errors wrapping [ErrConfigurationMissing],
// [ErrStorageUnavailable], [ErrValidation] or [ErrTooManySyncs]. [MapError]
// turns any of them into a user-facing message with a support code, and
// [StatusCode] into an HTTP status.
package core
