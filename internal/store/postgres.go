package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL COLLATE "C",
	data       JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_search_tokens_idx
	ON documents USING GIN ((data -> 'searchTokens'));
`

const upsertSQL = `
INSERT INTO documents (collection, id, data)
VALUES ($1, $2, $3::jsonb)
ON CONFLICT (collection, id)
DO UPDATE SET data = documents.data || EXCLUDED.data, updated_at = now()`

const updateFieldSQL = `
UPDATE documents
SET data = jsonb_set(data, ARRAY[$3::text], $4::jsonb, true), updated_at = now()
WHERE collection = $1 AND id = $2`

// Postgres stores documents as jsonb rows, one table for all collections.
// Merge semantics are top-level: fields not present in a new payload are kept.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps a connection pool and ensures the documents table exists.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("ensure documents schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Exists implements Store.
func (p *Postgres) Exists(ctx context.Context, collection, id string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE collection = $1 AND id = $2)`,
		collection, id,
	).Scan(&exists)
	return exists, err
}

// Get implements Store.
func (p *Postgres) Get(ctx context.Context, collection, id string) (Document, error) {
	var fields map[string]any
	err := p.pool.QueryRow(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&fields)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	return Document{ID: id, Fields: fields}, nil
}

// CommitMerge implements Store. All upserts run in one transaction.
func (p *Postgres) CommitMerge(ctx context.Context, collection string, docs []Document) error {
	if err := checkBatch(len(docs)); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, d := range docs {
			batch.Queue(upsertSQL, collection, d.ID, d.Fields)
		}
		return sendBatch(ctx, tx, batch)
	})
}

// Update implements Store. A missing document rolls back the whole batch.
func (p *Postgres) Update(ctx context.Context, collection string, updates []FieldUpdate) error {
	if err := checkBatch(len(updates)); err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, u := range updates {
			batch.Queue(updateFieldSQL, collection, u.ID, u.Field, u.Value)
		}

		br := tx.SendBatch(ctx, batch)
		defer br.Close()
		for range updates {
			tag, err := br.Exec()
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return ErrNotFound
			}
		}
		return br.Close()
	})
}

// Delete implements Store.
func (p *Postgres) Delete(ctx context.Context, collection string, ids []string) error {
	if err := checkBatch(len(ids)); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = ANY($2)`,
		collection, ids,
	)
	return err
}

// Page implements Store.
func (p *Postgres) Page(ctx context.Context, collection, after string, limit int) ([]Document, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, data FROM documents
		 WHERE collection = $1 AND id > $2
		 ORDER BY id
		 LIMIT $3`,
		collection, after, limit,
	)
	if err != nil {
		return nil, err
	}
	return collectDocuments(rows)
}

// FindByToken implements Store using the jsonb containment operator.
func (p *Postgres) FindByToken(ctx context.Context, collection, token string, limit int) ([]Document, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, data FROM documents
		 WHERE collection = $1 AND data -> 'searchTokens' ? $2
		 ORDER BY id
		 LIMIT $3`,
		collection, token, limit,
	)
	if err != nil {
		return nil, err
	}
	return collectDocuments(rows)
}

// Close implements Store. The pool is owned by the caller.
func (p *Postgres) Close() error { return nil }

func sendBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return br.Close()
}

func collectDocuments(rows pgx.Rows) ([]Document, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Document, error) {
		var d Document
		err := row.Scan(&d.ID, &d.Fields)
		return d, err
	})
}
