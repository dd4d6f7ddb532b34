package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore is the primary Store backed by Cloud Firestore.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore connects to Firestore through the Firebase Admin SDK.
// When credentialsFile is empty, application default credentials are used.
func NewFirestore(ctx context.Context, projectID, credentialsFile string) (*Firestore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("get firestore client: %w", err)
	}

	return &Firestore{client: client}, nil
}

// Exists implements Store.
func (f *Firestore) Exists(ctx context.Context, collection, id string) (bool, error) {
	snap, err := f.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, err
	}
	return snap.Exists(), nil
}

// Get implements Store.
func (f *Firestore) Get(ctx context.Context, collection, id string) (Document, error) {
	snap, err := f.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return Document{ID: snap.Ref.ID, Fields: snap.Data()}, nil
}

// CommitMerge implements Store using a write batch with MergeAll.
func (f *Firestore) CommitMerge(ctx context.Context, collection string, docs []Document) error {
	if err := checkBatch(len(docs)); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	col := f.client.Collection(collection)
	batch := f.client.Batch()
	for _, d := range docs {
		batch.Set(col.Doc(d.ID), d.Fields, firestore.MergeAll)
	}
	_, err := batch.Commit(ctx)
	return err
}

// Update implements Store.
func (f *Firestore) Update(ctx context.Context, collection string, updates []FieldUpdate) error {
	if err := checkBatch(len(updates)); err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}

	col := f.client.Collection(collection)
	batch := f.client.Batch()
	for _, u := range updates {
		batch.Update(col.Doc(u.ID), []firestore.Update{{Path: u.Field, Value: u.Value}})
	}
	_, err := batch.Commit(ctx)
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}

// Delete implements Store.
func (f *Firestore) Delete(ctx context.Context, collection string, ids []string) error {
	if err := checkBatch(len(ids)); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	col := f.client.Collection(collection)
	batch := f.client.Batch()
	for _, id := range ids {
		batch.Delete(col.Doc(id))
	}
	_, err := batch.Commit(ctx)
	return err
}

// Page implements Store. Documents are ordered by document ID; the cursor is
// the ID of the last document of the previous page.
func (f *Firestore) Page(ctx context.Context, collection, after string, limit int) ([]Document, error) {
	q := f.client.Collection(collection).OrderBy(firestore.DocumentID, firestore.Asc)
	if after != "" {
		q = q.StartAfter(after)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return toDocuments(snaps), nil
}

// FindByToken implements Store with an array-contains query.
func (f *Firestore) FindByToken(ctx context.Context, collection, token string, limit int) ([]Document, error) {
	q := f.client.Collection(collection).Where(SearchTokensField, "array-contains", token)
	if limit > 0 {
		q = q.Limit(limit)
	}

	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return toDocuments(snaps), nil
}

// Close implements Store.
func (f *Firestore) Close() error {
	return f.client.Close()
}

func toDocuments(snaps []*firestore.DocumentSnapshot) []Document {
	out := make([]Document, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, Document{ID: s.Ref.ID, Fields: s.Data()})
	}
	return out
}
