package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JonMunkholm/sheetsync/internal/events"
	"github.com/JonMunkholm/sheetsync/internal/store"
)

func makeRows(n int) []Row {
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{
			ID:   fmt.Sprintf("row-%05d", i),
			Data: map[string]any{"name": fmt.Sprintf("Person %d", i), "score": float64(i)},
		}
	}
	return rows
}

func TestPlanBatches_1200Rows(t *testing.T) {
	plan := planBatches(makeRows(1200), 500, 50)

	if len(plan) != 3 {
		t.Fatalf("got %d write batches, want 3", len(plan))
	}
	wantSizes := []int{500, 500, 200}
	groups := 0
	for i, b := range plan {
		if b.size() != wantSizes[i] {
			t.Errorf("batch %d has %d rows, want %d", i, b.size(), wantSizes[i])
		}
		for _, g := range b {
			if len(g) > 50 {
				t.Errorf("existence group of %d rows exceeds 50", len(g))
			}
		}
		groups += len(b)
	}
	if groups != 24 {
		t.Errorf("got %d existence groups, want 24", groups)
	}
}

func TestPlanBatches_NeverExceedsWriteLimit(t *testing.T) {
	for _, n := range []int{1, 49, 50, 499, 500, 501, 999, 1000, 1001, 2345} {
		plan := planBatches(makeRows(n), 10000, 50)
		want := (n + store.MaxBatchWrites - 1) / store.MaxBatchWrites
		if len(plan) != want {
			t.Errorf("n=%d: got %d batches, want %d", n, len(plan), want)
		}
		for _, b := range plan {
			if b.size() > store.MaxBatchWrites {
				t.Errorf("n=%d: batch of %d exceeds limit", n, b.size())
			}
		}
	}
}

func TestSync_1200Rows(t *testing.T) {
	svc, mem := newTestService(t)

	res, err := svc.Sync(context.Background(), "people", makeRows(1200), nil)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Created != 1200 || res.Updated != 0 {
		t.Errorf("result = %+v, want 1200 created", res)
	}
	if got := mem.Commits(); !slices.Equal(got, []int{500, 500, 200}) {
		t.Errorf("commits = %v, want [500 500 200]", got)
	}
	if mem.Len("people") != 1200 {
		t.Errorf("stored %d documents, want 1200", mem.Len("people"))
	}
}

func TestSync_Idempotent(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	rows := makeRows(130)

	first, err := svc.Sync(ctx, "people", rows, nil)
	if err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	snapshot, _ := mem.Page(ctx, "people", "", 0)

	second, err := svc.Sync(ctx, "people", rows, nil)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	after, _ := mem.Page(ctx, "people", "", 0)

	if first.Created != 130 || first.Updated != 0 {
		t.Errorf("first run = %+v, want created 130", first)
	}
	if second.Created != 0 || second.Updated != 130 {
		t.Errorf("second run = %+v, want updated 130", second)
	}
	if !reflect.DeepEqual(snapshot, after) {
		t.Error("document contents changed between identical runs")
	}
}

func TestSync_MergeKeepsExistingFields(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	err := mem.CommitMerge(ctx, "people", []store.Document{{
		ID:     "row-00000",
		Fields: map[string]any{"name": "Old", "notes": "keep me"},
	}})
	if err != nil {
		t.Fatal(err)
	}

	res, err := svc.Sync(ctx, "people", makeRows(2), nil)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Created != 1 || res.Updated != 1 {
		t.Errorf("result = %+v, want 1 created 1 updated", res)
	}

	doc, err := mem.Get(ctx, "people", "row-00000")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Fields["notes"] != "keep me" {
		t.Errorf("merge dropped an existing field: %v", doc.Fields)
	}
	if doc.Fields["name"] != "Person 0" {
		t.Errorf("name = %v, want Person 0", doc.Fields["name"])
	}
}

func TestSync_WritesSearchTokens(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	_, err := svc.Sync(ctx, "people", []Row{{ID: "a", Data: map[string]any{"name": "Ali Hassan"}}}, nil)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	doc, _ := mem.Get(ctx, "people", "a")
	tokens := store.TokensOf(doc.Fields)
	if !slices.Contains(tokens, "hassan") {
		t.Errorf("searchTokens = %v, want to contain hassan", tokens)
	}
}

func TestSync_TokenizeDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Sync.TokenizeOnSync = false
	mem := store.NewMemory()
	svc := NewService(mem, cfg)
	ctx := context.Background()

	if _, err := svc.Sync(ctx, "people", makeRows(1), nil); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	doc, _ := mem.Get(ctx, "people", "row-00000")
	if _, ok := doc.Fields[store.SearchTokensField]; ok {
		t.Error("searchTokens written with tokenize-on-sync disabled")
	}
}

func TestSync_PartialUpdateKeepsTokensForUntouchedFields(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	saveTab(t, svc, SheetTab{ID: "tab1", CollectionName: "people", KeyColumn: "id"})

	first := []Row{{ID: "p1", Data: map[string]any{"name": "Ali Hassan", "city": "Oslo"}}}
	if _, err := svc.Sync(ctx, "people", first, nil); err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	second := []Row{{ID: "p1", Data: map[string]any{"city": "Bergen"}}}
	if _, err := svc.Sync(ctx, "people", second, nil); err != nil {
		t.Fatalf("second Sync: %v", err)
	}

	doc, err := mem.Get(ctx, "people", "p1")
	if err != nil {
		t.Fatal(err)
	}
	tokens := store.TokensOf(doc.Fields)
	for _, want := range []string{"ali", "hassan", "bergen"} {
		if !slices.Contains(tokens, want) {
			t.Errorf("searchTokens = %v, want to contain %q", tokens, want)
		}
	}
	if slices.Contains(tokens, "oslo") {
		t.Errorf("searchTokens = %v still contain the overwritten city", tokens)
	}

	hits, err := svc.Search(ctx, "tab1", "ali", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "p1" {
		t.Errorf("Search(ali) = %+v, want p1", hits)
	}
}

// staggeredStore answers lookups for low row numbers last, so concurrent
// lookups finish in the reverse of their input order.
type staggeredStore struct {
	*store.Memory
	rows int
}

func (s staggeredStore) wait(id string) {
	var i int
	fmt.Sscanf(id, "row-%05d", &i)
	time.Sleep(time.Duration(s.rows-i) * time.Millisecond)
}

func (s staggeredStore) Exists(ctx context.Context, collection, id string) (bool, error) {
	s.wait(id)
	return s.Memory.Exists(ctx, collection, id)
}

func (s staggeredStore) Get(ctx context.Context, collection, id string) (store.Document, error) {
	s.wait(id)
	return s.Memory.Get(ctx, collection, id)
}

func TestSync_OutOfOrderLookupsKeepRowOrder(t *testing.T) {
	ctx := context.Background()
	rows := makeRows(20)

	mem := store.NewMemory()
	var seed []store.Document
	for i := 0; i < len(rows); i += 2 {
		seed = append(seed, store.Document{ID: rows[i].ID, Fields: map[string]any{"seed": "kept"}})
	}
	if err := mem.CommitMerge(ctx, "people", seed); err != nil {
		t.Fatal(err)
	}
	svc := NewService(staggeredStore{Memory: mem, rows: len(rows)}, testConfig())

	classified, err := svc.resolveExistence(ctx, "people", rows)
	if err != nil {
		t.Fatalf("resolveExistence: %v", err)
	}
	for i, c := range classified {
		if c.Row.ID != rows[i].ID {
			t.Fatalf("position %d holds %s, want %s", i, c.Row.ID, rows[i].ID)
		}
		if wantExists := i%2 == 0; c.Exists != wantExists {
			t.Errorf("%s Exists = %v, want %v", c.Row.ID, c.Exists, wantExists)
		}
	}

	res, err := svc.Sync(ctx, "people", rows, nil)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Created != 10 || res.Updated != 10 {
		t.Errorf("result = %+v, want 10 created 10 updated", res)
	}
	for i, row := range rows {
		doc, err := mem.Get(ctx, "people", row.ID)
		if err != nil {
			t.Fatalf("Get %s: %v", row.ID, err)
		}
		if doc.Fields["name"] != row.Data["name"] || doc.Fields["score"] != row.Data["score"] {
			t.Errorf("%s holds %v, want the data of its own row", row.ID, doc.Fields)
		}
		if _, seeded := doc.Fields["seed"]; seeded != (i%2 == 0) {
			t.Errorf("%s seed field present = %v, want %v", row.ID, seeded, i%2 == 0)
		}
	}
}

func TestSync_CommitFailureAbortsRun(t *testing.T) {
	svc, mem := newTestService(t)
	var commits atomic.Int32
	mem.FailHook = func(op, _ string) error {
		if op == "commit" && commits.Add(1) == 2 {
			return errors.New("unavailable: backend restarting")
		}
		return nil
	}

	res, err := svc.Sync(context.Background(), "people", makeRows(1200), nil)
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("err = %v, want ErrStorageUnavailable", err)
	}
	if res != (SyncResult{}) {
		t.Errorf("failed run returned counts: %+v", res)
	}
	if got := mem.Commits(); !slices.Equal(got, []int{500}) {
		t.Errorf("commits = %v, want only the first batch", got)
	}
}

func TestSync_ExistenceFailureWritesNothing(t *testing.T) {
	svc, mem := newTestService(t)
	var checks atomic.Int32
	mem.FailHook = func(op, _ string) error {
		if (op == "get" || op == "exists") && checks.Add(1) == 17 {
			return errors.New("deadline on lookup")
		}
		return nil
	}

	_, err := svc.Sync(context.Background(), "people", makeRows(40), nil)
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("err = %v, want ErrStorageUnavailable", err)
	}
	if len(mem.Commits()) != 0 {
		t.Errorf("commits = %v, want none", mem.Commits())
	}
}

func TestSync_Validation(t *testing.T) {
	svc, mem := newTestService(t)
	var ops atomic.Int32
	mem.FailHook = func(string, string) error {
		ops.Add(1)
		return nil
	}

	tests := []struct {
		name       string
		collection string
		rows       []Row
	}{
		{"empty collection", "", makeRows(1)},
		{"empty id", "people", []Row{{ID: "a"}, {ID: ""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Sync(context.Background(), tt.collection, tt.rows, nil)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
	if ops.Load() != 0 {
		t.Errorf("validation failures performed %d store operations", ops.Load())
	}
}

func TestSync_DuplicateIDsCollapse(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	rows := []Row{
		{ID: "a", Data: map[string]any{"name": "First", "city": "Oslo"}},
		{ID: "b", Data: map[string]any{"name": "Other"}},
		{ID: "a", Data: map[string]any{"name": "Second"}},
	}

	res, err := svc.Sync(ctx, "people", rows, nil)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Created != 2 {
		t.Errorf("created = %d, want 2", res.Created)
	}
	doc, _ := mem.Get(ctx, "people", "a")
	if doc.Fields["name"] != "Second" || doc.Fields["city"] != "Oslo" {
		t.Errorf("collapsed row = %v", doc.Fields)
	}
}

func TestSync_ProgressFinalSnapshot(t *testing.T) {
	fixed := time.Unix(1000, 0)
	svc, _ := newTestService(t, WithClock(func() time.Time { return fixed }))

	var got []Progress
	_, err := svc.Sync(context.Background(), "people", makeRows(1200), func(p Progress) {
		got = append(got, p)
	})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	// The clock never advances, so only the final snapshot passes the throttle.
	if len(got) != 1 {
		t.Fatalf("got %d snapshots, want 1: %+v", len(got), got)
	}
	if got[0].Processed != 1200 || got[0].Created != 1200 {
		t.Errorf("final snapshot = %+v", got[0])
	}
}

func TestSync_ProgressEveryBatchWithoutThrottle(t *testing.T) {
	cfg := testConfig()
	cfg.Sync.ProgressInterval = 0
	svc := NewService(store.NewMemory(), cfg)

	var processed []int
	_, err := svc.Sync(context.Background(), "people", makeRows(1200), func(p Progress) {
		processed = append(processed, p.Processed)
	})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !slices.Equal(processed, []int{500, 1000, 1200}) {
		t.Errorf("processed = %v, want [500 1000 1200]", processed)
	}
}

func TestSync_EmptyRowsReportsFinal(t *testing.T) {
	svc, mem := newTestService(t)
	calls := 0
	res, err := svc.Sync(context.Background(), "people", nil, func(Progress) { calls++ })
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Created != 0 || res.Updated != 0 || calls != 1 {
		t.Errorf("result = %+v, calls = %d", res, calls)
	}
	if len(mem.Commits()) != 0 {
		t.Error("empty sync committed a batch")
	}
}

func TestSync_CancelledBetweenBatches(t *testing.T) {
	cfg := testConfig()
	cfg.Sync.ProgressInterval = 0
	mem := store.NewMemory()
	svc := NewService(mem, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := svc.Sync(ctx, "people", makeRows(1200), func(Progress) { cancel() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := mem.Commits(); !slices.Equal(got, []int{500}) {
		t.Errorf("commits = %v, want [500]", got)
	}
}

func TestSync_TooManySyncs(t *testing.T) {
	cfg := testConfig()
	cfg.Sync.MaxConcurrent = 1
	cfg.Sync.MaxWaitTime = 10 * time.Millisecond
	svc := NewService(store.NewMemory(), cfg)

	if !svc.Limiter().TryAcquire() {
		t.Fatal("TryAcquire failed")
	}
	defer svc.Limiter().Release()

	_, err := svc.Sync(context.Background(), "people", makeRows(1), nil)
	if !errors.Is(err, ErrTooManySyncs) {
		t.Errorf("err = %v, want ErrTooManySyncs", err)
	}
}

func TestSync_PublishesCompletion(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newTestService(t, WithPublisher(pub))

	res, err := svc.Sync(context.Background(), "people", makeRows(3), nil)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(pub.topics) != 1 || pub.topics[0] != events.TopicSyncCompleted {
		t.Fatalf("topics = %v", pub.topics)
	}
	ev, ok := pub.events[0].(SyncCompleted)
	if !ok {
		t.Fatalf("payload type %T", pub.events[0])
	}
	if ev.RunID != res.RunID || ev.Created != 3 || ev.Collection != "people" {
		t.Errorf("event = %+v", ev)
	}
}
