package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/sheetsync/internal/config"
	"github.com/JonMunkholm/sheetsync/internal/store"
)

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, payload)
	return nil
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Store.Backend = "memory"
	return cfg
}

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return NewService(mem, testConfig(), opts...), mem
}

func saveTab(t *testing.T, svc *Service, tab SheetTab) {
	t.Helper()
	if err := svc.SaveSheetTab(context.Background(), tab); err != nil {
		t.Fatalf("SaveSheetTab: %v", err)
	}
}

func TestNewService_ClampsWriteBatch(t *testing.T) {
	cfg := testConfig()
	cfg.Sync.WriteBatchSize = 5000
	cfg.Sync.ExistenceBatchSize = 0

	svc := NewService(store.NewMemory(), cfg)
	if svc.writeBatchSize != store.MaxBatchWrites {
		t.Errorf("writeBatchSize = %d, want %d", svc.writeBatchSize, store.MaxBatchWrites)
	}
	if svc.existenceBatchSize != 50 {
		t.Errorf("existenceBatchSize = %d, want 50", svc.existenceBatchSize)
	}
}

func TestNewService_Options(t *testing.T) {
	pub := &recordingPublisher{}
	fixed := time.Unix(100, 0)
	svc, _ := newTestService(t, WithPublisher(pub), WithClock(func() time.Time { return fixed }))

	if svc.publisher != pub {
		t.Error("WithPublisher not applied")
	}
	if !svc.now().Equal(fixed) {
		t.Error("WithClock not applied")
	}
	if svc.SheetsEnabled() {
		t.Error("SheetsEnabled() = true without a reader")
	}
	if svc.Limiter().Status().MaxConcurrent != testConfig().Sync.MaxConcurrent {
		t.Error("limiter not sized from config")
	}
}
