package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cyris/internal/models"
	"cyris/internal/queue"
)

// mockUsageWriter simulates database writes for testing
type mockUsageWriter struct {
	mu          sync.Mutex
	records     []*models.RoundTripRecord
	batchCalls  int
	failBatches bool
	failCount   int
	maxFails    int
}

func (m *mockUsageWriter) Create(ctx context.Context, record *models.RoundTripRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxFails < 0 || m.failCount < m.maxFails {
		m.failCount++
		return fmt.Errorf("simulated database error")
	}

	m.records = append(m.records, record)
	return nil
}

func (m *mockUsageWriter) CreateBatch(ctx context.Context, records []*models.RoundTripRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batchCalls++
	if m.failBatches {
		return fmt.Errorf("simulated batch error")
	}

	m.records = append(m.records, records...)
	return nil
}

func (m *mockUsageWriter) recordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func testWorkerConfig() *queue.Config {
	config := queue.DefaultConfig("test-round-trips")
	config.BatchSize = 5
	config.BatchTimeout = 20 * time.Millisecond
	config.MaxRetries = 2
	config.RetryBackoff = time.Millisecond
	return config
}

func newTestRecord(i int) models.RoundTripRecord {
	return models.RoundTripRecord{
		RequestID:     fmt.Sprintf("req-%d", i),
		OwnerKind:     models.OwnerKindUser,
		OwnerID:       "user-1",
		ChatID:        "chat-1",
		SelectedModel: "autopick",
		ResolvedModel: "openai/gpt-4o-mini",
		Routed:        true,
		Fallback:      models.FallbackNone,
		Persisted:     true,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestUsageQueueWorker_WritesBatches(t *testing.T) {
	config := testWorkerConfig()
	q := queue.NewMemoryQueue[models.RoundTripRecord](config)
	defer q.Close()
	writer := &mockUsageWriter{}

	worker := NewUsageQueueWorker(q, queue.NewMemoryDeadLetterQueue[models.RoundTripRecord](), writer, config)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		if err := worker.Enqueue(ctx, newTestRecord(i)); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	worker.Start(ctx)
	waitFor(t, func() bool { return writer.recordCount() == 12 })
	if err := worker.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	writer.mu.Lock()
	defer writer.mu.Unlock()
	if writer.batchCalls < 3 {
		t.Errorf("Expected at least 3 batches of at most 5, got %d", writer.batchCalls)
	}
}

func TestUsageQueueWorker_StopDrainsQueue(t *testing.T) {
	config := testWorkerConfig()
	config.BatchTimeout = time.Second
	q := queue.NewMemoryQueue[models.RoundTripRecord](config)
	defer q.Close()
	writer := &mockUsageWriter{}

	worker := NewUsageQueueWorker(q, queue.NewMemoryDeadLetterQueue[models.RoundTripRecord](), writer, config)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		if err := worker.Enqueue(ctx, newTestRecord(i)); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	worker.Start(ctx)
	if err := worker.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if got := writer.recordCount(); got != 12 {
		t.Errorf("Expected all 12 queued records written on stop, got %d", got)
	}
	if length, _ := q.Length(ctx); length != 0 {
		t.Errorf("Expected an empty queue after stop, got %d", length)
	}
}

func TestUsageQueueWorker_FallsBackToIndividualInserts(t *testing.T) {
	config := testWorkerConfig()
	q := queue.NewMemoryQueue[models.RoundTripRecord](config)
	defer q.Close()
	dlq := queue.NewMemoryDeadLetterQueue[models.RoundTripRecord]()
	writer := &mockUsageWriter{failBatches: true, maxFails: 1}

	worker := NewUsageQueueWorker(q, dlq, writer, config)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := worker.Enqueue(ctx, newTestRecord(i)); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	worker.Start(ctx)
	waitFor(t, func() bool { return writer.recordCount() == 3 })
	worker.Stop()

	items, err := dlq.List(ctx, 0)
	if err != nil {
		t.Fatalf("DLQ List failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected 0 DLQ items after a recovered retry, got %d", len(items))
	}
}

func TestUsageQueueWorker_DeadLettersAfterRetries(t *testing.T) {
	config := testWorkerConfig()
	q := queue.NewMemoryQueue[models.RoundTripRecord](config)
	defer q.Close()
	dlq := queue.NewMemoryDeadLetterQueue[models.RoundTripRecord]()
	writer := &mockUsageWriter{failBatches: true, maxFails: -1}

	worker := NewUsageQueueWorker(q, dlq, writer, config)
	ctx := context.Background()

	if err := worker.Enqueue(ctx, newTestRecord(7)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	worker.Start(ctx)
	waitFor(t, func() bool {
		items, _ := dlq.List(ctx, 0)
		return len(items) == 1
	})
	worker.Stop()

	items, err := worker.GetDeadLetterItems(ctx, 10)
	if err != nil {
		t.Fatalf("GetDeadLetterItems failed: %v", err)
	}
	if items[0].Item.RequestID != "req-7" {
		t.Errorf("Expected req-7 in DLQ, got %s", items[0].Item.RequestID)
	}
	if items[0].Error == "" {
		t.Error("Expected DLQ item to carry the last error")
	}

	writer.mu.Lock()
	attempts := writer.failCount
	writer.mu.Unlock()
	if attempts != config.MaxRetries+1 {
		t.Errorf("Expected %d attempts, got %d", config.MaxRetries+1, attempts)
	}
}

func TestUsageQueueWorker_RetryDeadLetterItem(t *testing.T) {
	config := testWorkerConfig()
	q := queue.NewMemoryQueue[models.RoundTripRecord](config)
	defer q.Close()
	dlq := queue.NewMemoryDeadLetterQueue[models.RoundTripRecord]()
	worker := NewUsageQueueWorker(q, dlq, &mockUsageWriter{}, config)
	ctx := context.Background()

	if err := dlq.Add(ctx, newTestRecord(1), fmt.Errorf("boom")); err != nil {
		t.Fatalf("DLQ Add failed: %v", err)
	}
	items, _ := dlq.List(ctx, 0)

	if err := worker.RetryDeadLetterItem(ctx, items[0].ID); err != nil {
		t.Fatalf("RetryDeadLetterItem failed: %v", err)
	}

	length, err := worker.GetQueueLength(ctx)
	if err != nil {
		t.Fatalf("GetQueueLength failed: %v", err)
	}
	if length != 1 {
		t.Errorf("Expected re-enqueued item, queue length %d", length)
	}

	remaining, _ := dlq.List(ctx, 0)
	if len(remaining) != 0 {
		t.Errorf("Expected empty DLQ, got %d", len(remaining))
	}

	if err := worker.RetryDeadLetterItem(ctx, "missing"); !errors.Is(err, queue.ErrItemNotFound) {
		t.Errorf("Expected ErrItemNotFound for unknown DLQ id, got %v", err)
	}
}

func TestUsageQueueWorker_WithoutDeadLetterQueue(t *testing.T) {
	config := testWorkerConfig()
	q := queue.NewMemoryQueue[models.RoundTripRecord](config)
	defer q.Close()
	worker := NewUsageQueueWorker(q, nil, &mockUsageWriter{}, config)

	if _, err := worker.GetDeadLetterItems(context.Background(), 1); err == nil {
		t.Error("Expected error without a DLQ")
	}
	if err := worker.RetryDeadLetterItem(context.Background(), "x"); err == nil {
		t.Error("Expected error without a DLQ")
	}
}

func TestUsageQueueWorker_StopsOnContextCancel(t *testing.T) {
	config := testWorkerConfig()
	q := queue.NewMemoryQueue[models.RoundTripRecord](config)
	defer q.Close()
	worker := NewUsageQueueWorker(q, nil, &mockUsageWriter{}, config)

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)
	cancel()

	select {
	case <-worker.stoppedChan:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancel")
	}
}
