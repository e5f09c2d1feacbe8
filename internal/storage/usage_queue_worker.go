package storage

import (
	"context"
	"fmt"
	"time"

	"cyris/internal/models"
	"cyris/internal/queue"
	"cyris/internal/utils"
)

// drainTimeout bounds each dequeue while flushing the queue on Stop
const drainTimeout = 100 * time.Millisecond

// UsageWriter persists round-trip records
type UsageWriter interface {
	Create(ctx context.Context, record *models.RoundTripRecord) error
	CreateBatch(ctx context.Context, records []*models.RoundTripRecord) error
}

// UsageQueueWorker writes round-trip records asynchronously
type UsageQueueWorker struct {
	queue       queue.Queue[models.RoundTripRecord]
	dlq         queue.DeadLetterQueue[models.RoundTripRecord]
	writer      UsageWriter
	config      *queue.Config
	logger      *utils.Logger
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewUsageQueueWorker creates a new usage queue worker
func NewUsageQueueWorker(
	q queue.Queue[models.RoundTripRecord],
	dlq queue.DeadLetterQueue[models.RoundTripRecord],
	writer UsageWriter,
	config *queue.Config,
) *UsageQueueWorker {
	if config == nil {
		config = queue.DefaultConfig("round-trips")
	}

	return &UsageQueueWorker{
		queue:       q,
		dlq:         dlq,
		writer:      writer,
		config:      config,
		logger:      utils.NewLogger("usage-worker"),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start starts the worker goroutine
func (w *UsageQueueWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop writes what is still queued, then stops the worker
func (w *UsageQueueWorker) Stop() error {
	close(w.stopChan)
	<-w.stoppedChan
	return nil
}

// Enqueue adds a round-trip record to the queue
func (w *UsageQueueWorker) Enqueue(ctx context.Context, record models.RoundTripRecord) error {
	return w.queue.Enqueue(ctx, record)
}

func (w *UsageQueueWorker) run(ctx context.Context) {
	defer close(w.stoppedChan)

	for {
		select {
		case <-w.stopChan:
			w.drain(ctx)
			w.logger.Info("Usage worker stopping")
			return
		case <-ctx.Done():
			w.logger.Info("Usage worker context cancelled")
			return
		default:
			w.processBatch(ctx)
		}
	}
}

// processBatch writes one batch, falling back to per-record retries
func (w *UsageQueueWorker) processBatch(ctx context.Context) {
	items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, w.config.BatchTimeout)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("Failed to dequeue round trip records", "error", err)
			w.sleep(ctx, time.Second)
		}
		return
	}
	w.writeBatch(ctx, items)
}

// drain writes every record still queued when the worker is asked to stop
func (w *UsageQueueWorker) drain(ctx context.Context) {
	for {
		n, err := w.queue.Length(ctx)
		if err != nil || n == 0 {
			return
		}
		items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, drainTimeout)
		if err != nil || len(items) == 0 {
			return
		}
		w.logger.Debug("Draining round trip records", "count", len(items))
		w.writeBatch(ctx, items)
	}
}

func (w *UsageQueueWorker) writeBatch(ctx context.Context, items []models.RoundTripRecord) {
	if len(items) == 0 {
		return
	}

	records := make([]*models.RoundTripRecord, len(items))
	for i := range items {
		records[i] = &items[i]
	}

	w.logger.Debug("Processing round trip batch", "count", len(records))

	if err := w.writer.CreateBatch(ctx, records); err != nil {
		w.logger.Error("Failed to insert batch, falling back to individual inserts", "error", err)
		for _, record := range records {
			if err := w.processItem(ctx, record); err != nil {
				w.logger.Error("Failed to process round trip record", "error", err)
			}
		}
	}
}

// processItem writes a single record with retries, then dead-letters it
func (w *UsageQueueWorker) processItem(ctx context.Context, record *models.RoundTripRecord) error {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			w.logger.Debug("Retrying round trip record", "attempt", attempt, "backoff", backoff)
			if !w.sleep(ctx, backoff) {
				lastErr = ctx.Err()
				break
			}
		}

		if err := w.writer.Create(ctx, record); err != nil {
			lastErr = err
			w.logger.Error("Failed to insert round trip record", "attempt", attempt, "error", err)
			continue
		}

		return nil
	}

	if w.dlq != nil {
		if err := w.dlq.Add(context.WithoutCancel(ctx), *record, lastErr); err != nil {
			w.logger.Error("Failed to add to dead letter queue", "error", err)
		} else {
			w.logger.Warn("Round trip record moved to DLQ", "request_id", record.RequestID, "error", lastErr)
		}
	}

	return fmt.Errorf("%w: %v", queue.ErrMaxRetriesExceeded, lastErr)
}

// sleep waits for d and reports false when interrupted by stop or ctx
func (w *UsageQueueWorker) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-w.stopChan:
		return false
	case <-ctx.Done():
		return false
	}
}

// GetQueueLength returns the current queue length
func (w *UsageQueueWorker) GetQueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}

// GetDeadLetterItems returns items from the dead letter queue
func (w *UsageQueueWorker) GetDeadLetterItems(ctx context.Context, maxItems int) ([]queue.DeadLetterItem[models.RoundTripRecord], error) {
	if w.dlq == nil {
		return nil, fmt.Errorf("dead letter queue not configured")
	}
	return w.dlq.List(ctx, maxItems)
}

// RetryDeadLetterItem re-enqueues a failed record and removes it from the DLQ
func (w *UsageQueueWorker) RetryDeadLetterItem(ctx context.Context, id string) error {
	if w.dlq == nil {
		return fmt.Errorf("dead letter queue not configured")
	}

	items, err := w.dlq.List(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to list dead letter items: %w", err)
	}

	for _, dlItem := range items {
		if dlItem.ID != id {
			continue
		}
		if err := w.queue.Enqueue(ctx, dlItem.Item); err != nil {
			return fmt.Errorf("failed to re-enqueue item: %w", err)
		}
		if err := w.dlq.Remove(ctx, id); err != nil {
			return fmt.Errorf("failed to remove from DLQ: %w", err)
		}
		return nil
	}

	return queue.ErrItemNotFound
}
