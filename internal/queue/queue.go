// Package queue carries work items from request handlers to background
// workers. Two backends share one interface:
//
//  1. Memory (channel-based): no persistence, for single-process deployments
//     and tests.
//  2. Redis (list-based): survives restarts and can be drained by workers on
//     other replicas.
//
// Items that keep failing are parked in a dead-letter queue with the last error.
package queue

import (
	"context"
	"time"
)

// Queue is a FIFO of typed items
type Queue[T any] interface {
	// Enqueue adds an item to the queue
	Enqueue(ctx context.Context, item T) error

	// Dequeue blocks until at least one item is available or ctx is done,
	// then returns up to maxItems items
	Dequeue(ctx context.Context, maxItems int) ([]T, error)

	// DequeueWithTimeout is like Dequeue but returns an empty slice when
	// nothing arrives within timeout
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]T, error)

	// Length returns the current queue length
	Length(ctx context.Context) (int, error)

	// Close shuts down the queue
	Close() error
}

// DeadLetterQueue holds items that could not be processed
type DeadLetterQueue[T any] interface {
	// Add parks a failed item with the error that caused it
	Add(ctx context.Context, item T, err error) error

	// List returns up to maxItems parked items, oldest first. maxItems <= 0 lists all.
	List(ctx context.Context, maxItems int) ([]DeadLetterItem[T], error)

	// Remove deletes a parked item
	Remove(ctx context.Context, id string) error

	// Close shuts down the dead letter queue
	Close() error
}

// DeadLetterItem is a parked item plus failure details
type DeadLetterItem[T any] struct {
	ID        string    `json:"id"`
	Item      T         `json:"item"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
	Retries   int       `json:"retries"`
}

// Config holds queue and consumer settings
type Config struct {
	// BatchSize is the maximum number of items to process in a batch
	BatchSize int

	// BatchTimeout is how long to wait before processing a partial batch
	BatchTimeout time.Duration

	// MaxRetries is the maximum number of retry attempts
	MaxRetries int

	// RetryBackoff is the initial backoff duration for retries
	RetryBackoff time.Duration

	// QueueName is the name/key for the queue
	QueueName string
}

// DefaultConfig returns default queue configuration
func DefaultConfig(queueName string) *Config {
	return &Config{
		BatchSize:    100,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,
		QueueName:    queueName,
	}
}
