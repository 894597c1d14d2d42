// Package memory provides a queue implementation for single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/snapvault/snapvault/internal/worker"
)

// Queue is a bounded in-memory job queue with context-aware operations.
type Queue struct {
	ch      chan worker.JobRequest
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan worker.JobRequest, capacity),
	}
}

// Enqueue pushes a job into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, req worker.JobRequest) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- req:
		return nil
	}
}

// Dequeue pops the next job, respecting context cancellation. Once the queue
// is closed and drained it returns worker.ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (worker.JobRequest, error) {
	select {
	case <-ctx.Done():
		return worker.JobRequest{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case req, ok := <-q.ch:
		if !ok {
			return worker.JobRequest{}, worker.ErrQueueClosed
		}
		return req, nil
	}
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
