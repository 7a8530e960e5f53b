package resilience

import (
	"context"
	"fmt"
)

// WriterQueue is a process-wide FIFO serializing writes to a
// single-writer backend (GraphStore's node/edge tables). It is a plain
// buffered channel of work items; Submit blocks until the item has run
// or ctx is cancelled, enforcing the spec's default 30s write
// timeout via the caller's context.
type WriterQueue struct {
	jobs chan writerJob
}

type writerJob struct {
	fn   func(ctx context.Context) error
	done chan error
}

// NewWriterQueue starts a single worker goroutine draining jobs in FIFO
// order. depth bounds how many writes may queue before Submit blocks.
func NewWriterQueue(ctx context.Context, depth int) *WriterQueue {
	q := &WriterQueue{jobs: make(chan writerJob, depth)}
	go q.run(ctx)
	return q
}

func (q *WriterQueue) run(ctx context.Context) {
	for {
		select {
		case job := <-q.jobs:
			job.done <- job.fn(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Submit enqueues fn and waits for it to run and return, or for ctx to
// be cancelled/timed out first.
func (q *WriterQueue) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	job := writerJob{fn: fn, done: make(chan error, 1)}

	select {
	case q.jobs <- job:
	case <-ctx.Done():
		return fmt.Errorf("writer queue full, submit timed out: %w", ctx.Err())
	}

	select {
	case err := <-job.done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("writer queue job timed out: %w", ctx.Err())
	}
}

// Depth reports the number of jobs currently queued, for metrics export.
func (q *WriterQueue) Depth() int {
	return len(q.jobs)
}
