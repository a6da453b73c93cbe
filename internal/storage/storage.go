// Package storage implements the Storage Writer: a single background
// writer thread draining an MPSC queue of enriched-record batches,
// serializing each to a JSON array file and fanning batches out to any
// configured secondary backends (e.g. MongoDB). Flush blocks the
// caller until the queue drains or a bounded wall-clock budget expires.
package storage

import (
	"log/slog"
	"time"
)

// Backend persists a batch of enriched records somewhere durable.
type Backend interface {
	Write(batch []EnrichedRecord) error
	Close() error
	Name() string
}

// flushBudget is how long Flush waits for the writer to drain before
// giving up and warning, per the shutdown sequence's bounded-wait rule.
const flushBudget = 10 * time.Second

// queueItem is either a batch to write or a flush barrier: since the
// queue channel preserves FIFO order across all senders, a barrier
// enqueued after a batch is always dequeued after it, so acking the
// barrier proves every batch queued before Flush was called has been
// written.
type queueItem struct {
	batch []EnrichedRecord
	ack   chan struct{}
}

// Writer is the Storage Writer: one background goroutine drains
// batches off an internal channel (the MPSC queue — any number of
// parser workers may call SaveBatch concurrently) and writes them to
// every configured backend.
type Writer struct {
	backends []Backend
	queue    chan queueItem
	closed   chan struct{}
	logger   *slog.Logger
}

// New creates a Writer fanning out to backends and starts its
// background writer goroutine.
func New(backends []Backend, logger *slog.Logger) *Writer {
	w := &Writer{
		backends: backends,
		queue:    make(chan queueItem, 256),
		closed:   make(chan struct{}),
		logger:   logger.With("component", "storage_writer"),
	}
	go w.writerLoop()
	return w
}

// SaveBatch enqueues a batch for the writer goroutine. Never blocks
// the caller on I/O; a full queue blocks only as long as it takes the
// writer to make room, which keeps pipeline backpressure visible
// rather than silently dropping records.
func (w *Writer) SaveBatch(batch []EnrichedRecord) {
	if len(batch) == 0 {
		return
	}
	for i := range batch {
		batch[i].Sanitize()
	}
	w.queue <- queueItem{batch: batch}
}

func (w *Writer) writerLoop() {
	for item := range w.queue {
		if item.ack != nil {
			close(item.ack)
			continue
		}
		w.writeBatch(item.batch)
	}
}

func (w *Writer) writeBatch(batch []EnrichedRecord) {
	for _, b := range w.backends {
		if err := b.Write(batch); err != nil {
			w.logger.Error("backend write failed", "backend", b.Name(), "records", len(batch), "error", err)
		}
	}
}

// shutdownMarker is implemented by backends that distinguish records
// written during the final shutdown flush (e.g. FileBackend's
// shutdown_batch_ filename prefix).
type shutdownMarker interface {
	MarkShutdown()
}

// MarkShutdown tells every backend that supports it that subsequent
// writes are part of the final shutdown flush.
func (w *Writer) MarkShutdown() {
	for _, b := range w.backends {
		if m, ok := b.(shutdownMarker); ok {
			m.MarkShutdown()
		}
	}
}

// Flush waits up to flushBudget for every batch enqueued so far to be
// written, then returns. It warns and returns rather than blocking
// forever if the budget is exceeded — the coordinator's shutdown
// sequence has its own outer cap and must not hang on a slow backend.
// New batches may still be enqueued during a Flush; they are not
// waited on.
func (w *Writer) Flush() {
	ack := make(chan struct{})
	select {
	case w.queue <- queueItem{ack: ack}:
	case <-w.closed:
		return
	}
	select {
	case <-ack:
	case <-time.After(flushBudget):
		w.logger.Warn("storage flush exceeded budget, proceeding", "budget", flushBudget)
	case <-w.closed:
	}
}

// Close flushes, stops the writer goroutine, and closes every backend.
// Idempotent: a second call is a no-op.
func (w *Writer) Close() error {
	select {
	case <-w.closed:
		return nil
	default:
	}
	w.Flush()
	close(w.closed)
	close(w.queue)

	var firstErr error
	for _, b := range w.backends {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
