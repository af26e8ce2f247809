package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bdougie/motionwatch/internal/metrics"
	"github.com/bdougie/motionwatch/internal/models"
)

// ErrQueueFull is returned by Queue.Submit when the buffer is saturated.
var ErrQueueFull = errors.New("archive queue is full")

// Archiver copies findings to an external store. Archived findings are
// never read back into a session.
type Archiver interface {
	// AddFinding stores a single finding
	AddFinding(ctx context.Context, f models.Finding) error

	// Flush ensures all pending findings are saved
	Flush(ctx context.Context) error

	Close() error
}

// Queue forwards findings to an Archiver from a pool of workers so that
// slow archive writes never delay the sampling loop.
type Queue struct {
	archiver Archiver
	logger   *slog.Logger
	timeout  time.Duration
	work     chan models.Finding
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewQueue starts numWorkers workers with a buffer of size findings.
func NewQueue(archiver Archiver, numWorkers, size int, logger *slog.Logger) *Queue {
	if numWorkers <= 0 {
		numWorkers = 2
	}
	if size <= 0 {
		size = 100
	}
	q := &Queue{
		archiver: archiver,
		logger:   logger.With("component", "archive"),
		timeout:  10 * time.Second,
		work:     make(chan models.Finding, size),
	}
	for i := 0; i < numWorkers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for f := range q.work {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if err := q.archiver.AddFinding(ctx, f); err != nil {
			q.logger.Warn("failed to archive finding", "timestamp", f.Timestamp, "error", err)
		}
		cancel()
	}
}

// Submit enqueues f without blocking. A full queue drops the finding.
func (q *Queue) Submit(f models.Finding) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return errors.New("archive queue is closed")
	}
	select {
	case q.work <- f:
		return nil
	default:
		metrics.ArchiveDropped.Inc()
		return ErrQueueFull
	}
}

// Close stops accepting findings, waits for the workers to drain the
// buffer and flushes the archiver. The archiver itself stays open.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.work)
	q.mu.Unlock()

	q.wg.Wait()
	return q.archiver.Flush(ctx)
}
