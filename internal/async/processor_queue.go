package async

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/joseph-ayodele/people-extractor/internal/common"
	"github.com/joseph-ayodele/people-extractor/internal/core"
	"github.com/joseph-ayodele/people-extractor/internal/entity"
)

// Extractor runs one synchronous extraction; *core.Orchestrator satisfies it.
type Extractor interface {
	Extract(ctx context.Context, req core.ExtractRequest) (entity.ExtractionResult, error)
}

// ProcessorQueue feeds files to a fixed set of workers.
type ProcessorQueue struct {
	extractor Extractor
	logger    *slog.Logger
	workers   int
	timeout   time.Duration
	onResult  func(Outcome)

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	// senders hold the read lock; Shutdown takes the write lock to close ch
	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*ProcessorQueue)(nil)

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithResultHandler receives every Outcome. It is called from worker
// goroutines and must be safe for concurrent use.
func WithResultHandler(fn func(Outcome)) Option {
	return func(q *ProcessorQueue) {
		q.onResult = fn
	}
}

func NewProcessorQueue(extractor Extractor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		extractor: extractor,
		logger:    logger,
		workers:   4,
		timeout:   10 * time.Minute,
		ch:        make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("queue.worker.started", "worker_id", workerID)
				for job := range q.ch {
					q.process(workerID, job)
				}
				q.logger.Debug("queue.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) process(workerID int, job Job) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if job.TraceID != "" {
		ctx = common.WithRequestID(ctx, job.TraceID)
	}

	out := Outcome{Job: job}
	data, err := os.ReadFile(job.Path)
	if err != nil {
		out.Err = common.TextExtractionErr("read "+filepath.Base(job.Path), err)
	} else {
		out.Result, out.Err = q.extractor.Extract(ctx, core.ExtractRequest{
			File:     data,
			FileName: filepath.Base(job.Path),
			Meta:     job.Meta,
			Scope:    job.Scope,
		})
	}

	if out.Err != nil {
		q.logger.Error("queue.job.failed", "worker_id", workerID, "path", job.Path, "error", out.Err)
	} else {
		q.logger.Info("queue.job.ok",
			"worker_id", workerID,
			"path", job.Path,
			"batch_id", out.Result.Metadata.BatchID,
			"people", out.Result.Metadata.TotalPeople,
			"from_cache", out.Result.Metadata.FromCache,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
	if q.onResult != nil {
		q.onResult(out)
	}
}

// Enqueue blocks while the queue is full, until ctx is done.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.closed", "path", job.Path)
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}
	select {
	case q.ch <- job:
		q.logger.Debug("queue.enqueued", "path", job.Path, "depth", len(q.ch))
		return nil
	default:
	}

	q.logger.Warn("queue.full", "path", job.Path, "capacity", cap(q.ch))
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", filepath.Base(job.Path), ctx.Err())
	}
}

// Shutdown stops intake and waits for queued jobs to drain or ctx to end.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted")
	case <-done:
		q.logger.Info("queue.shutdown.drained")
	}
}
