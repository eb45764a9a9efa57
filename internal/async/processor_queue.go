package async

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/joseph-ayodele/checkup-extractor/internal/common"
)

// ProcessorQueue runs parse jobs on a fixed pool of workers fed by a
// bounded channel.
type ProcessorQueue struct {
	proc    JobProcessor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	// cancels in-flight jobs when shutdown runs out of time
	base   context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

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

func NewProcessorQueue(proc JobProcessor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 15 * time.Minute,
		ch:      make(chan Job, 128),
	}
	for _, o := range opts {
		o(q)
	}
	q.base, q.cancel = context.WithCancel(context.Background())
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					q.run(workerID, job)
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) run(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(q.base, q.timeout)
	defer cancel()
	if job.RequestID != "" {
		ctx = common.WithRequestID(ctx, job.RequestID)
	}

	_, err := q.proc.Process(ctx, job.RecordID, job.Request)
	waited := time.Since(job.SubmittedAt).Milliseconds()
	if err != nil {
		q.logger.Error("processing failed",
			"worker_id", workerID,
			"record_id", job.RecordID,
			"req_id", job.RequestID,
			"elapsed_ms", waited,
			"error", err,
		)
		return
	}
	q.logger.Info("processed record successfully",
		"worker_id", workerID,
		"record_id", job.RecordID,
		"req_id", job.RequestID,
		"elapsed_ms", waited,
	)
}

// Enqueue blocks while the queue is full until there is room or ctx ends.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "record_id", job.RecordID)
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued record for processing", "record_id", job.RecordID)
		return nil
	default:
	}

	q.logger.Warn("queue full, applying backpressure", "record_id", job.RecordID)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for queued and in-flight jobs. If
// ctx ends first, in-flight jobs are cancelled.
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
		q.logger.Warn("shutdown interrupted by context, cancelling in-flight jobs")
		q.cancel()
		<-done
	case <-done:
		q.cancel()
		q.logger.Info("queue drained, shutdown complete")
	}
}
