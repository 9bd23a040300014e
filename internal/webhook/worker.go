package webhook

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultMaxAttempts  = 5
	defaultPollInterval = time.Second
	defaultQueueLimit   = 256
)

// ErrQueueFull is returned by Enqueue when the pending queue is at its limit.
var ErrQueueFull = errors.New("webhook queue full")

// Delivery is implemented by Sender.
type Delivery interface {
	Send(ctx context.Context, eventType string, payload []byte) error
}

// Worker retries failed deliveries with exponential backoff. The queue lives
// in memory; pending jobs are lost on restart.
type Worker struct {
	sender       Delivery
	logger       *slog.Logger
	maxAttempts  int
	pollInterval time.Duration
	queueLimit   int
	now          func() time.Time

	mu      sync.Mutex
	pending []*Job

	stopCh   chan struct{}
	stopOnce sync.Once
}

type WorkerOption func(*Worker)

func WithMaxAttempts(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

func NewWorker(sender Delivery, logger *slog.Logger, opts ...WorkerOption) *Worker {
	w := &Worker{
		sender:       sender,
		logger:       logger.With("component", "webhook_worker"),
		maxAttempts:  defaultMaxAttempts,
		pollInterval: defaultPollInterval,
		queueLimit:   defaultQueueLimit,
		now:          time.Now,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Enqueue schedules a delivery for the next poll.
func (w *Worker) Enqueue(eventType string, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending) >= w.queueLimit {
		return ErrQueueFull
	}

	now := w.now()
	w.pending = append(w.pending, &Job{
		ID:          uuid.New(),
		EventType:   eventType,
		Payload:     payload,
		MaxAttempts: w.maxAttempts,
		NextRetryAt: now,
		CreatedAt:   now,
	})
	return nil
}

// Pending returns the number of queued jobs.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("webhook worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("webhook worker stopped", "pending", w.Pending())
			return
		case <-w.stopCh:
			w.logger.Info("webhook worker stopped", "pending", w.Pending())
			return
		case <-ticker.C:
			w.processQueue(ctx)
		}
	}
}

func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// processQueue takes every due job out of the queue, delivers it, and puts
// back the ones that should be retried.
func (w *Worker) processQueue(ctx context.Context) {
	now := w.now()

	w.mu.Lock()
	var due []*Job
	kept := w.pending[:0]
	for _, job := range w.pending {
		if !job.NextRetryAt.After(now) {
			due = append(due, job)
			continue
		}
		kept = append(kept, job)
	}
	w.pending = kept
	w.mu.Unlock()

	for _, job := range due {
		if ctx.Err() != nil {
			w.requeue(job)
			continue
		}
		w.processJob(ctx, job)
	}
}

func (w *Worker) processJob(ctx context.Context, job *Job) {
	err := w.sender.Send(ctx, job.EventType, job.Payload)
	if err == nil {
		w.markComplete(job)
		return
	}
	w.scheduleRetry(job, err.Error())
}

func (w *Worker) scheduleRetry(job *Job, errorMsg string) {
	job.Attempts++
	job.LastError = errorMsg

	if job.Attempts >= job.MaxAttempts {
		w.markFailed(job)
		return
	}

	delay := time.Duration(1<<(job.Attempts-1)) * time.Second
	job.NextRetryAt = w.now().Add(delay)
	w.requeue(job)

	w.logger.Info("webhook job scheduled for retry",
		"job_id", job.ID,
		"attempts", job.Attempts,
		"next_retry", job.NextRetryAt,
		"error", errorMsg,
	)
}

func (w *Worker) requeue(job *Job) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, job)
}

func (w *Worker) markComplete(job *Job) {
	w.logger.Info("webhook job completed",
		"job_id", job.ID,
		"event_type", job.EventType,
		"attempts", job.Attempts+1,
	)
}

func (w *Worker) markFailed(job *Job) {
	w.logger.Error("webhook job failed",
		"job_id", job.ID,
		"event_type", job.EventType,
		"attempts", job.Attempts,
		"error", job.LastError,
	)
}
