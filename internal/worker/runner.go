// Package worker runs accepted batches in the background. It is
// intentionally decoupled from the HTTP layer: the api package holds a
// worker.Enqueuer interface and calls Enqueue after persisting a batch — it
// never imports the concrete Runner type.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/nyashahama/exam-portal-mailer/internal/batch"
	"github.com/nyashahama/exam-portal-mailer/internal/roster"
	"github.com/nyashahama/exam-portal-mailer/internal/store"
)

// ─── ENQUEUER INTERFACE ───────────────────────────────────────────────────────

// Enqueuer is the narrow interface the api package uses to hand accepted
// batches to the background pool. The concrete implementation is *Runner;
// in tests, any struct with an Enqueue method satisfies the interface.
type Enqueuer interface {
	Enqueue(ctx context.Context, batchID uuid.UUID) error
}

// ErrQueueFull is returned when the in-process queue cannot take another
// batch. The handler should fail the batch and ask the client to retry
// later rather than blocking the upload response.
var ErrQueueFull = errors.New("worker: queue is full")

// ─── RUNNER ───────────────────────────────────────────────────────────────────

// RunnerConfig holds tuning parameters for the Runner. All fields have
// sensible defaults if zero-valued; call DefaultRunnerConfig() to get them.
type RunnerConfig struct {
	// Workers is the number of batches processed concurrently. Each batch is
	// handled by exactly one goroutine; parallelism inside a batch belongs
	// to the portal client. Default: 2.
	Workers int

	// QueueSize is the Enqueue buffer. Batches beyond it are rejected with
	// ErrQueueFull instead of blocking. Default: 16.
	QueueSize int
}

// DefaultRunnerConfig returns safe production defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Workers:   2,
		QueueSize: 16,
	}
}

// Runner manages a pool of worker goroutines. Jobs arrive only via the
// in-process channel: batch state lives in the in-memory store, so a restart
// loses the queue along with everything else and there is nothing to
// recover or poll for.
type Runner struct {
	pipeline *batch.Pipeline
	store    *store.Store
	cfg      RunnerConfig
	logger   *slog.Logger

	queue chan uuid.UUID
	wg    sync.WaitGroup
}

// NewRunner constructs a Runner. Call Start() to begin processing.
func NewRunner(pipeline *batch.Pipeline, st *store.Store, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultRunnerConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultRunnerConfig().QueueSize
	}

	return &Runner{
		pipeline: pipeline,
		store:    st,
		cfg:      cfg,
		logger:   logger,
		queue:    make(chan uuid.UUID, cfg.QueueSize),
	}
}

// Enqueue pushes a batch ID onto the in-process channel. It satisfies the
// Enqueuer interface. A full queue returns ErrQueueFull rather than
// blocking the HTTP response.
func (r *Runner) Enqueue(_ context.Context, batchID uuid.UUID) error {
	select {
	case r.queue <- batchID:
		r.logger.Info("worker: enqueued batch", "batch_id", batchID)
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the worker pool. It blocks until ctx is cancelled and the
// in-flight batches have wound down. Call it in a goroutine from main:
//
//	go runner.Start(ctx)
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("worker: starting", "workers", r.cfg.Workers)

	for i := range r.cfg.Workers {
		r.wg.Add(1)
		go r.work(ctx, i)
	}

	r.wg.Wait()
	r.logger.Info("worker: stopped")
}

// work is the inner loop for each worker goroutine.
func (r *Runner) work(ctx context.Context, id int) {
	defer r.wg.Done()
	log := r.logger.With("worker_id", id)

	for {
		select {
		case <-ctx.Done():
			log.Info("worker: goroutine stopping")
			return
		case batchID := <-r.queue:
			r.process(ctx, batchID, log)
		}
	}
}

// process runs one batch to a terminal status. There is no retry, because
// rerunning a batch would mail students who already received their link.
// Whatever happened is recorded once: per student in the report, and as a
// failure reason on the batch for structural errors.
func (r *Runner) process(ctx context.Context, batchID uuid.UUID, log *slog.Logger) {
	log = log.With("batch_id", batchID)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	input, err := r.store.StartRun(batchID, cancel)
	if err != nil {
		// Cancelled while queued, or a stale enqueue; nothing to run.
		log.Info("worker: batch not runnable", "reason", err)
		return
	}

	// Mirror per-student outcomes into the store so status polls see them.
	var prog store.Progress
	input.OnProgress = func(p batch.Progress) {
		prog.Processed = p.Done
		prog.Total = p.Total
		switch p.Status {
		case roster.SendSent:
			prog.Sent++
		case roster.SendFailed:
			prog.Failed++
		case roster.SendSkipped:
			prog.Skipped++
		}
		if err := r.store.UpdateProgress(batchID, prog); err != nil {
			log.Warn("worker: progress update dropped", "error", err)
		}
	}

	log.Info("worker: batch starting")
	rep, err := r.pipeline.Run(runCtx, input)
	switch {
	case err == nil:
		if err := r.store.Complete(batchID, rep); err != nil {
			log.Error("worker: could not mark batch completed", "error", err)
		}
		log.Info("worker: batch completed")
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// The partial report records how far the run got.
		if err := r.store.MarkCancelled(batchID, rep); err != nil {
			log.Error("worker: could not mark batch cancelled", "error", err)
		}
		log.Info("worker: batch cancelled")
	default:
		if storeErr := r.store.Fail(batchID, err); storeErr != nil {
			log.Error("worker: could not mark batch failed", "error", storeErr)
		}
		log.Error("worker: batch failed", "error", err)
	}
}
