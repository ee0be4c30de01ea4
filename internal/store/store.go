// Package store keeps every batch the service has accepted, in memory, for
// the lifetime of the process. It is the single owner of batch lifecycle
// state: handlers create and cancel batches, the worker moves them from
// pending through running to a terminal status, and every read returns a
// copy so callers can never mutate shared state.
//
// Dependency rule: store imports batch and report only. It never imports
// api, worker, or the transport packages.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nyashahama/exam-portal-mailer/internal/batch"
	"github.com/nyashahama/exam-portal-mailer/internal/report"
)

// ─── TYPES ────────────────────────────────────────────────────────────────────

// Status is the lifecycle state of a batch.
type Status string

const (
	StatusPending   Status = "pending" // accepted, waiting for a worker
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed" // structural failure, see Batch.Err
	StatusCancelled Status = "cancelled"
)

// Finished reports whether the status is terminal.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Progress is the worker's running tally for one batch, updated after each
// student reaches a final outcome.
type Progress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Batch is one accepted send request and its lifecycle state.
type Batch struct {
	ID           uuid.UUID `json:"id"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	StartedAt    time.Time `json:"started_at,omitzero"`
	FinishedAt   time.Time `json:"finished_at,omitzero"`
	TotalRows    int       `json:"total_rows"`
	RejectedRows int       `json:"rejected_rows"`
	Progress     Progress  `json:"progress"`
	Err          string    `json:"error,omitempty"`

	// Report is set when the batch finishes. It stays nil for a batch that
	// was cancelled before a worker picked it up. Excluded from status
	// payloads; the report endpoints serve it separately.
	Report *report.Report `json:"-"`
}

// ─── ERRORS ──────────────────────────────────────────────────────────────────

// ErrNotFound is returned for batch IDs this process has never seen. Since
// the store is in-memory, IDs from before a restart land here too.
var ErrNotFound = errors.New("store: batch not found")

// ErrBatchFinished is returned when a lifecycle transition targets a batch
// that already reached a terminal status. Handlers should map it to a
// conflict response rather than an internal error.
var ErrBatchFinished = errors.New("store: batch already finished")

// ErrNotPending is returned by StartRun when the batch is no longer waiting
// for a worker, either because another worker claimed it or because it was
// cancelled while queued. The caller should drop the job silently.
var ErrNotPending = errors.New("store: batch is not pending")

// ─── STORE ───────────────────────────────────────────────────────────────────

// entry pairs a batch with the run-side values that never leave the store.
type entry struct {
	batch  Batch
	input  batch.Input
	cancel context.CancelFunc // set while running
}

// finish applies the shared terminal-state bookkeeping. The caller holds the
// write lock. The input is dropped so a large roster table does not outlive
// its run.
func (e *entry) finish(status Status) {
	e.batch.Status = status
	e.batch.FinishedAt = time.Now().UTC()
	e.cancel = nil
	e.input = batch.Input{}
}

// Store is safe for concurrent use by the handlers and the worker pool.
type Store struct {
	mu      sync.RWMutex
	batches map[uuid.UUID]*entry
	order   []uuid.UUID // insertion order, oldest first
}

// New creates an empty Store.
func New() *Store {
	return &Store{batches: make(map[uuid.UUID]*entry)}
}
