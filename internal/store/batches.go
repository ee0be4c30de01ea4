package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nyashahama/exam-portal-mailer/internal/batch"
	"github.com/nyashahama/exam-portal-mailer/internal/report"
)

// ─── METHODS ─────────────────────────────────────────────────────────────────

// Create registers a new pending batch and returns its snapshot. The input
// is held until a worker claims it via StartRun.
func (s *Store) Create(in batch.Input, totalRows, rejectedRows int) Batch {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := Batch{
		ID:           uuid.New(),
		Status:       StatusPending,
		CreatedAt:    time.Now().UTC(),
		TotalRows:    totalRows,
		RejectedRows: rejectedRows,
	}
	s.batches[b.ID] = &entry{batch: b, input: in}
	s.order = append(s.order, b.ID)
	return b
}

// Get returns a snapshot of one batch.
func (s *Store) Get(id uuid.UUID) (Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.batches[id]
	if !ok {
		return Batch{}, ErrNotFound
	}
	return e.batch, nil
}

// List returns snapshots of every batch, newest first.
func (s *Store) List() []Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Batch, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.batches[s.order[i]].batch)
	}
	return out
}

// StartRun claims a pending batch for a worker: it moves the batch to
// running, retains cancel so Cancel can stop the run, and hands back the
// stored input. A batch that is no longer pending returns ErrNotPending.
func (s *Store) StartRun(id uuid.UUID, cancel context.CancelFunc) (batch.Input, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.batches[id]
	if !ok {
		return batch.Input{}, ErrNotFound
	}
	if e.batch.Status != StatusPending {
		return batch.Input{}, ErrNotPending
	}
	e.batch.Status = StatusRunning
	e.batch.StartedAt = time.Now().UTC()
	e.cancel = cancel
	return e.input, nil
}

// UpdateProgress overwrites the running tally for a batch.
func (s *Store) UpdateProgress(id uuid.UUID, p Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.batches[id]
	if !ok {
		return ErrNotFound
	}
	e.batch.Progress = p
	return nil
}

// Complete finishes a batch with its report.
func (s *Store) Complete(id uuid.UUID, rep *report.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.batches[id]
	if !ok {
		return ErrNotFound
	}
	if e.batch.Status.Finished() {
		return ErrBatchFinished
	}
	e.finish(StatusCompleted)
	e.batch.Report = rep
	return nil
}

// Fail finishes a batch that hit a structural failure (unusable roster,
// unusable transport, enqueue failure) before or instead of completing.
func (s *Store) Fail(id uuid.UUID, reason error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.batches[id]
	if !ok {
		return ErrNotFound
	}
	if e.batch.Status.Finished() {
		return ErrBatchFinished
	}
	e.finish(StatusFailed)
	e.batch.Err = reason.Error()
	return nil
}

// MarkCancelled finishes a batch whose run was cut short. rep holds the
// partial outcome and may be nil when nothing ran.
func (s *Store) MarkCancelled(id uuid.UUID, rep *report.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.batches[id]
	if !ok {
		return ErrNotFound
	}
	if e.batch.Status.Finished() {
		return ErrBatchFinished
	}
	e.finish(StatusCancelled)
	e.batch.Report = rep
	return nil
}

// Cancel stops a batch. A pending batch is cancelled on the spot; StartRun
// will refuse it if its queue entry surfaces later. A running batch has its
// context cancelled and stays in running until the worker persists the
// partial report via MarkCancelled. Finished batches return ErrBatchFinished.
func (s *Store) Cancel(id uuid.UUID) (Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.batches[id]
	if !ok {
		return Batch{}, ErrNotFound
	}
	switch e.batch.Status {
	case StatusPending:
		e.finish(StatusCancelled)
	case StatusRunning:
		if e.cancel != nil {
			e.cancel()
		}
	default:
		return Batch{}, ErrBatchFinished
	}
	return e.batch, nil
}
