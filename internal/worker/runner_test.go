package worker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nyashahama/exam-portal-mailer/internal/batch"
	"github.com/nyashahama/exam-portal-mailer/internal/email"
	"github.com/nyashahama/exam-portal-mailer/internal/portal"
	"github.com/nyashahama/exam-portal-mailer/internal/roster"
	"github.com/nyashahama/exam-portal-mailer/internal/store"
	"github.com/nyashahama/exam-portal-mailer/internal/worker"
)

// ─── STUBS ────────────────────────────────────────────────────────────────────

// stubGenerator links every student it is asked about.
type stubGenerator struct {
	mu    sync.Mutex
	calls int
}

func (s *stubGenerator) GenerateLinks(_ context.Context, students []portal.Student, _ portal.BatchParams) (portal.Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	res := portal.Result{
		Links:   map[string]portal.Link{},
		Errors:  map[string]string{},
		Program: portal.ProgramInfo{ProgramName: "CS Honours", RoundName: "Finals"},
	}
	for _, st := range students {
		res.Links[strings.ToLower(st.Email)] = portal.Link{
			LoginLink: "https://p.example.org/login/" + st.Email,
		}
	}
	return res, nil
}

func (s *stubGenerator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stubSender counts deliveries. When blockOn matches a recipient it closes
// started and parks until the context ends, so tests can cancel mid-send.
type stubSender struct {
	mu        sync.Mutex
	verifyErr error
	sent      int
	blockOn   string
	started   chan struct{}
}

func (s *stubSender) Send(ctx context.Context, m email.Message) error {
	if s.blockOn != "" && m.To == s.blockOn {
		close(s.started)
		<-ctx.Done()
		return ctx.Err()
	}
	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
	return nil
}

func (s *stubSender) Verify(_ context.Context) error { return s.verifyErr }

// ─── TEST INFRASTRUCTURE ──────────────────────────────────────────────────────

type fixture struct {
	store  *store.Store
	runner *worker.Runner
	gen    *stubGenerator
	cancel context.CancelFunc
	done   chan struct{}
}

// startRunner wires a real store and pipeline around the stubs and runs a
// single-worker pool for the duration of the test.
func startRunner(t *testing.T, sender *stubSender) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gen := &stubGenerator{}
	st := store.New()
	p := batch.New(gen, sender, batch.Config{SenderName: "Examinations Office", SenderEmail: "exams@example.org"}, logger)
	r := worker.NewRunner(p, st, worker.RunnerConfig{Workers: 1, QueueSize: 4}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("runner did not stop after context cancel")
		}
	})

	return &fixture{store: st, runner: r, gen: gen, cancel: cancel, done: done}
}

func newInput(emails ...string) batch.Input {
	rows := make([][]string, len(emails))
	for i, e := range emails {
		rows[i] = []string{"Student " + e, e}
	}
	return batch.Input{
		Table:   roster.Table{Headers: []string{"Name", "Email"}, Rows: rows},
		Columns: roster.DefaultColumns(),
		Params:  portal.BatchParams{ProgramID: 1, RoundID: 1, SessionTime: "730h"},
	}
}

// waitForStatus polls the store until the batch reaches want or the
// deadline passes.
func waitForStatus(t *testing.T, st *store.Store, id uuid.UUID, want store.Status) store.Batch {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		b, err := st.Get(id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if b.Status == want {
			return b
		}
		time.Sleep(5 * time.Millisecond)
	}
	b, _ := st.Get(id)
	t.Fatalf("batch stuck in %s, want %s", b.Status, want)
	return store.Batch{}
}

// ─── Runner ───────────────────────────────────────────────────────────────────

func TestRunner_CompletesQueuedBatch(t *testing.T) {
	f := startRunner(t, &stubSender{})

	b := f.store.Create(newInput("a@example.org", "b@example.org"), 2, 0)
	if err := f.runner.Enqueue(context.Background(), b.ID); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	done := waitForStatus(t, f.store, b.ID, store.StatusCompleted)
	if done.Report == nil || len(done.Report.Rows) != 2 {
		t.Fatalf("report = %+v, want 2 rows", done.Report)
	}
	want := store.Progress{Processed: 2, Total: 2, Sent: 2}
	if done.Progress != want {
		t.Errorf("progress = %+v, want %+v", done.Progress, want)
	}
}

func TestRunner_EnqueueRejectsWhenQueueFull(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := batch.New(&stubGenerator{}, &stubSender{}, batch.Config{}, logger)
	// Not started, so nothing drains the queue.
	r := worker.NewRunner(p, store.New(), worker.RunnerConfig{Workers: 1, QueueSize: 1}, logger)

	if err := r.Enqueue(context.Background(), uuid.New()); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	if err := r.Enqueue(context.Background(), uuid.New()); !errors.Is(err, worker.ErrQueueFull) {
		t.Errorf("got %v, want ErrQueueFull", err)
	}
}

func TestRunner_SkipsBatchCancelledWhileQueued(t *testing.T) {
	f := startRunner(t, &stubSender{})

	stale := f.store.Create(newInput("a@example.org"), 1, 0)
	if _, err := f.store.Cancel(stale.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := f.runner.Enqueue(context.Background(), stale.ID); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// A follow-up batch on the same single worker proves the stale entry
	// was consumed and dropped.
	next := f.store.Create(newInput("b@example.org"), 1, 0)
	if err := f.runner.Enqueue(context.Background(), next.ID); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitForStatus(t, f.store, next.ID, store.StatusCompleted)

	got, _ := f.store.Get(stale.ID)
	if got.Status != store.StatusCancelled || got.Report != nil {
		t.Errorf("stale batch = %s report=%v, want cancelled with no report", got.Status, got.Report)
	}
	if f.gen.callCount() != 1 {
		t.Errorf("generator calls = %d, want only the live batch", f.gen.callCount())
	}
}

func TestRunner_CancelMidRunKeepsPartialReport(t *testing.T) {
	sender := &stubSender{blockOn: "b@example.org", started: make(chan struct{})}
	f := startRunner(t, sender)

	b := f.store.Create(newInput("a@example.org", "b@example.org", "c@example.org"), 3, 0)
	if err := f.runner.Enqueue(context.Background(), b.ID); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	<-sender.started // second send is now in flight
	if _, err := f.store.Cancel(b.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	got := waitForStatus(t, f.store, b.ID, store.StatusCancelled)
	if got.Report == nil || len(got.Report.Rows) != 3 {
		t.Fatalf("report = %+v, want the partial outcome", got.Report)
	}
	rows := got.Report.Rows
	if rows[0].SendStatus != "sent" {
		t.Errorf("row 0 = %s, want sent", rows[0].SendStatus)
	}
	if rows[1].SendStatus != "failed" {
		t.Errorf("row 1 = %s, want failed for the interrupted send", rows[1].SendStatus)
	}
	if rows[2].SendStatus != "pending" {
		t.Errorf("row 2 = %s, want pending for the unreached student", rows[2].SendStatus)
	}
}

func TestRunner_StructuralFailureMarksBatchFailed(t *testing.T) {
	f := startRunner(t, &stubSender{verifyErr: errors.New("535 authentication failed")})

	b := f.store.Create(newInput("a@example.org"), 1, 0)
	if err := f.runner.Enqueue(context.Background(), b.ID); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	got := waitForStatus(t, f.store, b.ID, store.StatusFailed)
	if !strings.Contains(got.Err, "authentication failed") {
		t.Errorf("batch error = %q", got.Err)
	}
	if got.Report != nil {
		t.Error("a structurally failed batch has no report")
	}
}

func TestRunner_StopsOnContextCancel(t *testing.T) {
	f := startRunner(t, &stubSender{})

	f.cancel()
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
