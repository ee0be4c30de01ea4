package email_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/nyashahama/exam-portal-mailer/internal/email"
)

// ─── STUBS ────────────────────────────────────────────────────────────────────

type stubSender struct {
	sendErr   error
	verifyErr error
	sends     int
	verifies  int
	last      email.Message
}

func (s *stubSender) Send(_ context.Context, m email.Message) error {
	s.sends++
	s.last = m
	return s.sendErr
}

func (s *stubSender) Verify(_ context.Context) error {
	s.verifies++
	return s.verifyErr
}

// discardLogger returns a *slog.Logger that silently drops all log output.
// Use this instead of nil — fallback.go calls f.logger.Warn() which panics on nil.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMessage() email.Message {
	return email.Message{To: "ada@example.org", Subject: "hi", HTML: "<p>hi</p>"}
}

// ─── FallbackSender — Send ────────────────────────────────────────────────────

func TestFallbackSend_PrimarySucceeds_SecondaryNotCalled(t *testing.T) {
	primary := &stubSender{}
	secondary := &stubSender{}

	sender := email.NewFallbackSender(primary, secondary, discardLogger())
	if err := sender.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.sends != 1 {
		t.Errorf("primary sends = %d, want 1", primary.sends)
	}
	if secondary.sends != 0 {
		t.Errorf("secondary sends = %d, want 0", secondary.sends)
	}
}

func TestFallbackSend_PrimaryFails_SecondaryGetsSameMessage(t *testing.T) {
	primary := &stubSender{sendErr: errors.New("relay refused")}
	secondary := &stubSender{}

	sender := email.NewFallbackSender(primary, secondary, discardLogger())
	if err := sender.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if secondary.sends != 1 {
		t.Fatalf("secondary sends = %d, want 1", secondary.sends)
	}
	if secondary.last.To != "ada@example.org" || secondary.last.Subject != "hi" {
		t.Errorf("secondary got %+v, want the original message", secondary.last)
	}
}

func TestFallbackSend_BothFail_ReturnsError(t *testing.T) {
	primary := &stubSender{sendErr: errors.New("primary down")}
	secondary := &stubSender{sendErr: errors.New("secondary down")}

	sender := email.NewFallbackSender(primary, secondary, discardLogger())
	if err := sender.Send(context.Background(), testMessage()); err == nil {
		t.Fatal("expected an error when both senders fail")
	}
}

func TestFallbackSend_NilPrimary_UsesSecondaryDirectly(t *testing.T) {
	secondary := &stubSender{}

	sender := email.NewFallbackSender(nil, secondary, discardLogger())
	if err := sender.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if secondary.sends != 1 {
		t.Errorf("secondary sends = %d, want 1", secondary.sends)
	}
}

func TestFallbackSend_NilSecondary_PrimaryErrorBubbles(t *testing.T) {
	primaryErr := errors.New("primary blew up")
	primary := &stubSender{sendErr: primaryErr}

	sender := email.NewFallbackSender(primary, nil, discardLogger())
	err := sender.Send(context.Background(), testMessage())
	if !errors.Is(err, primaryErr) {
		t.Errorf("expected primaryErr in chain, got: %v", err)
	}
}

// ─── FallbackSender — Verify ──────────────────────────────────────────────────

func TestFallbackVerify_PrimaryFailureIsFatal(t *testing.T) {
	primary := &stubSender{verifyErr: errors.New("bad credentials")}
	secondary := &stubSender{}

	sender := email.NewFallbackSender(primary, secondary, discardLogger())
	if err := sender.Verify(context.Background()); err == nil {
		t.Fatal("expected verify to fail with a broken primary")
	}
}

func TestFallbackVerify_SecondaryFailureOnlyWarns(t *testing.T) {
	primary := &stubSender{}
	secondary := &stubSender{verifyErr: errors.New("fallback misconfigured")}

	sender := email.NewFallbackSender(primary, secondary, discardLogger())
	if err := sender.Verify(context.Background()); err != nil {
		t.Fatalf("secondary verify failure must not be fatal: %v", err)
	}
	if secondary.verifies != 1 {
		t.Errorf("secondary verifies = %d, want 1", secondary.verifies)
	}
}

func TestFallbackVerify_NilPrimary_SecondaryMustPass(t *testing.T) {
	secondary := &stubSender{verifyErr: errors.New("down")}

	sender := email.NewFallbackSender(nil, secondary, discardLogger())
	if err := sender.Verify(context.Background()); err == nil {
		t.Fatal("with no primary, a broken secondary must fail verification")
	}
}
