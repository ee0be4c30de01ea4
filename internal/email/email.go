// Package email abstracts transactional delivery behind a single Sender
// interface with SMTP, Amazon SES, and Resend implementations. The pipeline
// treats every provider identically: one Message in, one error out.
package email

import (
	"context"
	"fmt"
)

// Attachment is one file carried by a Message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is one outbound email. HTML is the primary body; when Text is
// empty, a plain-text alternative is derived from HTML so text-only clients
// still see the login link.
type Message struct {
	To          string
	ToName      string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

// text returns the explicit Text body, deriving one from HTML when unset.
func (m Message) text() string {
	if m.Text != "" {
		return m.Text
	}
	return HTMLToText(m.HTML)
}

// Sender is the interface the pipeline delivers through. Tests inject a stub
// that records calls without touching the network.
type Sender interface {
	// Send delivers one message. Implementations do not retry; the error
	// string ends up verbatim in the per-student report.
	Send(ctx context.Context, m Message) error

	// Verify checks that the transport is usable (reachable, authenticated)
	// without sending anything. The pipeline calls it once per batch, before
	// the first student is processed.
	Verify(ctx context.Context) error
}

// formatAddress renders "Name <addr>" for providers that take a combined
// from header.
func formatAddress(name, addr string) string {
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", name, addr)
}
