package email_test

import (
	"strings"
	"testing"

	"github.com/nyashahama/exam-portal-mailer/internal/email"
)

// ─── HTMLToText ───────────────────────────────────────────────────────────────

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"br becomes newline", "a<br>b<br/>c", "a\nb\nc"},
		{"br with space", "a<br />b", "a\nb"},
		{"paragraphs separated", "<p>one</p><p>two</p>", "one\ntwo"},
		{"inline tags stripped", "<strong>bold</strong> and <em>italic</em>", "bold and italic"},
		{"entities decoded once", "Q&amp;A &lt;here&gt;", "Q&A <here>"},
		{"anchor label kept", `<a href="https://x.example.org/l">https://x.example.org/l</a>`, "https://x.example.org/l"},
		{"space runs squeezed", "a    b\t\tc", "a b c"},
		{"blank runs collapsed", "<p>a</p><p></p><p></p><p>b</p>", "a\n\nb"},
		{"surrounding whitespace trimmed", "  <p> padded </p>  ", "padded"},
		{"plain text untouched", "no markup here", "no markup here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := email.HTMLToText(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHTMLToText_RealisticBodyKeepsLink(t *testing.T) {
	in := `<html><body>
	<h1>Exam Portal Access</h1>
	<p>Dear Ada,</p>
	<p><a href="https://portal.example.org/login/tok">Access Exam Portal</a></p>
	<p>If the button does not work, copy this address:</p>
	<p><a href="https://portal.example.org/login/tok">https://portal.example.org/login/tok</a></p>
	</body></html>`

	got := email.HTMLToText(in)
	if !strings.Contains(got, "https://portal.example.org/login/tok") {
		t.Errorf("plain text lost the login URL:\n%s", got)
	}
	if strings.Contains(got, "<") {
		t.Errorf("plain text still contains markup:\n%s", got)
	}
}
