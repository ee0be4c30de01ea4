package template_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/nyashahama/exam-portal-mailer/internal/template"
)

// ─── Render ───────────────────────────────────────────────────────────────────

func TestRender_SubstitutesKnownTokens(t *testing.T) {
	fields := map[string]string{
		"name":       "Thandi Ncube",
		"login_link": "https://portal.example.org/login/abc",
	}

	got := template.Render("Dear {name}, sign in at {login_link}.", fields)
	want := "Dear Thandi Ncube, sign in at https://portal.example.org/login/abc."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRender_UnknownTokensStayLiteral(t *testing.T) {
	tests := []struct {
		name string
		tpl  string
		want string
	}{
		{"unknown token", "Hello {nickname}!", "Hello {nickname}!"},
		{"empty token", "a{}b", "a{}b"},
		{"unclosed brace", "score {name", "score {name"},
		{"lone closing brace", "a}b", "a}b"},
		{"json sample untouched", `{"status":"ok"}`, `{"status":"ok"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := template.Render(tt.tpl, map[string]string{"name": "x"}); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_NestedOpenerIsLiteral(t *testing.T) {
	// The outer "{b " is not a token because another "{" opens before any "}".
	got := template.Render("a {b {name} c", map[string]string{"name": "Ada"})
	if got != "a {b Ada c" {
		t.Errorf("got %q, want %q", got, "a {b Ada c")
	}
}

func TestRender_SubstitutedValuesAreNotRescanned(t *testing.T) {
	fields := map[string]string{
		"name":  "{email}",
		"email": "leak@example.org",
	}

	got := template.Render("Hi {name}", fields)
	if got != "Hi {email}" {
		t.Errorf("value containing a token was re-substituted: got %q", got)
	}
}

func TestRender_EmptyValueErasesToken(t *testing.T) {
	got := template.Render("ID: {candidate_id}.", map[string]string{"candidate_id": ""})
	if got != "ID: ." {
		t.Errorf("got %q, want %q", got, "ID: .")
	}
}

func TestRender_RepeatedToken(t *testing.T) {
	got := template.Render("{name} and {name} again", map[string]string{"name": "Bo"})
	if got != "Bo and Bo again" {
		t.Errorf("got %q, want %q", got, "Bo and Bo again")
	}
}

// ─── Tokens / Unresolved ──────────────────────────────────────────────────────

func TestTokens_FirstSeenOrderDeduplicated(t *testing.T) {
	got := template.Tokens("{b} x {a} y {b} z {c}")
	want := []string{"b", "a", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestUnresolved_ReportsMissingFieldsSorted(t *testing.T) {
	fields := map[string]string{"name": "x"}
	got := template.Unresolved("{zeta} {name} {alpha}", fields)
	want := []string{"alpha", "zeta"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

// ─── Built-in assets ──────────────────────────────────────────────────────────

func TestDefault_UsesOnlyCataloguedPlaceholders(t *testing.T) {
	known := map[string]bool{}
	for _, p := range template.Placeholders() {
		known[p.Token] = true
	}

	for _, tok := range template.Tokens(template.Default()) {
		if !known[tok] {
			t.Errorf("default template references uncatalogued token %q", tok)
		}
	}
}

func TestDefault_RendersCleanWithSampleFields(t *testing.T) {
	out := template.Render(template.Default(), template.SampleFields())
	if rest := template.Unresolved(out, nil); len(rest) != 0 {
		t.Errorf("rendered default template still contains tokens: %v", rest)
	}
	if !strings.Contains(out, "Jane Student") {
		t.Error("rendered output missing sample student name")
	}
}

func TestDefaultSubject_RendersProgramName(t *testing.T) {
	got := template.Render(template.DefaultSubject, map[string]string{"program_name": "CS Finals"})
	want := "Your Exam Portal Access Link - CS Finals"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSampleFields_CoverEveryPlaceholder(t *testing.T) {
	fields := template.SampleFields()
	for _, p := range template.Placeholders() {
		if _, ok := fields[p.Token]; !ok {
			t.Errorf("sample fields missing %q", p.Token)
		}
	}
}
