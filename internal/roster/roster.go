// Package roster turns uploaded spreadsheets into validated student records.
// Parsing (parse.go) is format-specific and produces a neutral Table; Load
// applies the column mapping and row validation. Every data row ends up as
// exactly one StudentRecord or one Reject, so downstream reports can account
// for the whole file.
package roster

import (
	"fmt"
	"strings"
	"time"
)

// ─── STATUSES ─────────────────────────────────────────────────────────────────

// LinkStatus tracks a record through link generation.
type LinkStatus string

const (
	LinkPending   LinkStatus = "pending"
	LinkGenerated LinkStatus = "generated"
	LinkFailed    LinkStatus = "failed"
)

// SendStatus tracks a record through delivery. A record whose link never
// materialized is skipped, not failed: the transport was never attempted.
type SendStatus string

const (
	SendPending SendStatus = "pending"
	SendSent    SendStatus = "sent"
	SendFailed  SendStatus = "failed"
	SendSkipped SendStatus = "skipped"
)

// ─── TYPES ────────────────────────────────────────────────────────────────────

// StudentRecord is one accepted roster row plus everything the pipeline
// learns about it. Index is the 0-based position among data rows of the
// original file (header excluded) and is what reports sort by.
type StudentRecord struct {
	Index int
	Name  string
	Email string

	// Filled by link generation.
	LoginLink       string
	CandidateID     string
	ProgramName     string
	RoundName       string
	ExpiresAt       string
	SessionDuration string

	LinkStatus LinkStatus
	LinkError  string

	SendStatus SendStatus
	SendError  string
	SentAt     time.Time // zero unless SendStatus == SendSent
}

// Reject is a data row that failed validation. It keeps enough of the
// original cells for the report to show what was wrong.
type Reject struct {
	Index  int
	Name   string
	Email  string
	Reason string
}

// Columns names the header cells that hold the student name and email.
// Matching is exact and case-sensitive.
type Columns struct {
	Name  string
	Email string
}

// DefaultColumns matches the headers the portal export uses.
func DefaultColumns() Columns {
	return Columns{Name: "Name", Email: "Email"}
}

// ─── ERRORS ───────────────────────────────────────────────────────────────────

// MissingColumnError reports configured columns absent from the header row.
// It is fatal: without the mapping no row can be interpreted, so callers
// abort the batch instead of rejecting rows one by one.
type MissingColumnError struct {
	Missing   []string // configured names not found, in Columns order
	Available []string // headers actually present in the file
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("roster: missing required column(s) %s; file has columns %s",
		quoteJoin(e.Missing), quoteJoin(e.Available))
}

func quoteJoin(ss []string) string {
	if len(ss) == 0 {
		return "(none)"
	}
	quoted := make([]string, len(ss))
	for i, s := range ss {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}

// ─── LOADING ──────────────────────────────────────────────────────────────────

// Load maps and validates every data row of t.
//
// Row validation, in order: empty name, then invalid email, then duplicate
// email (case-insensitive, first occurrence wins). Failing rows become
// Rejects; nothing is dropped silently. The only error Load itself returns
// is *MissingColumnError.
func Load(t Table, cols Columns) ([]StudentRecord, []Reject, error) {
	nameIdx, emailIdx := -1, -1
	for i, h := range t.Headers {
		if h == cols.Name && nameIdx < 0 {
			nameIdx = i
		}
		if h == cols.Email && emailIdx < 0 {
			emailIdx = i
		}
	}
	if nameIdx < 0 || emailIdx < 0 {
		var missing []string
		if nameIdx < 0 {
			missing = append(missing, cols.Name)
		}
		if emailIdx < 0 {
			missing = append(missing, cols.Email)
		}
		return nil, nil, &MissingColumnError{Missing: missing, Available: t.Headers}
	}

	var (
		records []StudentRecord
		rejects []Reject
		seen    = make(map[string]bool, len(t.Rows))
	)
	for i, row := range t.Rows {
		name := strings.TrimSpace(cell(row, nameIdx))
		email := strings.TrimSpace(cell(row, emailIdx))

		reason := ""
		switch {
		case name == "":
			reason = "empty name"
		case !ValidEmail(email):
			reason = "invalid email"
		case seen[strings.ToLower(email)]:
			reason = "duplicate email"
		}
		if reason != "" {
			rejects = append(rejects, Reject{Index: i, Name: name, Email: email, Reason: reason})
			continue
		}

		seen[strings.ToLower(email)] = true
		records = append(records, StudentRecord{
			Index:      i,
			Name:       name,
			Email:      email,
			LinkStatus: LinkPending,
			SendStatus: SendPending,
		})
	}

	return records, rejects, nil
}

// ValidEmail applies the deliberately loose acceptance rule: an "@" with a
// non-empty local part and domain. Real validation happens when the relay
// tries to deliver; rejecting aggressively here would drop reachable
// addresses over cosmetic quirks.
func ValidEmail(s string) bool {
	at := strings.IndexByte(s, '@')
	return at > 0 && at < len(s)-1
}

// cell returns row[i], tolerating rows shorter than the header (xlsx readers
// drop trailing empty cells).
func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return row[i]
}
