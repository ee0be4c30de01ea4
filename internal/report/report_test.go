package report_test

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/nyashahama/exam-portal-mailer/internal/report"
	"github.com/nyashahama/exam-portal-mailer/internal/roster"
)

// ─── Build ────────────────────────────────────────────────────────────────────

func TestBuild_MergesRecordsAndRejectsByRowIndex(t *testing.T) {
	records := []roster.StudentRecord{
		{Index: 0, Name: "Ada", Email: "ada@example.org", LinkStatus: roster.LinkGenerated, SendStatus: roster.SendSent},
		{Index: 2, Name: "Cleo", Email: "cleo@example.org", LinkStatus: roster.LinkGenerated, SendStatus: roster.SendSent},
	}
	rejects := []roster.Reject{
		{Index: 1, Name: "Bad Row", Email: "", Reason: "invalid email"},
	}

	rep := report.Build(records, rejects)
	if len(rep.Rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rep.Rows))
	}
	for i, row := range rep.Rows {
		if row.RowIndex != i {
			t.Errorf("rows[%d].RowIndex = %d, want %d", i, row.RowIndex, i)
		}
	}

	rejected := rep.Rows[1]
	if !rejected.Rejected {
		t.Error("row 1 should be marked rejected")
	}
	if rejected.LinkStatus != "failed" || rejected.LinkError != "invalid input row: invalid email" {
		t.Errorf("rejected link outcome = %s/%q", rejected.LinkStatus, rejected.LinkError)
	}
	if rejected.SendStatus != "skipped" {
		t.Errorf("rejected send status = %s, want skipped", rejected.SendStatus)
	}
}

func TestBuild_EveryRowAppearsOnce(t *testing.T) {
	records := []roster.StudentRecord{{Index: 0}, {Index: 3}}
	rejects := []roster.Reject{{Index: 1, Reason: "empty name"}, {Index: 2, Reason: "duplicate email"}}

	rep := report.Build(records, rejects)
	seen := map[int]int{}
	for _, row := range rep.Rows {
		seen[row.RowIndex]++
	}
	for i := 0; i < 4; i++ {
		if seen[i] != 1 {
			t.Errorf("row index %d appears %d times, want exactly once", i, seen[i])
		}
	}
}

// ─── Summary ──────────────────────────────────────────────────────────────────

func TestSummary_Counts(t *testing.T) {
	records := []roster.StudentRecord{
		{Index: 0, LinkStatus: roster.LinkGenerated, SendStatus: roster.SendSent},
		{Index: 1, LinkStatus: roster.LinkGenerated, SendStatus: roster.SendFailed, SendError: "mailbox full"},
		{Index: 2, LinkStatus: roster.LinkFailed, LinkError: "not enrolled", SendStatus: roster.SendSkipped},
		{Index: 4, LinkStatus: roster.LinkPending, SendStatus: roster.SendPending},
	}
	rejects := []roster.Reject{{Index: 3, Reason: "invalid email"}}

	s := report.Build(records, rejects).Summary()
	want := report.Summary{
		Total:      5,
		Rejected:   1,
		Generated:  2,
		LinkFailed: 1,
		Sent:       1,
		SendFailed: 1,
		Skipped:    2, // the portal failure and the reject
		Pending:    1,
	}
	if s != want {
		t.Errorf("summary = %+v, want %+v", s, want)
	}
}

// ─── WriteCSV ─────────────────────────────────────────────────────────────────

func TestWriteCSV(t *testing.T) {
	sent := time.Date(2025, 1, 30, 9, 15, 0, 0, time.UTC)
	records := []roster.StudentRecord{
		{Index: 0, Name: "Ada", Email: "ada@example.org",
			LinkStatus: roster.LinkGenerated, SendStatus: roster.SendSent, SentAt: sent},
		{Index: 1, Name: "Bo, Jr.", Email: "bo@example.org",
			LinkStatus: roster.LinkFailed, LinkError: "portal: status 502, try later", SendStatus: roster.SendSkipped},
	}

	var buf bytes.Buffer
	if err := report.Build(records, nil).WriteCSV(&buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d csv rows, want header + 2", len(rows))
	}

	wantHeader := "row,name,email,link_status,link_error,send_status,send_error,sent_at"
	if got := strings.Join(rows[0], ","); got != wantHeader {
		t.Errorf("header = %q, want %q", got, wantHeader)
	}
	if rows[1][7] != "2025-01-30T09:15:00Z" {
		t.Errorf("sent_at = %q, want RFC 3339", rows[1][7])
	}
	if rows[2][1] != "Bo, Jr." {
		t.Errorf("comma-bearing name = %q, want quoting to survive a round trip", rows[2][1])
	}
	if rows[2][7] != "" {
		t.Errorf("unsent row sent_at = %q, want empty", rows[2][7])
	}
}
