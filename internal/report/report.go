// Package report assembles the per-student outcome report for a finished
// (or cancelled) batch. A report accounts for every data row of the roster
// file exactly once: accepted records and validation rejects are merged back
// into original file order.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/nyashahama/exam-portal-mailer/internal/roster"
)

// ─── TYPES ────────────────────────────────────────────────────────────────────

// Row is the final outcome for one roster data row. RowIndex is the 0-based
// position among data rows (header excluded). Rejected marks rows that never
// reached the pipeline because validation refused them.
type Row struct {
	RowIndex   int       `json:"row"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Rejected   bool      `json:"rejected,omitempty"`
	LinkStatus string    `json:"link_status"`
	LinkError  string    `json:"link_error,omitempty"`
	SendStatus string    `json:"send_status"`
	SendError  string    `json:"send_error,omitempty"`
	SentAt     time.Time `json:"sent_at,omitzero"`
}

// Report is immutable once built; the store hands out the same pointer to
// every reader.
type Report struct {
	Rows []Row `json:"rows"`
}

// Summary are the counts shown in batch listings. Pending counts rows a
// cancelled run never reached.
type Summary struct {
	Total      int `json:"total"`
	Rejected   int `json:"rejected"`
	Generated  int `json:"links_generated"`
	LinkFailed int `json:"links_failed"`
	Sent       int `json:"sent"`
	SendFailed int `json:"send_failed"`
	Skipped    int `json:"skipped"`
	Pending    int `json:"pending"`
}

// ─── BUILDING ─────────────────────────────────────────────────────────────────

// Build merges processed records and load rejects into one report ordered by
// original row index.
func Build(records []roster.StudentRecord, rejects []roster.Reject) *Report {
	rows := make([]Row, 0, len(records)+len(rejects))

	for _, rec := range records {
		rows = append(rows, Row{
			RowIndex:   rec.Index,
			Name:       rec.Name,
			Email:      rec.Email,
			LinkStatus: string(rec.LinkStatus),
			LinkError:  rec.LinkError,
			SendStatus: string(rec.SendStatus),
			SendError:  rec.SendError,
			SentAt:     rec.SentAt,
		})
	}
	for _, rej := range rejects {
		rows = append(rows, Row{
			RowIndex:   rej.Index,
			Name:       rej.Name,
			Email:      rej.Email,
			Rejected:   true,
			LinkStatus: string(roster.LinkFailed),
			LinkError:  "invalid input row: " + rej.Reason,
			SendStatus: string(roster.SendSkipped),
		})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].RowIndex < rows[j].RowIndex })
	return &Report{Rows: rows}
}

// Summary tallies the rows.
func (r *Report) Summary() Summary {
	s := Summary{Total: len(r.Rows)}
	for _, row := range r.Rows {
		if row.Rejected {
			s.Rejected++
		}
		switch row.LinkStatus {
		case string(roster.LinkGenerated):
			s.Generated++
		case string(roster.LinkFailed):
			if !row.Rejected {
				s.LinkFailed++
			}
		}
		switch row.SendStatus {
		case string(roster.SendSent):
			s.Sent++
		case string(roster.SendFailed):
			s.SendFailed++
		case string(roster.SendSkipped):
			s.Skipped++
		case string(roster.SendPending):
			s.Pending++
		}
	}
	return s
}

// ─── CSV ──────────────────────────────────────────────────────────────────────

// WriteCSV streams the report in the layout operators archive next to the
// roster file. sent_at is RFC 3339 or empty.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := []string{"row", "name", "email", "link_status", "link_error", "send_status", "send_error", "sent_at"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("report: write csv header: %w", err)
	}

	for _, row := range r.Rows {
		sentAt := ""
		if !row.SentAt.IsZero() {
			sentAt = row.SentAt.Format(time.RFC3339)
		}
		rec := []string{
			strconv.Itoa(row.RowIndex),
			row.Name,
			row.Email,
			row.LinkStatus,
			row.LinkError,
			row.SendStatus,
			row.SendError,
			sentAt,
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("report: write csv row %d: %w", row.RowIndex, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("report: flush csv: %w", err)
	}
	return nil
}
