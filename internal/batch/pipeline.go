// Package batch wires roster loading, link generation, templating, and mail
// delivery into one pipeline run. A run never aborts because one student
// failed; it aborts only for structural problems (unusable roster, unusable
// transport) that would fail every student identically.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nyashahama/exam-portal-mailer/internal/calendar"
	"github.com/nyashahama/exam-portal-mailer/internal/email"
	"github.com/nyashahama/exam-portal-mailer/internal/portal"
	"github.com/nyashahama/exam-portal-mailer/internal/report"
	"github.com/nyashahama/exam-portal-mailer/internal/roster"
	"github.com/nyashahama/exam-portal-mailer/internal/template"
)

// ─── INPUT TYPES ──────────────────────────────────────────────────────────────

// Event describes the optional calendar invite attached to every sent
// message. The attendee is filled in per student; the organizer comes from
// the pipeline's sender identity.
type Event struct {
	Title       string
	Description string
	Location    string
	MeetingLink string
	Start       time.Time
	Duration    time.Duration
}

// Input is one batch request.
type Input struct {
	Table   roster.Table
	Columns roster.Columns

	// Subject and Template are rendered per student. Empty values select the
	// built-in defaults.
	Subject  string
	Template string

	Params portal.BatchParams
	Event  *Event

	// OnProgress, when set, fires after each record reaches a final outcome.
	OnProgress ProgressFunc
}

// Progress is one pipeline progress event.
type Progress struct {
	Done    int // records with a final outcome so far
	Total   int // accepted records in this run
	Email   string
	Status  roster.SendStatus
	Message string // failure detail, empty on success
}

// ProgressFunc receives progress events on the pipeline goroutine; it must
// not block.
type ProgressFunc func(Progress)

// Config tunes a Pipeline. SendDelay paces consecutive send attempts so
// relay rate limits are respected; zero disables pacing.
type Config struct {
	SendDelay   time.Duration
	SenderName  string // calendar organizer
	SenderEmail string
}

// ─── PIPELINE ─────────────────────────────────────────────────────────────────

// Pipeline executes batches. It is stateless and safe for concurrent Runs.
type Pipeline struct {
	generator portal.Generator
	sender    email.Sender
	cfg       Config
	logger    *slog.Logger
}

// New builds a Pipeline from its two transports.
func New(generator portal.Generator, sender email.Sender, cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.SendDelay < 0 {
		cfg.SendDelay = 0
	}
	return &Pipeline{
		generator: generator,
		sender:    sender,
		cfg:       cfg,
		logger:    logger.With("component", "pipeline"),
	}
}

// Run executes one batch:
//
//  1. Load and validate the roster; a missing column mapping is fatal.
//  2. Verify the transport before any student is touched.
//  3. Generate login links for all accepted records.
//  4. Render and send per record in roster order, pacing with SendDelay.
//  5. Build the report, merging records and rejects by original row index.
//
// A cancelled context stops work after the in-flight student; records never
// reached keep their pending statuses. The report is returned alongside the
// context error so callers can persist the partial outcome.
func (p *Pipeline) Run(ctx context.Context, in Input) (*report.Report, error) {
	// ── 1. roster ──
	records, rejects, err := roster.Load(in.Table, in.Columns)
	if err != nil {
		return nil, fmt.Errorf("batch: load roster: %w", err)
	}
	total := len(records)
	p.logger.Info("batch starting", "accepted", total, "rejected", len(rejects))
	if total == 0 {
		return report.Build(records, rejects), nil
	}

	// ── 2. transport check ──
	if err := p.sender.Verify(ctx); err != nil {
		return nil, fmt.Errorf("batch: verify transport: %w", err)
	}

	// ── 3. links ──
	students := make([]portal.Student, total)
	for i, rec := range records {
		students[i] = portal.Student{Name: rec.Name, Email: rec.Email}
	}
	result, genErr := p.generator.GenerateLinks(ctx, students, in.Params)
	if genErr != nil && !isCancel(genErr) {
		return nil, fmt.Errorf("batch: generate links: %w", genErr)
	}
	applyLinks(records, result, in.Params, genErr != nil)

	// ── 4. render and send ──
	subjectTpl := in.Subject
	if subjectTpl == "" {
		subjectTpl = template.DefaultSubject
	}
	bodyTpl := in.Template
	if bodyTpl == "" {
		bodyTpl = template.Default()
	}

	var (
		done      int
		attempted bool
		ctxErr    = genErr // non-nil only for a cancelled link phase
	)
	for i := range records {
		if ctxErr == nil && ctx.Err() != nil {
			ctxErr = ctx.Err()
		}
		rec := &records[i]

		if ctxErr != nil {
			// Cancelled: untouched records keep pending statuses. Link
			// failures still get their skip so the report explains them.
			if rec.LinkStatus == roster.LinkFailed && rec.SendStatus == roster.SendPending {
				rec.SendStatus = roster.SendSkipped
				done++
				p.notify(in, done, total, rec)
			}
			continue
		}

		if rec.LinkStatus != roster.LinkGenerated {
			rec.SendStatus = roster.SendSkipped
			done++
			p.notify(in, done, total, rec)
			continue
		}

		// Skipped records above bypass the delay: only real attempts pace.
		if attempted && p.cfg.SendDelay > 0 {
			select {
			case <-ctx.Done():
				ctxErr = ctx.Err()
				continue
			case <-time.After(p.cfg.SendDelay):
			}
		}
		attempted = true
		p.sendOne(ctx, rec, subjectTpl, bodyTpl, in.Event)
		done++
		p.notify(in, done, total, rec)
	}

	// ── 5. report ──
	rep := report.Build(records, rejects)
	s := rep.Summary()
	observeOutcomes(s)
	p.logger.Info("batch finished",
		"sent", s.Sent,
		"send_failed", s.SendFailed,
		"link_failed", s.LinkFailed,
		"skipped", s.Skipped,
		"pending", s.Pending,
	)
	if ctxErr != nil {
		return rep, ctxErr
	}
	return rep, nil
}

// ─── STEPS ────────────────────────────────────────────────────────────────────

// applyLinks copies the generation outcome onto each record. With a partial
// result (cancelled generation), records the portal never saw keep their
// pending status instead of being marked failed.
func applyLinks(records []roster.StudentRecord, result portal.Result, params portal.BatchParams, partial bool) {
	for i := range records {
		rec := &records[i]
		key := strings.ToLower(rec.Email)

		if link, ok := result.Links[key]; ok {
			rec.LoginLink = link.LoginLink
			rec.CandidateID = link.CandidateID
			rec.ExpiresAt = link.ExpiresAt
			rec.SessionDuration = link.SessionDuration
			if rec.SessionDuration == "" {
				rec.SessionDuration = params.SessionTime
			}
			rec.ProgramName = result.Program.ProgramName
			rec.RoundName = result.Program.RoundName
			rec.LinkStatus = roster.LinkGenerated
			continue
		}
		if msg, ok := result.Errors[key]; ok {
			rec.LinkStatus = roster.LinkFailed
			rec.LinkError = msg
			continue
		}
		if !partial {
			rec.LinkStatus = roster.LinkFailed
			rec.LinkError = "no link generated for this address"
		}
	}
}

// sendOne renders and delivers a single message, recording the outcome on
// the record. Failures never propagate: the next student still gets mail.
func (p *Pipeline) sendOne(ctx context.Context, rec *roster.StudentRecord, subjectTpl, bodyTpl string, event *Event) {
	fields := recordFields(rec)
	msg := email.Message{
		To:      rec.Email,
		ToName:  rec.Name,
		Subject: template.Render(subjectTpl, fields),
		HTML:    template.Render(bodyTpl, fields),
	}

	if event != nil {
		ics, err := p.buildInvite(*event, rec)
		if err != nil {
			rec.SendStatus = roster.SendFailed
			rec.SendError = err.Error()
			return
		}
		msg.Attachments = append(msg.Attachments, email.Attachment{
			Filename:    calendar.AttachmentName,
			ContentType: calendar.ContentType,
			Content:     ics,
		})
	}

	if err := p.sender.Send(ctx, msg); err != nil {
		rec.SendStatus = roster.SendFailed
		rec.SendError = err.Error()
		p.logger.Warn("send failed", "email", rec.Email, "error", err)
		return
	}
	rec.SendStatus = roster.SendSent
	rec.SentAt = time.Now().UTC()
}

// buildInvite personalizes the batch event for one student.
func (p *Pipeline) buildInvite(ev Event, rec *roster.StudentRecord) ([]byte, error) {
	desc := ev.Description
	if ev.MeetingLink != "" {
		if desc != "" {
			desc += "\n\n"
		}
		desc += "Meeting link: " + ev.MeetingLink
	}
	location := ev.Location
	if location == "" {
		location = ev.MeetingLink
	}

	inv := calendar.Invite{
		Title:          ev.Title,
		Description:    desc,
		Location:       location,
		Start:          ev.Start,
		Duration:       ev.Duration,
		OrganizerName:  p.cfg.SenderName,
		OrganizerEmail: p.cfg.SenderEmail,
		AttendeeName:   rec.Name,
		AttendeeEmail:  rec.Email,
	}
	ics, err := inv.ICS()
	if err != nil {
		return nil, fmt.Errorf("batch: build invite for %s: %w", rec.Email, err)
	}
	return ics, nil
}

// recordFields is the full placeholder set for one student.
func recordFields(rec *roster.StudentRecord) map[string]string {
	return map[string]string{
		"name":             rec.Name,
		"email":            rec.Email,
		"login_link":       rec.LoginLink,
		"candidate_id":     rec.CandidateID,
		"program_name":     rec.ProgramName,
		"round_name":       rec.RoundName,
		"expires_at":       rec.ExpiresAt,
		"session_duration": rec.SessionDuration,
	}
}

func (p *Pipeline) notify(in Input, done, total int, rec *roster.StudentRecord) {
	if in.OnProgress == nil {
		return
	}
	msg := rec.SendError
	if msg == "" {
		msg = rec.LinkError
	}
	in.OnProgress(Progress{
		Done:    done,
		Total:   total,
		Email:   rec.Email,
		Status:  rec.SendStatus,
		Message: msg,
	})
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
