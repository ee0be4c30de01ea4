// sendlinks runs a single mail batch from the command line: parse a roster
// file, generate portal links, send, and write the per-student report as
// CSV. It reads the same environment (and .env file) as the API server;
// flags override the batch parameters.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nyashahama/exam-portal-mailer/internal/batch"
	"github.com/nyashahama/exam-portal-mailer/internal/config"
	"github.com/nyashahama/exam-portal-mailer/internal/email"
	"github.com/nyashahama/exam-portal-mailer/internal/portal"
	"github.com/nyashahama/exam-portal-mailer/internal/report"
	"github.com/nyashahama/exam-portal-mailer/internal/roster"
)

func main() {
	// Logs go to stderr so a report written to stdout stays clean.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// ── Flags ─────────────────────────────────────────────────────────────────
	var (
		rosterPath  = flag.String("roster", "", "roster file to send to, .csv or .xlsx (required)")
		subject     = flag.String("subject", "", "subject template (default: built-in)")
		templateSrc = flag.String("template", "", "path to an HTML body template (default: built-in)")
		outPath     = flag.String("out", "-", "report CSV destination, - for stdout")
		nameCol     = flag.String("name-column", "", "roster column with student names (default from env)")
		emailCol    = flag.String("email-column", "", "roster column with email addresses (default from env)")
		programID   = flag.Int("program", 0, "portal program id (default from env)")
		roundID     = flag.Int("round", 0, "portal round id (default from env)")
		sessionTime = flag.String("session", "", "link validity window (default from env)")
		sendDelay   = flag.Duration("delay", -1, "pause between sends (default from env)")
		dryRun      = flag.Bool("dry-run", false, "validate the roster and exit without generating or sending")

		eventTitle    = flag.String("event-title", "", "calendar invite title")
		eventStart    = flag.String("event-start", "", "invite start, RFC 3339")
		eventDuration = flag.Duration("event-duration", 0, "invite duration, e.g. 90m")
		eventLocation = flag.String("event-location", "", "invite location")
		eventLink     = flag.String("event-link", "", "invite meeting URL")
		eventDesc     = flag.String("event-description", "", "invite body text")
	)
	flag.Parse()

	if *rosterPath == "" {
		flag.Usage()
		return fmt.Errorf("missing -roster")
	}

	// ── Roster ────────────────────────────────────────────────────────────────
	table, err := roster.ParseFile(*rosterPath)
	if err != nil {
		return err
	}

	if *dryRun {
		cols := roster.DefaultColumns()
		if *nameCol != "" {
			cols.Name = *nameCol
		}
		if *emailCol != "" {
			cols.Email = *emailCol
		}
		return dryRunRoster(logger, table, cols)
	}

	// ── Config, flags override env ────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if *programID != 0 {
		cfg.ProgramID = *programID
	}
	if *roundID != 0 {
		cfg.RoundID = *roundID
	}
	if *sessionTime != "" {
		cfg.SessionTime = *sessionTime
	}
	if *sendDelay >= 0 {
		cfg.SendDelay = *sendDelay
	}
	if *nameCol != "" {
		cfg.NameColumn = *nameCol
	}
	if *emailCol != "" {
		cfg.EmailColumn = *emailCol
	}

	// ── Template ──────────────────────────────────────────────────────────────
	var body string
	if *templateSrc != "" {
		raw, err := os.ReadFile(*templateSrc)
		if err != nil {
			return fmt.Errorf("read template: %w", err)
		}
		body = string(raw)
	}

	event, err := buildEvent(*eventTitle, *eventStart, *eventLocation, *eventLink, *eventDesc, *eventDuration)
	if err != nil {
		return err
	}

	// ── Transport and portal ─────────────────────────────────────────────────
	sender, err := buildSender(context.Background(), cfg, logger)
	if err != nil {
		return fmt.Errorf("mail transport: %w", err)
	}
	generator := portal.NewHTTPGenerator(portal.Config{
		Endpoint:  cfg.PortalEndpoint,
		APIKey:    cfg.PortalAPIKey,
		Timeout:   cfg.PortalTimeout,
		BatchSize: cfg.PortalBatchSize,
		Workers:   cfg.LinkWorkers,
	}, logger)

	// ── Run ───────────────────────────────────────────────────────────────────
	pipeline := batch.New(generator, sender, batch.Config{
		SendDelay:   cfg.SendDelay,
		SenderName:  cfg.SenderName,
		SenderEmail: cfg.SenderEmail,
	}, logger)

	in := batch.Input{
		Table:    table,
		Columns:  roster.Columns{Name: cfg.NameColumn, Email: cfg.EmailColumn},
		Subject:  *subject,
		Template: body,
		Params: portal.BatchParams{
			ProgramID:   cfg.ProgramID,
			RoundID:     cfg.RoundID,
			SessionTime: cfg.SessionTime,
		},
		Event: event,
		OnProgress: func(p batch.Progress) {
			logger.Info("progress",
				"done", p.Done,
				"total", p.Total,
				"email", p.Email,
				"status", string(p.Status),
				"message", p.Message,
			)
		},
	}

	// Ctrl-C stops after the in-flight student; the partial report is still
	// written before exit.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rep, runErr := pipeline.Run(ctx, in)
	if rep == nil {
		return runErr
	}
	if runErr != nil {
		logger.Warn("batch interrupted, report covers processed rows", "error", runErr)
	}
	if err := writeReport(rep, *outPath); err != nil {
		return err
	}
	return runErr
}

// dryRunRoster validates the roster and logs what a real run would accept.
func dryRunRoster(logger *slog.Logger, table roster.Table, cols roster.Columns) error {
	records, rejects, err := roster.Load(table, cols)
	if err != nil {
		return err
	}
	for _, rej := range rejects {
		logger.Warn("row rejected", "row", rej.Index, "email", rej.Email, "reason", rej.Reason)
	}
	logger.Info("roster ok", "accepted", len(records), "rejected", len(rejects))
	return nil
}

// buildEvent assembles the optional calendar invite from the event flags.
func buildEvent(title, startRaw, location, link, desc string, dur time.Duration) (*batch.Event, error) {
	if title == "" && startRaw == "" && dur == 0 && location == "" && link == "" && desc == "" {
		return nil, nil
	}
	if title == "" || startRaw == "" || dur <= 0 {
		return nil, fmt.Errorf("calendar invites need -event-title, -event-start, and -event-duration")
	}
	start, err := time.Parse(time.RFC3339, startRaw)
	if err != nil {
		return nil, fmt.Errorf("-event-start %q is not an RFC 3339 timestamp", startRaw)
	}
	return &batch.Event{
		Title:       title,
		Description: desc,
		Location:    location,
		MeetingLink: link,
		Start:       start,
		Duration:    dur,
	}, nil
}

// buildSender mirrors the API server wiring: primary provider, wrapped with
// the fallback provider when one is configured.
func buildSender(ctx context.Context, cfg *config.Config, logger *slog.Logger) (email.Sender, error) {
	newProvider := func(name string) (email.Sender, error) {
		switch name {
		case "smtp":
			return email.NewSMTPSender(email.SMTPConfig{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				Username: cfg.SMTPUsername,
				Password: cfg.SMTPPassword,
				Auth:     cfg.SMTPAuth,
				From:     cfg.SenderEmail,
				FromName: cfg.SenderName,
			}, logger), nil
		case "ses":
			return email.NewSESSender(ctx, email.SESConfig{
				Region:          cfg.AWSRegion,
				AccessKeyID:     cfg.AWSAccessKeyID,
				SecretAccessKey: cfg.AWSSecretAccessKey,
				From:            cfg.SenderEmail,
				FromName:        cfg.SenderName,
			}, logger)
		case "resend":
			return email.NewResendSender(email.ResendConfig{
				APIKey:   cfg.ResendAPIKey,
				From:     cfg.SenderEmail,
				FromName: cfg.SenderName,
			}, logger), nil
		default:
			return nil, fmt.Errorf("unknown mail provider %q", name)
		}
	}

	primary, err := newProvider(cfg.MailProvider)
	if err != nil {
		return nil, err
	}
	if cfg.MailFallbackProvider == "" {
		return primary, nil
	}
	secondary, err := newProvider(cfg.MailFallbackProvider)
	if err != nil {
		return nil, err
	}
	return email.NewFallbackSender(primary, secondary, logger), nil
}

// writeReport streams the CSV to path, with - meaning stdout.
func writeReport(rep *report.Report, path string) error {
	if path == "" || path == "-" {
		return rep.WriteCSV(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if err := rep.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report file: %w", err)
	}
	return nil
}
