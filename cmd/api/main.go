package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nyashahama/exam-portal-mailer/internal/api"
	"github.com/nyashahama/exam-portal-mailer/internal/batch"
	"github.com/nyashahama/exam-portal-mailer/internal/config"
	"github.com/nyashahama/exam-portal-mailer/internal/email"
	"github.com/nyashahama/exam-portal-mailer/internal/portal"
	"github.com/nyashahama/exam-portal-mailer/internal/store"
	"github.com/nyashahama/exam-portal-mailer/internal/worker"
)

func main() {
	// ── Logger ────────────────────────────────────────────────────────────────
	// JSON in production, pretty text in development.
	var logger *slog.Logger
	if os.Getenv("ENV") == "production" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel(),
		}))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel(),
		}))
	}
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// logLevel maps LOG_LEVEL onto a slog.Level. Unset means info in production
// and debug everywhere else.
func logLevel() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if os.Getenv("ENV") == "production" {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

func run(logger *slog.Logger) error {
	// ── Config ────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger.Info("config loaded", "env", cfg.Env, "port", cfg.Port, "provider", cfg.MailProvider)

	// ── Store (batch lifecycle state) ─────────────────────────────────────────
	st := store.New()

	// ── Mail transport ────────────────────────────────────────────────────────
	sender, err := buildSender(context.Background(), cfg, logger)
	if err != nil {
		return fmt.Errorf("mail transport: %w", err)
	}

	// ── Portal client ─────────────────────────────────────────────────────────
	generator := portal.NewHTTPGenerator(portal.Config{
		Endpoint:  cfg.PortalEndpoint,
		APIKey:    cfg.PortalAPIKey,
		Timeout:   cfg.PortalTimeout,
		BatchSize: cfg.PortalBatchSize,
		Workers:   cfg.LinkWorkers,
	}, logger)

	// ── Pipeline and worker pool ──────────────────────────────────────────────
	pipeline := batch.New(generator, sender, batch.Config{
		SendDelay:   cfg.SendDelay,
		SenderName:  cfg.SenderName,
		SenderEmail: cfg.SenderEmail,
	}, logger)

	runner := worker.NewRunner(pipeline, st, worker.RunnerConfig{
		Workers:   cfg.WorkerCount,
		QueueSize: cfg.QueueSize,
	}, logger)

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.NewServer(
		st,
		runner, // *Runner satisfies worker.Enqueuer
		sender,
		api.Config{
			Env:                cfg.Env,
			APIAuthKey:         cfg.APIAuthKey,
			CORSAllowedOrigin:  cfg.CORSAllowedOrigin,
			MaxUploadBytes:     cfg.MaxUploadBytes,
			EnableMetrics:      cfg.EnableMetrics,
			DefaultProgramID:   cfg.ProgramID,
			DefaultRoundID:     cfg.RoundID,
			DefaultSessionTime: cfg.SessionTime,
			NameColumn:         cfg.NameColumn,
			EmailColumn:        cfg.EmailColumn,
		},
		logger,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	// Root context cancelled by OS signal. Worker pool and HTTP server both
	// respect it.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start the worker pool in a background goroutine. Start blocks until ctx
	// is done and every worker has finished its current batch.
	workerDone := make(chan struct{})
	go func() {
		runner.Start(ctx)
		close(workerDone)
	}()

	// Start the HTTP server in a background goroutine.
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until either a signal arrives or the server dies unexpectedly.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	// Give in-flight HTTP requests up to 20 seconds to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Wait for workers to stop after their in-flight student so a cancelled
	// batch still gets its partial report stored.
	select {
	case <-workerDone:
	case <-time.After(30 * time.Second):
		logger.Warn("worker pool did not drain in time")
	}

	logger.Info("shutdown complete")
	return nil
}

// buildSender assembles the mail transport: the primary provider, wrapped
// with the fallback provider when one is configured.
func buildSender(ctx context.Context, cfg *config.Config, logger *slog.Logger) (email.Sender, error) {
	primary, err := newProviderSender(ctx, cfg.MailProvider, cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.MailFallbackProvider == "" {
		logger.Info("mail: using " + cfg.MailProvider)
		return primary, nil
	}

	secondary, err := newProviderSender(ctx, cfg.MailFallbackProvider, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("mail: using " + cfg.MailProvider + " with " + cfg.MailFallbackProvider + " fallback")
	return email.NewFallbackSender(primary, secondary, logger), nil
}

// newProviderSender builds one named provider. The sender identity is shared
// across providers so a fallback delivery looks the same to students.
func newProviderSender(ctx context.Context, provider string, cfg *config.Config, logger *slog.Logger) (email.Sender, error) {
	switch provider {
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
		return nil, fmt.Errorf("unknown mail provider %q", provider)
	}
}
