// Package config loads and validates all environment variables at startup.
// Every other package receives typed values — nothing reads os.Getenv directly.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the fully-parsed application configuration.
type Config struct {
	// ── Server ────────────────────────────────────────────────────────────────
	Port              string // default "8080"
	Env               string // "development" | "staging" | "production"
	APIAuthKey        string // optional; when set, /api routes require x-api-key
	CORSAllowedOrigin string // default "*"
	MaxUploadBytes    int64  // roster upload cap, default 10 MiB
	EnableMetrics     bool   // expose /metrics, default true

	// ── Portal ────────────────────────────────────────────────────────────────
	PortalEndpoint  string // e.g. "https://portal.example.edu/api/batch-links"
	PortalAPIKey    string
	PortalTimeout   time.Duration // per-request timeout, default 30s
	PortalBatchSize int           // students per portal request, default 50
	LinkWorkers     int           // concurrent portal requests, default 1

	// ── Batch defaults ────────────────────────────────────────────────────────
	// Used when an upload or CLI invocation omits the per-batch values.
	ProgramID   int    // default 1
	RoundID     int    // default 1
	SessionTime string // default "730h"

	// ── Mail ──────────────────────────────────────────────────────────────────
	MailProvider         string // "smtp" | "ses" | "resend"
	MailFallbackProvider string // optional second provider tried when the primary fails
	SenderEmail          string // e.g. "exams@example.edu"
	SenderName           string // e.g. "Examinations Office"
	SendDelay            time.Duration // pause between consecutive sends, default 1s

	SMTPHost     string
	SMTPPort     int    // default 587
	SMTPUsername string
	SMTPPassword string
	SMTPAuth     string // "plain" | "login", default "plain"

	AWSRegion          string
	AWSAccessKeyID     string // optional; ambient credentials are used when empty
	AWSSecretAccessKey string

	ResendAPIKey string

	// ── Roster ────────────────────────────────────────────────────────────────
	NameColumn  string // default "Name"
	EmailColumn string // default "Email"

	// ── Worker ────────────────────────────────────────────────────────────────
	WorkerCount int // default 2
	QueueSize   int // default 16
}

// Load reads all environment variables and returns a validated Config.
// A .env file in the working directory is loaded first when present, so
// plain `go run ./cmd/api` works in development without any wrapper. Real
// environment variables always take precedence over .env values.
func Load() (*Config, error) {
	_ = godotenv.Load() // a missing .env file is fine

	c := &Config{
		Port:              getEnv("PORT", "8080"),
		Env:               getEnv("ENV", "development"),
		APIAuthKey:        os.Getenv("API_AUTH_KEY"),
		CORSAllowedOrigin: getEnv("CORS_ALLOWED_ORIGIN", "*"),
		MaxUploadBytes:    int64(getEnvAsInt("MAX_UPLOAD_BYTES", 10<<20)),
		EnableMetrics:     getEnvAsBool("ENABLE_METRICS", true),

		PortalEndpoint:  os.Getenv("PORTAL_API_ENDPOINT"),
		PortalAPIKey:    os.Getenv("PORTAL_API_KEY"),
		PortalTimeout:   getEnvAsDuration("PORTAL_API_TIMEOUT", 30*time.Second),
		PortalBatchSize: getEnvAsInt("PORTAL_BATCH_SIZE", 50),
		LinkWorkers:     getEnvAsInt("LINK_WORKERS", 1),

		ProgramID:   getEnvAsInt("DEFAULT_PROGRAM_ID", 1),
		RoundID:     getEnvAsInt("DEFAULT_ROUND_ID", 1),
		SessionTime: getEnv("DEFAULT_SESSION_TIME", "730h"),

		MailProvider:         getEnv("MAIL_PROVIDER", "smtp"),
		MailFallbackProvider: os.Getenv("MAIL_FALLBACK_PROVIDER"),
		SenderEmail:          os.Getenv("SENDER_EMAIL"),
		SenderName:           getEnv("SENDER_NAME", "Exam Portal"),
		SendDelay:            getEnvAsDuration("SEND_DELAY", time.Second),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPAuth:     getEnv("SMTP_AUTH", "plain"),

		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),

		ResendAPIKey: os.Getenv("RESEND_API_KEY"),

		NameColumn:  getEnv("ROSTER_NAME_COLUMN", "Name"),
		EmailColumn: getEnv("ROSTER_EMAIL_COLUMN", "Email"),

		WorkerCount: getEnvAsInt("WORKER_COUNT", 2),
		QueueSize:   getEnvAsInt("WORKER_QUEUE_SIZE", 16),
	}

	return c, c.validate()
}

func (c *Config) validate() error {
	var errs []error

	required := map[string]string{
		"PORTAL_API_ENDPOINT": c.PortalEndpoint,
		"SENDER_EMAIL":        c.SenderEmail,
	}

	for name, val := range required {
		if val == "" {
			errs = append(errs, fmt.Errorf("missing required env var: %s", name))
		}
	}

	if c.SenderEmail != "" && !strings.Contains(c.SenderEmail, "@") {
		errs = append(errs, fmt.Errorf("SENDER_EMAIL %q is not an email address", c.SenderEmail))
	}

	errs = append(errs, c.providerErrs("MAIL_PROVIDER", c.MailProvider)...)
	if c.MailFallbackProvider != "" {
		if c.MailFallbackProvider == c.MailProvider {
			errs = append(errs, errors.New("MAIL_FALLBACK_PROVIDER must differ from MAIL_PROVIDER"))
		} else {
			errs = append(errs, c.providerErrs("MAIL_FALLBACK_PROVIDER", c.MailFallbackProvider)...)
		}
	}

	return errors.Join(errs...)
}

// providerErrs checks that the named provider has the variables it needs to
// be constructed.
func (c *Config) providerErrs(label, provider string) []error {
	var errs []error
	switch provider {
	case "smtp":
		if c.SMTPHost == "" {
			errs = append(errs, fmt.Errorf("%s=smtp requires SMTP_HOST", label))
		}
	case "ses":
		// AWS_REGION is defaulted and credentials may come from the
		// ambient chain, so SES has nothing to pre-validate.
	case "resend":
		if c.ResendAPIKey == "" {
			errs = append(errs, fmt.Errorf("%s=resend requires RESEND_API_KEY", label))
		}
	default:
		errs = append(errs, fmt.Errorf("%s: unknown mail provider %q", label, provider))
	}
	return errs
}

// ─── HELPERS ─────────────────────────────────────────────────────────────────

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	// Try a plain integer first (treated as seconds, minutes, or hours
	// depending on the variable name).
	if value, err := strconv.Atoi(valueStr); err == nil {
		switch {
		case strings.Contains(key, "HOURS"):
			return time.Duration(value) * time.Hour
		case strings.Contains(key, "MINUTES"):
			return time.Duration(value) * time.Minute
		default:
			return time.Duration(value) * time.Second
		}
	}
	// Fall back to Go duration syntax: "30s", "5m", "1h", etc.
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
