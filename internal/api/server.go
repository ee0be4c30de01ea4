// Package api exposes the HTTP surface of the mailer: roster upload and
// batch lifecycle endpoints, template tooling, and a transport check.
// Handlers validate input, translate store errors into status codes, and
// hand the actual work to the background worker; nothing in this package
// sends mail directly.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nyashahama/exam-portal-mailer/internal/email"
	"github.com/nyashahama/exam-portal-mailer/internal/store"
	"github.com/nyashahama/exam-portal-mailer/internal/worker"
)

// Config carries the handler-facing settings. cmd/api builds it from the
// process configuration so this package stays constructible in tests
// without environment variables.
type Config struct {
	// Env selects production behavior. Anything else reflects request
	// origins in CORS responses, which suits local frontends.
	Env string

	// APIAuthKey protects the /api routes when non-empty. Clients send it
	// in the x-api-key header.
	APIAuthKey string

	// CORSAllowedOrigin is the origin served in production CORS headers.
	CORSAllowedOrigin string

	// MaxUploadBytes caps roster uploads, multipart framing included.
	MaxUploadBytes int64

	// EnableMetrics mounts the Prometheus handler on /metrics and turns on
	// per-route request metrics.
	EnableMetrics bool

	// DefaultProgramID, DefaultRoundID, and DefaultSessionTime fill in the
	// portal parameters the upload form omits.
	DefaultProgramID   int
	DefaultRoundID     int
	DefaultSessionTime string

	// NameColumn and EmailColumn are the roster headers to read.
	NameColumn  string
	EmailColumn string
}

// Server holds the shared dependencies. Handler files attach methods to
// this type and use only the fields they need.
type Server struct {
	// store owns batch lifecycle state.
	store *store.Store

	// worker queues accepted batches for the background pool.
	worker worker.Enqueuer

	// sender answers transport checks; batch sending happens in the
	// pipeline the worker owns, not here.
	sender email.Sender

	cfg    Config
	logger *slog.Logger
}

// NewServer wires the routes and returns the root handler.
func NewServer(
	st *store.Store,
	enqueuer worker.Enqueuer,
	sender email.Sender,
	cfg Config,
	logger *slog.Logger,
) http.Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	s := &Server{
		store:  st,
		worker: enqueuer,
		sender: sender,
		cfg:    cfg,
		logger: logger,
	}
	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// ── Global middleware ──
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)
	if s.cfg.EnableMetrics {
		r.Use(s.metricsMiddleware)
	}
	r.Use(middleware.Timeout(60 * time.Second))

	// ── Operational endpoints ──
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.cfg.EnableMetrics {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}

	// ── API ──
	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAPIKey)

		r.Route("/batches", func(r chi.Router) {
			r.Post("/", s.handleCreateBatch)
			r.Get("/", s.handleListBatches)

			r.Route("/{batchID}", func(r chi.Router) {
				r.Get("/", s.handleGetBatch)
				r.Get("/report", s.handleGetBatchReport)
				r.Get("/report.csv", s.handleGetBatchReportCSV)
				r.Post("/cancel", s.handleCancelBatch)
			})
		})

		r.Route("/template", func(r chi.Router) {
			r.Get("/default", s.handleDefaultTemplate)
			r.Post("/preview", s.handlePreviewTemplate)
		})

		r.Post("/transport/verify", s.handleVerifyTransport)
	})

	return r
}
