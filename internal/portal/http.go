package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Config tunes the HTTP generator.
type Config struct {
	Endpoint  string        // full URL of the bulk link-generation endpoint
	APIKey    string        // sent as x-api-key
	Timeout   time.Duration // per chunk request; default 30s
	BatchSize int           // students per request; 1 means one request per student; default 50
	Workers   int           // concurrent chunk requests; default 1 (sequential)
}

type httpGenerator struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPGenerator returns a Generator that calls the portal API in chunks
// of cfg.BatchSize students, at most cfg.Workers chunks in flight.
func NewHTTPGenerator(cfg Config, logger *slog.Logger) Generator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 50
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &httpGenerator{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "portal"),
	}
}

// ─── PORTAL API SHAPES ────────────────────────────────────────────────────────

type generateRequest struct {
	ProgramID   int           `json:"program_id"`
	RoundID     int           `json:"round_id"`
	SessionTime string        `json:"session_time"`
	Students    []wireStudent `json:"students"`
}

type wireStudent struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type generateResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		GeneratedLinks []wireLink `json:"generated_links"`
		ProgramInfo    struct {
			ProgramName string `json:"program_name"`
			RoundName   string `json:"round_name"`
		} `json:"program_info"`
		Errors []wireError `json:"errors"`
	} `json:"data"`
}

type wireLink struct {
	Email           string `json:"email"`
	LoginLink       string `json:"login_link"`
	LegacyLink      string `json:"link"` // pre-2024 portal builds used this name
	CandidateID     string `json:"candidate_id"`
	ExpiresAt       string `json:"expires_at"`
	SessionDuration string `json:"session_duration"`
}

type wireError struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

// ─── IMPLEMENTATION ───────────────────────────────────────────────────────────

// GenerateLinks splits students into chunks and merges the chunk results in
// submission order. A failed chunk marks only its own students in Errors;
// the other chunks proceed.
func (g *httpGenerator) GenerateLinks(ctx context.Context, students []Student, params BatchParams) (Result, error) {
	merged := Result{Links: map[string]Link{}, Errors: map[string]string{}}
	if len(students) == 0 {
		return merged, nil
	}

	chunks := chunkStudents(students, g.cfg.BatchSize)
	g.logger.Info("generating login links",
		"students", len(students),
		"chunks", len(chunks),
		"workers", g.cfg.Workers,
	)

	outs := make([]Result, len(chunks))
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(g.cfg.Workers)
	for i, chunk := range chunks {
		grp.Go(func() error {
			res, err := g.generateChunk(gctx, chunk, params)
			outs[i] = res
			return err
		})
	}
	waitErr := grp.Wait()

	for _, out := range outs {
		if out.Links == nil {
			continue // chunk never ran
		}
		for k, v := range out.Links {
			merged.Links[k] = v
		}
		for k, v := range out.Errors {
			merged.Errors[k] = v
		}
		if merged.Program == (ProgramInfo{}) {
			merged.Program = out.Program
		}
	}
	return merged, waitErr
}

// generateChunk issues one portal request. Transport and API failures are
// recorded against every student in the chunk; the error return is reserved
// for context cancellation, where the students were never attempted.
func (g *httpGenerator) generateChunk(ctx context.Context, students []Student, params BatchParams) (Result, error) {
	res := Result{Links: map[string]Link{}, Errors: map[string]string{}}

	payload := generateRequest{
		ProgramID:   params.ProgramID,
		RoundID:     params.RoundID,
		SessionTime: params.SessionTime,
		Students:    make([]wireStudent, len(students)),
	}
	for i, s := range students {
		payload.Students[i] = wireStudent{Name: s.Name, Email: s.Email}
	}

	parsed, err := g.call(ctx, payload)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		g.logger.Warn("link chunk failed", "students", len(students), "error", err)
		for _, s := range students {
			res.Errors[strings.ToLower(s.Email)] = err.Error()
		}
		return res, nil
	}

	for _, wl := range parsed.Data.GeneratedLinks {
		email := strings.ToLower(strings.TrimSpace(wl.Email))
		if email == "" {
			continue
		}
		link := wl.LoginLink
		if link == "" {
			link = wl.LegacyLink
		}
		if link == "" {
			res.Errors[email] = "portal: malformed response entry: no login link"
			continue
		}
		res.Links[email] = Link{
			LoginLink:       NormalizeLink(link),
			CandidateID:     wl.CandidateID,
			ExpiresAt:       wl.ExpiresAt,
			SessionDuration: wl.SessionDuration,
		}
	}
	for _, we := range parsed.Data.Errors {
		email := strings.ToLower(strings.TrimSpace(we.Email))
		if email == "" {
			continue
		}
		if _, ok := res.Links[email]; ok {
			continue // a delivered link outranks a stale error entry
		}
		msg := we.Error
		if msg == "" {
			msg = "rejected by portal"
		}
		res.Errors[email] = msg
	}
	res.Program = ProgramInfo{
		ProgramName: parsed.Data.ProgramInfo.ProgramName,
		RoundName:   parsed.Data.ProgramInfo.RoundName,
	}

	g.logger.Debug("link chunk complete",
		"students", len(students),
		"links", len(res.Links),
		"errors", len(res.Errors),
	)
	return res, nil
}

// call sends one request to the portal and returns the decoded envelope.
func (g *httpGenerator) call(ctx context.Context, payload generateRequest) (*generateResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("portal: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("portal: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", g.cfg.APIKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("portal: http request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB cap
	if err != nil {
		return nil, fmt.Errorf("portal: read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("portal: unexpected status %d: %.200s", resp.StatusCode, string(respBytes))
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return nil, fmt.Errorf("portal: unmarshal response: %w (raw: %.200s)", err, string(respBytes))
	}
	if parsed.Status != "ok" {
		msg := parsed.Message
		if msg == "" {
			msg = "no error message supplied"
		}
		return nil, fmt.Errorf("portal: API error: %s", msg)
	}
	return &parsed, nil
}

// ─── HELPERS ──────────────────────────────────────────────────────────────────

// NormalizeLink collapses repeated slashes in everything after the scheme
// separator. The portal occasionally emits "//login/..." paths when running
// behind its load balancer.
func NormalizeLink(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return collapseSlashes(raw)
	}
	return scheme + "://" + collapseSlashes(rest)
}

func collapseSlashes(s string) string {
	for strings.Contains(s, "//") {
		s = strings.ReplaceAll(s, "//", "/")
	}
	return s
}

func chunkStudents(students []Student, size int) [][]Student {
	var out [][]Student
	for size < len(students) {
		out = append(out, students[:size])
		students = students[size:]
	}
	return append(out, students)
}
