package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nyashahama/exam-portal-mailer/internal/batch"
	"github.com/nyashahama/exam-portal-mailer/internal/portal"
	"github.com/nyashahama/exam-portal-mailer/internal/report"
	"github.com/nyashahama/exam-portal-mailer/internal/roster"
	"github.com/nyashahama/exam-portal-mailer/internal/store"
	"github.com/nyashahama/exam-portal-mailer/internal/worker"
)

// ─── POST /api/batches ────────────────────────────────────────────────────────

type createBatchResponse struct {
	BatchID      string `json:"batch_id"`
	Status       string `json:"status"`
	TotalRows    int    `json:"total_rows"`
	AcceptedRows int    `json:"accepted_rows"`
	RejectedRows int    `json:"rejected_rows"`
}

// handleCreateBatch accepts a roster upload with its send parameters and
// queues the batch. The roster is parsed and validated here so a wrong
// column header comes back as a 400 on upload instead of a failed batch
// minutes later.
//
// Multipart fields, all optional except roster:
//
//	roster            the roster file, .csv or .xlsx
//	subject           subject template
//	template          HTML body template
//	program_id        portal program, server default applies
//	round_id          portal round, server default applies
//	session_time      link validity window, server default applies
//	event_title       calendar invite title; start and duration required
//	event_start       RFC 3339 timestamp
//	event_duration    Go duration syntax, e.g. "90m"
//	event_location    free-form location
//	event_link        meeting URL
//	event_description invite body text
func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(4 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondErr(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds the %d byte limit", tooLarge.Limit))
			return
		}
		respondErr(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("roster")
	if err != nil {
		respondErr(w, http.StatusBadRequest, "roster file is required")
		return
	}
	defer file.Close()

	table, err := roster.Parse(header.Filename, file)
	if err != nil {
		respondErr(w, http.StatusBadRequest, err.Error())
		return
	}

	cols := roster.Columns{Name: s.cfg.NameColumn, Email: s.cfg.EmailColumn}
	records, rejects, err := roster.Load(table, cols)
	if err != nil {
		respondErr(w, http.StatusBadRequest, err.Error())
		return
	}

	params, err := s.batchParams(r)
	if err != nil {
		respondErr(w, http.StatusBadRequest, err.Error())
		return
	}
	event, err := parseEvent(r)
	if err != nil {
		respondErr(w, http.StatusBadRequest, err.Error())
		return
	}

	in := batch.Input{
		Table:    table,
		Columns:  cols,
		Subject:  r.FormValue("subject"),
		Template: r.FormValue("template"),
		Params:   params,
		Event:    event,
	}
	b := s.store.Create(in, len(records)+len(rejects), len(rejects))

	if err := s.worker.Enqueue(r.Context(), b.ID); err != nil {
		// Fail keeps the batch visible with the queue error attached.
		if failErr := s.store.Fail(b.ID, err); failErr != nil {
			s.logger.Error("failing unqueued batch", "error", failErr, "batch_id", b.ID, logField(r))
		}
		if errors.Is(err, worker.ErrQueueFull) {
			respondErr(w, http.StatusServiceUnavailable, "send queue is full, retry shortly")
			return
		}
		s.respondInternalErr(w, r, err)
		return
	}

	respond(w, http.StatusAccepted, createBatchResponse{
		BatchID:      b.ID.String(),
		Status:       string(b.Status),
		TotalRows:    b.TotalRows,
		AcceptedRows: b.TotalRows - b.RejectedRows,
		RejectedRows: b.RejectedRows,
	})
}

// batchParams reads the portal parameters, falling back to the server
// defaults for anything the form omits.
func (s *Server) batchParams(r *http.Request) (portal.BatchParams, error) {
	p := portal.BatchParams{
		ProgramID:   s.cfg.DefaultProgramID,
		RoundID:     s.cfg.DefaultRoundID,
		SessionTime: s.cfg.DefaultSessionTime,
	}
	if v := r.FormValue("program_id"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return portal.BatchParams{}, fmt.Errorf("program_id %q is not a number", v)
		}
		p.ProgramID = n
	}
	if v := r.FormValue("round_id"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return portal.BatchParams{}, fmt.Errorf("round_id %q is not a number", v)
		}
		p.RoundID = n
	}
	if v := r.FormValue("session_time"); v != "" {
		p.SessionTime = v
	}
	return p, nil
}

// parseEvent builds the optional calendar invite from the event_* form
// fields. It returns nil when none are present.
func parseEvent(r *http.Request) (*batch.Event, error) {
	var (
		title    = strings.TrimSpace(r.FormValue("event_title"))
		startRaw = strings.TrimSpace(r.FormValue("event_start"))
		durRaw   = strings.TrimSpace(r.FormValue("event_duration"))
		desc     = r.FormValue("event_description")
		location = strings.TrimSpace(r.FormValue("event_location"))
		link     = strings.TrimSpace(r.FormValue("event_link"))
	)
	if title == "" && startRaw == "" && durRaw == "" && desc == "" && location == "" && link == "" {
		return nil, nil
	}
	if title == "" || startRaw == "" || durRaw == "" {
		return nil, errors.New("calendar invites need event_title, event_start, and event_duration")
	}

	start, err := time.Parse(time.RFC3339, startRaw)
	if err != nil {
		return nil, fmt.Errorf("event_start %q is not an RFC 3339 timestamp", startRaw)
	}
	dur, err := time.ParseDuration(durRaw)
	if err != nil {
		return nil, fmt.Errorf("event_duration %q is not a duration (try \"90m\")", durRaw)
	}
	if dur <= 0 {
		return nil, errors.New("event_duration must be positive")
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

// ─── GET /api/batches ─────────────────────────────────────────────────────────

type listBatchesResponse struct {
	Batches []store.Batch `json:"batches"`
}

// handleListBatches returns every batch this process has accepted, newest
// first. The store is in-memory, so the list starts empty after a restart.
func (s *Server) handleListBatches(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, listBatchesResponse{Batches: s.store.List()})
}

// ─── GET /api/batches/{batchID} ───────────────────────────────────────────────

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	b, ok := s.batchFromURL(w, r)
	if !ok {
		return
	}
	respond(w, http.StatusOK, b)
}

// batchFromURL loads the batch addressed by the URL, writing the error
// response itself when the ID is malformed or unknown.
func (s *Server) batchFromURL(w http.ResponseWriter, r *http.Request) (store.Batch, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		respondErr(w, http.StatusBadRequest, "invalid batch id")
		return store.Batch{}, false
	}
	b, err := s.store.Get(id)
	if errors.Is(err, store.ErrNotFound) {
		respondErr(w, http.StatusNotFound, "batch not found")
		return store.Batch{}, false
	}
	if err != nil {
		s.respondInternalErr(w, r, err)
		return store.Batch{}, false
	}
	return b, true
}

// ─── GET /api/batches/{batchID}/report ────────────────────────────────────────

type batchReportResponse struct {
	Summary report.Summary `json:"summary"`
	Rows    []report.Row   `json:"rows"`
}

// handleGetBatchReport serves the per-student outcome report. While the
// batch is pending or running it returns 409 so clients keep polling the
// status endpoint instead.
func (s *Server) handleGetBatchReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.reportFromURL(w, r)
	if !ok {
		return
	}
	respond(w, http.StatusOK, batchReportResponse{Summary: rep.Summary(), Rows: rep.Rows})
}

// ─── GET /api/batches/{batchID}/report.csv ────────────────────────────────────

// handleGetBatchReportCSV streams the same report as a CSV download.
func (s *Server) handleGetBatchReportCSV(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.reportFromURL(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "batchID")
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "report-"+id+".csv"))
	w.WriteHeader(http.StatusOK)
	if err := rep.WriteCSV(w); err != nil {
		// Headers are already out; logging is all that is left.
		s.logger.Error("streaming report csv", "error", err, "batch_id", id, logField(r))
	}
}

// reportFromURL loads the finished report for the batch in the URL, writing
// the error response itself when there is none to serve yet.
func (s *Server) reportFromURL(w http.ResponseWriter, r *http.Request) (*report.Report, bool) {
	b, ok := s.batchFromURL(w, r)
	if !ok {
		return nil, false
	}
	if !b.Status.Finished() {
		respondErr(w, http.StatusConflict, "batch is still "+string(b.Status))
		return nil, false
	}
	if b.Report == nil {
		// Failed or cancelled before any student was processed.
		msg := "batch finished without a report"
		if b.Err != "" {
			msg += ": " + b.Err
		}
		respondErr(w, http.StatusNotFound, msg)
		return nil, false
	}
	return b.Report, true
}

// ─── POST /api/batches/{batchID}/cancel ───────────────────────────────────────

// handleCancelBatch stops a batch. Pending batches flip to cancelled right
// away; running batches keep reporting running until the worker stores the
// partial report. Either way the cancel is acknowledged with 202, the body
// being the batch as the cancel left it.
func (s *Server) handleCancelBatch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		respondErr(w, http.StatusBadRequest, "invalid batch id")
		return
	}

	b, err := s.store.Cancel(id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondErr(w, http.StatusNotFound, "batch not found")
	case errors.Is(err, store.ErrBatchFinished):
		respondErr(w, http.StatusConflict, "batch already finished")
	case err != nil:
		s.respondInternalErr(w, r, err)
	default:
		respond(w, http.StatusAccepted, b)
	}
}
