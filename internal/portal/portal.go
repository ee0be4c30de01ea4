// Package portal talks to the exam portal's bulk link-generation API. The
// HTTP implementation lives in http.go; this file is the contract the rest
// of the pipeline programs against.
package portal

import "context"

// Student is the slice of a roster record the portal needs.
type Student struct {
	Name  string
	Email string
}

// BatchParams identifies the exam round that links are generated for.
// SessionTime is how long each link stays valid, in Go duration syntax
// ("730h" is the portal's default of roughly one month).
type BatchParams struct {
	ProgramID   int
	RoundID     int
	SessionTime string
}

// Link is one generated login link with its metadata. Values are kept
// exactly as the portal sent them; only the URL gets slash normalization.
type Link struct {
	LoginLink       string
	CandidateID     string
	ExpiresAt       string
	SessionDuration string
}

// ProgramInfo names the program and round, for subject lines and reports.
type ProgramInfo struct {
	ProgramName string
	RoundName   string
}

// Result is keyed by lowercased student email. A student appears in Links on
// success, in Errors when the portal reported a failure or the chunk request
// died, and in neither when work stopped before their chunk was attempted.
type Result struct {
	Links   map[string]Link
	Errors  map[string]string
	Program ProgramInfo
}

// Generator is implemented by the HTTP client in this package and by stubs
// in tests.
type Generator interface {
	// GenerateLinks requests login links for every student. Per-student and
	// per-chunk failures are folded into Result.Errors rather than failing
	// the call; the returned error is non-nil only when ctx ended before all
	// chunks were attempted, and the partial Result remains usable.
	GenerateLinks(ctx context.Context, students []Student, params BatchParams) (Result, error)
}
