package api

import "net/http"

// ─── POST /api/transport/verify ───────────────────────────────────────────────

type verifyTransportResponse struct {
	Status string `json:"status"`
}

// handleVerifyTransport dials the configured mail provider without sending
// anything. A 502 points at the provider or its credentials rather than
// this service.
func (s *Server) handleVerifyTransport(w http.ResponseWriter, r *http.Request) {
	if err := s.sender.Verify(r.Context()); err != nil {
		respondErr(w, http.StatusBadGateway, err.Error())
		return
	}
	respond(w, http.StatusOK, verifyTransportResponse{Status: "ok"})
}
