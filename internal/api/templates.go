package api

import (
	"net/http"

	"github.com/nyashahama/exam-portal-mailer/internal/email"
	"github.com/nyashahama/exam-portal-mailer/internal/template"
)

// ─── GET /api/template/default ────────────────────────────────────────────────

type defaultTemplateResponse struct {
	Subject      string                 `json:"subject"`
	HTML         string                 `json:"html"`
	Placeholders []template.Placeholder `json:"placeholders"`
}

// handleDefaultTemplate returns the built-in message template together with
// the placeholder catalogue, which is what a template editor needs to offer
// completions.
func (s *Server) handleDefaultTemplate(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, defaultTemplateResponse{
		Subject:      template.DefaultSubject,
		HTML:         template.Default(),
		Placeholders: template.Placeholders(),
	})
}

// ─── POST /api/template/preview ───────────────────────────────────────────────

type previewTemplateRequest struct {
	Subject  string            `json:"subject"`
	Template string            `json:"template"`
	Fields   map[string]string `json:"fields"`
}

type previewTemplateResponse struct {
	Subject    string   `json:"subject"`
	HTML       string   `json:"html"`
	Text       string   `json:"text"`
	Unresolved []string `json:"unresolved,omitempty"`
}

// handlePreviewTemplate renders a draft against sample data, or against
// caller-supplied fields, without sending anything. Unresolved lists the
// placeholders the field set did not cover, so a typo like {naem} shows up
// here instead of in a student inbox.
func (s *Server) handlePreviewTemplate(w http.ResponseWriter, r *http.Request) {
	var req previewTemplateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Subject == "" {
		req.Subject = template.DefaultSubject
	}
	if req.Template == "" {
		req.Template = template.Default()
	}

	fields := template.SampleFields()
	for k, v := range req.Fields {
		fields[k] = v
	}

	html := template.Render(req.Template, fields)
	respond(w, http.StatusOK, previewTemplateResponse{
		Subject:    template.Render(req.Subject, fields),
		HTML:       html,
		Text:       email.HTMLToText(html),
		Unresolved: template.Unresolved(req.Subject+"\n"+req.Template, fields),
	})
}
