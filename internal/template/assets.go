package template

// ─── BUILT-IN TEMPLATE ────────────────────────────────────────────────────────

// DefaultSubject is the subject line used when a batch does not supply one.
// Subjects go through Render like bodies do.
const DefaultSubject = "Your Exam Portal Access Link - {program_name}"

// Placeholder describes one substitutable token for API consumers.
type Placeholder struct {
	Token       string `json:"token"`
	Description string `json:"description"`
}

// Placeholders lists every token the pipeline fills in, in the order the
// default template introduces them. Anything outside this set stays literal.
func Placeholders() []Placeholder {
	return []Placeholder{
		{Token: "name", Description: "student name from the roster"},
		{Token: "program_name", Description: "program name reported by the portal"},
		{Token: "round_name", Description: "exam round name reported by the portal"},
		{Token: "login_link", Description: "personal login URL"},
		{Token: "candidate_id", Description: "candidate identifier assigned by the portal"},
		{Token: "expires_at", Description: "link expiry timestamp as sent by the portal"},
		{Token: "session_duration", Description: "how long the link stays valid"},
		{Token: "email", Description: "student email address from the roster"},
	}
}

// SampleFields returns a field set for template previews. Values are obviously
// fake so a preview is never mistaken for a real mailing.
func SampleFields() map[string]string {
	return map[string]string{
		"name":             "Jane Student",
		"email":            "jane.student@example.org",
		"login_link":       "https://portal.example.org/login/sample-token",
		"candidate_id":     "C-000001",
		"program_name":     "Sample Program",
		"round_name":       "Round 1",
		"expires_at":       "2025-01-31 23:59",
		"session_duration": "730h",
	}
}

// Default returns the built-in HTML body. It references every placeholder in
// Placeholders; styling is inline so it survives webmail clients.
func Default() string {
	return defaultHTML
}

const defaultHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="margin:0;padding:0;background-color:#f4f5f7;font-family:Arial,Helvetica,sans-serif;color:#333333;">
  <div style="max-width:600px;margin:0 auto;padding:24px;">
    <div style="background-color:#1a3c6e;color:#ffffff;padding:24px;border-radius:6px 6px 0 0;">
      <h1 style="margin:0;font-size:22px;">Exam Portal Access</h1>
      <p style="margin:8px 0 0;font-size:14px;opacity:0.85;">{program_name} &middot; {round_name}</p>
    </div>
    <div style="background-color:#ffffff;padding:24px;border:1px solid #e2e4e8;border-top:none;">
      <p style="font-size:15px;">Dear {name},</p>
      <p style="font-size:15px;">Your personal login link for the exam portal is ready. Use the button
      below to sign in; the link is unique to you and must not be shared.</p>
      <p style="text-align:center;margin:28px 0;">
        <a href="{login_link}" style="background-color:#1a3c6e;color:#ffffff;text-decoration:none;padding:12px 28px;border-radius:4px;font-size:15px;display:inline-block;">Access Exam Portal</a>
      </p>
      <div style="background-color:#f4f5f7;border-left:4px solid #1a3c6e;padding:12px 16px;font-size:14px;">
        <p style="margin:4px 0;"><strong>Candidate ID:</strong> {candidate_id}</p>
        <p style="margin:4px 0;"><strong>Link valid until:</strong> {expires_at}</p>
        <p style="margin:4px 0;"><strong>Session duration:</strong> {session_duration}</p>
      </div>
      <p style="font-size:13px;margin-top:24px;">If the button does not work, copy this address into your browser:</p>
      <p style="font-size:13px;word-break:break-all;"><a href="{login_link}">{login_link}</a></p>
      <p style="font-size:13px;color:#777777;margin-top:24px;">This message was sent to {email}. If you received it in
      error, please ignore it.</p>
    </div>
    <p style="font-size:12px;color:#999999;text-align:center;margin-top:16px;">{program_name} examination office</p>
  </div>
</body>
</html>
`
