// Package calendar renders RFC 5545 invite attachments for exam sessions.
// Output is a single VEVENT inside a METHOD:REQUEST calendar, which is what
// makes Gmail and Outlook show an inline add-to-calendar banner instead of a
// bare .ics download.
package calendar

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Attachment metadata for mailing the invite.
const (
	AttachmentName = "invite.ics"
	ContentType    = "text/calendar; method=REQUEST; charset=UTF-8"
)

// Invite describes one personalized event. Start is interpreted as portal
// wall-clock time and written as a floating local timestamp so the event
// lands at the advertised hour regardless of the student's timezone
// settings; only DTSTAMP is UTC.
type Invite struct {
	Title       string
	Description string
	Location    string

	Start    time.Time
	Duration time.Duration

	OrganizerName  string
	OrganizerEmail string
	AttendeeName   string
	AttendeeEmail  string
}

// ICS renders the invite. The result uses CRLF line endings with lines
// folded at 75 octets per RFC 5545 §3.1.
func (inv Invite) ICS() ([]byte, error) {
	switch {
	case strings.TrimSpace(inv.Title) == "":
		return nil, errors.New("calendar: event title is required")
	case inv.Start.IsZero():
		return nil, errors.New("calendar: event start is required")
	case inv.Duration <= 0:
		return nil, fmt.Errorf("calendar: event duration must be positive, got %s", inv.Duration)
	case inv.AttendeeEmail == "":
		return nil, errors.New("calendar: attendee email is required")
	}

	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//exam-portal-mailer//invite//EN",
		"CALSCALE:GREGORIAN",
		"METHOD:REQUEST",
		"BEGIN:VEVENT",
		"UID:" + uuid.NewString(),
		"DTSTAMP:" + time.Now().UTC().Format("20060102T150405Z"),
		"DTSTART:" + inv.Start.Format("20060102T150405"),
		"DTEND:" + inv.Start.Add(inv.Duration).Format("20060102T150405"),
		"SUMMARY:" + escapeText(inv.Title),
	}
	if inv.Description != "" {
		lines = append(lines, "DESCRIPTION:"+escapeText(inv.Description))
	}
	if inv.Location != "" {
		lines = append(lines, "LOCATION:"+escapeText(inv.Location))
	}
	if inv.OrganizerEmail != "" {
		lines = append(lines, "ORGANIZER;CN="+cnParam(inv.OrganizerName, inv.OrganizerEmail)+":MAILTO:"+inv.OrganizerEmail)
	}
	lines = append(lines,
		"ATTENDEE;CN="+cnParam(inv.AttendeeName, inv.AttendeeEmail)+";ROLE=REQ-PARTICIPANT;RSVP=TRUE:MAILTO:"+inv.AttendeeEmail,
		"STATUS:CONFIRMED",
		"SEQUENCE:0",
		"TRANSP:OPAQUE",
		"END:VEVENT",
		"END:VCALENDAR",
	)

	var buf bytes.Buffer
	for _, line := range lines {
		foldLine(&buf, line)
	}
	return buf.Bytes(), nil
}

// ─── RFC 5545 TEXT RULES ──────────────────────────────────────────────────────

// escapeText applies the TEXT value escaping rules: backslash, semicolon and
// comma are backslash-escaped, any newline flavour becomes a literal "\n".
var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	";", `\;`,
	",", `\,`,
	"\r\n", `\n`,
	"\r", `\n`,
	"\n", `\n`,
)

func escapeText(s string) string {
	return textEscaper.Replace(s)
}

// cnParam builds a CN parameter value. Double quotes are not representable
// in parameter values and are dropped; values containing the param-unsafe
// characters are quoted.
func cnParam(name, fallback string) string {
	if name == "" {
		name = fallback
	}
	name = strings.ReplaceAll(name, `"`, "")
	if strings.ContainsAny(name, ",;:") {
		return `"` + name + `"`
	}
	return name
}

// foldLine writes line terminated by CRLF, splitting at 75 octets with a
// space-prefixed continuation. Splits never land inside a UTF-8 sequence.
func foldLine(buf *bytes.Buffer, line string) {
	limit := 75
	for len(line) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		buf.WriteString(line[:cut])
		buf.WriteString("\r\n ")
		line = line[cut:]
		limit = 74 // the leading space counts toward the 75-octet cap
	}
	buf.WriteString(line)
	buf.WriteString("\r\n")
}
