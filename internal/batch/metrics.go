package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nyashahama/exam-portal-mailer/internal/report"
)

// ─── METRICS ──────────────────────────────────────────────────────────────────

var (
	emailsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exam_mailer_emails_sent_total",
		Help: "Emails accepted by the mail provider.",
	})
	emailsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exam_mailer_emails_failed_total",
		Help: "Send attempts the mail provider rejected.",
	})
	emailsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exam_mailer_emails_skipped_total",
		Help: "Students skipped because they had no usable login link.",
	})
	linksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exam_mailer_link_failures_total",
		Help: "Students the portal refused to issue a link for.",
	})
)

// observeOutcomes folds the summary of one finished or cancelled run into
// the process counters.
func observeOutcomes(s report.Summary) {
	emailsSent.Add(float64(s.Sent))
	emailsFailed.Add(float64(s.SendFailed))
	emailsSkipped.Add(float64(s.Skipped))
	linksFailed.Add(float64(s.LinkFailed))
}
