package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v3"
)

// ResendConfig carries Resend API settings.
type ResendConfig struct {
	APIKey   string
	From     string
	FromName string
}

type resendSender struct {
	client *resend.Client
	from   string
	logger *slog.Logger
}

// NewResendSender returns a Sender backed by the Resend API.
func NewResendSender(cfg ResendConfig, logger *slog.Logger) Sender {
	return &resendSender{
		client: resend.NewClient(cfg.APIKey),
		from:   formatAddress(cfg.FromName, cfg.From),
		logger: logger.With("component", "resend"),
	}
}

func (s *resendSender) Send(ctx context.Context, m Message) error {
	req := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{m.To},
		Subject: m.Subject,
		Html:    m.HTML,
		Text:    m.text(),
	}
	for _, a := range m.Attachments {
		req.Attachments = append(req.Attachments, &resend.Attachment{
			Filename:    a.Filename,
			Content:     a.Content,
			ContentType: a.ContentType,
		})
	}

	sent, err := s.client.Emails.SendWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("email: resend send to %s: %w", m.To, err)
	}
	s.logger.Debug("resend accepted message", "id", sent.Id, "to", m.To)
	return nil
}

// Verify lists domains, which exercises the API key without sending.
func (s *resendSender) Verify(ctx context.Context) error {
	if _, err := s.client.Domains.ListWithContext(ctx); err != nil {
		return fmt.Errorf("email: resend verify: %w", err)
	}
	return nil
}
