package email

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wneessen/go-mail"
)

// SMTPConfig carries relay settings. Auth selects the SASL mechanism and
// accepts "plain" (default) or "login"; leaving Username empty disables
// authentication for relays that allow it.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Auth     string
	From     string
	FromName string
}

type smtpSender struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

// NewSMTPSender returns a Sender that delivers through an SMTP relay.
// STARTTLS is mandatory; relays that cannot negotiate it fail the send.
func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) Sender {
	return &smtpSender{cfg: cfg, logger: logger.With("component", "smtp")}
}

// client builds a fresh connection handle. One connection per send keeps the
// sender stateless; the pipeline's inter-send delay makes pooling pointless.
func (s *smtpSender) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSMandatory),
	}
	if s.cfg.Username != "" {
		auth := mail.SMTPAuthPlain
		if strings.EqualFold(s.cfg.Auth, "login") {
			auth = mail.SMTPAuthLogin
		}
		opts = append(opts,
			mail.WithSMTPAuth(auth),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("email: smtp client: %w", err)
	}
	return client, nil
}

func (s *smtpSender) Send(ctx context.Context, m Message) error {
	msg := mail.NewMsg()
	if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
		return fmt.Errorf("email: from address: %w", err)
	}
	if err := msg.AddToFormat(m.ToName, m.To); err != nil {
		return fmt.Errorf("email: to address %q: %w", m.To, err)
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextPlain, m.text())
	msg.AddAlternativeString(mail.TypeTextHTML, m.HTML)
	for _, a := range m.Attachments {
		if err := msg.AttachReader(a.Filename, bytes.NewReader(a.Content),
			mail.WithFileContentType(mail.ContentType(a.ContentType))); err != nil {
			return fmt.Errorf("email: attach %s: %w", a.Filename, err)
		}
	}

	client, err := s.client()
	if err != nil {
		return err
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("email: smtp send to %s: %w", m.To, err)
	}
	return nil
}

// Verify dials, authenticates, and hangs up without queueing anything.
func (s *smtpSender) Verify(ctx context.Context) error {
	client, err := s.client()
	if err != nil {
		return err
	}
	if err := client.DialWithContext(ctx); err != nil {
		return fmt.Errorf("email: smtp verify %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}
	if err := client.Close(); err != nil {
		return fmt.Errorf("email: smtp close: %w", err)
	}
	s.logger.Debug("smtp relay verified", "host", s.cfg.Host, "port", s.cfg.Port)
	return nil
}
