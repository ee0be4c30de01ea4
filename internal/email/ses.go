package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESConfig carries Amazon SES settings. Static credentials are optional;
// when AccessKeyID is empty the default AWS chain (env, shared config,
// instance role) applies.
type SESConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	From            string
	FromName        string
}

type sesSender struct {
	client *sesv2.Client
	from   string
	logger *slog.Logger
}

// NewSESSender builds the SES client eagerly so credential-chain problems
// surface at startup instead of mid-batch.
func NewSESSender(ctx context.Context, cfg SESConfig, logger *slog.Logger) (Sender, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("email: load aws config: %w", err)
	}

	return &sesSender{
		client: sesv2.NewFromConfig(awsCfg),
		from:   formatAddress(cfg.FromName, cfg.From),
		logger: logger.With("component", "ses"),
	}, nil
}

func (s *sesSender) Send(ctx context.Context, m Message) error {
	content := &types.Message{
		Subject: &types.Content{Data: aws.String(m.Subject), Charset: aws.String("UTF-8")},
		Body: &types.Body{
			Html: &types.Content{Data: aws.String(m.HTML), Charset: aws.String("UTF-8")},
			Text: &types.Content{Data: aws.String(m.text()), Charset: aws.String("UTF-8")},
		},
	}
	for _, a := range m.Attachments {
		content.Attachments = append(content.Attachments, types.Attachment{
			RawContent:  a.Content,
			FileName:    aws.String(a.Filename),
			ContentType: aws.String(a.ContentType),
		})
	}

	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{m.To}},
		Content:          &types.EmailContent{Simple: content},
	})
	if err != nil {
		return fmt.Errorf("email: ses send to %s: %w", m.To, err)
	}
	return nil
}

// Verify probes the account send quota, the cheapest authenticated call the
// SES API offers.
func (s *sesSender) Verify(ctx context.Context) error {
	out, err := s.client.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		return fmt.Errorf("email: ses verify: %w", err)
	}
	if !out.SendingEnabled {
		return errors.New("email: ses verify: sending is disabled for this account")
	}
	if out.SendQuota != nil {
		s.logger.Debug("ses account verified",
			"max_24h", out.SendQuota.Max24HourSend,
			"sent_24h", out.SendQuota.SentLast24Hours,
		)
	}
	return nil
}
