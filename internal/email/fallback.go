package email

import (
	"context"
	"fmt"
	"log/slog"
)

// fallbackSender wraps two Senders. It tries the primary first; if that
// returns an error it logs the failure and retries the same message through
// the secondary. Which providers fill the two roles is decided in main.go.
type fallbackSender struct {
	primary   Sender
	secondary Sender
	logger    *slog.Logger
}

// NewFallbackSender returns a Sender that delivers via primary and falls
// back to secondary. Either argument may be nil — if primary is nil it goes
// straight to secondary; if secondary is nil and primary fails, the primary
// error is returned directly.
func NewFallbackSender(primary, secondary Sender, logger *slog.Logger) Sender {
	return &fallbackSender{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
}

func (f *fallbackSender) Send(ctx context.Context, m Message) error {
	if f.primary != nil {
		err := f.primary.Send(ctx, m)
		if err == nil {
			return nil
		}
		f.logger.Warn("email: primary sender failed, trying secondary",
			"error", err,
			"to", m.To,
		)
		if f.secondary == nil {
			return fmt.Errorf("email: primary failed and no secondary configured: %w", err)
		}
	}

	return f.secondary.Send(ctx, m)
}

// Verify requires the primary to be usable. A broken secondary is only
// logged: it must not block a batch the primary can deliver.
func (f *fallbackSender) Verify(ctx context.Context) error {
	if f.primary != nil {
		if err := f.primary.Verify(ctx); err != nil {
			return err
		}
	}
	if f.secondary != nil {
		if err := f.secondary.Verify(ctx); err != nil {
			if f.primary == nil {
				return err
			}
			f.logger.Warn("email: secondary sender failed verification", "error", err)
		}
	}
	return nil
}
