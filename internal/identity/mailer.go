package identity

import (
	"context"
	"log/slog"
	"time"
)

// MagicLinkMessage is the content of a login email.
type MagicLinkMessage struct {
	To        string
	Greeting  string
	URL       string
	ExpiresAt time.Time
}

// Mailer delivers login emails.
type Mailer interface {
	SendMagicLink(ctx context.Context, msg MagicLinkMessage) error
}

// LogMailer writes the link to the log instead of sending mail. Development only.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendMagicLink(ctx context.Context, msg MagicLinkMessage) error {
	m.logger.InfoContext(ctx, "magic link issued",
		"to", msg.To,
		"url", msg.URL,
		"expires_at", msg.ExpiresAt,
	)
	return nil
}
