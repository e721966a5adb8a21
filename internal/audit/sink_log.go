package audit

import (
	"context"
	"log/slog"
)

// LogSink writes events as structured log records.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Append(ctx context.Context, e Event) error {
	s.logger.LogAttrs(ctx, slog.LevelInfo, "audit",
		slog.String("category", string(e.Category)),
		slog.String("action", string(e.Action)),
		slog.String("user_id", e.UserID),
		slog.String("client_id", e.ClientID),
		slog.String("subject", e.Subject),
		slog.String("reason", e.Reason),
		slog.String("ip", e.IP),
		slog.String("device", e.Device),
		slog.String("request_id", e.RequestID),
		slog.Time("timestamp", e.Timestamp),
	)
	return nil
}
