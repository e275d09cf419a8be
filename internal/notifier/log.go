package notifier

import (
	"context"
	"log/slog"
)

// LogNotifier writes codes to the log instead of sending them. For
// development only.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send logs the code.
func (n *LogNotifier) Send(ctx context.Context, phone, code string) error {
	n.logger.InfoContext(ctx, "verification code (not sent)",
		slog.String("phone", phone),
		slog.String("code", code),
	)
	return nil
}
