package notifier

import (
	"context"
	"log/slog"
	"stranger-chat/contract"
	"stranger-chat/domain"
)

// LogNotifier writes notifications to the logger. Used when no REDIS_URL is configured.
type LogNotifier struct {
	log *slog.Logger
}

var _ contract.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, notification domain.Notification) {
	n.log.InfoContext(ctx, "Notification",
		"recipient", notification.Recipient,
		"kind", notification.Kind,
		"content", notification.Content)
}
