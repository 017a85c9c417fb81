package workers

import (
	"context"
	"log/slog"
	"stranger-chat/contract"
	"stranger-chat/domain"
	"stranger-chat/observability"
	"time"
)

// NotificationDispatcher decouples the core from the transport.
// Notify only enqueues, and Run forwards each notification to the target notifier
// with its own timeout. A full queue drops the notification: delivery is best-effort
// and the core must never wait on a slow channel.
type NotificationDispatcher struct {
	log         *slog.Logger
	target      contract.Notifier
	queue       chan domain.Notification
	sendTimeout time.Duration
	metrics     *observability.Metrics
}

var (
	_ contract.Notifier = (*NotificationDispatcher)(nil)
	_ contract.Worker   = (*NotificationDispatcher)(nil)
)

func NewNotificationDispatcher(
	log *slog.Logger,
	target contract.Notifier,
	bufferSize int,
	sendTimeout time.Duration,
	metrics *observability.Metrics,
) *NotificationDispatcher {
	return &NotificationDispatcher{
		log:         log,
		target:      target,
		queue:       make(chan domain.Notification, bufferSize),
		sendTimeout: sendTimeout,
		metrics:     metrics,
	}
}

func (d *NotificationDispatcher) Notify(_ context.Context, notification domain.Notification) {
	select {
	case d.queue <- notification:
	default:
		d.metrics.NotificationsDropped.Inc()
		d.log.Warn("Notification queue full, dropping notification",
			"recipient", notification.Recipient, "kind", notification.Kind)
	}
}

func (d *NotificationDispatcher) Run(ctx context.Context) error {
	for {
		select {
		case notification := <-d.queue:
			d.send(ctx, notification)
		case <-ctx.Done():
			d.log.Debug("Context done, stopping notification dispatch", "pending", len(d.queue))
			return nil
		}
	}
}

func (d *NotificationDispatcher) send(ctx context.Context, notification domain.Notification) {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	d.target.Notify(sendCtx, notification)
}
