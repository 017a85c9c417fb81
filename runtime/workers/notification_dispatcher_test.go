package workers

import (
	"context"
	"log/slog"
	"stranger-chat/domain"
	"stranger-chat/mocks"
	"stranger-chat/observability"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestNotificationDispatcher_Forwards_In_Order(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	target := mocks.NewMockNotifier(ctrl)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	type delivery struct {
		notification domain.Notification
		hasDeadline  bool
	}
	received := make(chan delivery, 3)
	target.EXPECT().
		Notify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, n domain.Notification) {
			_, hasDeadline := ctx.Deadline()
			received <- delivery{notification: n, hasDeadline: hasDeadline}
		}).
		Times(3)

	dispatcher := NewNotificationDispatcher(slog.Default(), target, 8, time.Second, metrics)
	for _, content := range []string{"one", "two", "three"} {
		dispatcher.Notify(context.Background(), domain.NewNotification("alice", domain.KindMessage, content))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = dispatcher.Run(ctx) }()

	for _, want := range []string{"one", "two", "three"} {
		select {
		case d := <-received:
			req.Equal(want, d.notification.Content)
			req.True(d.hasDeadline)
		case <-time.After(time.Second):
			req.Fail("notification not forwarded", want)
		}
	}
}

func TestNotificationDispatcher_Drops_When_Full(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	target := mocks.NewMockNotifier(ctrl)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	// Given nobody drains the queue
	dispatcher := NewNotificationDispatcher(slog.Default(), target, 2, time.Second, metrics)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			dispatcher.Notify(context.Background(), domain.NewNotification("bob", domain.KindMessage, "hi"))
		}
		close(done)
	}()

	// Then Notify never blocks and the overflow is counted
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Notify blocked on a full queue")
	}
	req.Equal(float64(3), testutil.ToFloat64(metrics.NotificationsDropped))
}

func TestNotificationDispatcher_Stops_With_Context(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	dispatcher := NewNotificationDispatcher(slog.Default(), mocks.NewMockNotifier(ctrl), 1, time.Second,
		observability.NewMetrics(prometheus.NewRegistry()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req.NoError(dispatcher.Run(ctx))
}
