package services

import (
	"context"
	"log/slog"
	"stranger-chat/domain"
	"stranger-chat/observability"
	"stranger-chat/repositories/memory"
	"stranger-chat/runtime"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu            sync.Mutex
	notifications []domain.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, notification domain.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification)
}

func (n *recordingNotifier) For(recipient string) []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return lo.Filter(n.notifications, func(x domain.Notification, _ int) bool {
		return x.Recipient == recipient
	})
}

func (n *recordingNotifier) Kinds(recipient string) []domain.NotificationKind {
	return lo.Map(n.For(recipient), func(x domain.Notification, _ int) domain.NotificationKind {
		return x.Kind
	})
}

func newMetrics() *observability.Metrics {
	return observability.NewMetrics(prometheus.NewRegistry())
}

type fixture struct {
	store      *memory.Store
	scheduler  *runtime.RetryScheduler
	notifier   *recordingNotifier
	metrics    *observability.Metrics
	matchmaker *Matchmaker
	relay      *Relay
	lifecycle  *Lifecycle
}

func newFixture(t *testing.T, retryDelay time.Duration) *fixture {
	t.Helper()
	log := slog.Default()
	store := memory.NewStore()
	scheduler := runtime.NewRetryScheduler(context.Background(), log)
	t.Cleanup(scheduler.Stop)
	notifier := &recordingNotifier{}
	metrics := newMetrics()

	matchmaker := NewMatchmaker(log, store, store, scheduler, notifier, metrics, retryDelay, DefaultMaxClaimAttempts)
	relay := NewRelay(log, store, store, notifier, metrics, 32)
	lifecycle := NewLifecycle(log, store, store, matchmaker, relay, scheduler, notifier, metrics)
	return &fixture{
		store:      store,
		scheduler:  scheduler,
		notifier:   notifier,
		metrics:    metrics,
		matchmaker: matchmaker,
		relay:      relay,
		lifecycle:  lifecycle,
	}
}

func (f *fixture) register(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := f.lifecycle.Register(context.Background(), id, domain.Profile{FirstName: id})
		require.NoError(t, err)
	}
}

func (f *fixture) searching(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := f.store.Create(context.Background(), id, domain.Profile{})
		require.NoError(t, err)
		require.NoError(t, f.store.SetState(context.Background(), id, domain.Searching))
	}
}

// paired registers both participants and pairs them through the public surface.
func (f *fixture) paired(t *testing.T, a, b string) domain.Session {
	t.Helper()
	ctx := context.Background()
	f.register(t, a, b)
	_, err := f.lifecycle.BeginSearch(ctx, a)
	require.NoError(t, err)
	_, err = f.lifecycle.BeginSearch(ctx, b)
	require.NoError(t, err)
	session, err := f.store.GetActiveByParticipant(ctx, a)
	require.NoError(t, err)
	require.True(t, session.Contains(b))
	return session
}

func (f *fixture) state(t *testing.T, id string) domain.State {
	t.Helper()
	p, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return p.State
}
