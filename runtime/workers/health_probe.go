package workers

import (
	"context"
	"log/slog"
	"stranger-chat/contract"
	"stranger-chat/domain"
	"stranger-chat/observability"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServingStatusSetter is implemented by *health.Server from google.golang.org/grpc/health.
type ServingStatusSetter interface {
	SetServingStatus(service string, servingStatus healthpb.HealthCheckResponse_ServingStatus)
}

const defaultProbeInterval = 15 * time.Second

type pendingCounter interface {
	Len() int
}

// HealthProbeWorker pings the store on every tick, publishes the result on the gRPC
// health service and refreshes the participant gauges.
type HealthProbeWorker struct {
	log      *slog.Logger
	store    contract.IStore
	health   ServingStatusSetter
	retries  pendingCounter
	metrics  *observability.Metrics
	interval time.Duration
	service  string
}

func NewHealthProbeWorker(
	log *slog.Logger,
	store contract.IStore,
	health ServingStatusSetter,
	retries pendingCounter,
	metrics *observability.Metrics,
	interval time.Duration,
	service string,
) *HealthProbeWorker {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	return &HealthProbeWorker{
		log:      log,
		store:    store,
		health:   health,
		retries:  retries,
		metrics:  metrics,
		interval: interval,
		service:  service,
	}
}

func (w *HealthProbeWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health probe")
			return nil
		case <-ticker.C:
			w.Probe(ctx)
		}
	}
}

// Probe runs one check.
func (w *HealthProbeWorker) Probe(ctx context.Context) {
	if err := w.store.Ping(ctx); err != nil {
		w.log.Warn("Store ping failed", "error", err)
		w.metrics.StoreUp.Set(0)
		w.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	w.metrics.StoreUp.Set(1)
	w.setStatus(healthpb.HealthCheckResponse_SERVING)

	for _, state := range []domain.State{domain.Idle, domain.Searching, domain.Chatting} {
		participants, err := w.store.GetByState(ctx, state)
		if err != nil {
			w.log.Debug("Participant gauge not refreshed", "state", state, "error", err)
			continue
		}
		w.metrics.Participants.WithLabelValues(state.String()).Set(float64(len(participants)))
	}
	w.metrics.PendingRetries.Set(float64(w.retries.Len()))
}

// setStatus updates the overall server status as well as the named service.
func (w *HealthProbeWorker) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	w.health.SetServingStatus("", status)
	w.health.SetServingStatus(w.service, status)
}
