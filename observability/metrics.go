package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the counters and gauges of the chat core.
// Build one per registry; tests pass a fresh prometheus.NewRegistry().
type Metrics struct {
	SearchesStarted      prometheus.Counter
	Pairings             prometheus.Counter
	ClaimConflicts       prometheus.Counter
	RetriesScheduled     prometheus.Counter
	MessagesRelayed      prometheus.Counter
	SessionsEnded        *prometheus.CounterVec
	Reports              prometheus.Counter
	NotificationsDropped prometheus.Counter
	Participants         *prometheus.GaugeVec
	PendingRetries       prometheus.Gauge
	StoreUp              prometheus.Gauge

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		SearchesStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "strangerchat_searches_started_total",
			Help: "Total searches started",
		}),
		Pairings: factory.NewCounter(prometheus.CounterOpts{
			Name: "strangerchat_pairings_total",
			Help: "Total sessions created by the matchmaker",
		}),
		ClaimConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "strangerchat_claim_conflicts_total",
			Help: "Claims lost to a concurrent pairing attempt",
		}),
		RetriesScheduled: factory.NewCounter(prometheus.CounterOpts{
			Name: "strangerchat_retries_scheduled_total",
			Help: "Delayed partner searches scheduled",
		}),
		MessagesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "strangerchat_messages_relayed_total",
			Help: "Messages persisted and forwarded",
		}),
		SessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "strangerchat_sessions_ended_total",
			Help: "Sessions ended, by reason",
		}, []string{"reason"}), // "end", "disconnect", "unreachable", "report", "leave"
		Reports: factory.NewCounter(prometheus.CounterOpts{
			Name: "strangerchat_reports_total",
			Help: "Reports filed by participants",
		}),
		NotificationsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "strangerchat_notifications_dropped_total",
			Help: "Notifications dropped because the dispatch queue was full",
		}),
		Participants: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "strangerchat_participants",
			Help: "Active participants by conversational state",
		}, []string{"state"}),
		PendingRetries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "strangerchat_pending_retries",
			Help: "Partner searches waiting for their next retry",
		}),
		StoreUp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "strangerchat_store_up",
			Help: "1 when the last store ping succeeded",
		}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "strangerchat_http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "strangerchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"method", "path"}),
	}
}
