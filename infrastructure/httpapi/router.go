package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"stranger-chat/observability"
	"stranger-chat/services"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodySize = 16 * 1024

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter maps the chat core onto JSON endpoints for the bot dispatcher.
func NewRouter(
	log *slog.Logger,
	chat services.IChatService,
	store Pinger,
	metrics *observability.Metrics,
	gatherer prometheus.Gatherer,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(Metrics(metrics))
	r.Use(chimw.RequestID)
	r.Use(Logger(log))
	r.Use(chimw.Recoverer)
	r.Use(MaxBodySize(maxBodySize))

	h := NewHandler(log, chat, store)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", h.Health)

	r.Route("/participants/{id}", func(r chi.Router) {
		r.Use(h.RequireParticipantID)
		r.Put("/", h.Register)
		r.Get("/status", h.Status)
		r.Post("/search", h.BeginSearch)
		r.Delete("/search", h.CancelSearch)
		r.Post("/end", h.EndSession)
		r.Post("/leave", h.Leave)
		r.Post("/disconnect", h.Disconnect)
		r.Post("/messages", h.SendMessage)
		r.Post("/report", h.Report)
	})
	r.Get("/sessions/{id}/messages", h.History)

	return r
}

func NewServer(address string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
