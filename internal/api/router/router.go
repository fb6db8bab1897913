package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clinicflow/booking-assistant/internal/api/handlers"
	apimiddleware "github.com/clinicflow/booking-assistant/internal/api/middleware"
	"github.com/clinicflow/booking-assistant/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	Assistant      *handlers.AssistantHandler
	MetricsHandler http.Handler
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(apimiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/healthz", cfg.Assistant.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Post("/webhooks/message", cfg.Assistant.HandleMessage)

	r.Route("/sessions/{key}", func(r chi.Router) {
		r.Get("/", cfg.Assistant.GetSession)
		r.Delete("/", cfg.Assistant.DeleteSession)
		r.Get("/export", cfg.Assistant.ExportSession)
	})

	return r
}
