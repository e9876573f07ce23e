package router

import (
	"ruteo-sync-agent/internal/handler"
	"ruteo-sync-agent/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler      *handler.Handler
	QueueHandler *handler.QueueHandler
	ShiftHandler *handler.ShiftHandler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Agent liveness for the UI shell
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.QueueHandler != nil {
			r.Post("/sales", cfg.QueueHandler.CreateSale)
			r.Delete("/sales/{local_id}", cfg.QueueHandler.DiscardSale)
			r.Post("/orders/{order_ref}/actions", cfg.QueueHandler.CreateOrderAction)
			r.Get("/queue/pending", cfg.QueueHandler.GetPending)
			r.Get("/queue/totals", cfg.QueueHandler.GetDayTotals)
			r.Post("/sync", cfg.QueueHandler.SyncNow)
		}

		if cfg.ShiftHandler != nil {
			r.Get("/shift", cfg.ShiftHandler.Current)
			r.Post("/shift/open", cfg.ShiftHandler.Open)
			r.Post("/shift/close", cfg.ShiftHandler.Close)
		}
	})

	return r
}
