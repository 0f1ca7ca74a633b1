package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/visa2any/fly2any-sub046/internal/api/handlers"
	"github.com/visa2any/fly2any-sub046/internal/api/middleware"
)

// Router holds all route handlers
type Router struct {
	mux *chi.Mux

	prewarmHandler  *handlers.PrewarmHandler
	coverageHandler *handlers.CoverageHandler
	logger          zerolog.Logger
}

// NewRouter creates a new router
func NewRouter(
	prewarmHandler *handlers.PrewarmHandler,
	coverageHandler *handlers.CoverageHandler,
	logger zerolog.Logger,
) *Router {
	return &Router{
		mux:             chi.NewRouter(),
		prewarmHandler:  prewarmHandler,
		coverageHandler: coverageHandler,
		logger:          logger,
	}
}

// SetupRoutes registers middleware and routes and returns the handler.
func (r *Router) SetupRoutes() http.Handler {
	r.mux.Use(chimw.Recoverer)
	r.mux.Use(chimw.RequestID)
	r.mux.Use(middleware.Tracing)
	r.mux.Use(middleware.Logging(r.logger))
	r.mux.Use(chimw.Timeout(30 * time.Second))

	r.mux.Get("/health", r.coverageHandler.Health)

	r.mux.Route("/api", func(api chi.Router) {
		api.Route("/prewarm", func(pr chi.Router) {
			pr.Get("/status", r.prewarmHandler.GetStatus)
			pr.Get("/report", r.prewarmHandler.GetLastReport)
			pr.Post("/run", r.prewarmHandler.TriggerRun)
		})
		api.Get("/coverage/{route}", r.coverageHandler.GetCoverage)
		api.Get("/coverage/{route}/{date}/price", r.coverageHandler.GetPrice)
	})

	return r.mux
}
