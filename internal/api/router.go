package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/mediagrab/internal/api/handler"
	mw "github.com/iconidentify/mediagrab/internal/api/middleware"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	extractionHandler *handler.ExtractionHandler,
	healthHandler *handler.HealthHandler,
	uiHandler *handler.UIHandler,
	apiKey string,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(mw.CORS)

	// Health endpoints (no auth)
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)

	// Web UI (no auth - the page sends the API key itself)
	r.Get("/", uiHandler.Index)

	r.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(apiKey))

		r.Get("/stats", healthHandler.Stats)

		r.Post("/fetch-video", extractionHandler.FetchVideo)
		r.Get("/download/{videoID}/{index}", extractionHandler.Download)
		r.Get("/videos/{videoID}", extractionHandler.GetVideo)
		r.Delete("/videos/{videoID}", extractionHandler.DeleteVideo)
	})

	return r
}
