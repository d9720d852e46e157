package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"marketintel/pkg/intel"
)

// NewRouter builds the HTTP API router.
func NewRouter(svc *intel.Service) http.Handler {
	logger := svc.Logger()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLoggingMiddleware(logger))
	r.Use(recoveryLoggingMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		// The intelligence handler answers its own preflight.
		OptionsPassthrough: true,
	}))

	h := &handler{svc: svc, logger: logger}

	r.Get("/api/health", h.health)
	r.HandleFunc("/api/intelligence", h.intelligence)

	return r
}

type handler struct {
	svc    *intel.Service
	logger *slog.Logger
}
