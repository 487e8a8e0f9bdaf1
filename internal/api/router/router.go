// Package router provides HTTP routing configuration using Chi.
package router

import (
	_ "embed"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/remiblancher/ocspcheck/internal/api/handler"
	"github.com/remiblancher/ocspcheck/internal/api/middleware"
	"github.com/remiblancher/ocspcheck/internal/api/service"
)

//go:embed openapi.yaml
var openapiSpec []byte

// Config holds router configuration.
type Config struct {
	Version string

	// Service validates responses. Required.
	Service *service.OCSPService

	// MaxBodyBytes limits request bodies (default handler.DefaultMaxBodyBytes).
	MaxBodyBytes int64

	// Logger receives request logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Ready lists the readiness checks reported by /ready.
	Ready map[string]handler.ReadinessCheck
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.CORS)

	// Health endpoints
	services := []string{"ocsp-validate"}
	if cfg.Service.ReceiptsEnabled() {
		services = append(services, "receipts")
	}
	healthHandler := handler.NewHealthHandler(cfg.Version, services, cfg.Ready)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// OpenAPI spec
	r.Get("/api/openapi.yaml", serveOpenAPISpec)

	ocspHandler := handler.NewOCSPHandler(cfg.Service, cfg.MaxBodyBytes)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/ocsp", func(r chi.Router) {
			r.Post("/validate", ocspHandler.Validate)
		})
	})

	// Raw DER endpoint for clients that relay responder output unchanged
	r.Post("/ocsp/validate", ocspHandler.ValidateRaw)

	r.NotFound(handler.NotFound)

	return r
}

// serveOpenAPISpec serves the OpenAPI specification file.
func serveOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapiSpec)
}
