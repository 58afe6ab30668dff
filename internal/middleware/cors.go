package middleware

import (
	"log/slog"
	"net/http"

	"corridor-server/internal/shared/config"

	"github.com/rs/cors"
)

type CORSMiddleware struct {
	*cors.Cors
}

func NewCORS(cfg config.GatewayConfig) *CORSMiddleware {
	logger := slog.With("component", "cors", "operation", "setup")
	logger.Debug("Setting up CORS middleware")

	methods := []string{"GET", "POST", "DELETE", "OPTIONS"}

	corsConfig := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: methods,
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		Debug:          cfg.CORSDebug,
	})

	logger.Info("CORS middleware configured",
		"allowed_origins", cfg.AllowedOrigins,
		"allowed_methods", methods,
		"debug_mode", cfg.CORSDebug,
	)

	return &CORSMiddleware{corsConfig}
}

func (c *CORSMiddleware) Middleware(h http.Handler) http.Handler {
	return c.Cors.Handler(h)
}
