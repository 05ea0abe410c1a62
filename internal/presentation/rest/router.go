package rest

import (
	"log/slog"
	"net/http"
)

// RouterConfig assembles the HTTP surface of the service.
type RouterConfig struct {
	API          *APIHandler
	Health       *HealthHandler
	Metrics      http.Handler
	RateLimitRPS float64
}

// NewRouter registers every route and wraps the mux in the middleware chain.
func NewRouter(cfg RouterConfig, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	cfg.Health.RegisterRoutes(mux)
	cfg.API.RegisterRoutes(mux)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	mws := []Middleware{Recover(logger), Logging(logger)}
	if cfg.RateLimitRPS > 0 {
		mws = append(mws, RateLimit(NewRateLimiter(cfg.RateLimitRPS)))
	}
	return Chain(mux, mws...)
}
