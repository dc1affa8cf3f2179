// SPDX-License-Identifier: MIT

package middleware

import (
	"github.com/go-chi/chi/v5"
)

// StackConfig selects the cross-cutting middleware of the router.
type StackConfig struct {
	AllowedOrigins []string // empty disables CORS
	EnableMetrics  bool
	EnableTracing  bool
	EnableLogging  bool
}

// NewRouter constructs a chi router with the middleware stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack installs, outermost first: recovery, request id, CORS,
// metrics, tracing, access log.
func ApplyStack(r chi.Router, cfg StackConfig) {
	r.Use(Recoverer)
	r.Use(RequestID)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(CORS(cfg.AllowedOrigins))
	}
	if cfg.EnableMetrics {
		r.Use(Metrics)
	}
	if cfg.EnableTracing {
		r.Use(Tracing)
	}
	if cfg.EnableLogging {
		r.Use(AccessLog)
	}
}
