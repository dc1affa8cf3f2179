// SPDX-License-Identifier: MIT

// Package api is the HTTP transport of the streaming core.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/streamarr/streamarr-server-sub001/internal/control/middleware"
	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/manager"
	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
	"github.com/streamarr/streamarr-server-sub001/internal/health"
	"github.com/streamarr/streamarr-server-sub001/internal/playlist"
	"github.com/streamarr/streamarr-server-sub001/internal/segment"
)

// DefaultSegmentWaitTimeout bounds how long a segment request blocks for a
// transcoder to produce the file.
const DefaultSegmentWaitTimeout = 30 * time.Second

// SessionService is the session lifecycle used by the handlers.
type SessionService interface {
	CreateSession(ctx context.Context, mediaFileID string, opts model.StreamingOptions) (*model.StreamSession, error)
	SeekSession(ctx context.Context, id string, position float64) (*model.StreamSession, error)
	DestroySession(id string) bool
	GetSession(id string) (*model.StreamSession, bool)
	AccessSession(id string) (*model.StreamSession, bool)
	Descriptor(sess *model.StreamSession) manager.Descriptor
	Acquire(id string) error
	Release(id string)
	SegmentDuration() int
}

var _ SessionService = (*manager.Service)(nil)

// SegmentReader is the read side of the segment store.
type SegmentReader interface {
	ReadSegment(sessionID, name string) ([]byte, error)
	WaitForSegment(ctx context.Context, sessionID, name string, timeout time.Duration) (bool, error)
}

var _ SegmentReader = (*segment.FSStore)(nil)

// Config configures the HTTP surface.
type Config struct {
	SegmentWaitTimeout time.Duration
	AllowedOrigins     []string

	// RateLimit applies to the session control routes; zero disables it.
	RateLimitRequests int
	RateLimitWindow   time.Duration

	EnableTracing bool
}

// Server owns the router and its dependencies.
type Server struct {
	cfg      Config
	sessions SessionService
	segments SegmentReader
	health   *health.Manager
}

// New creates a server. hm may be nil.
func New(cfg Config, sessions SessionService, segments SegmentReader, hm *health.Manager) *Server {
	if cfg.SegmentWaitTimeout <= 0 {
		cfg.SegmentWaitTimeout = DefaultSegmentWaitTimeout
	}
	if hm == nil {
		hm = health.NewManager("")
	}
	return &Server{cfg: cfg, sessions: sessions, segments: segments, health: hm}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		AllowedOrigins: s.cfg.AllowedOrigins,
		EnableMetrics:  true,
		EnableTracing:  s.cfg.EnableTracing,
		EnableLogging:  true,
	})

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/sessions", func(r chi.Router) {
		if s.cfg.RateLimitRequests > 0 && s.cfg.RateLimitWindow > 0 {
			r.Use(middleware.RateLimit(middleware.RateLimitConfig{
				RequestLimit: s.cfg.RateLimitRequests,
				WindowSize:   s.cfg.RateLimitWindow,
			}))
		}
		r.Post("/", s.handleCreateSession)
		r.Get("/{id}", s.handleGetSession)
		r.Delete("/{id}", s.handleDestroySession)
		r.Post("/{id}/seek", s.handleSeekSession)
	})

	r.Route("/stream/{id}", func(r chi.Router) {
		r.Get("/master.m3u8", s.handleMasterPlaylist)
		r.Get("/"+playlist.MediaPlaylistName, s.handleMediaPlaylist)
		r.Get("/{segment}", s.handleSegment)
		r.Get("/{variant}/"+playlist.MediaPlaylistName, s.handleMediaPlaylist)
		r.Get("/{variant}/{segment}", s.handleSegment)
	})

	if !s.cfg.EnableTracing {
		return r
	}
	return otelhttp.NewHandler(r, "streamarr.http",
		otelhttp.WithFilter(func(req *http.Request) bool {
			return req.URL.Path != "/metrics" && req.URL.Path != "/healthz"
		}))
}
