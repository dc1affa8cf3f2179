// SPDX-License-Identifier: MIT

// Package daemon runs the HTTP server and the background loops and tears
// everything down in order on shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ShutdownHook is a function that performs cleanup during graceful shutdown.
// Hooks are executed in reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

// Runner is a background loop that returns once ctx is done.
type Runner func(ctx context.Context) error

// ServerConfig holds the HTTP server timeouts.
type ServerConfig struct {
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ShutdownTimeout   time.Duration
}

// DefaultServerConfig returns production timeouts. There is no write timeout:
// segment responses may block until the transcoder catches up.
func DefaultServerConfig(addr string) ServerConfig {
	return ServerConfig{
		ListenAddr:        addr,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ShutdownTimeout:   30 * time.Second,
	}
}

// Manager manages the daemon lifecycle.
type Manager struct {
	cfg    ServerConfig
	deps   Deps
	logger zerolog.Logger

	mu            sync.Mutex
	started       bool
	server        *http.Server
	runners       []namedRunner
	shutdownHooks []namedHook

	addrReady chan struct{}
	addr      net.Addr
}

type namedHook struct {
	name string
	hook ShutdownHook
}

type namedRunner struct {
	name string
	run  Runner
}

// NewManager creates a daemon manager.
func NewManager(cfg ServerConfig, deps Deps) (*Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	return &Manager{
		cfg:       cfg,
		deps:      deps,
		logger:    deps.Logger.With().Str("component", "daemon").Logger(),
		addrReady: make(chan struct{}),
	}, nil
}

// RegisterRunner adds a background loop started with the server.
func (m *Manager) RegisterRunner(name string, run Runner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runners = append(m.runners, namedRunner{name: name, run: run})
}

// RegisterShutdownHook registers a cleanup function run after the server
// stopped accepting requests.
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownHooks = append(m.shutdownHooks, namedHook{name: name, hook: hook})
	m.logger.Debug().Str("hook", name).Msg("registered shutdown hook")
}

// Addr blocks until the listener is bound and returns its address.
func (m *Manager) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-m.addrReady:
		return m.addr, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Start serves until ctx is done or a component fails, then shuts down.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	runners := append([]namedRunner(nil), m.runners...)
	m.mu.Unlock()

	ln, err := net.Listen("tcp", m.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServerStartFailed, err)
	}
	m.addr = ln.Addr()
	close(m.addrReady)

	m.server = &http.Server{
		Handler:           m.deps.Handler,
		ReadHeaderTimeout: m.cfg.ReadHeaderTimeout,
		IdleTimeout:       m.cfg.IdleTimeout,
		MaxHeaderBytes:    m.cfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m.logger.Info().Str("event", "api.listening").Str("addr", m.addr.String()).Msg("API server listening")
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server: %w", err)
		}
		return nil
	})
	for _, r := range runners {
		g.Go(func() error {
			m.logger.Debug().Str("runner", r.name).Msg("starting background loop")
			if err := r.run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", r.name, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return m.shutdown(context.WithoutCancel(ctx))
	})

	err = g.Wait()
	if err != nil {
		m.logger.Error().Err(err).Str("event", "daemon.failed").Msg("daemon stopped with error")
	}
	return err
}

func (m *Manager) shutdown(ctx context.Context) error {
	m.logger.Info().Str("event", "daemon.shutdown").Msg("shutting down")
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := m.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("API server shutdown: %w", err))
	}

	m.mu.Lock()
	hooks := append([]namedHook(nil), m.shutdownHooks...)
	m.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		if err := h.hook(ctx); err != nil {
			m.logger.Error().Err(err).Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
			continue
		}
		m.logger.Debug().Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook completed")
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	m.logger.Info().Msg("daemon stopped cleanly")
	return nil
}
