// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"

	"github.com/streamarr/streamarr-server-sub001/internal/api"
	"github.com/streamarr/streamarr-server-sub001/internal/catalog"
	"github.com/streamarr/streamarr-server-sub001/internal/config"
	"github.com/streamarr/streamarr-server-sub001/internal/control/admission"
	"github.com/streamarr/streamarr-server-sub001/internal/daemon"
	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/manager"
	"github.com/streamarr/streamarr-server-sub001/internal/health"
	"github.com/streamarr/streamarr-server-sub001/internal/infra/ffmpeg"
	xglog "github.com/streamarr/streamarr-server-sub001/internal/log"
	execffmpeg "github.com/streamarr/streamarr-server-sub001/internal/pipeline/exec/ffmpeg"
	"github.com/streamarr/streamarr-server-sub001/internal/pipeline/hardware"
	"github.com/streamarr/streamarr-server-sub001/internal/segment"
	"github.com/streamarr/streamarr-server-sub001/internal/telemetry"
	"github.com/streamarr/streamarr-server-sub001/internal/version"
)

// build assembles the streaming core from cfg. Shutdown hooks run in reverse:
// sessions, supervisor, catalog, telemetry.
func build(ctx context.Context, cfg config.AppConfig) (*daemon.Manager, error) {
	logger := xglog.WithComponent("daemon")

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    telemetry.DefaultServiceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	store, err := catalog.OpenSQLite(ctx, cfg.Catalog.Path, catalog.DefaultSQLiteConfig())
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, fmt.Errorf("catalog: %w", err)
	}
	indexRoots(ctx, store, cfg.Catalog.Roots)

	segments, err := segment.NewFSStore(cfg.HLSRoot)
	if err != nil {
		_ = store.Close()
		_ = provider.Shutdown(ctx)
		return nil, fmt.Errorf("segment store: %w", err)
	}

	capability := hardware.NewCache(hardware.NewDetector(cfg.FFmpeg.Bin))
	caps := capability.Get(ctx)
	logger.Info().
		Str("event", "capability.detected").
		Bool("available", caps.Available).
		Bool("hardware", caps.HardwareAvailable).
		Strs("encoders", caps.Encoders).
		Str("accelerator", caps.Accelerator).
		Msg("transcoder capability")

	supervisor := execffmpeg.NewSupervisor(execffmpeg.SupervisorConfig{
		Bin:         cfg.FFmpeg.Bin,
		StopGrace:   cfg.FFmpeg.StopGrace,
		LaunchRate:  cfg.FFmpeg.LaunchRate,
		LaunchBurst: cfg.FFmpeg.LaunchBurst,
	})

	svc := manager.NewService(manager.Config{SegmentDuration: cfg.Streaming.SegmentDuration}, manager.Deps{
		Catalog:    store,
		Prober:     ffmpeg.NewProber(cfg.FFmpeg.ProbeBin, cfg.FFmpeg.ProbeTimeout),
		Supervisor: supervisor,
		Store:      segments,
		Capability: capability,
		Admission:  admission.NewController(cfg.Streaming.MaxTranscodes),
	})
	reaper := &manager.Reaper{Service: svc, Conf: manager.ReaperConfig{
		Interval:        cfg.Reaper.Interval,
		IdleTimeout:     cfg.Reaper.IdleTimeout,
		OrphanRetention: cfg.Reaper.OrphanRetention,
	}}

	hm := health.NewManager(version.Version)
	hm.RegisterChecker(health.TranscoderChecker(capability))
	hm.RegisterChecker(health.PingChecker("catalog", store))
	hm.RegisterChecker(health.WritableDirChecker("hls_root", cfg.HLSRoot))

	apiCfg := api.Config{
		SegmentWaitTimeout: cfg.Streaming.SegmentWaitTimeout,
		EnableTracing:      cfg.Telemetry.Enabled,
	}
	if cfg.RateLimit.Enabled {
		apiCfg.RateLimitRequests = cfg.RateLimit.Requests
		apiCfg.RateLimitWindow = cfg.RateLimit.Window
	}
	srv := api.New(apiCfg, svc, segments, hm)

	mgr, err := daemon.NewManager(daemon.DefaultServerConfig(cfg.ListenAddr), daemon.Deps{
		Logger:  logger,
		Handler: srv.Handler(),
	})
	if err != nil {
		supervisor.Shutdown()
		_ = store.Close()
		_ = provider.Shutdown(ctx)
		return nil, err
	}

	mgr.RegisterShutdownHook("telemetry", provider.Shutdown)
	mgr.RegisterShutdownHook("catalog", func(context.Context) error { return store.Close() })
	mgr.RegisterShutdownHook("supervisor", func(context.Context) error {
		supervisor.Shutdown()
		return nil
	})
	mgr.RegisterShutdownHook("sessions", func(context.Context) error {
		svc.Shutdown()
		return nil
	})
	mgr.RegisterRunner("reaper", func(ctx context.Context) error {
		reaper.Run(ctx)
		return nil
	})
	return mgr, nil
}

// indexRoots scans every library root into the catalog. A failing root is
// logged and skipped; media from other roots stays playable.
func indexRoots(ctx context.Context, w catalog.Writer, roots []config.LibraryRoot) {
	logger := xglog.WithComponent("catalog")
	for _, r := range roots {
		res, err := catalog.Scan(ctx, w, catalog.Root{
			ID:         r.ID,
			Path:       r.Path,
			MaxDepth:   r.MaxDepth,
			Extensions: r.Extensions,
		}, nil)
		if err != nil {
			logger.Error().Err(err).Str("root", r.ID).Str(xglog.FieldPath, r.Path).Str("event", "catalog.scan_failed").Msg("library scan failed")
			continue
		}
		logger.Info().
			Str("event", "catalog.scanned").
			Str("root", res.RootID).
			Int("indexed", res.Indexed).
			Int("skipped", res.Skipped).
			Int("errors", res.Errors).
			Dur("duration", res.Duration).
			Msg("library root indexed")
	}
}
