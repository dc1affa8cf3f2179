// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/streamarr/streamarr-server-sub001/internal/config"
	xglog "github.com/streamarr/streamarr-server-sub001/internal/log"
	"github.com/streamarr/streamarr-server-sub001/internal/validation"
	"github.com/streamarr/streamarr-server-sub001/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	// Safe defaults until the config is loaded.
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "streamarr",
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	effectiveConfigPath := strings.TrimSpace(*configPath)
	if effectiveConfigPath == "" {
		effectiveConfigPath = resolveDefaultConfigPath()
	}

	cfg, err := config.NewLoader(effectiveConfigPath, version.Version).Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	xglog.Reconfigure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: "streamarr",
		Version: cfg.Version,
	})
	logger = xglog.WithComponent("daemon")

	if effectiveConfigPath != "" {
		logger.Info().Str("event", "config.loaded").Str("source", "file").Str("path", effectiveConfigPath).Msg("loaded configuration from file")
	} else {
		logger.Info().Str("event", "config.loaded").Str("source", "env+defaults").Msg("loaded configuration from environment and defaults")
	}

	if err := validation.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("startup checks failed, verify configuration and permissions")
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", cfg.ListenAddr).
		Str("hls_root", cfg.HLSRoot).
		Int("max_transcodes", cfg.Streaming.MaxTranscodes).
		Int("segment_duration", cfg.Streaming.SegmentDuration).
		Msg("starting streamarr")

	mgr, err := build(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "startup.wiring_failed").Msg("failed to assemble daemon")
	}

	if err := mgr.Start(ctx); err != nil {
		logger.Fatal().Err(err).Str("event", "daemon.failed").Msg("daemon failed")
	}
	logger.Info().Msg("server exiting")
}
