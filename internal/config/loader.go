// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/streamarr/streamarr-server-sub001/internal/platform/paths"
)

// ErrUnknownConfigField classifies strict YAML failures caused by unknown keys.
var ErrUnknownConfigField = errors.New("unknown config field")

// Loader applies defaults, file and environment in order.
type Loader struct {
	configPath string
	version    string
	// ConsumedEnvKeys records every environment key the loader consulted.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader. configPath may be empty.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, def string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, def)
}

func (l *Loader) envInt(key string, def int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, def)
}

func (l *Loader) envFloat(key string, def float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, def)
}

func (l *Loader) envDuration(key string, def time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, def)
}

func (l *Loader) envBool(key string, def bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, def)
}

// Load returns the validated configuration.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)
	cfg.Version = l.version

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.Catalog.Path != "" && !filepath.IsAbs(cfg.Catalog.Path) {
		cfg.Catalog.Path = filepath.Join(cfg.DataDir, cfg.Catalog.Path)
	}
	cfg.FFmpeg.ProbeBin = ResolveFFprobeBin(cfg.FFmpeg.ProbeBin, cfg.FFmpeg.Bin)

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	root, err := paths.ResolveHLSRoot(cfg.DataDir, cfg.HLSRoot)
	if err != nil {
		return cfg, fmt.Errorf("resolve hls root: %w", err)
	}
	cfg.HLSRoot = root
	return cfg, nil
}

// loadFile decodes a single strict YAML document over cfg.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- the config path is provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	p := EnvPrefix
	cfg.ListenAddr = l.envString(p+"LISTEN_ADDR", cfg.ListenAddr)
	cfg.LogLevel = l.envString(p+"LOG_LEVEL", cfg.LogLevel)
	cfg.DataDir = l.envString(p+"DATA_DIR", cfg.DataDir)
	cfg.HLSRoot = l.envString(p+"HLS_ROOT", cfg.HLSRoot)
	cfg.Catalog.Path = l.envString(p+"CATALOG_PATH", cfg.Catalog.Path)

	cfg.FFmpeg.Bin = l.envString(p+"FFMPEG_BIN", cfg.FFmpeg.Bin)
	cfg.FFmpeg.ProbeBin = l.envString(p+"FFPROBE_BIN", cfg.FFmpeg.ProbeBin)
	cfg.FFmpeg.StopGrace = l.envDuration(p+"FFMPEG_STOP_GRACE", cfg.FFmpeg.StopGrace)
	cfg.FFmpeg.ProbeTimeout = l.envDuration(p+"FFPROBE_TIMEOUT", cfg.FFmpeg.ProbeTimeout)
	cfg.FFmpeg.LaunchRate = l.envFloat(p+"FFMPEG_LAUNCH_RATE", cfg.FFmpeg.LaunchRate)
	cfg.FFmpeg.LaunchBurst = l.envInt(p+"FFMPEG_LAUNCH_BURST", cfg.FFmpeg.LaunchBurst)

	cfg.Streaming.SegmentDuration = l.envInt(p+"SEGMENT_DURATION", cfg.Streaming.SegmentDuration)
	cfg.Streaming.MaxTranscodes = l.envInt(p+"MAX_TRANSCODES", cfg.Streaming.MaxTranscodes)
	cfg.Streaming.SegmentWaitTimeout = l.envDuration(p+"SEGMENT_WAIT_TIMEOUT", cfg.Streaming.SegmentWaitTimeout)

	cfg.Reaper.Interval = l.envDuration(p+"REAPER_INTERVAL", cfg.Reaper.Interval)
	cfg.Reaper.IdleTimeout = l.envDuration(p+"IDLE_TIMEOUT", cfg.Reaper.IdleTimeout)
	cfg.Reaper.OrphanRetention = l.envDuration(p+"ORPHAN_RETENTION", cfg.Reaper.OrphanRetention)

	cfg.Telemetry.Enabled = l.envBool(p+"TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString(p+"OTLP_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString(p+"OTLP_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.Environment = l.envString(p+"ENVIRONMENT", cfg.Telemetry.Environment)
	cfg.Telemetry.SamplingRate = l.envFloat(p+"TRACE_SAMPLING_RATE", cfg.Telemetry.SamplingRate)

	cfg.RateLimit.Enabled = l.envBool(p+"RATELIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.Requests = l.envInt(p+"RATELIMIT_REQUESTS", cfg.RateLimit.Requests)
	cfg.RateLimit.Window = l.envDuration(p+"RATELIMIT_WINDOW", cfg.RateLimit.Window)
}
