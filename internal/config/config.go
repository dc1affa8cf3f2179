// SPDX-License-Identifier: MIT

// Package config loads the server configuration.
//
// Precedence: defaults, then the YAML file, then STREAMARR_* environment
// variables. The result is validated before use.
package config

import "time"

// AppConfig is the effective configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	ListenAddr string `yaml:"listenAddr"`
	LogLevel   string `yaml:"logLevel"`
	DataDir    string `yaml:"dataDir"`
	HLSRoot    string `yaml:"hlsRoot"`

	Catalog   CatalogConfig   `yaml:"catalog"`
	FFmpeg    FFmpegConfig    `yaml:"ffmpeg"`
	Streaming StreamingConfig `yaml:"streaming"`
	Reaper    ReaperConfig    `yaml:"reaper"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
}

// CatalogConfig locates the media catalog and the trees indexed into it.
type CatalogConfig struct {
	Path  string        `yaml:"path"` // relative paths live under DataDir
	Roots []LibraryRoot `yaml:"roots"`
}

// LibraryRoot is one directory tree scanned at startup.
type LibraryRoot struct {
	ID         string   `yaml:"id"`
	Path       string   `yaml:"path"`
	MaxDepth   int      `yaml:"maxDepth"`
	Extensions []string `yaml:"extensions"`
}

// FFmpegConfig configures the transcoder binaries.
type FFmpegConfig struct {
	Bin          string        `yaml:"bin"`
	ProbeBin     string        `yaml:"probeBin"`
	StopGrace    time.Duration `yaml:"stopGrace"`
	ProbeTimeout time.Duration `yaml:"probeTimeout"`
	LaunchRate   float64       `yaml:"launchRate"` // launches per second, 0 = unlimited
	LaunchBurst  int           `yaml:"launchBurst"`
}

// StreamingConfig tunes sessions and segment delivery.
type StreamingConfig struct {
	SegmentDuration    int           `yaml:"segmentDuration"` // seconds
	MaxTranscodes      int           `yaml:"maxTranscodes"`
	SegmentWaitTimeout time.Duration `yaml:"segmentWaitTimeout"`
}

// ReaperConfig tunes the background session sweep.
type ReaperConfig struct {
	Interval        time.Duration `yaml:"interval"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	OrphanRetention time.Duration `yaml:"orphanRetention"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // grpc | http
	Endpoint     string  `yaml:"endpoint"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// RateLimitConfig limits the session control endpoints per client IP.
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		ListenAddr: ":8080",
		LogLevel:   "info",
		DataDir:    "/var/lib/streamarr",
		Catalog: CatalogConfig{
			Path: "catalog.sqlite",
		},
		FFmpeg: FFmpegConfig{
			Bin:          "ffmpeg",
			StopGrace:    5 * time.Second,
			ProbeTimeout: 15 * time.Second,
			LaunchRate:   4,
			LaunchBurst:  8,
		},
		Streaming: StreamingConfig{
			SegmentDuration:    6,
			MaxTranscodes:      4,
			SegmentWaitTimeout: 30 * time.Second,
		},
		Reaper: ReaperConfig{
			Interval:        time.Minute,
			IdleTimeout:     5 * time.Minute,
			OrphanRetention: time.Hour,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			Environment:  "production",
			SamplingRate: 1.0,
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: 60,
			Window:   time.Minute,
		},
	}
}
