// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"time"

	"github.com/streamarr/streamarr-server-sub001/internal/validate"
)

var (
	logLevels = []string{"trace", "debug", "info", "warn", "error"}
	exporters = []string{"grpc", "http"}
)

// Validate checks the effective configuration.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.ListenAddr("ListenAddr", cfg.ListenAddr)
	v.OneOf("LogLevel", cfg.LogLevel, logLevels)
	v.Directory("DataDir", cfg.DataDir, false)
	v.NotEmpty("Catalog.Path", cfg.Catalog.Path)

	seen := make(map[string]struct{}, len(cfg.Catalog.Roots))
	for i, r := range cfg.Catalog.Roots {
		field := fmt.Sprintf("Catalog.Roots[%d]", i)
		v.NotEmpty(field+".ID", r.ID)
		v.Directory(field+".Path", r.Path, true)
		if r.MaxDepth < 0 {
			v.AddError(field+".MaxDepth", "cannot be negative", r.MaxDepth)
		}
		if _, dup := seen[r.ID]; dup {
			v.AddError(field+".ID", "duplicate library root id", r.ID)
		}
		seen[r.ID] = struct{}{}
	}

	v.NotEmpty("FFmpeg.Bin", cfg.FFmpeg.Bin)
	v.MinDuration("FFmpeg.StopGrace", cfg.FFmpeg.StopGrace, 100*time.Millisecond)
	v.MinDuration("FFmpeg.ProbeTimeout", cfg.FFmpeg.ProbeTimeout, time.Second)
	if cfg.FFmpeg.LaunchRate < 0 {
		v.AddError("FFmpeg.LaunchRate", "cannot be negative", cfg.FFmpeg.LaunchRate)
	}
	if cfg.FFmpeg.LaunchRate > 0 {
		v.Positive("FFmpeg.LaunchBurst", cfg.FFmpeg.LaunchBurst)
	}

	v.Range("Streaming.SegmentDuration", cfg.Streaming.SegmentDuration, 1, 30)
	v.Positive("Streaming.MaxTranscodes", cfg.Streaming.MaxTranscodes)
	v.MinDuration("Streaming.SegmentWaitTimeout", cfg.Streaming.SegmentWaitTimeout, time.Second)

	v.MinDuration("Reaper.Interval", cfg.Reaper.Interval, time.Second)
	v.MinDuration("Reaper.IdleTimeout", cfg.Reaper.IdleTimeout, time.Second)
	if cfg.Reaper.OrphanRetention < 0 {
		v.AddError("Reaper.OrphanRetention", "cannot be negative", cfg.Reaper.OrphanRetention)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, exporters)
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("Telemetry.SamplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	if cfg.RateLimit.Enabled {
		v.Positive("RateLimit.Requests", cfg.RateLimit.Requests)
		v.MinDuration("RateLimit.Window", cfg.RateLimit.Window, time.Second)
	}

	return v.Err()
}
