// SPDX-License-Identifier: MIT

// Package validation runs pre-flight checks before the server starts.
package validation

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/streamarr/streamarr-server-sub001/internal/config"
	"github.com/streamarr/streamarr-server-sub001/internal/log"
)

// LookPath resolves binaries; tests replace it.
var LookPath = exec.LookPath

// PerformStartupChecks verifies writable directories and resolvable
// transcoder binaries.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	for _, dir := range []struct{ name, path string }{
		{"data directory", cfg.DataDir},
		{"hls root", cfg.HLSRoot},
		{"catalog directory", filepath.Dir(cfg.Catalog.Path)},
	} {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := checkWritable(logger, dir.path); err != nil {
			return fmt.Errorf("%s check failed: %w", dir.name, err)
		}
	}

	for _, bin := range []string{cfg.FFmpeg.Bin, cfg.FFmpeg.ProbeBin} {
		p, err := LookPath(bin)
		if err != nil {
			return fmt.Errorf("binary %q not found: %w", bin, err)
		}
		logger.Info().Str("bin", bin).Str(log.FieldPath, p).Msg("binary resolved")
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkWritable(logger zerolog.Logger, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	probe := filepath.Join(path, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", path, err)
	}
	_ = os.Remove(probe)

	logger.Debug().Str(log.FieldPath, path).Msg("directory is writable")
	return nil
}
