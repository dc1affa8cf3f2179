package validation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamarr/streamarr-server-sub001/internal/config"
)

func testConfig(t *testing.T) config.AppConfig {
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	cfg.HLSRoot = filepath.Join(cfg.DataDir, "hls")
	cfg.Catalog.Path = filepath.Join(cfg.DataDir, "catalog.sqlite")
	cfg.FFmpeg.ProbeBin = "ffprobe"
	require.NoError(t, os.MkdirAll(cfg.HLSRoot, 0o755))
	return cfg
}

func stubLookPath(t *testing.T, fn func(string) (string, error)) {
	orig := LookPath
	LookPath = fn
	t.Cleanup(func() { LookPath = orig })
}

func TestPerformStartupChecks(t *testing.T) {
	stubLookPath(t, func(bin string) (string, error) { return "/usr/bin/" + bin, nil })
	require.NoError(t, PerformStartupChecks(context.Background(), testConfig(t)))
}

func TestPerformStartupChecks_MissingBinary(t *testing.T) {
	stubLookPath(t, func(bin string) (string, error) {
		if bin == "ffprobe" {
			return "", errors.New("executable file not found in $PATH")
		}
		return "/usr/bin/" + bin, nil
	})
	err := PerformStartupChecks(context.Background(), testConfig(t))
	assert.ErrorContains(t, err, `"ffprobe" not found`)
}

func TestPerformStartupChecks_MissingHLSRoot(t *testing.T) {
	stubLookPath(t, func(bin string) (string, error) { return bin, nil })
	cfg := testConfig(t)
	cfg.HLSRoot = filepath.Join(cfg.DataDir, "absent")
	err := PerformStartupChecks(context.Background(), cfg)
	assert.ErrorContains(t, err, "hls root")
}
