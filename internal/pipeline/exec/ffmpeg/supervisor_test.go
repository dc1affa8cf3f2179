//go:build unix

package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
)

// fakeBin writes an executable shell script that stands in for ffmpeg.
func fakeBin(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func testJob(t *testing.T, label string) model.TranscodeJob {
	job := fullJob("libx264", model.ContainerMPEGTS)
	job.Request.VariantLabel = label
	job.OutputDir = filepath.Join(t.TempDir(), "out", label)
	return job
}

func TestSupervisor_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	// Exits cleanly on the quit key, like ffmpeg.
	sup := NewSupervisor(SupervisorConfig{Bin: fakeBin(t, "touch started; read -r key; exit 0"), StopGrace: 5 * time.Second})
	job := testJob(t, "720p")

	h, err := sup.Start(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "s1/720p", h.ID)
	assert.Equal(t, model.TranscodeActive, h.Status)
	assert.True(t, sup.IsRunning("s1", "720p"))

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(job.OutputDir, "started"))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond, "process should run inside the output dir")

	sup.Stop("s1")
	assert.False(t, sup.IsRunning("s1", "720p"))

	// Idempotent.
	sup.Stop("s1")
}

func TestSupervisor_StopKillsUnresponsiveProcess(t *testing.T) {
	defer goleak.VerifyNone(t)

	sup := NewSupervisor(SupervisorConfig{Bin: fakeBin(t, "trap '' TERM; sleep 30"), StopGrace: 100 * time.Millisecond})
	_, err := sup.Start(context.Background(), testJob(t, "480p"))
	require.NoError(t, err)

	start := time.Now()
	sup.Stop("s1")
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.False(t, sup.IsRunning("s1", "480p"))
}

func TestSupervisor_StopOnlyTargetsSession(t *testing.T) {
	defer goleak.VerifyNone(t)

	sup := NewSupervisor(SupervisorConfig{Bin: fakeBin(t, "read -r key; exit 0")})
	a := testJob(t, "")
	b := testJob(t, "")
	b.Request.SessionID = "s2"

	_, err := sup.Start(context.Background(), a)
	require.NoError(t, err)
	_, err = sup.Start(context.Background(), b)
	require.NoError(t, err)

	sup.Stop("s1")
	assert.False(t, sup.IsRunning("s1", ""))
	assert.True(t, sup.IsRunning("s2", ""))

	sup.Shutdown()
	assert.False(t, sup.IsRunning("s2", ""))
}

func TestSupervisor_ExitedProcessIsNotRunning(t *testing.T) {
	defer goleak.VerifyNone(t)

	sup := NewSupervisor(SupervisorConfig{Bin: fakeBin(t, "echo 'Conversion failed!' >&2; exit 3")})
	_, err := sup.Start(context.Background(), testJob(t, ""))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return !sup.IsRunning("s1", "")
	}, 5*time.Second, 10*time.Millisecond)

	// Stopping an exited session is harmless.
	sup.Stop("s1")
}

func TestSupervisor_LaunchFailure(t *testing.T) {
	sup := NewSupervisor(SupervisorConfig{Bin: filepath.Join(t.TempDir(), "missing-ffmpeg")})
	_, err := sup.Start(context.Background(), testJob(t, ""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrProcessLaunch))
	assert.False(t, sup.IsRunning("s1", ""))
}

func TestSupervisor_LaunchThrottleHonorsContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	sup := NewSupervisor(SupervisorConfig{Bin: fakeBin(t, "read -r key; exit 0"), LaunchRate: 0.001, LaunchBurst: 1})
	defer sup.Shutdown()

	_, err := sup.Start(context.Background(), testJob(t, "720p"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = sup.Start(ctx, testJob(t, "480p"))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrProcessLaunch)
}

func TestProcessKey(t *testing.T) {
	assert.Equal(t, "abc", ProcessKey("abc", model.SingleRendition))
	assert.Equal(t, "abc/1080p", ProcessKey("abc", "1080p"))
}
