// SPDX-License-Identifier: MIT

package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
	"github.com/streamarr/streamarr-server-sub001/internal/log"
	"github.com/streamarr/streamarr-server-sub001/internal/metrics"
	"github.com/streamarr/streamarr-server-sub001/internal/procgroup"
)

const (
	defaultStopGrace = 5 * time.Second
	stderrRingLines  = 256
	stderrTailLines  = 20
)

// SupervisorConfig configures process launching.
type SupervisorConfig struct {
	Bin       string
	StopGrace time.Duration
	// LaunchRate is the sustained number of launches per second. Zero disables throttling.
	LaunchRate  float64
	LaunchBurst int
}

// Supervisor owns the ffmpeg processes of all sessions, keyed by session and
// variant label.
type Supervisor struct {
	bin       string
	stopGrace time.Duration
	limiter   *rate.Limiter

	mu    sync.Mutex
	procs map[string]*process
}

type process struct {
	sessionID string
	label     string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	ring      *LineRing

	waitCh   chan error
	done     chan struct{}
	stopping atomic.Bool
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	bin := cfg.Bin
	if bin == "" {
		bin = "ffmpeg"
	}
	grace := cfg.StopGrace
	if grace <= 0 {
		grace = defaultStopGrace
	}
	limit := rate.Inf
	if cfg.LaunchRate > 0 {
		limit = rate.Limit(cfg.LaunchRate)
	}
	burst := cfg.LaunchBurst
	if burst < 1 {
		burst = 1
	}
	return &Supervisor{
		bin:       bin,
		stopGrace: grace,
		limiter:   rate.NewLimiter(limit, burst),
		procs:     make(map[string]*process),
	}
}

// ProcessKey is the handle id of a session variant process.
func ProcessKey(sessionID, label string) string {
	if label == model.SingleRendition {
		return sessionID
	}
	return sessionID + "/" + label
}

// Start launches the process for job and returns its handle. The process
// outlives ctx; ctx only bounds the launch throttle.
func (s *Supervisor) Start(ctx context.Context, job model.TranscodeJob) (model.TranscodeHandle, error) {
	req := job.Request
	key := ProcessKey(req.SessionID, req.VariantLabel)
	logger := log.WithContext(ctx, log.WithComponent("ffmpeg")).With().
		Str(log.FieldSessionID, req.SessionID).
		Str(log.FieldVariant, req.VariantLabel).
		Logger()

	if err := s.limiter.Wait(ctx); err != nil {
		metrics.RecordTranscodeStart("throttled")
		return model.TranscodeHandle{}, fmt.Errorf("%w: launch throttle: %v", model.ErrProcessLaunch, err)
	}

	// A relaunch under the same key replaces the previous process.
	s.stopKeys([]string{key})

	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		metrics.RecordTranscodeStart("error")
		return model.TranscodeHandle{}, fmt.Errorf("%w: create output dir: %v", model.ErrProcessLaunch, err)
	}

	argv := BuildCommand(s.bin, job)
	cmd := exec.Command(argv[0], argv[1:]...) // #nosec G204 -- argv is built from validated session state
	cmd.Dir = job.OutputDir
	procgroup.Set(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		metrics.RecordTranscodeStart("error")
		return model.TranscodeHandle{}, fmt.Errorf("%w: stdin pipe: %v", model.ErrProcessLaunch, err)
	}
	ring := NewLineRing(stderrRingLines)
	cmd.Stderr = ring

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		metrics.RecordTranscodeStart("error")
		logger.Error().Err(err).Str(log.FieldEvent, "transcode.launch_failed").Msg("ffmpeg failed to start")
		return model.TranscodeHandle{}, fmt.Errorf("%w: %v", model.ErrProcessLaunch, err)
	}

	p := &process{
		sessionID: req.SessionID,
		label:     req.VariantLabel,
		cmd:       cmd,
		stdin:     stdin,
		ring:      ring,
		waitCh:    make(chan error, 1),
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	s.procs[key] = p
	running := len(s.procs)
	s.mu.Unlock()

	metrics.RecordTranscodeStart("ok")
	metrics.SetTranscodersRunning(running)
	logger.Info().
		Str(log.FieldEvent, "transcode.started").
		Int(log.FieldPID, cmd.Process.Pid).
		Str(log.FieldEncoder, job.Encoder).
		Str(log.FieldMode, string(req.Decision.Mode)).
		Float64(log.FieldPosition, req.SeekPosition).
		Msg("ffmpeg started")

	go s.wait(p, logger)

	return model.TranscodeHandle{ID: key, Status: model.TranscodeActive}, nil
}

func (s *Supervisor) wait(p *process, logger zerolog.Logger) {
	err := p.cmd.Wait()
	p.waitCh <- err
	close(p.done)

	switch {
	case p.stopping.Load():
		metrics.RecordTranscodeExit("stopped")
	case err == nil:
		metrics.RecordTranscodeExit("completed")
		logger.Info().Str(log.FieldEvent, "transcode.completed").Msg("ffmpeg finished")
	default:
		metrics.RecordTranscodeExit("failed")
		var exitErr *exec.ExitError
		code := -1
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		logger.Warn().
			Err(err).
			Str(log.FieldEvent, "transcode.failed").
			Int("exit_code", code).
			Str("stderr_tail", strings.Join(p.ring.LastN(stderrTailLines), "\n")).
			Msg("ffmpeg exited with error")
	}
}

// Stop quits every process of the session. It is idempotent.
func (s *Supervisor) Stop(sessionID string) {
	s.mu.Lock()
	var keys []string
	for key, p := range s.procs {
		if p.sessionID == sessionID {
			keys = append(keys, key)
		}
	}
	s.mu.Unlock()

	s.stopKeys(keys)
}

func (s *Supervisor) stopKeys(keys []string) {
	s.mu.Lock()
	victims := make([]*process, 0, len(keys))
	for _, key := range keys {
		if p, ok := s.procs[key]; ok {
			delete(s.procs, key)
			victims = append(victims, p)
		}
	}
	running := len(s.procs)
	s.mu.Unlock()

	if len(victims) == 0 {
		return
	}
	metrics.SetTranscodersRunning(running)

	var wg sync.WaitGroup
	for _, p := range victims {
		wg.Add(1)
		go func(p *process) {
			defer wg.Done()
			p.stopping.Store(true)
			if p.exited() {
				_ = p.stdin.Close()
				return
			}
			_ = procgroup.Quit(p.cmd, p.stdin, p.waitCh, s.stopGrace)
			log.L().Debug().
				Str(log.FieldSessionID, p.sessionID).
				Str(log.FieldVariant, p.label).
				Str(log.FieldEvent, "transcode.stopped").
				Msg("ffmpeg stopped")
		}(p)
	}
	wg.Wait()
}

// IsRunning reports whether the variant process is alive. Exited entries are
// dropped on observation.
func (s *Supervisor) IsRunning(sessionID, label string) bool {
	key := ProcessKey(sessionID, label)

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.procs[key]
	if !ok {
		return false
	}
	if p.exited() {
		delete(s.procs, key)
		metrics.SetTranscodersRunning(len(s.procs))
		return false
	}
	return true
}

// Shutdown stops all supervised processes.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	keys := make([]string, 0, len(s.procs))
	for key := range s.procs {
		keys = append(keys, key)
	}
	s.mu.Unlock()

	s.stopKeys(keys)
}
