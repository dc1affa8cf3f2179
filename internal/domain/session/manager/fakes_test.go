package manager

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/streamarr/streamarr-server-sub001/internal/control/admission"
	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
	"github.com/streamarr/streamarr-server-sub001/internal/pipeline/exec/ffmpeg"
	"github.com/streamarr/streamarr-server-sub001/internal/segment"
)

type fakeCatalog map[string]string

func (c fakeCatalog) Lookup(_ context.Context, id string) (string, error) {
	p, ok := c[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", model.ErrMediaNotFound, id)
	}
	return p, nil
}

type fakeProber struct {
	probes map[string]model.MediaProbe
	err    error
}

func (p *fakeProber) Probe(_ context.Context, path string) (model.MediaProbe, error) {
	if p.err != nil {
		return model.MediaProbe{}, p.err
	}
	return p.probes[path], nil
}

type fakeCapability struct{ cap model.HardwareEncodingCapability }

func (f fakeCapability) Get(context.Context) model.HardwareEncodingCapability { return f.cap }

// fakeSupervisor tracks "processes" in memory.
type fakeSupervisor struct {
	mu      sync.Mutex
	jobs    []model.TranscodeJob
	running map[string]bool
	stops   []string
	failAt  int // 1-based Start call that fails; 0 never
	calls   int
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{running: map[string]bool{}}
}

func (f *fakeSupervisor) Start(_ context.Context, job model.TranscodeJob) (model.TranscodeHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAt > 0 && f.calls == f.failAt {
		return model.TranscodeHandle{}, fmt.Errorf("%w: exec: no such file", model.ErrProcessLaunch)
	}
	f.jobs = append(f.jobs, job)
	key := ffmpeg.ProcessKey(job.Request.SessionID, job.Request.VariantLabel)
	f.running[key] = true
	return model.TranscodeHandle{ID: key, Status: model.TranscodeActive}, nil
}

func (f *fakeSupervisor) Stop(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, sessionID)
	for key := range f.running {
		if key == sessionID || len(key) > len(sessionID) && key[:len(sessionID)+1] == sessionID+"/" {
			delete(f.running, key)
		}
	}
}

func (f *fakeSupervisor) IsRunning(sessionID, label string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[ffmpeg.ProcessKey(sessionID, label)]
}

func (f *fakeSupervisor) kill(sessionID, label string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.running, ffmpeg.ProcessKey(sessionID, label))
}

func (f *fakeSupervisor) runningCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.running)
}

func (f *fakeSupervisor) startedJobs() []model.TranscodeJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.TranscodeJob(nil), f.jobs...)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var (
	probeH264_1080 = model.MediaProbe{VideoCodec: "h264", AudioCodec: "aac", Width: 1920, Height: 1080, Framerate: 24, Duration: 2 * time.Hour, Bitrate: 8_000_000}
	probeHEVC_1080 = model.MediaProbe{VideoCodec: "hevc", AudioCodec: "aac", Width: 1920, Height: 1080, Framerate: 24, Duration: 2 * time.Hour, Bitrate: 10_000_000}
	probeHEVC_720  = model.MediaProbe{VideoCodec: "hevc", AudioCodec: "aac", Width: 1280, Height: 720, Framerate: 25, Duration: time.Hour, Bitrate: 4_000_000}
)

type harness struct {
	svc   *Service
	sup   *fakeSupervisor
	store *segment.FSStore
	clock *fakeClock
	prob  *fakeProber
}

type harnessOpt func(*Deps)

func withCapability(c model.HardwareEncodingCapability) harnessOpt {
	return func(d *Deps) { d.Capability = fakeCapability{cap: c} }
}

func newHarness(t *testing.T, maxTranscodes int, opts ...harnessOpt) *harness {
	t.Helper()
	store, err := segment.NewFSStore(t.TempDir())
	require.NoError(t, err)

	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	sup := newFakeSupervisor()
	prob := &fakeProber{probes: map[string]model.MediaProbe{
		"/media/h264.mkv":     probeH264_1080,
		"/media/hevc.mkv":     probeHEVC_1080,
		"/media/hevc-720.mkv": probeHEVC_720,
	}}
	n := 0
	deps := Deps{
		Catalog: fakeCatalog{
			"m-h264":     "/media/h264.mkv",
			"m-hevc":     "/media/hevc.mkv",
			"m-hevc-720": "/media/hevc-720.mkv",
		},
		Prober:     prob,
		Supervisor: sup,
		Store:      store,
		Capability: fakeCapability{cap: model.HardwareEncodingCapability{Available: true}},
		Admission:  admission.NewController(maxTranscodes),
		Clock:      clock.Now,
		NewID: func() string {
			n++
			return fmt.Sprintf("sess-%d", n)
		},
	}
	for _, o := range opts {
		o(&deps)
	}
	return &harness{
		svc:   NewService(Config{SegmentDuration: 6}, deps),
		sup:   sup,
		store: store,
		clock: clock,
		prob:  prob,
	}
}
