package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/manager"
	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
	"github.com/streamarr/streamarr-server-sub001/internal/segment"
)

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*model.StreamSession

	next      *model.StreamSession
	createErr error
	seekErr   error

	lastMediaID  string
	lastOptions  model.StreamingOptions
	lastPosition float64
	inFlight     map[string]int
	acquires     int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		sessions: map[string]*model.StreamSession{},
		inFlight: map[string]int{},
	}
}

func (f *fakeSessions) put(s *model.StreamSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = s
}

func (f *fakeSessions) CreateSession(_ context.Context, mediaFileID string, opts model.StreamingOptions) (*model.StreamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastMediaID = mediaFileID
	f.lastOptions = opts
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.sessions[f.next.ID] = f.next
	return f.next.Clone(), nil
}

func (f *fakeSessions) SeekSession(_ context.Context, id string, position float64) (*model.StreamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seekErr != nil {
		return nil, f.seekErr
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrSessionNotFound, id)
	}
	f.lastPosition = position
	s.SeekPosition = position
	return s.Clone(), nil
}

func (f *fakeSessions) DestroySession(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[id]
	delete(f.sessions, id)
	return ok
}

func (f *fakeSessions) GetSession(id string) (*model.StreamSession, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	return s.Clone(), ok
}

func (f *fakeSessions) AccessSession(id string) (*model.StreamSession, bool) {
	return f.GetSession(id)
}

func (f *fakeSessions) Descriptor(sess *model.StreamSession) manager.Descriptor {
	return manager.Descriptor{
		ID:            sess.ID,
		StreamURL:     "/stream/" + sess.ID + "/master.m3u8",
		TranscodeMode: sess.Decision.Mode,
	}
}

func (f *fakeSessions) Acquire(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", model.ErrSessionNotFound, id)
	}
	f.inFlight[id]++
	f.acquires++
	return nil
}

func (f *fakeSessions) Release(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight[id]--
}

func (f *fakeSessions) SegmentDuration() int { return 6 }

func (f *fakeSessions) inFlightOf(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight[id]
}

func tsSession(id string) *model.StreamSession {
	return &model.StreamSession{
		ID:          id,
		MediaFileID: "m-h264",
		Probe:       model.MediaProbe{VideoCodec: "h264", Width: 1920, Height: 1080, Duration: 20 * time.Second, Bitrate: 8_000_000},
		Decision:    model.TranscodeDecision{Mode: model.ModeRemux, VideoCodecFamily: model.CodecH264, Container: model.ContainerMPEGTS},
		Handles:     map[string]model.TranscodeHandle{model.SingleRendition: {ID: id, Status: model.TranscodeActive}},
		State:       model.SessionActive,
	}
}

func ladderSession(id string) *model.StreamSession {
	return &model.StreamSession{
		ID:          id,
		MediaFileID: "m-hevc",
		Probe:       model.MediaProbe{VideoCodec: "hevc", Width: 1920, Height: 1080, Duration: 12 * time.Second},
		Decision:    model.TranscodeDecision{Mode: model.ModeFullTranscode, VideoCodecFamily: model.CodecHEVC, Container: model.ContainerFMP4},
		Variants: []model.QualityVariant{
			{Label: "1080p", Width: 1920, Height: 1080, VideoBitrate: 8_000_000, AudioBitrate: 192_000},
			{Label: "720p", Width: 1280, Height: 720, VideoBitrate: 4_000_000, AudioBitrate: 128_000},
		},
		Handles: map[string]model.TranscodeHandle{
			"1080p": {ID: id + "/1080p", Status: model.TranscodeActive},
			"720p":  {ID: id + "/720p", Status: model.TranscodeActive},
		},
		State: model.SessionActive,
	}
}

type harness struct {
	sessions *fakeSessions
	store    *segment.FSStore
	handler  http.Handler
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	store, err := segment.NewFSStore(t.TempDir())
	require.NoError(t, err)
	if cfg.SegmentWaitTimeout == 0 {
		cfg.SegmentWaitTimeout = 50 * time.Millisecond
	}
	sessions := newFakeSessions()
	return &harness{
		sessions: sessions,
		store:    store,
		handler:  New(cfg, sessions, store, nil).Handler(),
	}
}

func (h *harness) writeSegment(t *testing.T, sessionID, label, name, body string) {
	t.Helper()
	dir, err := h.store.SessionDir(sessionID, label)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func (h *harness) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}
