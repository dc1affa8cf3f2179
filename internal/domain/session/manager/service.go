// SPDX-License-Identifier: MIT

// Package manager runs the streaming session lifecycle: create, access,
// seek and destroy, plus the background reaper.
package manager

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/streamarr/streamarr-server-sub001/internal/control/admission"
	"github.com/streamarr/streamarr-server-sub001/internal/decision"
	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/ports"
	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/registry"
	"github.com/streamarr/streamarr-server-sub001/internal/log"
	"github.com/streamarr/streamarr-server-sub001/internal/metrics"
	"github.com/streamarr/streamarr-server-sub001/internal/pipeline/hardware"
	"github.com/streamarr/streamarr-server-sub001/internal/pipeline/profiles"
	"github.com/streamarr/streamarr-server-sub001/internal/segment"
	"github.com/streamarr/streamarr-server-sub001/internal/telemetry"
)

// DefaultSegmentDuration is the HLS segment length in seconds.
const DefaultSegmentDuration = 6

var tracer = telemetry.Tracer("streamarr/session")

// Config tunes the service.
type Config struct {
	SegmentDuration int // seconds
}

// Deps are the collaborators of the service. All fields are required except
// Registry, Clock and NewID.
type Deps struct {
	Catalog    ports.MediaCatalog
	Prober     ports.Prober
	Supervisor ports.TranscodeSupervisor
	Store      segment.Store
	Capability ports.CapabilitySource
	Admission  admission.CapacityController
	Registry   *registry.Registry
	Clock      func() time.Time
	NewID      func() string
}

// sessionMarker is implemented by stores that can attribute directories to
// sessions on disk.
type sessionMarker interface {
	MarkSession(m segment.Marker) error
}

// Service orchestrates decision, ladder, admission, launch and cleanup.
type Service struct {
	cfg        Config
	catalog    ports.MediaCatalog
	prober     ports.Prober
	supervisor ports.TranscodeSupervisor
	store      segment.Store
	capability ports.CapabilitySource
	admission  admission.CapacityController
	registry   *registry.Registry
	now        func() time.Time
	newID      func() string

	// admitMu makes "count slots in use" and "register session" atomic so
	// concurrent creates cannot both take the last slot.
	admitMu sync.Mutex
	locks   sessionLocks
}

// Descriptor is what the control surface returns for a session.
type Descriptor struct {
	ID            string              `json:"id"`
	StreamURL     string              `json:"streamUrl"`
	TranscodeMode model.TranscodeMode `json:"transcodeMode"`
}

// NewService wires a Service.
func NewService(cfg Config, deps Deps) *Service {
	if cfg.SegmentDuration <= 0 {
		cfg.SegmentDuration = DefaultSegmentDuration
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	reg := deps.Registry
	if reg == nil {
		reg = registry.New().WithClock(now)
	}
	newID := deps.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Service{
		cfg:        cfg,
		catalog:    deps.Catalog,
		prober:     deps.Prober,
		supervisor: deps.Supervisor,
		store:      deps.Store,
		capability: deps.Capability,
		admission:  deps.Admission,
		registry:   reg,
		now:        now,
		newID:      newID,
	}
}

// SegmentDuration returns the configured segment length in seconds.
func (s *Service) SegmentDuration() int { return s.cfg.SegmentDuration }

// Registry exposes the session registry (read paths and the reaper).
func (s *Service) Registry() *registry.Registry { return s.registry }

// CreateSession probes, decides, admits and launches a new session.
func (s *Service) CreateSession(ctx context.Context, mediaFileID string, opts model.StreamingOptions) (_ *model.StreamSession, err error) {
	ctx, span := tracer.Start(ctx, "session.create", trace.WithAttributes(telemetry.SessionAttributes("", mediaFileID)...))
	defer span.End()
	logger := log.WithContext(ctx, log.WithComponent("session")).With().Str(log.FieldMediaFileID, mediaFileID).Logger()

	defer func() {
		if err != nil {
			class := ErrorClass(err)
			metrics.RecordSessionCreateFailure(class)
			telemetry.RecordError(span, err, class)
			logger.Warn().Err(err).Str(log.FieldEvent, "session.create_failed").Str("class", class).Msg("session creation failed")
		}
	}()

	path, err := s.catalog.Lookup(ctx, mediaFileID)
	if err != nil {
		return nil, fmt.Errorf("lookup media %s: %w", mediaFileID, err)
	}

	probe, err := s.prober.Probe(ctx, path)
	if err != nil {
		if errors.Is(err, model.ErrProbeFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", model.ErrProbeFailed, err)
	}
	if probe.VideoCodec == "" {
		return nil, fmt.Errorf("%w: no video stream in %s", model.ErrProbeFailed, path)
	}

	d, reason := decision.DecideWithReason(probe, opts)
	metrics.RecordDecision(string(d.Mode), d.VideoCodecFamily, string(reason))

	var capability model.HardwareEncodingCapability
	if d.Mode == model.ModeFullTranscode {
		capability = s.capability.Get(ctx)
		if !capability.Available {
			return nil, fmt.Errorf("%w: full transcode of %s", model.ErrCapabilityUnavailable, mediaFileID)
		}
	}

	variants := profiles.Ladder(probe, opts, d)
	now := s.now()
	sess := &model.StreamSession{
		ID:           s.newID(),
		MediaFileID:  mediaFileID,
		SourcePath:   path,
		Probe:        probe,
		Decision:     d,
		Options:      opts.Clone(),
		Handles:      map[string]model.TranscodeHandle{},
		State:        model.SessionCreated,
		CreatedAt:    now,
		LastAccessed: now,
	}

	unlock := s.locks.Lock(sess.ID)
	defer unlock()

	if err := s.admit(ctx, sess, variants); err != nil {
		return nil, err
	}

	span.SetAttributes(telemetry.SessionAttributes(sess.ID, "")...)
	span.SetAttributes(telemetry.DecisionAttributes(d, string(reason), len(sess.Variants))...)
	logger = logger.With().Str(log.FieldSessionID, sess.ID).Logger()

	s.mark(sess)
	handles, err := s.launch(ctx, sess, capability, nil)
	if err != nil {
		s.supervisor.Stop(sess.ID)
		if derr := s.store.DeleteSession(sess.ID); derr != nil {
			logger.Warn().Err(derr).Msg("failed to delete segments after launch failure")
		}
		s.registry.Delete(sess.ID)
		s.publishGauges()
		return nil, err
	}

	updated, err := s.registry.Update(sess.ID, func(cur *model.StreamSession) error {
		cur.Handles = handles
		cur.State = model.SessionActive
		return nil
	})
	if err != nil {
		s.supervisor.Stop(sess.ID)
		return nil, err
	}

	metrics.RecordSessionCreated(string(d.Mode))
	s.publishGauges()
	logger.Info().
		Str(log.FieldEvent, "session.created").
		Str(log.FieldMode, string(d.Mode)).
		Str(log.FieldCodec, d.VideoCodecFamily).
		Str(log.FieldContainer, string(d.Container)).
		Str("reason", string(reason)).
		Int("variants", len(updated.Variants)).
		Msg("streaming session created")
	return updated, nil
}

// admit checks capacity and registers the session in one step. A ladder that
// does not fit is truncated to the granted slots.
func (s *Service) admit(ctx context.Context, sess *model.StreamSession, variants []model.QualityVariant) error {
	s.admitMu.Lock()
	defer s.admitMu.Unlock()

	inUse := admission.InUse(s.registry.Snapshot())
	dec := s.admission.Check(ctx, admission.Request{Mode: sess.Decision.Mode, Variants: len(variants)}, admission.RuntimeState{SlotsInUse: inUse})
	if !dec.Allow {
		code := "unknown"
		if dec.Problem != nil {
			code = dec.Problem.Code
		}
		metrics.RecordReject(code)
		if dec.Problem == nil {
			return model.ErrCapacityExceeded
		}
		return dec.Problem
	}

	if dec.Truncated {
		variants = variants[:dec.Slots]
		metrics.RecordLadderTruncated()
	}
	sess.Variants = variants

	if err := s.registry.Put(sess); err != nil {
		return err
	}
	metrics.RecordAdmit(string(sess.Decision.Mode))
	metrics.SetTranscodeSlotsInUse(inUse + admission.Units(sess))
	return nil
}

func (s *Service) mark(sess *model.StreamSession) {
	m, ok := s.store.(sessionMarker)
	if !ok {
		return
	}
	err := m.MarkSession(segment.Marker{SessionID: sess.ID, MediaFileID: sess.MediaFileID, CreatedAt: sess.CreatedAt})
	if err != nil {
		logger := log.WithComponent("session")
		logger.Warn().Err(err).Str(log.FieldSessionID, sess.ID).Msg("failed to write session marker")
	}
}

// launch starts one process per target. On error the handles started so far
// are returned so the caller can account for them; the caller stops them.
func (s *Service) launch(ctx context.Context, sess *model.StreamSession, capability model.HardwareEncodingCapability, startNumber *int) (map[string]model.TranscodeHandle, error) {
	encoder := ""
	if sess.Decision.Mode == model.ModeFullTranscode {
		if !capability.Available {
			return nil, fmt.Errorf("%w: full transcode of %s", model.ErrCapabilityUnavailable, sess.MediaFileID)
		}
		encoder = hardware.ResolveEncoder(capability, sess.Decision.VideoCodecFamily)
	}

	handles := make(map[string]model.TranscodeHandle)
	for _, v := range profiles.Targets(sess) {
		dir, err := s.store.SessionDir(sess.ID, v.Label)
		if err != nil {
			return handles, err
		}

		var sn *int
		if startNumber != nil {
			n := *startNumber
			sn = &n
		}
		job := model.TranscodeJob{
			Request: model.TranscodeRequest{
				SessionID:       sess.ID,
				SourcePath:      sess.SourcePath,
				SeekPosition:    sess.SeekPosition,
				SegmentDuration: s.cfg.SegmentDuration,
				Framerate:       sess.Probe.Framerate,
				Decision:        sess.Decision,
				Width:           v.Width,
				Height:          v.Height,
				Bitrate:         v.VideoBitrate,
				AudioBitrate:    v.AudioBitrate,
				VariantLabel:    v.Label,
				StartNumber:     sn,
			},
			Encoder:   encoder,
			OutputDir: dir,
		}

		_, span := tracer.Start(ctx, "transcode.launch", trace.WithAttributes(
			telemetry.TranscodeAttributes(sess.Probe.VideoCodec, encoder, v.Label, v.VideoBitrate, v.Height, hardware.IsHardwareEncoder(encoder))...,
		))
		h, err := s.supervisor.Start(ctx, job)
		if err != nil {
			telemetry.RecordError(span, err, ClassLaunch)
			span.End()
			return handles, err
		}
		span.End()
		handles[v.Label] = h
	}
	return handles, nil
}

// AccessSession refreshes the last-accessed time and returns the session.
func (s *Service) AccessSession(id string) (*model.StreamSession, bool) {
	sess, err := s.registry.Touch(id)
	if err != nil {
		return nil, false
	}
	return sess, true
}

// GetSession returns the session without touching it.
func (s *Service) GetSession(id string) (*model.StreamSession, bool) {
	return s.registry.Get(id)
}

// SeekSession restarts the session's transcodes at position (seconds). The
// old processes are stopped and their segments deleted before relaunch.
func (s *Service) SeekSession(ctx context.Context, id string, position float64) (_ *model.StreamSession, err error) {
	ctx, span := tracer.Start(ctx, "session.seek", trace.WithAttributes(telemetry.SessionAttributes(id, "")...))
	defer span.End()
	logger := log.WithContext(ctx, log.WithComponent("session")).With().Str(log.FieldSessionID, id).Logger()

	if position < 0 || math.IsNaN(position) || math.IsInf(position, 0) {
		position = 0
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	sess, ok := s.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrSessionNotFound, id)
	}
	if end := sess.Probe.Duration.Seconds(); end > 0 && position > end {
		position = end
	}

	var capability model.HardwareEncodingCapability
	if sess.Decision.Mode == model.ModeFullTranscode {
		capability = s.capability.Get(ctx)
	}

	s.supervisor.Stop(id)
	if err := s.store.DeleteSession(id); err != nil {
		logger.Warn().Err(err).Msg("failed to delete segments before seek")
	}

	now := s.now()
	sess, err = s.registry.Update(id, func(cur *model.StreamSession) error {
		cur.SeekPosition = position
		cur.Handles = map[string]model.TranscodeHandle{}
		cur.LastAccessed = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mark(sess)
	startNumber := int(math.Floor(position / float64(s.cfg.SegmentDuration)))
	handles, err := s.launch(ctx, sess, capability, &startNumber)
	if err != nil {
		s.supervisor.Stop(id)
		telemetry.RecordError(span, err, ErrorClass(err))
		// Every rendition is unavailable until the next successful seek.
		_, _ = s.registry.Update(id, func(cur *model.StreamSession) error {
			cur.Handles = failedHandles(cur, handles)
			return nil
		})
		logger.Warn().Err(err).Str(log.FieldEvent, "session.seek_failed").Float64(log.FieldPosition, position).Msg("relaunch after seek failed")
		return nil, err
	}

	sess, err = s.registry.Update(id, func(cur *model.StreamSession) error {
		cur.Handles = handles
		cur.State = model.SessionActive
		return nil
	})
	if err != nil {
		s.supervisor.Stop(id)
		return nil, err
	}

	metrics.RecordSeek()
	logger.Info().
		Str(log.FieldEvent, "session.seeked").
		Float64(log.FieldPosition, position).
		Int("start_number", startNumber).
		Msg("session seeked")
	return sess, nil
}

func failedHandles(sess *model.StreamSession, started map[string]model.TranscodeHandle) map[string]model.TranscodeHandle {
	out := make(map[string]model.TranscodeHandle)
	for _, v := range profiles.Targets(sess) {
		h := started[v.Label]
		if h.ID == "" {
			h.ID = v.Label
		}
		h.Status = model.TranscodeFailed
		out[v.Label] = h
	}
	return out
}

// DestroySession stops and removes the session. It reports whether the
// session existed; destroying an unknown id is a no-op.
func (s *Service) DestroySession(id string) bool {
	return s.destroyIf(id, "client", nil)
}

// destroyIf destroys the session when pred (evaluated under the session lock)
// allows it.
func (s *Service) destroyIf(id, reason string, pred func(*model.StreamSession) bool) bool {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, ok := s.registry.Get(id)
	if !ok {
		return false
	}
	if pred != nil && !pred(sess) {
		return false
	}

	logger := log.WithComponent("session")
	// Processes first so nothing writes into a deleted directory.
	s.supervisor.Stop(id)
	if err := s.store.DeleteSession(id); err != nil {
		logger.Warn().Err(err).Str(log.FieldSessionID, id).Msg("failed to delete session segments")
	}
	if _, ok := s.registry.Delete(id); !ok {
		return false
	}

	metrics.RecordSessionDestroyed(reason)
	s.publishGauges()
	logger.Info().
		Str(log.FieldSessionID, id).
		Str(log.FieldEvent, "session.destroyed").
		Str("reason", reason).
		Dur("age", s.now().Sub(sess.CreatedAt)).
		Msg("streaming session destroyed")
	return true
}

// Shutdown destroys every session.
func (s *Service) Shutdown() {
	for _, sess := range s.registry.Snapshot() {
		s.destroyIf(sess.ID, "shutdown", nil)
	}
}

// Descriptor renders the control-surface view of a session.
func (s *Service) Descriptor(sess *model.StreamSession) Descriptor {
	return Descriptor{
		ID:            sess.ID,
		StreamURL:     fmt.Sprintf("/stream/%s/master.m3u8", sess.ID),
		TranscodeMode: sess.Decision.Mode,
	}
}

// Acquire marks a request in flight; the reaper never destroys a session
// with requests in flight.
func (s *Service) Acquire(id string) error {
	return s.registry.Acquire(id)
}

// Release ends an in-flight request.
func (s *Service) Release(id string) {
	s.registry.Release(id)
}

// SegmentAvailable reports whether the rendition can serve segments. A
// FAILED or missing handle cannot.
func SegmentAvailable(sess *model.StreamSession, label string) bool {
	h, ok := sess.Handles[label]
	return ok && h.Status == model.TranscodeActive
}

func (s *Service) publishGauges() {
	snap := s.registry.Snapshot()
	metrics.SetSessionsActive(len(snap))
	metrics.SetTranscodeSlotsInUse(admission.InUse(snap))
}
