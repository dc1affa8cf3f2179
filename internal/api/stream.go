// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/streamarr/streamarr-server-sub001/internal/control/http/problem"
	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/manager"
	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
	"github.com/streamarr/streamarr-server-sub001/internal/log"
	"github.com/streamarr/streamarr-server-sub001/internal/playlist"
	"github.com/streamarr/streamarr-server-sub001/internal/segment"
)

const playlistContentType = "application/vnd.apple.mpegurl"

// pathParam returns the decoded URL parameter, rejecting anything that could
// leave its directory. chi matches on the escaped path, so "%2e%2e" arrives
// here still encoded.
func pathParam(r *http.Request, key string) (string, error) {
	raw := chi.URLParam(r, key)
	if raw == "" {
		return "", nil
	}
	v, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidName, raw)
	}
	if err := segment.ValidateName(v); err != nil {
		return "", err
	}
	return v, nil
}

// rendition resolves the variant label of a stream request. An empty label
// addresses the single rendition and is only valid without a ladder.
func rendition(sess *model.StreamSession, label string) bool {
	if label == model.SingleRendition {
		return !sess.IsABR()
	}
	_, ok := sess.Variant(label)
	return ok
}

func writePlaylist(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", playlistContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (s *Server) handleMasterPlaylist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := s.sessions.AccessSession(id)
	if !ok {
		writeError(w, r, fmt.Errorf("%w: %s", model.ErrSessionNotFound, id))
		return
	}
	writePlaylist(w, playlist.Master(sess))
}

func (s *Server) handleMediaPlaylist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	label, err := pathParam(r, "variant")
	if err != nil {
		writeError(w, r, err)
		return
	}
	sess, ok := s.sessions.AccessSession(id)
	if !ok {
		writeError(w, r, fmt.Errorf("%w: %s", model.ErrSessionNotFound, id))
		return
	}
	if !rendition(sess, label) {
		problem.Write(w, r, http.StatusNotFound, "stream/variant-not-found", "Variant not found", CodeSegmentNotFound, "", nil)
		return
	}
	if !manager.SegmentAvailable(sess, label) {
		writeRenditionFailed(w, r, label)
		return
	}
	writePlaylist(w, playlist.Media(sess, s.sessions.SegmentDuration()))
}

func writeRenditionFailed(w http.ResponseWriter, r *http.Request, label string) {
	problem.Write(w, r, http.StatusServiceUnavailable, "stream/rendition-failed", "Rendition unavailable", CodeRenditionFailed,
		"The transcoder for this rendition is not running. Seek to restart playback.", map[string]any{"variant": label})
}

func segmentContentType(name string) string {
	if name == model.InitSegmentName {
		return model.ContainerFMP4.ContentType()
	}
	switch path.Ext(name) {
	case model.ContainerFMP4.SegmentExtension():
		return model.ContainerFMP4.ContentType()
	default:
		return model.ContainerMPEGTS.ContentType()
	}
}

func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	label, err := pathParam(r, "variant")
	if err != nil {
		writeError(w, r, err)
		return
	}
	name, err := pathParam(r, "segment")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !segment.IsMediaName(name) {
		problem.Write(w, r, http.StatusNotFound, "stream/segment-not-found", "Segment not found", CodeSegmentNotFound, "", nil)
		return
	}

	if err := s.sessions.Acquire(id); err != nil {
		writeError(w, r, err)
		return
	}
	defer s.sessions.Release(id)

	sess, ok := s.sessions.GetSession(id)
	if !ok {
		writeError(w, r, fmt.Errorf("%w: %s", model.ErrSessionNotFound, id))
		return
	}
	if !rendition(sess, label) {
		problem.Write(w, r, http.StatusNotFound, "stream/variant-not-found", "Variant not found", CodeSegmentNotFound, "", nil)
		return
	}
	if !manager.SegmentAvailable(sess, label) {
		writeRenditionFailed(w, r, label)
		return
	}

	rel := segment.Join(label, name)
	logger := log.WithComponentFromContext(r.Context(), "api").With().
		Str(log.FieldSessionID, id).
		Str(log.FieldSegment, rel).
		Logger()

	ready, err := s.segments.WaitForSegment(r.Context(), id, rel, s.cfg.SegmentWaitTimeout)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return
	case err != nil:
		writeError(w, r, err)
		return
	case !ready:
		logger.Debug().Dur("timeout", s.cfg.SegmentWaitTimeout).Msg("segment not produced in time")
		w.Header().Set("Retry-After", "1")
		problem.Write(w, r, http.StatusNotFound, "stream/segment-not-found", "Segment not found", CodeSegmentNotFound, "Segment not produced yet.", nil)
		return
	}

	data, err := s.segments.ReadSegment(id, rel)
	if errors.Is(err, segment.ErrNotFound) {
		// Deleted between wait and read, e.g. by a concurrent seek.
		problem.Write(w, r, http.StatusNotFound, "stream/segment-not-found", "Segment not found", CodeSegmentNotFound, "", nil)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", segmentContentType(name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logger.Debug().Err(err).Msg("segment write aborted")
	}
}
