// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/streamarr/streamarr-server-sub001/internal/control/http/problem"
	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
	"github.com/streamarr/streamarr-server-sub001/internal/log"
	"github.com/streamarr/streamarr-server-sub001/internal/pipeline/profiles"
)

const maxBodyBytes = 64 << 10

type createSessionRequest struct {
	MediaFileID string                 `json:"mediaFileId"`
	Options     model.StreamingOptions `json:"options"`
}

type seekRequest struct {
	Position *float64 `json:"position"`
}

// VariantSummary is one rendition in a session summary.
type VariantSummary struct {
	Label     string `json:"label"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Bandwidth int64  `json:"bandwidth"`
	Status    string `json:"status,omitempty"`
}

// SessionSummary is the read model of GET /api/v1/sessions/{id}.
type SessionSummary struct {
	ID            string              `json:"id"`
	MediaFileID   string              `json:"mediaFileId"`
	State         model.SessionState  `json:"state"`
	TranscodeMode model.TranscodeMode `json:"transcodeMode"`
	VideoCodec    string              `json:"videoCodec"`
	Container     string              `json:"container"`
	SeekPosition  float64             `json:"seekPosition"`
	Variants      []VariantSummary    `json:"variants"`
	CreatedAt     time.Time           `json:"createdAt"`
	LastAccessed  time.Time           `json:"lastAccessed"`
	StreamURL     string              `json:"streamUrl"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body", CodeInvalidInput, err.Error(), nil)
		return false
	}
	return true
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.MediaFileID = strings.TrimSpace(req.MediaFileID)
	if req.MediaFileID == "" {
		problem.Write(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body", CodeInvalidInput, "mediaFileId is required", nil)
		return
	}
	quality, err := profiles.ParseQuality(string(req.Options.Quality))
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body", CodeInvalidInput, err.Error(), nil)
		return
	}
	req.Options.Quality = quality

	sess, err := s.sessions.CreateSession(r.Context(), req.MediaFileID, req.Options)
	if err != nil {
		writeError(w, r, err)
		return
	}
	desc := s.sessions.Descriptor(sess)
	w.Header().Set("Location", fmt.Sprintf("/api/v1/sessions/%s", sess.ID))
	writeJSON(w, r, http.StatusCreated, desc)
}

func (s *Server) handleSeekSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req seekRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Position == nil {
		problem.Write(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body", CodeInvalidInput, "position is required", nil)
		return
	}

	sess, err := s.sessions.SeekSession(r.Context(), id, *req.Position)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, s.sessions.Descriptor(sess))
}

func (s *Server) handleDestroySession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.sessions.DestroySession(id) {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Debug().Str(log.FieldSessionID, id).Msg("destroy of unknown session")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := s.sessions.GetSession(id)
	if !ok {
		writeError(w, r, fmt.Errorf("%w: %s", model.ErrSessionNotFound, id))
		return
	}
	writeJSON(w, r, http.StatusOK, s.summary(sess))
}

func (s *Server) summary(sess *model.StreamSession) SessionSummary {
	out := SessionSummary{
		ID:            sess.ID,
		MediaFileID:   sess.MediaFileID,
		State:         sess.State,
		TranscodeMode: sess.Decision.Mode,
		VideoCodec:    sess.Decision.VideoCodecFamily,
		Container:     string(sess.Decision.Container),
		SeekPosition:  sess.SeekPosition,
		CreatedAt:     sess.CreatedAt,
		LastAccessed:  sess.LastAccessed,
		StreamURL:     s.sessions.Descriptor(sess).StreamURL,
	}
	for _, v := range profiles.Targets(sess) {
		out.Variants = append(out.Variants, VariantSummary{
			Label:     v.Label,
			Width:     v.Width,
			Height:    v.Height,
			Bandwidth: v.VideoBitrate + v.AudioBitrate,
			Status:    string(sess.Handles[v.Label].Status),
		})
	}
	return out
}
