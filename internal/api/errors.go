// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/streamarr/streamarr-server-sub001/internal/control/admission"
	"github.com/streamarr/streamarr-server-sub001/internal/control/http/problem"
	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
	"github.com/streamarr/streamarr-server-sub001/internal/log"
)

// Problem codes of the streaming surface (stable).
const (
	CodeInvalidInput          = "INVALID_INPUT"
	CodeInvalidName           = "INVALID_PATH_COMPONENT"
	CodeSessionNotFound       = "SESSION_NOT_FOUND"
	CodeMediaNotFound         = "MEDIA_NOT_FOUND"
	CodeSegmentNotFound       = "SEGMENT_NOT_FOUND"
	CodeProbeFailed           = "PROBE_FAILED"
	CodeCapabilityUnavailable = "TRANSCODER_UNAVAILABLE"
	CodeRenditionFailed       = "RENDITION_FAILED"
	CodeLaunchFailed          = "TRANSCODE_LAUNCH_FAILED"
	CodeInternal              = "INTERNAL_ERROR"
)

// writeError maps a service error to its problem response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ap *admission.Problem
	switch {
	case errors.As(err, &ap):
		admission.WriteProblem(w, r, ap, admission.DefaultRetryAfterSeconds)
	case errors.Is(err, model.ErrInvalidName):
		problem.Write(w, r, http.StatusBadRequest, "stream/invalid-name", "Invalid path component", CodeInvalidName, err.Error(), nil)
	case errors.Is(err, model.ErrSessionNotFound):
		problem.Write(w, r, http.StatusNotFound, "session/not-found", "Session not found", CodeSessionNotFound, err.Error(), nil)
	case errors.Is(err, model.ErrMediaNotFound):
		problem.Write(w, r, http.StatusNotFound, "media/not-found", "Media file not found", CodeMediaNotFound, err.Error(), nil)
	case errors.Is(err, model.ErrProbeFailed):
		problem.Write(w, r, http.StatusUnprocessableEntity, "media/probe-failed", "Media probe failed", CodeProbeFailed, err.Error(), nil)
	case errors.Is(err, model.ErrCapabilityUnavailable):
		problem.Write(w, r, http.StatusServiceUnavailable, "transcoder/unavailable", "Transcoder unavailable", CodeCapabilityUnavailable, err.Error(), nil)
	case errors.Is(err, model.ErrCapacityExceeded):
		w.Header().Set("Retry-After", "5")
		problem.Write(w, r, http.StatusServiceUnavailable, "admission/transcodes-full", "Transcode capacity exceeded", admission.CodeTranscodesFull, "", nil)
	case errors.Is(err, model.ErrProcessLaunch):
		problem.Write(w, r, http.StatusInternalServerError, "transcoder/launch-failed", "Transcoder launch failed", CodeLaunchFailed, "The transcoder process could not be started.", nil)
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the body.
		w.WriteHeader(499)
	default:
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Msg("unhandled service error")
		problem.Write(w, r, http.StatusInternalServerError, "server/internal", "Internal server error", CodeInternal, "", nil)
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Warn().Err(err).Msg("failed to encode response")
	}
}
