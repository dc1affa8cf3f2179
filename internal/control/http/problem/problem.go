package problem

import (
	"encoding/json"
	"net/http"

	"github.com/streamarr/streamarr-server-sub001/internal/log"
)

const (
	// HeaderRequestID carries the request id on every response.
	HeaderRequestID = "X-Request-ID"
	// JSONKeyRequestID is the problem body member holding the request id.
	JSONKeyRequestID = "requestId"

	// ContentType is the RFC 7807 media type.
	ContentType = "application/problem+json"
)

// Write writes an RFC 7807 problem details response.
//
// Semantics:
//   - type: Canonical machine identifier (e.g. "session/not-found").
//   - title: Human-readable short label (e.g. "Session not found").
//   - code: Stable machine-readable short code (e.g. "SESSION_NOT_FOUND").
//   - detail: Human-readable explanation of the specific error.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, code, detail string, extra map[string]any) {
	if r == nil {
		log.L().Error().Str("type", problemType).Int("status", status).Msg("problem.Write called with nil request")
	}

	instance := ""
	reqID := ""
	if r != nil {
		instance = r.URL.EscapedPath()
		reqID = log.RequestIDFromContext(r.Context())
	}
	if reqID == "" {
		reqID = w.Header().Get(HeaderRequestID)
	}

	res := map[string]any{
		"type":   problemType,
		"title":  title,
		"status": status,
		"code":   code,
	}
	if reqID != "" {
		res[JSONKeyRequestID] = reqID
	}
	if detail != "" {
		res["detail"] = detail
	}
	if instance != "" {
		res["instance"] = instance
	}

	// Extensions go at top level; reserved members win.
	for k, v := range extra {
		switch k {
		case "type", "title", "status", "detail", "instance", "code", JSONKeyRequestID:
			log.L().Warn().Str("key", k).Str("problem_type", problemType).Msg("ignoring reserved key in problem extras")
			continue
		}
		res[k] = v
	}

	if reqID != "" {
		w.Header().Set(HeaderRequestID, reqID)
	}
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(res); err != nil {
		log.L().Error().
			Err(err).
			Str("type", problemType).
			Int("status", status).
			Msg("failed to encode problem response")
	}
}
