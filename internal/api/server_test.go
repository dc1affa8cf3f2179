package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamarr/streamarr-server-sub001/internal/control/admission"
	"github.com/streamarr/streamarr-server-sub001/internal/control/http/problem"
	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/manager"
	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
)

func decodeProblem(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var p map[string]any
	require.NoError(t, json.Unmarshal(body, &p))
	return p
}

func TestCreateSession(t *testing.T) {
	h := newHarness(t, Config{})
	h.sessions.next = tsSession("sess-1")

	rec := h.do(http.MethodPost, "/api/v1/sessions", `{"mediaFileId":"m-h264","options":{"quality":"720p","supportedCodecs":["h264"]}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "/api/v1/sessions/sess-1", rec.Header().Get("Location"))

	var desc manager.Descriptor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &desc))
	assert.Equal(t, "sess-1", desc.ID)
	assert.Equal(t, "/stream/sess-1/master.m3u8", desc.StreamURL)
	assert.Equal(t, model.ModeRemux, desc.TranscodeMode)

	assert.Equal(t, "m-h264", h.sessions.lastMediaID)
	assert.Equal(t, model.Quality720p, h.sessions.lastOptions.Quality)
	assert.Equal(t, []string{"h264"}, h.sessions.lastOptions.SupportedCodecs)
}

func TestCreateSession_InvalidBody(t *testing.T) {
	h := newHarness(t, Config{})

	for _, body := range []string{`{`, `{"mediaFileId":"  "}`, `{}`} {
		rec := h.do(http.MethodPost, "/api/v1/sessions", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, problem.ContentType, rec.Header().Get("Content-Type"))
		assert.Equal(t, CodeInvalidInput, decodeProblem(t, rec.Body.Bytes())["code"])
	}
}

func TestCreateSession_QualityNormalized(t *testing.T) {
	tests := []struct {
		raw  string
		want model.QualityTier
	}{
		{"auto", model.QualityAuto},
		{"AUTO", model.QualityAuto},
		{"", model.QualityAuto},
		{"HD", model.Quality720p},
		{"1080P", model.Quality1080p},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			h := newHarness(t, Config{})
			h.sessions.next = tsSession("sess-1")

			rec := h.do(http.MethodPost, "/api/v1/sessions", fmt.Sprintf(`{"mediaFileId":"m-h264","options":{"quality":%q}}`, tt.raw))
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
			assert.Equal(t, tt.want, h.sessions.lastOptions.Quality)
		})
	}
}

func TestCreateSession_UnknownQualityRejected(t *testing.T) {
	h := newHarness(t, Config{})
	h.sessions.next = tsSession("sess-1")

	for _, q := range []string{"8k", "ultra", "4320p"} {
		rec := h.do(http.MethodPost, "/api/v1/sessions", fmt.Sprintf(`{"mediaFileId":"m-h264","options":{"quality":%q}}`, q))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Equal(t, CodeInvalidInput, decodeProblem(t, rec.Body.Bytes())["code"])
	}
	assert.Empty(t, h.sessions.lastMediaID)
}

func TestCreateSession_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		status     int
		code       string
		retryAfter string
	}{
		{"unknown media", fmt.Errorf("%w: m-x", model.ErrMediaNotFound), http.StatusNotFound, CodeMediaNotFound, ""},
		{"probe failure", fmt.Errorf("%w: no video stream", model.ErrProbeFailed), http.StatusUnprocessableEntity, CodeProbeFailed, ""},
		{"capability", fmt.Errorf("%w: full transcode", model.ErrCapabilityUnavailable), http.StatusServiceUnavailable, CodeCapabilityUnavailable, ""},
		{"capacity", admission.NewTranscodesFull(4, 4), http.StatusServiceUnavailable, admission.CodeTranscodesFull, "5"},
		{"launch", fmt.Errorf("1080p: %w: exec: not found", model.ErrProcessLaunch), http.StatusInternalServerError, CodeLaunchFailed, ""},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, CodeInternal, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			h.sessions.createErr = tt.err

			rec := h.do(http.MethodPost, "/api/v1/sessions", `{"mediaFileId":"m-x"}`)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeProblem(t, rec.Body.Bytes())["code"])
			assert.Equal(t, tt.retryAfter, rec.Header().Get("Retry-After"))
		})
	}
}

func TestCreateSession_RateLimited(t *testing.T) {
	h := newHarness(t, Config{RateLimitRequests: 1, RateLimitWindow: time.Minute})
	h.sessions.next = tsSession("sess-1")

	assert.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/api/v1/sessions", `{"mediaFileId":"m-h264"}`).Code)
	rec := h.do(http.MethodPost, "/api/v1/sessions", `{"mediaFileId":"m-h264"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Stream routes are not limited.
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/stream/sess-1/master.m3u8", "").Code)
}

func TestSeekSession(t *testing.T) {
	h := newHarness(t, Config{})
	h.sessions.put(tsSession("sess-1"))

	rec := h.do(http.MethodPost, "/api/v1/sessions/sess-1/seek", `{"position":125.5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var desc manager.Descriptor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &desc))
	assert.Equal(t, "sess-1", desc.ID)
	assert.InDelta(t, 125.5, h.sessions.lastPosition, 1e-9)

	rec = h.do(http.MethodPost, "/api/v1/sessions/sess-1/seek", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/sessions/missing/seek", `{"position":10}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeSessionNotFound, decodeProblem(t, rec.Body.Bytes())["code"])
}

func TestSeekSession_LaunchFailure(t *testing.T) {
	h := newHarness(t, Config{})
	h.sessions.put(tsSession("sess-1"))
	h.sessions.seekErr = fmt.Errorf("%w: boom", model.ErrProcessLaunch)

	rec := h.do(http.MethodPost, "/api/v1/sessions/sess-1/seek", `{"position":10}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDestroySession_Idempotent(t *testing.T) {
	h := newHarness(t, Config{})
	h.sessions.put(tsSession("sess-1"))

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, "/api/v1/sessions/sess-1", "").Code)
	assert.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, "/api/v1/sessions/sess-1", "").Code)
	_, ok := h.sessions.GetSession("sess-1")
	assert.False(t, ok)
}

func TestGetSession_Summary(t *testing.T) {
	h := newHarness(t, Config{})
	sess := ladderSession("sess-2")
	sess.Handles["720p"] = model.TranscodeHandle{ID: "sess-2/720p", Status: model.TranscodeFailed}
	h.sessions.put(sess)

	rec := h.do(http.MethodGet, "/api/v1/sessions/sess-2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var sum SessionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, model.ModeFullTranscode, sum.TranscodeMode)
	assert.Equal(t, "FMP4", sum.Container)
	require.Len(t, sum.Variants, 2)
	assert.Equal(t, "1080p", sum.Variants[0].Label)
	assert.Equal(t, int64(8_192_000), sum.Variants[0].Bandwidth)
	assert.Equal(t, "FAILED", sum.Variants[1].Status)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/v1/sessions/nope", "").Code)
}

func TestMasterPlaylist(t *testing.T) {
	h := newHarness(t, Config{})
	h.sessions.put(ladderSession("sess-2"))

	rec := h.do(http.MethodGet, "/stream/sess-2/master.m3u8", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, playlistContentType, rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "#EXTM3U\n"))
	assert.Contains(t, body, "1080p/stream.m3u8")
	assert.Contains(t, body, "720p/stream.m3u8")

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/stream/nope/master.m3u8", "").Code)
}

func TestMediaPlaylist(t *testing.T) {
	h := newHarness(t, Config{})
	h.sessions.put(tsSession("sess-1"))
	h.sessions.put(ladderSession("sess-2"))

	rec := h.do(http.MethodGet, "/stream/sess-1/stream.m3u8", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "segment0.ts")
	assert.Contains(t, rec.Body.String(), "#EXT-X-ENDLIST")

	rec = h.do(http.MethodGet, "/stream/sess-2/720p/stream.m3u8", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `#EXT-X-MAP:URI="init.mp4"`)

	// Ladder sessions have no top-level rendition; single sessions have no variants.
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/stream/sess-2/stream.m3u8", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/stream/sess-1/720p/stream.m3u8", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/stream/sess-2/480p/stream.m3u8", "").Code)
}

func TestSegment_Served(t *testing.T) {
	h := newHarness(t, Config{})
	h.sessions.put(tsSession("sess-1"))
	h.sessions.put(ladderSession("sess-2"))
	h.writeSegment(t, "sess-1", model.SingleRendition, "segment0.ts", "TS0")
	h.writeSegment(t, "sess-2", "720p", "init.mp4", "INIT")
	h.writeSegment(t, "sess-2", "720p", "segment1.m4s", "M4S1")

	tests := []struct {
		target, contentType, body string
	}{
		{"/stream/sess-1/segment0.ts", "video/mp2t", "TS0"},
		{"/stream/sess-2/720p/init.mp4", "video/mp4", "INIT"},
		{"/stream/sess-2/720p/segment1.m4s", "video/mp4", "M4S1"},
	}
	for _, tt := range tests {
		rec := h.do(http.MethodGet, tt.target, "")
		require.Equal(t, http.StatusOK, rec.Code, tt.target)
		assert.Equal(t, tt.contentType, rec.Header().Get("Content-Type"))
		assert.Equal(t, tt.body, rec.Body.String())
	}

	assert.Equal(t, 0, h.sessions.inFlightOf("sess-1"))
	assert.Equal(t, 0, h.sessions.inFlightOf("sess-2"))
	assert.Equal(t, 3, h.sessions.acquires)
}

func TestSegment_WaitsForProducer(t *testing.T) {
	h := newHarness(t, Config{SegmentWaitTimeout: 5 * time.Second})
	h.sessions.put(tsSession("sess-1"))
	h.writeSegment(t, "sess-1", model.SingleRendition, "segment0.ts", "TS0")

	dir, err := h.store.SessionDir("sess-1", model.SingleRendition)
	require.NoError(t, err)
	go func() {
		time.Sleep(50 * time.Millisecond)
		tmp := filepath.Join(dir, "segment1.ts.tmp")
		if os.WriteFile(tmp, []byte("TS1"), 0o600) == nil {
			_ = os.Rename(tmp, filepath.Join(dir, "segment1.ts"))
		}
	}()

	rec := h.do(http.MethodGet, "/stream/sess-1/segment1.ts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "TS1", rec.Body.String())
}

func TestSegment_Timeout(t *testing.T) {
	h := newHarness(t, Config{SegmentWaitTimeout: 20 * time.Millisecond})
	h.sessions.put(tsSession("sess-1"))

	rec := h.do(http.MethodGet, "/stream/sess-1/segment7.ts", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, 0, h.sessions.inFlightOf("sess-1"))
}

func TestSegment_Traversal(t *testing.T) {
	h := newHarness(t, Config{})
	h.sessions.put(ladderSession("sess-2"))

	for _, target := range []string{
		"/stream/sess-2/..%2F..%2Fetc%2Fpasswd",
		"/stream/sess-2/%2e%2e/segment0.ts",
		"/stream/sess-2/720p/..%5Csegment0.m4s",
		"/stream/sess-2/%2e%2e/stream.m3u8",
	} {
		rec := h.do(http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Equal(t, CodeInvalidName, decodeProblem(t, rec.Body.Bytes())["code"], target)
	}
	assert.Equal(t, 0, h.sessions.acquires)
}

func TestSegment_NotFoundCases(t *testing.T) {
	h := newHarness(t, Config{})
	h.sessions.put(ladderSession("sess-2"))

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/stream/nope/segment0.ts", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/stream/sess-2/720p/notes.txt", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/stream/sess-2/2160p/segment0.m4s", "").Code)
}

func TestSegment_FailedRendition(t *testing.T) {
	h := newHarness(t, Config{})
	sess := tsSession("sess-1")
	sess.Handles[model.SingleRendition] = model.TranscodeHandle{ID: "sess-1", Status: model.TranscodeFailed}
	h.sessions.put(sess)
	h.writeSegment(t, "sess-1", model.SingleRendition, "segment0.ts", "TS0")

	rec := h.do(http.MethodGet, "/stream/sess-1/segment0.ts", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, CodeRenditionFailed, decodeProblem(t, rec.Body.Bytes())["code"])

	rec = h.do(http.MethodGet, "/stream/sess-1/stream.m3u8", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOperationalRoutes(t *testing.T) {
	h := newHarness(t, Config{})

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/readyz", "").Code)

	h.do(http.MethodGet, "/stream/nope/master.m3u8", "")
	rec := h.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "streamarr_http_request_duration_seconds")
}
