// Package metrics provides Prometheus metrics for the streaming core.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// No session or request IDs in labels: every label here has a small fixed domain.

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamarr_sessions_active",
		Help: "Current number of streaming sessions in the registry",
	})

	sessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamarr_sessions_created_total",
		Help: "Total number of streaming sessions created, by transcode mode",
	}, []string{"mode"})

	sessionsDestroyed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamarr_sessions_destroyed_total",
		Help: "Total number of streaming sessions destroyed, by reason",
	}, []string{"reason"})

	sessionCreateFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamarr_session_create_failures_total",
		Help: "Total number of failed session creations, by error class",
	}, []string{"class"})

	decisionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamarr_decision_total",
		Help: "Transcode decisions, by mode, video codec family and reason",
	}, []string{"mode", "codec", "reason"})

	seekTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamarr_session_seek_total",
		Help: "Total number of session seeks",
	})

	segmentWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamarr_segment_wait_total",
		Help: "Segment waits in the request path, by result (ready, timeout, error)",
	}, []string{"result"})
)

// SetSessionsActive sets the registry size gauge.
func SetSessionsActive(n int) {
	sessionsActive.Set(float64(n))
}

// RecordSessionCreated counts a successfully created session.
func RecordSessionCreated(mode string) {
	sessionsCreated.WithLabelValues(normalizeMode(mode)).Inc()
}

// RecordSessionDestroyed counts a destroyed session. reason is "client", "idle" or "launch_failure".
func RecordSessionDestroyed(reason string) {
	sessionsDestroyed.WithLabelValues(reason).Inc()
}

// RecordSessionCreateFailure counts a failed creation by error class.
func RecordSessionCreateFailure(class string) {
	sessionCreateFailures.WithLabelValues(class).Inc()
}

// RecordDecision counts one decision-engine outcome.
func RecordDecision(mode, codec, reason string) {
	decisionTotal.WithLabelValues(normalizeMode(mode), normalizeCodec(codec), reason).Inc()
}

// RecordSeek counts a seek.
func RecordSeek() {
	seekTotal.Inc()
}

// RecordSegmentWait counts the outcome of a blocking segment wait.
func RecordSegmentWait(result string) {
	segmentWaitTotal.WithLabelValues(result).Inc()
}

func normalizeMode(mode string) string {
	switch mode {
	case "REMUX", "PARTIAL_TRANSCODE", "FULL_TRANSCODE":
		return mode
	default:
		return "unknown"
	}
}

func normalizeCodec(codec string) string {
	switch c := strings.ToLower(codec); c {
	case "h264", "hevc", "av1":
		return c
	default:
		return "other"
	}
}
