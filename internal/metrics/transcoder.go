package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transcodeStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamarr_transcoder_start_total",
		Help: "Total number of transcoder process starts, by result",
	}, []string{"result"})

	transcodeExitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamarr_transcoder_exit_total",
		Help: "Total number of transcoder process exits, by reason (completed, stopped, failed)",
	}, []string{"reason"})

	transcodersRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamarr_transcoders_running",
		Help: "Current number of supervised transcoder processes",
	})

	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamarr_proc_terminate_total",
		Help: "Termination attempts on transcoder processes, by method and result",
	}, []string{"method", "result"})

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamarr_proc_wait_total",
		Help: "Observed transcoder process exits after a stop request, by result",
	}, []string{"result"})
)

// RecordTranscodeStart counts a process launch attempt ("ok" or "error").
func RecordTranscodeStart(result string) {
	transcodeStartTotal.WithLabelValues(result).Inc()
}

// RecordTranscodeExit counts a process exit.
func RecordTranscodeExit(reason string) {
	transcodeExitTotal.WithLabelValues(reason).Inc()
}

// SetTranscodersRunning sets the supervised process gauge.
func SetTranscodersRunning(n int) {
	transcodersRunning.Set(float64(n))
}

// IncProcTerminate counts a termination step. method is "quit" or "SIGKILL".
func IncProcTerminate(method, result string) {
	procTerminateTotal.WithLabelValues(method, result).Inc()
}

// IncProcWait counts how a stopped process finally exited.
func IncProcWait(result string) {
	procWaitTotal.WithLabelValues(result).Inc()
}
