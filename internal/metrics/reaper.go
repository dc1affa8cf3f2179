package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reaperSweepTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamarr_reaper_sweep_total",
		Help: "Total number of reaper sweeps",
	})

	reaperActionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamarr_reaper_action_total",
		Help: "Reaper actions, by kind (idle_destroyed, handle_failed, orphan_removed)",
	}, []string{"action"})
)

// RecordReaperSweep counts a sweep pass.
func RecordReaperSweep() {
	reaperSweepTotal.Inc()
}

// RecordReaperAction counts one reaper action.
func RecordReaperAction(action string, n int) {
	if n <= 0 {
		return
	}
	reaperActionTotal.WithLabelValues(action).Add(float64(n))
}
