package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	admissionAdmitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamarr_admission_admit_total",
		Help: "Total number of admitted sessions, by transcode mode",
	}, []string{"mode"})

	admissionRejectTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamarr_admission_reject_total",
		Help: "Total number of rejected sessions, by reason",
	}, []string{"reason"})

	ladderTruncatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamarr_admission_ladder_truncated_total",
		Help: "Total number of ABR ladders truncated to fit remaining transcode capacity",
	})

	transcodeSlotsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamarr_transcode_slots_in_use",
		Help: "Transcode slots in use at the last admission check",
	})
)

// RecordAdmit counts an admitted session.
func RecordAdmit(mode string) {
	admissionAdmitTotal.WithLabelValues(normalizeMode(mode)).Inc()
}

// RecordReject counts a rejected session.
func RecordReject(reason string) {
	admissionRejectTotal.WithLabelValues(reason).Inc()
}

// RecordLadderTruncated counts a degraded ABR ladder.
func RecordLadderTruncated() {
	ladderTruncatedTotal.Inc()
}

// SetTranscodeSlotsInUse sets the slot gauge.
func SetTranscodeSlotsInUse(n int) {
	transcodeSlotsInUse.Set(float64(n))
}

// GetTranscodeSlotsInUse returns the current value of the gauge (for testing).
func GetTranscodeSlotsInUse() float64 {
	var m dto.Metric
	if err := transcodeSlotsInUse.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
