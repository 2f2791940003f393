// Package metrics provides Prometheus metrics for setup probes and
// coordinator refreshes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProbeTotal counts availability probes by product version and result.
	ProbeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "silam_pollen_probe_total",
		Help: "Total number of SILAM availability probes, by version and result (ok/failed).",
	}, []string{"version", "result"})

	// RefreshTotal counts coordinator refreshes by result.
	RefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "silam_pollen_refresh_total",
		Help: "Total number of forecast refreshes, by result (ok/failed).",
	}, []string{"result"})

	// RefreshDuration observes how long a refresh takes end to end.
	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "silam_pollen_refresh_duration_seconds",
		Help:    "Duration of forecast refreshes.",
		Buckets: prometheus.DefBuckets,
	})

	// FlowTotal counts finished setup and options flows by kind and outcome.
	FlowTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "silam_pollen_flow_total",
		Help: "Total number of finished flows, by kind (config/options) and outcome (create_entry/abort).",
	}, []string{"kind", "outcome"})

	// PublishTotal counts entity state publishes by result.
	PublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "silam_pollen_publish_total",
		Help: "Total number of entity state publishes, by result (ok/failed).",
	}, []string{"result"})

	// RefreshQueue is the number of refresh jobs waiting for a worker.
	RefreshQueue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "silam_pollen_refresh_queue",
		Help: "Number of queued forecast refreshes not yet started.",
	})

	// Entries is the number of configured entries.
	Entries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "silam_pollen_entries",
		Help: "Number of configured entries.",
	})
)

// Result returns the result label for err.
func Result(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}
