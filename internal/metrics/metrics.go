// Package metrics holds the domain Prometheus collectors for discovery,
// downloads and expiry sweeps.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Download results recorded by RecordDownload.
const (
	DownloadGranted    = "granted"
	DownloadNotFound   = "not_found"
	DownloadExpired    = "expired"
	DownloadOutOfRange = "out_of_range"
	DownloadInvalid    = "invalid"
	DownloadError      = "error"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	nearbyQueries       prometheus.Counter
	nearbyCandidateKeys prometheus.Histogram
	downloads           *prometheus.CounterVec
	sweepRuns           prometheus.Counter
	sweepDeleted        prometheus.Counter
	sweepFailures       prometheus.Counter
	sweepDuration       prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		nearbyQueries: f.NewCounter(prometheus.CounterOpts{
			Name: "geofyle_nearby_queries_total",
			Help: "Total number of discovery queries executed.",
		}),
		nearbyCandidateKeys: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "geofyle_nearby_candidate_keys",
			Help:    "Number of spatial keys probed per discovery query.",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9},
		}),
		downloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "geofyle_downloads_total",
			Help: "Download authorization attempts by result.",
		}, []string{"result"}),
		sweepRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "geofyle_sweep_runs_total",
			Help: "Total number of expiry sweeps.",
		}),
		sweepDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "geofyle_sweep_deleted_total",
			Help: "Total number of expired files deleted by sweeps.",
		}),
		sweepFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "geofyle_sweep_failures_total",
			Help: "Total number of expired files a sweep failed to delete.",
		}),
		sweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "geofyle_sweep_duration_seconds",
			Help:    "Duration of expiry sweeps in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),
	}
}

func (m *Metrics) RecordNearby(candidateKeys int) {
	if m == nil {
		return
	}
	m.nearbyQueries.Inc()
	m.nearbyCandidateKeys.Observe(float64(candidateKeys))
}

func (m *Metrics) RecordDownload(result string) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordSweep(deleted, failed int, d time.Duration) {
	if m == nil {
		return
	}
	m.sweepRuns.Inc()
	m.sweepDeleted.Add(float64(deleted))
	m.sweepFailures.Add(float64(failed))
	m.sweepDuration.Observe(d.Seconds())
}
