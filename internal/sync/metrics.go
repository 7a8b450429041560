package sync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/justestif/go-spotify-estaciones/internal/season"
)

const (
	outcomeCreated = "created"
	outcomeReused  = "reused"

	statusOK    = "ok"
	statusError = "error"
)

// Metrics holds Prometheus collectors for sync runs.
// A nil *Metrics records nothing.
type Metrics struct {
	TracksClassified *prometheus.CounterVec
	Playlists        *prometheus.CounterVec
	Batches          *prometheus.CounterVec
	RunDuration      prometheus.Histogram
}

// NewMetrics creates the sync collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TracksClassified: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "estaciones_tracks_classified_total",
				Help: "Total number of saved tracks assigned to a season",
			},
			[]string{"season"},
		),
		Playlists: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "estaciones_playlists_total",
				Help: "Seasonal playlists resolved, by whether they were created or reused",
			},
			[]string{"outcome"},
		),
		Batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "estaciones_membership_batches_total",
				Help: "Playlist membership writes, by status",
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "estaciones_sync_duration_seconds",
				Help:    "Duration of successful sync runs",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
	}

	reg.MustRegister(
		m.TracksClassified,
		m.Playlists,
		m.Batches,
		m.RunDuration,
	)

	return m
}

func (m *Metrics) trackClassified(s season.Season) {
	if m == nil {
		return
	}
	m.TracksClassified.WithLabelValues(s.String()).Inc()
}

func (m *Metrics) playlistResolved(outcome string) {
	if m == nil {
		return
	}
	m.Playlists.WithLabelValues(outcome).Inc()
}

func (m *Metrics) batchWritten(status string) {
	if m == nil {
		return
	}
	m.Batches.WithLabelValues(status).Inc()
}

func (m *Metrics) observeRun(d time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.Observe(d.Seconds())
}
