package importer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/mission-sync/internal/model"
)

// Metrics exposes import run counters. A nil *Metrics records nothing.
type Metrics struct {
	Runs        *prometheus.CounterVec
	Missions    *prometheus.CounterVec
	RunDuration prometheus.Histogram
}

// NewMetrics registers the import metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "missionsync_import_runs_total",
			Help: "Publisher import runs by final status",
		}, []string{"status"}),
		Missions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "missionsync_missions_total",
			Help: "Missions processed by persistence decision",
		}, []string{"decision"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "missionsync_import_run_duration_seconds",
			Help:    "Duration of publisher import runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
	}
}

func (m *Metrics) observeRun(status model.ImportStatus, d time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(string(status)).Inc()
	if d > 0 {
		m.RunDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) observeMissions(decision string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Missions.WithLabelValues(decision).Add(float64(n))
}
