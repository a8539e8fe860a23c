// Package metrics exposes silence monitoring as Prometheus metrics.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oszuidwest/zwfm-silencewatch/internal/silence"
	"github.com/oszuidwest/zwfm-silencewatch/internal/types"
)

const namespace = "silencewatch"

// SilenceMetrics holds the monitor's counters and gauges. It is registered
// as a monitor listener.
type SilenceMetrics struct {
	silencesTotal   *prometheus.CounterVec // Recorded silences by category
	alertsTotal     *prometheus.CounterVec // Alerts by severity
	silenceDuration prometheus.Histogram
	levelDB         prometheus.Gauge
	runOpen         prometheus.Gauge
	monitorRunning  prometheus.Gauge

	registry *prometheus.Registry
}

// NewSilenceMetrics creates the metrics and registers them with registry.
func NewSilenceMetrics(registry *prometheus.Registry) (*SilenceMetrics, error) {
	m := &SilenceMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register silence metrics: %w", err)
	}
	return m, nil
}

func (m *SilenceMetrics) initMetrics() {
	m.silencesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "silences_total",
			Help:      "Total number of recorded silences by category",
		},
		[]string{"category"},
	)
	// Pre-create both series so dashboards see zeros.
	m.silencesTotal.WithLabelValues(string(silence.CategoryNatural))
	m.silencesTotal.WithLabelValues(string(silence.CategoryUnnatural))

	m.alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Total number of silence alerts by severity",
		},
		[]string{"severity"},
	)

	m.silenceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "silence_duration_seconds",
			Help:      "Duration of recorded silences",
			Buckets:   []float64{3, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	m.levelDB = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "level_db",
		Help:      "Most recent audio level in dBFS",
	})

	m.runOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_open",
		Help:      "Whether a silence run is currently open (1) or not (0)",
	})

	m.monitorRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "monitor_running",
		Help:      "Whether the monitor is polling its audio source (1) or not (0)",
	})
}

// SilenceDetected counts a recorded silence.
func (m *SilenceMetrics) SilenceDetected(s silence.Silence) {
	m.silencesTotal.WithLabelValues(string(s.Category)).Inc()
	m.silenceDuration.Observe(float64(s.DurationMs) / 1000)
}

// SilenceAlert counts an alert.
func (m *SilenceMetrics) SilenceAlert(a silence.Alert) {
	m.alertsTotal.WithLabelValues(string(a.Severity)).Inc()
}

// LevelUpdated tracks the latest level and run state.
func (m *SilenceMetrics) LevelUpdated(u silence.Update) {
	m.levelDB.Set(u.LevelDB)
	if u.State == silence.OpenRun {
		m.runOpen.Set(1)
	} else {
		m.runOpen.Set(0)
	}
}

// MonitorStateChanged tracks whether the monitor is running.
func (m *SilenceMetrics) MonitorStateChanged(state types.MonitorState) {
	if state == types.StateRunning {
		m.monitorRunning.Set(1)
		return
	}
	m.monitorRunning.Set(0)
	if state == types.StateStopped {
		m.runOpen.Set(0)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *SilenceMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Collect implements the prometheus.Collector interface.
func (m *SilenceMetrics) Collect(ch chan<- prometheus.Metric) {
	m.silencesTotal.Collect(ch)
	m.alertsTotal.Collect(ch)
	m.silenceDuration.Collect(ch)
	m.levelDB.Collect(ch)
	m.runOpen.Collect(ch)
	m.monitorRunning.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *SilenceMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.silencesTotal.Describe(ch)
	m.alertsTotal.Describe(ch)
	m.silenceDuration.Describe(ch)
	m.levelDB.Describe(ch)
	m.runOpen.Describe(ch)
	m.monitorRunning.Describe(ch)
}
