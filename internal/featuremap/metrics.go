package featuremap

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsSubsystem = "featuremap"

// Pass outcomes.
const (
	outcomeCommitted = "committed"
	outcomeStale     = "stale"
	outcomeRestarted = "restarted"
	outcomeCancelled = "cancelled"
)

// Static image sources for Render and resize.
const (
	sourceFrame    = "frame"
	sourceCache    = "cache"
	sourceRelayout = "relayout"
	sourceRepaint  = "repaint"
	sourceResample = "resample"
)

// Metrics are the engine's Prometheus collectors. A nil Registerer builds
// unregistered collectors.
type Metrics struct {
	Passes           *prometheus.CounterVec
	ProviderFailures prometheus.Counter
	PassDuration     prometheus.Histogram
	Runs             prometheus.Gauge
	Statics          *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	var m Metrics
	m.Passes = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Subsystem: metricsSubsystem,
		Name:      "refresh_passes_total",
		Help:      "Refresh passes by outcome.",
	}, []string{"outcome"})
	m.ProviderFailures = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Subsystem: metricsSubsystem,
		Name:      "provider_failures_total",
		Help:      "Classification queries the analysis provider failed.",
	})
	m.PassDuration = promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
		Subsystem: metricsSubsystem,
		Name:      "refresh_pass_duration_seconds",
		Help:      "Duration of refresh passes in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	})
	m.Runs = promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Subsystem: metricsSubsystem,
		Name:      "runs",
		Help:      "Classified runs in the last committed pass.",
	})
	m.Statics = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Subsystem: metricsSubsystem,
		Name:      "static_images_total",
		Help:      "Static images served by source.",
	}, []string{"source"})
	return &m
}
