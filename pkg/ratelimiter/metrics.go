package ratelimiter

import "github.com/prometheus/client_golang/prometheus"

// MetricsRecorder is the metric-emission collaborator: the seam a host
// application plugs its metrics backend into. The core algorithms only
// ever call through this interface.
type MetricsRecorder interface {
	Add(name string, value float64, tags map[string]string)
	Observe(name string, value float64, tags map[string]string)
}

// NoOpMetricsRecorder discards everything. It lets the admission and
// Syncer paths call into a recorder unconditionally, without a nil check.
type NoOpMetricsRecorder struct{}

func (NoOpMetricsRecorder) Add(name string, value float64, tags map[string]string)     {}
func (NoOpMetricsRecorder) Observe(name string, value float64, tags map[string]string) {}

// PrometheusRecorder adapts MetricsRecorder onto a prometheus.Registerer:
// per-request counters, latency histograms, and latest-value gauges.
type PrometheusRecorder struct {
	counters   *prometheus.CounterVec
	histograms *prometheus.HistogramVec
	gauges     *prometheus.GaugeVec
}

// NewPrometheusRecorder registers the admission counter, the latency
// histogram, and a resource-labeled gauge (used for weight/remain) on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		counters: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_limiter_events_total",
				Help: "Counter events emitted by the rate limiter, labeled by metric name and tags.",
			},
			[]string{"metric", "service_name", "limited"},
		),
		histograms: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rate_limiter_observations",
				Help:    "Histogram observations emitted by the rate limiter.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"metric", "service_name"},
		),
		gauges: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rate_limiter_gauges",
				Help: "Latest-value gauges emitted by the rate limiter (weight, remain).",
			},
			[]string{"metric", "service_name"},
		),
	}
	reg.MustRegister(r.counters, r.histograms, r.gauges)
	return r
}

// Add implements MetricsRecorder as a counter increment.
func (r *PrometheusRecorder) Add(name string, value float64, tags map[string]string) {
	r.counters.WithLabelValues(name, tags["service_name"], tags["limited"]).Add(value)
}

// Observe implements MetricsRecorder. Gauge-shaped metrics (weight, remain)
// go to the gauge vector; everything else is a histogram observation.
func (r *PrometheusRecorder) Observe(name string, value float64, tags map[string]string) {
	switch name {
	case "rate_limiter.weight", "rate_limiter.remain":
		r.gauges.WithLabelValues(name, tags["service_name"]).Set(value)
	default:
		r.histograms.WithLabelValues(name, tags["service_name"]).Observe(value)
	}
}
