package pool

import "github.com/prometheus/client_golang/prometheus"

// PrometheusMetrics exports pool Stats as labeled gauges/counters, one
// label value per connection source.
type PrometheusMetrics struct {
	active             *prometheus.GaugeVec
	idle               *prometheus.GaugeVec
	total              *prometheus.GaugeVec
	acquireTotal       *prometheus.CounterVec
	acquireErrorsTotal *prometheus.CounterVec
	connectionWaitSecs *prometheus.HistogramVec
}

// NewPrometheusMetrics builds and registers the pool's metric vectors
// against reg.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "recordflow",
			Subsystem: "pool",
			Name:      "active_connections",
			Help:      "Connections currently checked out of the pool.",
		}, []string{"source"}),
		idle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "recordflow",
			Subsystem: "pool",
			Name:      "idle_connections",
			Help:      "Connections sitting idle in the pool.",
		}, []string{"source"}),
		total: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "recordflow",
			Subsystem: "pool",
			Name:      "total_connections",
			Help:      "Connections currently open for the source, checked out or idle.",
		}, []string{"source"}),
		acquireTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recordflow",
			Subsystem: "pool",
			Name:      "acquire_total",
			Help:      "Successful Acquire calls.",
		}, []string{"source"}),
		acquireErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recordflow",
			Subsystem: "pool",
			Name:      "acquire_errors_total",
			Help:      "Acquire calls that failed or timed out.",
		}, []string{"source"}),
		connectionWaitSecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "recordflow",
			Subsystem: "pool",
			Name:      "acquire_wait_seconds",
			Help:      "Time spent waiting for Acquire to return a handle.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
	}

	if reg != nil {
		reg.MustRegister(m.active, m.idle, m.total, m.acquireTotal, m.acquireErrorsTotal, m.connectionWaitSecs)
	}
	return m
}

func (m *PrometheusMetrics) observe(s Stats) {
	m.active.WithLabelValues(s.Source).Set(float64(s.ActiveConnections))
	m.idle.WithLabelValues(s.Source).Set(float64(s.IdleConnections))
	m.total.WithLabelValues(s.Source).Set(float64(s.TotalConnections))
	m.acquireTotal.WithLabelValues(s.Source).Add(0) // ensure the series exists even at zero
	m.connectionWaitSecs.WithLabelValues(s.Source).Observe(s.ConnectionWaitTime.Seconds())
}
