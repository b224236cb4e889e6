package divisions

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	statusSuccess    = "success"
	statusCallError  = "call_error"
	statusParseError = "parse_error"
)

// Metrics exposes classification and clustering counters on a private
// registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	attempts     *prometheus.CounterVec
	dropped      prometheus.Counter
	callDuration prometheus.Histogram
	inFlight     prometheus.Gauge
	fingerprints *prometheus.CounterVec
	divisions    *prometheus.CounterVec
}

// NewMetrics creates the collectors with a constant service label.
func NewMetrics(service string) *Metrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}

	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "divisions",
			Subsystem:   "classify",
			Name:        "attempts_total",
			Help:        "Vision classification attempts by outcome.",
			ConstLabels: labels,
		},
		[]string{"status"},
	)
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "divisions",
		Subsystem:   "classify",
		Name:        "dropped_total",
		Help:        "Photos dropped after exhausting every attempt.",
		ConstLabels: labels,
	})
	callDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   "divisions",
		Subsystem:   "classify",
		Name:        "call_duration_seconds",
		Help:        "Vision call latency in seconds.",
		Buckets:     []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90},
		ConstLabels: labels,
	})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "divisions",
		Subsystem:   "classify",
		Name:        "calls_in_flight",
		Help:        "Vision calls currently in flight.",
		ConstLabels: labels,
	})
	fingerprints := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "divisions",
			Subsystem:   "cluster",
			Name:        "fingerprints_total",
			Help:        "Perceptual hash computations by outcome.",
			ConstLabels: labels,
		},
		[]string{"status"},
	)
	divisions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "divisions",
			Subsystem:   "cluster",
			Name:        "divisions_total",
			Help:        "Division records emitted by room type.",
			ConstLabels: labels,
		},
		[]string{"room_type"},
	)

	registry.MustRegister(attempts, dropped, callDuration, inFlight, fingerprints, divisions)

	return &Metrics{
		registry:     registry,
		attempts:     attempts,
		dropped:      dropped,
		callDuration: callDuration,
		inFlight:     inFlight,
		fingerprints: fingerprints,
		divisions:    divisions,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeAttempt(status string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(status).Inc()
}

func (m *Metrics) observeDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// startCall marks a vision call in flight and returns the func that ends it.
func (m *Metrics) startCall() func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	m.inFlight.Inc()
	return func() {
		m.inFlight.Dec()
		m.callDuration.Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) observeFingerprint(ok bool) {
	if m == nil {
		return
	}
	status := statusSuccess
	if !ok {
		status = "missing"
	}
	m.fingerprints.WithLabelValues(status).Inc()
}

func (m *Metrics) observeDivisions(roomType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.divisions.WithLabelValues(roomType).Add(float64(n))
}
