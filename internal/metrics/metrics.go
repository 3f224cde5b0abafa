// Package metrics provides Prometheus metrics for snapshot runs: HTTP client
// instrumentation for every upstream service and per-run gauges pushed to a
// Pushgateway when a run ends.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/pmuniverse/internal/domain"
)

// Metrics holds all Prometheus metrics for the application. Each instance
// owns its registry, so tests and short-lived runs never collide on the
// global default registerer.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP client metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Run metrics
	Markets          *prometheus.GaugeVec
	Tokens           *prometheus.GaugeVec
	PriceBatches     prometheus.Gauge
	RunDuration      prometheus.Gauge
	RunStatus        *prometheus.GaugeVec
	LastRunTimestamp prometheus.Gauge
}

// New creates a Metrics instance with all metrics registered on a fresh
// registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pmuniverse"
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Upstream HTTP requests by service, status code and method",
		}, []string{"service", "code", "method"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Upstream HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"}),

		Markets: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "markets",
			Help:      "Markets seen by the last run, by classification",
		}, []string{"kind"}),
		Tokens: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "tokens",
			Help:      "Tokens priced by the last run, by price status",
		}, []string{"status"}),
		PriceBatches: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "price_batches",
			Help:      "Price batches issued by the last run",
		}),
		RunDuration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Wall time of the last run in seconds",
		}),
		RunStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "status",
			Help:      "1 for the status the last run ended with, 0 otherwise",
		}, []string{"status"}),
		LastRunTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "last_end_timestamp",
			Help:      "Unix timestamp at which the last run ended",
		}),
	}
}

// Registry returns the registry every metric is registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Transport returns a factory of instrumented round trippers for service,
// suitable for rest.WithTransport. Each call clones the default transport so
// callers keep independent connection pools.
func (m *Metrics) Transport(service string) func() http.RoundTripper {
	counter := m.HTTPRequests.MustCurryWith(prometheus.Labels{"service": service})
	duration := m.HTTPDuration.MustCurryWith(prometheus.Labels{"service": service})
	return func() http.RoundTripper {
		base := http.DefaultTransport.(*http.Transport).Clone()
		return promhttp.InstrumentRoundTripperCounter(counter,
			promhttp.InstrumentRoundTripperDuration(duration, base))
	}
}

var runStatuses = []domain.RunStatus{
	domain.RunStatusCompleted,
	domain.RunStatusDryRun,
	domain.RunStatusInterrupted,
	domain.RunStatusFailed,
}

// ObserveManifest sets the run gauges from a finished manifest.
func (m *Metrics) ObserveManifest(man domain.RunManifest) {
	m.Markets.WithLabelValues("total").Set(float64(man.MarketsTotal))
	m.Markets.WithLabelValues("with_tokens").Set(float64(man.MarketsWithTokens))
	m.Markets.WithLabelValues("skipped_no_tokens").Set(float64(man.MarketsSkippedNoTokens))
	m.Markets.WithLabelValues("skipped_mismatched_arrays").Set(float64(man.MarketsSkippedMismatchedArrays))
	m.Markets.WithLabelValues("not_clob_tradable").Set(float64(man.MarketsNotClobTradable))

	m.Tokens.WithLabelValues("total").Set(float64(man.TokensTotal))
	m.Tokens.WithLabelValues(string(domain.PriceStatusOK)).Set(float64(man.TokensPricedOK))
	m.Tokens.WithLabelValues(string(domain.PriceStatusMissing)).Set(float64(man.TokensMissingPrice))
	m.Tokens.WithLabelValues(string(domain.PriceStatusAPIError)).Set(float64(man.APIErrors))

	m.PriceBatches.Set(float64(man.PriceBatches))
	m.RunDuration.Set(man.DurationSeconds)
	for _, s := range runStatuses {
		v := 0.0
		if s == man.Status {
			v = 1
		}
		m.RunStatus.WithLabelValues(string(s)).Set(v)
	}
	if !man.EndTS.IsZero() {
		m.LastRunTimestamp.Set(float64(man.EndTS.Unix()))
	}
}
