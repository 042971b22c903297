// Package metrics provides Prometheus metrics for the request pipeline and
// the key pool. A nil *Collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reinit results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Collector records dispatch outcomes, reinit runs and usable key counts.
// It is safe for concurrent use.
type Collector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retriesTotal    prometheus.Counter
	reinitTotal     *prometheus.CounterVec
	reinitDuration  prometheus.Histogram
	keysUsable      *prometheus.GaugeVec
	poolReady       prometheus.Gauge
}

// New registers the collector's metrics on registry.
func New(registry prometheus.Registerer) *Collector {
	return &Collector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "cocapi_requests_total",
				Help: "Total number of dispatched API requests by outcome",
			},
			[]string{"outcome"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cocapi_request_duration_seconds",
				Help:    "Duration of dispatched API requests in seconds, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		retriesTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "cocapi_stale_key_retries_total",
				Help: "Total number of requests resent after a key pool refresh",
			},
		),
		reinitTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "cocapi_reinit_total",
				Help: "Total number of key pool reinitializations by result",
			},
			[]string{"result"},
		),
		reinitDuration: promauto.With(registry).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cocapi_reinit_duration_seconds",
				Help:    "Duration of key pool reinitializations in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		keysUsable: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cocapi_keys_usable",
				Help: "Number of keys valid for the current public IP, per credential",
			},
			[]string{"identity"},
		),
		poolReady: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "cocapi_pool_ready",
				Help: "1 when the key pool can hand out keys, 0 otherwise",
			},
		),
	}
}

// ObserveRequest records one dispatched request.
func (c *Collector) ObserveRequest(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(outcome).Inc()
	c.requestDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// IncRetry records a request resent after a refresh.
func (c *Collector) IncRetry() {
	if c == nil {
		return
	}
	c.retriesTotal.Inc()
}

// ObserveReinit records a finished reinitialization.
func (c *Collector) ObserveReinit(err error, d time.Duration) {
	if c == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	c.reinitTotal.WithLabelValues(result).Inc()
	c.reinitDuration.Observe(d.Seconds())
}

// SetUsableKeys records the usable key count for one credential.
func (c *Collector) SetUsableKeys(identity string, n int) {
	if c == nil {
		return
	}
	c.keysUsable.WithLabelValues(identity).Set(float64(n))
}

// SetReady records pool readiness.
func (c *Collector) SetReady(ready bool) {
	if c == nil {
		return
	}
	if ready {
		c.poolReady.Set(1)
	} else {
		c.poolReady.Set(0)
	}
}
