// Package metrics collects and exposes Prometheus metrics for the login pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the orchestrator and identity-provider client report to.
type Recorder interface {
	RecordLogin(flow, outcome string)
	RecordSessionCreated(flow string)
	RecordSessionsRevoked(count int)
	ObserveProviderCall(operation, outcome string, duration time.Duration)
}

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Collector is the Prometheus backed Recorder.
type Collector struct {
	logins          *prometheus.CounterVec
	sessionsCreated *prometheus.CounterVec
	sessionsRevoked prometheus.Counter
	providerLatency *prometheus.HistogramVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgw_logins_total",
			Help: "Completed login attempts by flow and outcome.",
		}, []string{"flow", "outcome"}),
		sessionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgw_sessions_created_total",
			Help: "Sessions issued by flow.",
		}, []string{"flow"}),
		sessionsRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgw_sessions_revoked_total",
			Help: "Sessions removed by revoke or revoke-all.",
		}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authgw_idp_request_duration_seconds",
			Help:    "Identity provider call latency by operation and outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
	}

	reg.MustRegister(
		c.logins,
		c.sessionsCreated,
		c.sessionsRevoked,
		c.providerLatency,
	)

	return c
}

func (c *Collector) RecordLogin(flow, outcome string) {
	c.logins.WithLabelValues(flow, outcome).Inc()
}

func (c *Collector) RecordSessionCreated(flow string) {
	c.sessionsCreated.WithLabelValues(flow).Inc()
}

func (c *Collector) RecordSessionsRevoked(count int) {
	if count > 0 {
		c.sessionsRevoked.Add(float64(count))
	}
}

func (c *Collector) ObserveProviderCall(operation, outcome string, duration time.Duration) {
	c.providerLatency.WithLabelValues(operation, outcome).Observe(duration.Seconds())
}

// Nop discards everything. Used when metrics are not wired.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) RecordLogin(string, string) {}
func (Nop) RecordSessionCreated(string) {}
func (Nop) RecordSessionsRevoked(int) {}
func (Nop) ObserveProviderCall(string, string, time.Duration) {}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
