package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sophialabs/mimicry/internal/infrastructure/ports"
)

var _ ports.Metrics = (*Collector)(nil)

// Collector records pipeline metrics on a private registry so that tests
// and multiple servers in one process never collide.
type Collector struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	faults      *prometheus.CounterVec
	proxy       *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// NewCollector registers every metric plus the Go runtime collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mimicry_requests_total",
			Help: "Requests handled by the mock pipeline, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mimicry_request_duration_seconds",
			Help:    "Time spent in the mock pipeline, by outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mimicry_faults_total",
			Help: "Injected faults, by type.",
		}, []string{"type"}),
		proxy: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mimicry_proxy_requests_total",
			Help: "Proxy fallback attempts, by result.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mimicry_scenario_transitions_total",
			Help: "Scenario state transitions, by scenario.",
		}, []string{"scenario"}),
	}
	c.registry.MustRegister(
		c.requests, c.duration, c.faults, c.proxy, c.transitions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) ObserveRequest(outcome string, d time.Duration) {
	c.requests.WithLabelValues(outcome).Inc()
	c.duration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (c *Collector) FaultInjected(faultType string) { c.faults.WithLabelValues(faultType).Inc() }
func (c *Collector) ProxyResult(result string)      { c.proxy.WithLabelValues(result).Inc() }

func (c *Collector) ScenarioTransition(scenarioID string) {
	c.transitions.WithLabelValues(scenarioID).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
