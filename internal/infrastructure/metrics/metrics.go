package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for auth operations.
const (
	OutcomeOK      = "ok"
	OutcomeFailure = "failure"
)

// Gate decision labels.
const (
	DecisionAllow        = "allow"
	DecisionPublic       = "public"
	DecisionUnauthorized = "unauthorized"
	DecisionForbidden    = "forbidden"
	DecisionError        = "error"
)

// Metrics holds the application counters and the registry that serves them.
type Metrics struct {
	registry           *prometheus.Registry
	authOperations     *prometheus.CounterVec
	gateDecisions      *prometheus.CounterVec
	rateLimitRejection *prometheus.CounterVec
}

// New creates a private registry with the Go and process collectors plus the
// application counters.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		authOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drs_auth_operations_total",
				Help: "Total number of authentication operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		gateDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drs_gate_decisions_total",
				Help: "Total number of authorization gate decisions",
			},
			[]string{"decision"},
		),
		rateLimitRejection: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drs_ratelimit_rejections_total",
				Help: "Total number of requests rejected by a rate limiter scope",
			},
			[]string{"scope"},
		),
	}
	reg.MustRegister(m.authOperations, m.gateDecisions, m.rateLimitRejection)
	return m
}

// AuthOperation records the outcome of an authentication operation.
// A nil receiver is a no-op so services can run without metrics in tests.
func (m *Metrics) AuthOperation(operation string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeFailure
	}
	m.authOperations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) GateDecision(decision string) {
	if m == nil {
		return
	}
	m.gateDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) RateLimitRejected(scope string) {
	if m == nil {
		return
	}
	m.rateLimitRejection.WithLabelValues(scope).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
