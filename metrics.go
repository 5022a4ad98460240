package pipeline

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus instruments a Driver and its stages
// report to. The caller registers Metrics on its own registry; this
// module never starts an HTTP exporter itself.
type Metrics struct {
	ClaimsInUse      *prometheus.GaugeVec
	StageThroughput  *prometheus.CounterVec
	OperationsFailed *prometheus.CounterVec
}

// NewMetrics creates a Metrics bundle with the given namespace and
// registers it on reg. Passing a nil registry is valid: the
// instruments are still usable, just unexported to any scrape
// endpoint.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		ClaimsInUse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "claims_in_use",
			Help:      "Admission slots currently claimed, per stage.",
		}, []string{"stage"}),
		StageThroughput: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_operations_total",
			Help:      "Operations successfully handled and forwarded by a stage.",
		}, []string{"stage"}),
		OperationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "operations_failed_total",
			Help:      "Operations routed to the error sink, by failure kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.ClaimsInUse, m.StageThroughput, m.OperationsFailed)
	}
	return m
}

func failureKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrIO):
		return "io"
	default:
		return "fatal"
	}
}
