package graph

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors an Engine updates during
// execution (spec.md 4.3: middleware/engine observability). A nil
// *Metrics is valid everywhere it is used; callers that don't need
// metrics simply never construct one.
type Metrics struct {
	stepsTotal       *prometheus.CounterVec
	nodeDuration     *prometheus.HistogramVec
	interruptsTotal  prometheus.Counter
	errorsTotal      *prometheus.CounterVec
	checkpointsTotal prometheus.Counter
	queueDepth       prometheus.Gauge
}

// NewMetrics registers the engine's collectors against reg. Pass
// prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer for process-wide export.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentforge",
			Subsystem: "graph",
			Name:      "steps_total",
			Help:      "Number of node executions, by node and outcome.",
		}, []string{"node", "outcome"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentforge",
			Subsystem: "graph",
			Name:      "node_duration_seconds",
			Help:      "Node execution latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node"}),
		interruptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentforge",
			Subsystem: "graph",
			Name:      "interrupts_total",
			Help:      "Number of runs suspended on an interrupt.",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentforge",
			Subsystem: "graph",
			Name:      "errors_total",
			Help:      "Node failures, by node and error category.",
		}, []string{"node", "category"}),
		checkpointsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentforge",
			Subsystem: "graph",
			Name:      "checkpoints_total",
			Help:      "Number of checkpoints committed.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentforge",
			Subsystem: "graph",
			Name:      "frontier_queue_depth",
			Help:      "Most recent superstep's frontier size.",
		}),
	}
	reg.MustRegister(m.stepsTotal, m.nodeDuration, m.interruptsTotal, m.errorsTotal, m.checkpointsTotal, m.queueDepth)
	return m
}

func (m *Metrics) recordStep(nodeID, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.stepsTotal.WithLabelValues(nodeID, outcome).Inc()
	m.nodeDuration.WithLabelValues(nodeID).Observe(seconds)
}

func (m *Metrics) recordInterrupt() {
	if m == nil {
		return
	}
	m.interruptsTotal.Inc()
}

func (m *Metrics) recordError(nodeID, category string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(nodeID, category).Inc()
}

func (m *Metrics) recordCheckpoint() {
	if m == nil {
		return
	}
	m.checkpointsTotal.Inc()
}

func (m *Metrics) recordQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// errorCategory classifies err into one of the label values used by
// errorsTotal, mirroring IsRetryable's taxonomy walk.
func errorCategory(err error) string {
	if err == nil {
		return "none"
	}
	switch {
	case IsRetryable(err):
		return "transient"
	default:
		switch err.(type) {
		case *ValidationError:
			return "validation"
		case *CancellationError:
			return "cancellation"
		case *PolicyError:
			return "policy"
		case *EngineError:
			return "programmer"
		case *NodeError:
			return "node"
		default:
			return "unknown"
		}
	}
}
