package middleware

import (
	"context"
	"time"

	"github.com/TVScoundrel/agentforge-sub003/graph"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsNamer builds a "{namespace}.{event}" metric name per spec.md 6:
// "{namespace}.{event} where event in {invocations, success, errors,
// duration} plus custom."
func MetricsNamer(namespace, event string) string {
	return namespace + "." + event
}

// Metrics wraps node with a counter for invocations/success/errors and a
// histogram for duration, registered under namespace against reg. Kinds
// counter/gauge/histogram/timer from spec.md 4.3 map onto Prometheus's
// Counter/Gauge/Histogram/Histogram respectively.
func Metrics(reg prometheus.Registerer, namespace string) Middleware {
	invocations := prometheus.NewCounter(prometheus.CounterOpts{Name: sanitize(MetricsNamer(namespace, "invocations"))})
	success := prometheus.NewCounter(prometheus.CounterOpts{Name: sanitize(MetricsNamer(namespace, "success"))})
	errors := prometheus.NewCounter(prometheus.CounterOpts{Name: sanitize(MetricsNamer(namespace, "errors"))})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    sanitize(MetricsNamer(namespace, "duration")),
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(invocations, success, errors, duration)

	return func(node graph.Node) graph.Node {
		return graph.NodeFunc(func(ctx context.Context, state graph.State, rt graph.RuntimeConfig) graph.NodeResult {
			invocations.Inc()
			start := time.Now()
			res := node.Run(ctx, state, rt)
			duration.Observe(time.Since(start).Seconds() * 1000) // spec.md 6: histogram units are milliseconds
			if res.Err != nil {
				errors.Inc()
			} else {
				success.Inc()
			}
			return res
		})
	}
}

// sanitize replaces characters Prometheus metric names disallow (notably
// '.') with '_', since spec.md's "{namespace}.{event}" naming convention
// isn't itself a valid Prometheus identifier.
func sanitize(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			out[i] = c
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
