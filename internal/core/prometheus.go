package core

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "chemledger"

// PrometheusMetricsRecorder exports operation counters, latency histograms and
// replication targets to a Prometheus registry.
type PrometheusMetricsRecorder struct {
	registry     *prometheus.Registry
	operations   *prometheus.CounterVec
	durations    *prometheus.HistogramVec
	replications *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder registers the service collectors on reg, or on
// a fresh registry when reg is nil.
func NewPrometheusMetricsRecorder(reg *prometheus.Registry) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := &PrometheusMetricsRecorder{
		registry: reg,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "operations_total",
			Help:      "Record service operations by outcome.",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "operation_duration_seconds",
			Help:      "Record service operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		replications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "replications_total",
			Help:      "Where mutating operations replicated their copies.",
		}, []string{"operation", "replication"}),
	}
	for _, c := range []prometheus.Collector{r.operations, r.durations, r.replications} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	status := "error"
	if success {
		status = "success"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveReplication implements ReplicationObserver.
func (r *PrometheusMetricsRecorder) ObserveReplication(_ context.Context, operation string, replication Replication) {
	r.replications.WithLabelValues(operation, string(replication)).Inc()
}

// Registry returns the registry the collectors live on.
func (r *PrometheusMetricsRecorder) Registry() *prometheus.Registry { return r.registry }

// WriteTextfile dumps the registry in the text exposition format, for the
// node exporter textfile collector.
func (r *PrometheusMetricsRecorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
