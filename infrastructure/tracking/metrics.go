package tracking

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/helixml/codestore/domain/tracking"
)

// MetricsObserver renders events as Prometheus metrics.
type MetricsObserver struct {
	invocations      *prometheus.CounterVec
	invocationTime   *prometheus.HistogramVec
	rotations        *prometheus.CounterVec
	generatedItems   *prometheus.CounterVec
	storageAttempts  *prometheus.CounterVec
	recordsSkipped   prometheus.Counter
	retrievals       prometheus.Counter
	retrievalResults prometheus.Histogram
}

// NewMetricsObserver creates the collectors and registers them with reg.
func NewMetricsObserver(reg prometheus.Registerer) (*MetricsObserver, error) {
	o := &MetricsObserver{
		invocations: counterVec("codestore_backend_invocations_total",
			"Backend attempts by outcome.", []string{"backend", "outcome"}),
		invocationTime: histogramVec("codestore_backend_invocation_seconds",
			"Duration of backend attempts.", []string{"backend"}, prometheus.DefBuckets),
		rotations: counterVec("codestore_credential_rotations_total",
			"Credential rotations after rate limiting.", []string{"backend"}),
		generatedItems: counterVec("codestore_generate_items_total",
			"Texts processed by embedding requests.", []string{"strategy", "result"}),
		storageAttempts: counterVec("codestore_storage_attempts_total",
			"Store operation attempts by outcome.", []string{"operation", "outcome"}),
		recordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codestore_records_skipped_total",
			Help: "Records the store rejected inside a bulk upsert.",
		}),
		retrievals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codestore_retrievals_total",
			Help: "Retrieval requests.",
		}),
		retrievalResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "codestore_retrieval_results",
			Help:    "Results returned per retrieval.",
			Buckets: prometheus.LinearBuckets(0, 5, 11),
		}),
	}

	for _, c := range []prometheus.Collector{
		o.invocations, o.invocationTime, o.rotations, o.generatedItems,
		o.storageAttempts, o.recordsSkipped, o.retrievals, o.retrievalResults,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func counterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
}

func histogramVec(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, labels)
}

// OnInvocation implements tracking.Observer.
func (o *MetricsObserver) OnInvocation(_ context.Context, e tracking.Invocation) {
	o.invocations.WithLabelValues(e.Backend, string(e.Outcome)).Inc()
	o.invocationTime.WithLabelValues(e.Backend).Observe(e.Duration.Seconds())
}

// OnRotation implements tracking.Observer.
func (o *MetricsObserver) OnRotation(_ context.Context, e tracking.Rotation) {
	o.rotations.WithLabelValues(e.Backend).Inc()
}

// OnGeneration implements tracking.Observer.
func (o *MetricsObserver) OnGeneration(_ context.Context, e tracking.Generation) {
	o.generatedItems.WithLabelValues(e.Strategy, "success").Add(float64(e.Succeeded))
	o.generatedItems.WithLabelValues(e.Strategy, "failure").Add(float64(e.Failed))
}

// OnStorageAttempt implements tracking.Observer.
func (o *MetricsObserver) OnStorageAttempt(_ context.Context, e tracking.StorageAttempt) {
	outcome := "success"
	if e.Err != nil {
		outcome = "failure"
	}
	o.storageAttempts.WithLabelValues(e.Operation, outcome).Inc()
}

// OnRecordSkipped implements tracking.Observer.
func (o *MetricsObserver) OnRecordSkipped(context.Context, tracking.RecordSkipped) {
	o.recordsSkipped.Inc()
}

// OnRetrieval implements tracking.Observer.
func (o *MetricsObserver) OnRetrieval(_ context.Context, e tracking.Retrieval) {
	o.retrievals.Inc()
	o.retrievalResults.Observe(float64(e.Returned))
}

var _ tracking.Observer = (*MetricsObserver)(nil)
