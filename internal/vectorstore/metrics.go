package vectorstore

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("careerd.vectorstore")

var (
	// OperationsTotal counts index operations.
	// Labels: backend, operation, result (success, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "careerd",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector index operations",
		},
		[]string{"backend", "operation", "result"},
	)

	// OperationDuration tracks index operation latency.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "careerd",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector index operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	// HitsReturned tracks the number of hits per query.
	HitsReturned = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "careerd",
			Subsystem: "vectorstore",
			Name:      "query_hits",
			Help:      "Number of hits returned per query",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"backend"},
	)
)

// instrumented adds a tracing span and Prometheus metrics to every call.
type instrumented struct {
	next    Index
	backend string
}

// Instrument wraps idx with tracing and metrics labelled by backend.
func Instrument(backend string, idx Index) Index {
	return &instrumented{next: idx, backend: backend}
}

func (i *instrumented) observe(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, "vectorstore."+op)
	span.SetAttributes(attribute.String("backend", i.backend))
	start := time.Now()
	return ctx, func(err error) {
		OperationDuration.WithLabelValues(i.backend, op).Observe(time.Since(start).Seconds())
		result := "success"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "success")
		}
		OperationsTotal.WithLabelValues(i.backend, op, result).Inc()
		span.End()
	}
}

func (i *instrumented) Upsert(ctx context.Context, records []Record) (err error) {
	ctx, done := i.observe(ctx, "upsert")
	defer func() { done(err) }()
	return i.next.Upsert(ctx, records)
}

func (i *instrumented) Query(ctx context.Context, embedding []float32, k int) (hits []Hit, err error) {
	ctx, done := i.observe(ctx, "query")
	defer func() {
		if err == nil {
			HitsReturned.WithLabelValues(i.backend).Observe(float64(len(hits)))
		}
		done(err)
	}()
	return i.next.Query(ctx, embedding, k)
}

func (i *instrumented) Count(ctx context.Context) (n int, err error) {
	ctx, done := i.observe(ctx, "count")
	defer func() { done(err) }()
	return i.next.Count(ctx)
}

func (i *instrumented) Close() error {
	return i.next.Close()
}
