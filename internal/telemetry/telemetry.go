// Package telemetry sets up OpenTelemetry tracing and metrics for careerd.
//
// Metrics recorded through otel instruments are always readable on the
// Prometheus registry, so they appear on /metrics next to the promauto
// collectors. When OTLP export is enabled, traces and metrics are also
// pushed to a collector.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/careerd/internal/config"
)

// Telemetry owns the tracer and meter providers.
//
// Export failures never stop the service: the instance marks itself
// degraded and falls back to the global no-op providers.
type Telemetry struct {
	cfg    config.TelemetryConfig
	logger *zap.Logger

	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	logProvider    log.LoggerProvider

	healthy  atomic.Bool
	degraded atomic.Bool
}

type options struct {
	registerer     prometheus.Registerer
	traceExporter  trace.SpanExporter
	metricExporter sdkmetric.Exporter
	logger         *zap.Logger
	global         bool
}

// Option configures New.
type Option func(*options)

// WithRegisterer sets the Prometheus registerer that receives otel metrics.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithTraceExporter overrides the OTLP trace exporter.
func WithTraceExporter(exp trace.SpanExporter) Option {
	return func(o *options) { o.traceExporter = exp }
}

// WithMetricExporter overrides the OTLP metric exporter.
func WithMetricExporter(exp sdkmetric.Exporter) Option {
	return func(o *options) { o.metricExporter = exp }
}

// WithLogger sets the logger used to report degraded telemetry.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithoutGlobal keeps the providers off the otel globals.
func WithoutGlobal() Option {
	return func(o *options) { o.global = false }
}

// New creates the providers and, unless WithoutGlobal is given, installs
// them as the otel globals.
func New(ctx context.Context, cfg config.TelemetryConfig, version string, opts ...Option) (*Telemetry, error) {
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	o := options{registerer: prometheus.DefaultRegisterer, global: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	t := &Telemetry{cfg: cfg, logger: o.logger}
	t.healthy.Store(true)

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "careerd"
	}
	res := newResource(serviceName, version)

	var readers []sdkmetric.Option
	promReader, err := newPrometheusReader(o.registerer)
	if err != nil {
		t.setDegraded("prometheus reader", err)
	} else {
		readers = append(readers, sdkmetric.WithReader(promReader))
	}

	if cfg.Enabled {
		exp, err := o.traceExporter, error(nil)
		if exp == nil {
			exp, err = newTraceExporter(ctx, cfg)
		}
		if err != nil {
			t.setDegraded("trace exporter", err)
		} else {
			t.tracerProvider = newTracerProvider(exp, cfg.SamplingRate, res)
		}

		mexp, err := o.metricExporter, error(nil)
		if mexp == nil {
			mexp, err = newMetricExporter(ctx, cfg)
		}
		if err != nil {
			t.setDegraded("metric exporter", err)
		} else {
			readers = append(readers, sdkmetric.WithReader(
				sdkmetric.NewPeriodicReader(mexp, sdkmetric.WithInterval(cfg.ExportInterval.Duration())),
			))
		}
	}

	if len(readers) > 0 {
		t.meterProvider = sdkmetric.NewMeterProvider(append(readers, sdkmetric.WithResource(res))...)
	}

	if o.global {
		if t.tracerProvider != nil {
			otel.SetTracerProvider(t.tracerProvider)
		}
		if t.meterProvider != nil {
			otel.SetMeterProvider(t.meterProvider)
		}
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}

	return t, nil
}

// Tracer returns a tracer for the given instrumentation scope.
func (t *Telemetry) Tracer(name string, opts ...oteltrace.TracerOption) oteltrace.Tracer {
	if t == nil || t.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(name, opts...)
	}
	return t.tracerProvider.Tracer(name, opts...)
}

// Meter returns a meter for the given instrumentation scope.
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.meterProvider == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return t.meterProvider.Meter(name, opts...)
}

// LoggerProvider returns the provider for the otelzap bridge. Without an
// explicit one it is the otel global, a no-op unless something set it.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t == nil || t.logProvider == nil {
		return global.GetLoggerProvider()
	}
	return t.logProvider
}

// SetLoggerProvider sets the provider returned by LoggerProvider.
func (t *Telemetry) SetLoggerProvider(lp log.LoggerProvider) {
	if t != nil {
		t.logProvider = lp
	}
}

// Shutdown flushes and stops all providers. Without a deadline on ctx the
// configured shutdown timeout applies.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok {
		timeout := t.cfg.ShutdownTimeout.Duration()
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	t.healthy.Store(false)
	return errors.Join(errs...)
}

// ForceFlush exports all pending telemetry.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil {
		return nil
	}

	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace flush: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter flush: %w", err))
		}
	}
	return errors.Join(errs...)
}

// HealthStatus reports whether telemetry is running and complete.
type HealthStatus struct {
	Healthy  bool
	Degraded bool
}

// Health returns the current telemetry health status.
func (t *Telemetry) Health() HealthStatus {
	if t == nil {
		return HealthStatus{Healthy: false, Degraded: true}
	}
	return HealthStatus{Healthy: t.healthy.Load(), Degraded: t.degraded.Load()}
}

// IsEnabled reports whether OTLP export is on and healthy.
func (t *Telemetry) IsEnabled() bool {
	if t == nil {
		return false
	}
	return t.cfg.Enabled && t.healthy.Load()
}

func (t *Telemetry) setDegraded(component string, err error) {
	t.degraded.Store(true)
	t.logger.Warn("telemetry degraded", zap.String("component", component), zap.Error(err))
}
