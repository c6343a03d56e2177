package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fyrsmithlabs/careerd/internal/config"
)

type discardExporter struct{}

func (discardExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (discardExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (discardExporter) Export(context.Context, *metricdata.ResourceMetrics) error { return nil }
func (discardExporter) ForceFlush(context.Context) error { return nil }
func (discardExporter) Shutdown(context.Context) error { return nil }

func defaultTelemetryConfig() config.TelemetryConfig {
	return config.Default().Telemetry
}

func TestNew_PrometheusOnly(t *testing.T) {
	reg := prometheus.NewRegistry()
	tel, err := New(context.Background(), defaultTelemetryConfig(), "1.2.3", WithRegisterer(reg), WithoutGlobal())
	require.NoError(t, err)
	defer tel.Shutdown(context.Background())

	assert.False(t, tel.IsEnabled())
	assert.Equal(t, HealthStatus{Healthy: true}, tel.Health())

	counter, err := tel.Meter("test").Int64Counter("careerd.test.events")
	require.NoError(t, err)
	counter.Add(context.Background(), 3, metric.WithAttributes(attribute.String("kind", "upload")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), "careerd_test_events") {
			found = true
			require.Len(t, mf.GetMetric(), 1)
			assert.Equal(t, 3.0, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found, "otel counter should be exposed on the registry")
}

func TestNew_WithExporters(t *testing.T) {
	cfg := defaultTelemetryConfig()
	cfg.Enabled = true

	spans := tracetest.NewInMemoryExporter()
	tel, err := New(context.Background(), cfg, "dev",
		WithRegisterer(prometheus.NewRegistry()),
		WithTraceExporter(spans),
		WithMetricExporter(discardExporter{}),
		WithoutGlobal(),
	)
	require.NoError(t, err)
	assert.True(t, tel.IsEnabled())

	_, span := tel.Tracer("test").Start(context.Background(), "op")
	span.End()
	require.NoError(t, tel.ForceFlush(context.Background()))
	require.Len(t, spans.GetSpans(), 1)
	assert.Equal(t, "op", spans.GetSpans()[0].Name)

	require.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.Health().Healthy)
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.TelemetryConfig)
		want   string
	}{
		{"no endpoint", func(c *config.TelemetryConfig) { c.Endpoint = "" }, "endpoint is required"},
		{"no service", func(c *config.TelemetryConfig) { c.ServiceName = "" }, "service_name"},
		{"insecure remote", func(c *config.TelemetryConfig) { c.Endpoint = "otel.example.com:4317" }, "insecure"},
		{"no interval", func(c *config.TelemetryConfig) { c.ExportInterval = 0 }, "export_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultTelemetryConfig()
			cfg.Enabled = true
			tt.mutate(&cfg)
			tel, err := New(context.Background(), cfg, "dev", WithRegisterer(prometheus.NewRegistry()), WithoutGlobal())
			require.Error(t, err)
			assert.Nil(t, tel)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestIsLocalEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		want     bool
	}{
		{"localhost:4317", true},
		{"127.0.0.1:4317", true},
		{"http://localhost:4318", true},
		{"[::1]:4317", true},
		{"::1", true},
		{"collector:4317", false},
		{"https://otel.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			assert.Equal(t, tt.want, isLocalEndpoint(tt.endpoint))
		})
	}
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "host:4318", stripScheme("https://host:4318"))
	assert.Equal(t, "host:4318", stripScheme("http://host:4318"))
	assert.Equal(t, "host:4318", stripScheme("host:4318"))
}

func TestNewResource(t *testing.T) {
	res := newResource("careerd", "1.0.0")
	var name, version string
	for _, attr := range res.Attributes() {
		switch string(attr.Key) {
		case "service.name":
			name = attr.Value.AsString()
		case "service.version":
			version = attr.Value.AsString()
		}
	}
	assert.Equal(t, "careerd", name)
	assert.Equal(t, "1.0.0", version)
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		_ = tel.Tracer("test")
		_ = tel.Meter("test")
		_ = tel.LoggerProvider()
		tel.SetLoggerProvider(nil)
		_ = tel.IsEnabled()
		_ = tel.Shutdown(context.Background())
		_ = tel.ForceFlush(context.Background())
	})
	assert.Equal(t, HealthStatus{Healthy: false, Degraded: true}, tel.Health())
}

func TestTelemetry_ShutdownWithDeadline(t *testing.T) {
	tel, err := New(context.Background(), defaultTelemetryConfig(), "dev", WithRegisterer(prometheus.NewRegistry()), WithoutGlobal())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, tel.Shutdown(ctx))
}

func TestTestTelemetry_Spans(t *testing.T) {
	tt := NewTestTelemetry()

	tracer := tt.Tracer("test")
	_, span1 := tracer.Start(context.Background(), "span1")
	span1.SetAttributes(attribute.Int64("count", 1))
	span1.End()

	_, span2 := tracer.Start(context.Background(), "span2")
	span2.SetAttributes(attribute.String("key", "value"), attribute.Bool("done", true))
	span2.End()

	assert.Len(t, tt.Spans(), 2)
	tt.AssertSpanExists(t, "span1")
	tt.AssertSpanAttribute(t, "span1", "count", int64(1))
	tt.AssertSpanAttribute(t, "span2", "key", "value")
	tt.AssertSpanAttribute(t, "span2", "done", true)
	assert.Nil(t, tt.SpanByName("missing"))
}

func TestTestTelemetry_Metrics(t *testing.T) {
	tt := NewTestTelemetry()

	counter, err := tt.Meter("test").Int64Counter("test.counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)

	require.NoError(t, tt.MetricReader.ForceFlush(context.Background()))
	assert.NotEmpty(t, tt.MetricReader.Metrics())
}
