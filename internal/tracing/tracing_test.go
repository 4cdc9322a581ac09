package tracing_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/throttlebench/internal/config"
	"github.com/torosent/throttlebench/internal/tracing"
)

func setupTestTracer(t *testing.T) (*tracetest.InMemoryExporter, trace.Tracer) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return exporter, tp.Tracer("test")
}

func attrValue(attrs []attribute.KeyValue, key attribute.Key) (attribute.Value, bool) {
	for _, a := range attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestInitDisabledByDefault(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	p, err := tracing.Init(context.Background(), config.TracingConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	assert.False(t, p.ShouldPropagate())

	_, span := p.Tracer().Start(context.Background(), "test")
	span.End()
	assert.False(t, span.SpanContext().IsValid(), "disabled provider must hand out no-op spans")
}

func TestInitWithEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		protocol string
	}{
		{"grpc", "localhost:4317", "grpc"},
		{"http", "localhost:4318", "http"},
		{"default protocol", "localhost:4317", ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			p, err := tracing.Init(context.Background(), config.TracingConfig{
				Endpoint:    tt.endpoint,
				Protocol:    tt.protocol,
				ServiceName: "test-service",
				SampleRate:  1.0,
				Insecure:    true,
			})
			require.NoError(t, err)
			t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

			assert.True(t, p.ShouldPropagate())
		})
	}
}

func TestInitRejectsBadSettings(t *testing.T) {
	_, err := tracing.Init(context.Background(), config.TracingConfig{
		Endpoint: "localhost:4317",
		Protocol: "thrift",
		Insecure: true,
	})
	assert.Error(t, err)

	for _, rate := range []float64{-0.5, 1.5} {
		_, err := tracing.Init(context.Background(), config.TracingConfig{
			Endpoint:   "localhost:4317",
			Insecure:   true,
			SampleRate: rate,
		})
		assert.Error(t, err, "sample rate %g", rate)
	}
}

func TestShouldPropagateOverride(t *testing.T) {
	off := false
	p, err := tracing.Init(context.Background(), config.TracingConfig{
		Endpoint:  "localhost:4317",
		Insecure:  true,
		Propagate: &off,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	assert.False(t, p.ShouldPropagate())
}

func TestNilProviderSafety(t *testing.T) {
	var p *tracing.Provider
	assert.False(t, p.ShouldPropagate())
	assert.NoError(t, p.Shutdown(context.Background()))

	_, span := p.Tracer().Start(context.Background(), "test")
	span.End()
}

func TestStartRequestSpan(t *testing.T) {
	exporter, tracer := setupTestTracer(t)

	tests := []struct {
		name     string
		class    string
		wantName string
	}{
		{"light", "light", "GET light"},
		{"heavy", "heavy", "GET heavy"},
		{"no class", "", "GET"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			exporter.Reset()

			_, span := tracing.StartRequestSpan(context.Background(), tracer, http.MethodGet, tt.class, "http://svc/api")
			span.End()

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, tt.wantName, spans[0].Name)
			assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind)

			url, ok := attrValue(spans[0].Attributes, tracing.AttrURL)
			require.True(t, ok)
			assert.Equal(t, "http://svc/api", url.AsString())

			class, ok := attrValue(spans[0].Attributes, tracing.AttrRequestClass)
			assert.Equal(t, tt.class != "", ok)
			if ok {
				assert.Equal(t, tt.class, class.AsString())
			}
		})
	}
}

func TestEndSpanStatus(t *testing.T) {
	exporter, tracer := setupTestTracer(t)

	_, failed := tracer.Start(context.Background(), "failed")
	tracing.EndSpan(failed, errors.New("connection refused"), tracing.AttrStatusCode.Int(0))

	_, ok := tracer.Start(context.Background(), "ok")
	tracing.EndSpan(ok, nil, tracing.AttrStatusCode.Int(200))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, codes.Ok, spans[1].Status.Code)

	status, found := attrValue(spans[1].Attributes, tracing.AttrStatusCode)
	require.True(t, found)
	assert.EqualValues(t, 200, status.AsInt64())
}

func TestInjectHTTPHeaders(t *testing.T) {
	_, tracer := setupTestTracer(t)

	ctx, span := tracer.Start(context.Background(), "inject")
	defer span.End()

	headers := make(http.Header)
	tracing.InjectHTTPHeaders(ctx, headers)

	// version-traceid-spanid-flags
	assert.GreaterOrEqual(t, len(headers.Get("Traceparent")), 55)
}

func TestInjectHTTPHeadersNoSpan(t *testing.T) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	headers := make(http.Header)
	tracing.InjectHTTPHeaders(context.Background(), headers)

	assert.Empty(t, headers.Get("Traceparent"))
}
