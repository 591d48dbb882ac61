package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewTracerDisabled(t *testing.T) {
	tracer, err := NewTracer(TracerConfig{ServiceName: "edgegate-test", Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, tracer)

	ctx, span := tracer.StartSpan(context.Background(), "op")
	require.NotNil(t, span)
	span.End()

	assert.NoError(t, tracer.Shutdown(ctx))
}

func TestNewTracerEnabledNoEndpoint(t *testing.T) {
	tracer, err := NewTracer(TracerConfig{
		ServiceName:  "edgegate-test",
		Enabled:      true,
		SamplingRate: 1.0,
	})
	require.NoError(t, err)
	require.NotNil(t, tracer)

	_, span := tracer.StartSpan(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want sdktrace.Sampler
	}{
		{"always", 1.0, sdktrace.AlwaysSample()},
		{"above one", 2.0, sdktrace.AlwaysSample()},
		{"never", 0, sdktrace.NeverSample()},
		{"negative", -0.5, sdktrace.NeverSample()},
		{"ratio", 0.5, sdktrace.TraceIDRatioBased(0.5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := createSampler(tt.rate)
			assert.Equal(t, tt.want.Description(), got.Description())
		})
	}
}

func TestTracingMiddleware(t *testing.T) {
	tracer, err := NewTracer(TracerConfig{
		ServiceName:  "edgegate-test",
		Enabled:      true,
		SamplingRate: 1.0,
	})
	require.NoError(t, err)
	defer func() { _ = tracer.Shutdown(context.Background()) }()

	var sawSpan bool
	handler := TracingMiddleware(tracer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawSpan = SpanFromContext(r.Context()).SpanContext().IsValid()
		w.WriteHeader(http.StatusBadGateway)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.True(t, sawSpan)
}

func TestInjectTraceContext(t *testing.T) {
	tracer, err := NewTracer(TracerConfig{
		ServiceName:  "edgegate-test",
		Enabled:      true,
		SamplingRate: 1.0,
	})
	require.NoError(t, err)
	defer func() { _ = tracer.Shutdown(context.Background()) }()

	ctx, span := tracer.StartSpan(context.Background(), "outbound")
	defer span.End()

	req := httptest.NewRequest(http.MethodGet, "http://backend/", nil)
	InjectTraceContext(ctx, req)

	assert.NotEmpty(t, req.Header.Get("Traceparent"))
}
