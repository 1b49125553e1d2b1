package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracerProvider(t *testing.T) {
	tp, err := InitTracerProvider(context.Background(), Options{ServiceName: "progress-tracker-test"})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	require.Same(t, tp, otel.GetTracerProvider())
	require.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")

	_, span := otel.Tracer("test").Start(context.Background(), "probe")
	require.True(t, span.SpanContext().IsValid())
	span.End()
}

func TestInitTracerProviderRequiresServiceName(t *testing.T) {
	_, err := InitTracerProvider(context.Background(), Options{})
	require.Error(t, err)
}

func TestInitTracerProviderWithExporter(t *testing.T) {
	tp, err := InitTracerProvider(context.Background(), Options{
		ServiceName:  "progress-tracker-test",
		OTLPEndpoint: "127.0.0.1:4318",
		Insecure:     true,
	})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = tp.Shutdown(ctx)
}
