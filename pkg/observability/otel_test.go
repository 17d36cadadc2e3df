package observability

import (
	"bytes"
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitOTel_Disabled(t *testing.T) {
	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, NewLogger(InfoLevel, &bytes.Buffer{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if providers != nil {
		t.Fatal("expected nil providers when disabled")
	}
	if err := providers.Shutdown(context.Background()); err != nil {
		t.Errorf("nil providers shutdown should be a no-op: %v", err)
	}
}

func TestWithTraceContext(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})

	if got := WithTraceContext(context.Background(), logger); got != logger {
		t.Error("expected logger unchanged without a span")
	}

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	if got := WithTraceContext(ctx, logger); got == logger {
		t.Error("expected enriched logger with a recording span")
	}
}
