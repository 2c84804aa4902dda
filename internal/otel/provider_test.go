package otel_test

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/trace/noop"

	gotel "go.opentelemetry.io/otel"

	"github.com/dshills/sheltercache/internal/otel"
)

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	before := gotel.GetTracerProvider()

	shutdown, err := otel.Setup(context.Background(), "sheltercache-test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
	if gotel.GetTracerProvider() != before {
		t.Error("global provider replaced without an endpoint")
	}
}

func TestSetup_InstallsProviderWhenEndpointSet(t *testing.T) {
	prev := gotel.GetTracerProvider()
	t.Cleanup(func() { gotel.SetTracerProvider(prev) })
	gotel.SetTracerProvider(noop.NewTracerProvider())

	// Non-routable address so no actual export happens.
	shutdown, err := otel.Setup(context.Background(), "sheltercache-test", "http://192.0.2.1:4318")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, isNoop := gotel.GetTracerProvider().(noop.TracerProvider); isNoop {
		t.Error("global provider still no-op after Setup")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_NoopShutdownIgnoresCancelledContext(t *testing.T) {
	shutdown, err := otel.Setup(context.Background(), "sheltercache-test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown should not error: %v", err)
	}
}
