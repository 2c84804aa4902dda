package controller

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/dshills/sheltercache/internal/bucket"
	"github.com/dshills/sheltercache/internal/resource"
)

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) string {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value.Emit()
		}
	}
	return ""
}

func TestTracing_HandlerSpans(t *testing.T) {
	ctx := context.Background()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(ctx)

	net := onlineNetwork()
	store := bucket.NewMemory()
	c := newController(t, testConfig("v1"), store, net, WithTracer(tp.Tracer("test")))

	if err := c.OnSetup(ctx); err != nil {
		t.Fatalf("OnSetup: %v", err)
	}
	if _, err := c.OnIntercept(ctx, resource.Get("/index.html")); err != nil {
		t.Fatal(err)
	}
	if _, err := c.OnIntercept(ctx, resource.Get("/not-cached.js")); err != nil {
		t.Fatal(err)
	}
	net.setOffline(true)
	if _, err := c.OnIntercept(ctx, resource.Get("/not-cached.js")); err != nil {
		t.Fatal(err)
	}
	if err := c.OnActivate(ctx); err != nil {
		t.Fatal(err)
	}

	var names, sources []string
	for _, span := range rec.Ended() {
		names = append(names, span.Name())
		if span.Name() == "controller.intercept" {
			sources = append(sources, spanAttr(span, "source"))
		}
	}

	wantNames := []string{
		"controller.setup",
		"controller.intercept",
		"controller.intercept",
		"controller.intercept",
		"controller.activate",
	}
	if diff := cmp.Diff(wantNames, names); diff != "" {
		t.Errorf("span names (-want +got):\n%s", diff)
	}
	wantSources := []string{"cache", "network", "fallback"}
	if diff := cmp.Diff(wantSources, sources); diff != "" {
		t.Errorf("intercept sources (-want +got):\n%s", diff)
	}
}

func TestTracing_SetupSpanCarriesBucket(t *testing.T) {
	ctx := context.Background()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(ctx)

	c := newController(t, testConfig("v2"), bucket.NewMemory(), onlineNetwork(), WithTracer(tp.Tracer("test")))
	c.Setup(ctx)

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(ended))
	}
	if got := spanAttr(ended[0], "bucket"); got != "app-v2" {
		t.Errorf("bucket attribute = %q, want app-v2", got)
	}
}
