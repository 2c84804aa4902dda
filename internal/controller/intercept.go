package controller

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/sheltercache/internal/fetch"
	"github.com/dshills/sheltercache/internal/redact"
	"github.com/dshills/sheltercache/internal/resource"
)

// OnIntercept answers one request. The error is non-nil only for a failed
// bypass fetch, which is propagated as-is; every other failure is answered with
// the fallback response.
func (c *Controller) OnIntercept(ctx context.Context, req resource.Request) (resp resource.Response, err error) {
	if abs, rErr := fetch.Resolve(c.origin, req.URL); rErr == nil {
		req.URL = abs
	}
	logURL := redact.URL(req.URL)

	ctx, span := c.tracer.Start(ctx, "controller.intercept", trace.WithAttributes(
		attribute.String("http.method", req.NormalizedMethod()),
		attribute.String("url", logURL),
	))
	defer func() {
		span.SetAttributes(attribute.String("source", string(resp.Source)))
		span.End()
	}()

	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(ctx, "intercept panicked", "url", logURL, "panic", fmt.Sprint(r))
			span.SetStatus(codes.Error, "panic")
			resp, err = c.Fallback(), nil
		}
	}()

	if bypassed(c.bypass, req.URL) {
		resp, err = c.fetcher.Fetch(ctx, req)
		if err != nil {
			c.logger.WarnContext(ctx, "bypass fetch failed", "url", logURL, "error", err)
			span.SetStatus(codes.Error, err.Error())
			return resource.Response{}, err
		}
		resp.Source = resource.SourceBypass
		c.logger.DebugContext(ctx, "bypassing cache", "url", logURL, "status", resp.Status)
		return resp, nil
	}

	resp, err = c.serve(ctx, req, logURL)
	if err != nil {
		c.logger.ErrorContext(ctx, "fetch failed", "url", logURL, "error", err)
		span.SetStatus(codes.Error, err.Error())
		return c.Fallback(), nil
	}
	return resp, nil
}

// serve answers from the current bucket, or from the network on a miss.
func (c *Controller) serve(ctx context.Context, req resource.Request, logURL string) (resource.Response, error) {
	b, ok, err := c.store.Get(ctx, c.BucketName())
	if err != nil {
		return resource.Response{}, fmt.Errorf("opening bucket: %w", err)
	}
	if ok {
		cached, hit, err := b.Match(ctx, req)
		if err != nil {
			return resource.Response{}, fmt.Errorf("matching request: %w", err)
		}
		if hit {
			cached.Source = resource.SourceCache
			c.logger.InfoContext(ctx, "serving from cache", "url", logURL)
			return cached, nil
		}
	}

	c.logger.InfoContext(ctx, "fetching from network", "url", logURL)
	resp, err := c.fetcher.Fetch(ctx, req)
	if err != nil {
		return resource.Response{}, err
	}
	resp.Source = resource.SourceNetwork
	return resp, nil
}
