package controller

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/sheltercache/internal/bucket"
	"github.com/dshills/sheltercache/internal/redact"
	"github.com/dshills/sheltercache/internal/resource"
)

// SetupReport describes one population attempt.
type SetupReport struct {
	Bucket string
	Cached []string
	Err    error
}

// OnSetup populates the current bucket. A population failure is logged and
// swallowed unless StrictSetup is set.
func (c *Controller) OnSetup(ctx context.Context) error {
	report := c.Setup(ctx)
	if report.Err == nil {
		return nil
	}
	if c.cfg.StrictSetup {
		return report.Err
	}
	c.logger.ErrorContext(ctx, "cache population failed", "bucket", report.Bucket, "error", report.Err)
	return nil
}

// Setup opens the current bucket and stores every manifest URL in it, or none
// of them.
func (c *Controller) Setup(ctx context.Context) SetupReport {
	name := c.BucketName()
	ctx, span := c.tracer.Start(ctx, "controller.setup", trace.WithAttributes(
		attribute.String("bucket", name),
		attribute.Int("manifest.size", len(c.manifest)),
	))
	defer span.End()

	report := SetupReport{Bucket: name}
	c.logger.InfoContext(ctx, "installing", "bucket", name)

	b, err := c.store.Open(ctx, name)
	if err != nil {
		report.Err = &PopulationError{Bucket: name, Err: fmt.Errorf("opening bucket: %w", err)}
		span.SetStatus(codes.Error, report.Err.Error())
		return report
	}

	c.logger.InfoContext(ctx, "caching all content", "bucket", name, "assets", len(c.manifest))
	entries, failures := c.fetchManifest(ctx)
	if len(failures) > 0 {
		report.Err = &PopulationError{Bucket: name, Failures: failures}
		span.SetStatus(codes.Error, report.Err.Error())
		return report
	}

	if err := b.PutAll(ctx, entries); err != nil {
		report.Err = &PopulationError{Bucket: name, Err: fmt.Errorf("storing assets: %w", err)}
		span.SetStatus(codes.Error, report.Err.Error())
		return report
	}

	report.Cached = append([]string(nil), c.manifest...)
	c.logger.InfoContext(ctx, "installed", "bucket", name, "cached", len(report.Cached))
	return report
}

// fetchManifest fetches every manifest URL concurrently. Only 2xx responses
// are acceptable.
func (c *Controller) fetchManifest(ctx context.Context) ([]bucket.Entry, []AssetFailure) {
	type result struct {
		entry bucket.Entry
		err   error
	}
	results := make([]result, len(c.manifest))
	var wg sync.WaitGroup

	for i, u := range c.manifest {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			req := resource.Get(u)
			resp, err := c.setup.Fetch(ctx, req)
			if err != nil {
				results[i] = result{err: err}
				return
			}
			if !resp.OK() {
				results[i] = result{err: &StatusError{URL: u, Status: resp.Status}}
				return
			}
			results[i] = result{entry: bucket.Entry{Request: req, Response: resp}}
		}(i, u)
	}
	wg.Wait()

	entries := make([]bucket.Entry, 0, len(results))
	var failures []AssetFailure
	for i, r := range results {
		if r.err != nil {
			c.logger.WarnContext(ctx, "asset fetch failed", "url", redact.URL(c.manifest[i]), "error", r.err)
			failures = append(failures, AssetFailure{URL: c.manifest[i], Err: r.err})
			continue
		}
		entries = append(entries, r.entry)
	}
	return entries, failures
}
