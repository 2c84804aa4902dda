package controller

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ActivateReport describes one eviction pass.
type ActivateReport struct {
	Kept    []string
	Deleted []string
	Err     error
}

// OnActivate evicts stale buckets. Failures are logged and never fail
// activation; a surviving stale bucket is retried on the next activation.
func (c *Controller) OnActivate(ctx context.Context) error {
	report := c.Activate(ctx)
	if report.Err != nil {
		c.logger.ErrorContext(ctx, "cache eviction incomplete", "error", report.Err)
	}
	return nil
}

// Activate deletes every bucket other than the current one. Deletions run
// concurrently and all of them settle before Activate returns.
func (c *Controller) Activate(ctx context.Context) ActivateReport {
	current := c.BucketName()
	ctx, span := c.tracer.Start(ctx, "controller.activate", trace.WithAttributes(
		attribute.String("bucket", current),
	))
	defer span.End()

	c.logger.InfoContext(ctx, "activating", "bucket", current)
	var report ActivateReport

	names, err := c.store.Keys(ctx)
	if err != nil {
		report.Err = &EvictionError{Err: fmt.Errorf("listing buckets: %w", err)}
		span.SetStatus(codes.Error, report.Err.Error())
		return report
	}

	var stale []string
	for _, name := range names {
		if name == current {
			report.Kept = append(report.Kept, name)
			continue
		}
		stale = append(stale, name)
	}

	errs := make([]error, len(stale))
	var wg sync.WaitGroup
	for i, name := range stale {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			c.logger.InfoContext(ctx, "deleting old cache", "bucket", name)
			if _, err := c.store.Delete(ctx, name); err != nil {
				errs[i] = err
			}
		}(i, name)
	}
	wg.Wait()

	var failures []BucketFailure
	for i, name := range stale {
		if errs[i] != nil {
			c.logger.WarnContext(ctx, "delete old cache failed", "bucket", name, "error", errs[i])
			failures = append(failures, BucketFailure{Bucket: name, Err: errs[i]})
			continue
		}
		report.Deleted = append(report.Deleted, name)
	}
	if len(failures) > 0 {
		report.Err = &EvictionError{Failures: failures}
		span.SetStatus(codes.Error, report.Err.Error())
	}
	span.SetAttributes(attribute.Int("deleted", len(report.Deleted)))
	return report
}
