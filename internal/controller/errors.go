package controller

import (
	"errors"
	"fmt"
	"strings"
)

// AssetFailure records one manifest URL that could not be cached.
type AssetFailure struct {
	URL string
	Err error
}

// PopulationError reports a setup that left the bucket unpopulated.
type PopulationError struct {
	Bucket   string
	Failures []AssetFailure
	// Err is set when the failure is not tied to a single asset (for example
	// the bucket could not be opened or written).
	Err error
}

func (e *PopulationError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("populate bucket %s: %v", e.Bucket, e.Err)
	}
	urls := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		urls[i] = f.URL
	}
	return fmt.Sprintf("populate bucket %s: %d asset(s) failed: %s", e.Bucket, len(e.Failures), strings.Join(urls, ", "))
}

func (e *PopulationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// BucketFailure records one stale bucket that could not be deleted.
type BucketFailure struct {
	Bucket string
	Err    error
}

// EvictionError reports stale buckets that survived activation.
type EvictionError struct {
	Failures []BucketFailure
	// Err is set when the bucket names could not be listed.
	Err error
}

func (e *EvictionError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("evict stale buckets: %v", e.Err)
	}
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = f.Bucket
	}
	return fmt.Sprintf("evict stale buckets: %d failed: %s", len(e.Failures), strings.Join(names, ", "))
}

func (e *EvictionError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// StatusError is an asset fetch that returned a non-2xx status.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
}

// IsPopulationError checks if an error is a population error.
func IsPopulationError(err error) bool {
	var pe *PopulationError
	return errors.As(err, &pe)
}
