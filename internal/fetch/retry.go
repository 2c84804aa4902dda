package fetch

import (
	"context"
	"net/http"
	"time"

	"github.com/dshills/sheltercache/internal/resource"
)

// WithRetry wraps f so that transport failures and 429/503 responses are
// retried up to retries more times with exponential backoff starting at base.
func WithRetry(f Fetcher, retries int, base time.Duration) Fetcher {
	if retries <= 0 {
		return f
	}
	return Func(func(ctx context.Context, req resource.Request) (resource.Response, error) {
		var resp resource.Response
		err := retryWithBackoff(ctx, retries, base, func() (bool, error) {
			var err error
			resp, err = f.Fetch(ctx, req)
			if err != nil {
				return IsNetworkError(err), err
			}
			return retryableStatus(resp.Status), nil
		})
		return resp, err
	})
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// retryWithBackoff calls fn until it reports no retry is needed or attempts run
// out. The last result stands.
func retryWithBackoff(ctx context.Context, maxRetries int, base time.Duration, fn func() (retry bool, err error)) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		retry, err := fn()
		lastErr = err
		if !retry {
			return lastErr
		}

		if attempt < maxRetries {
			backoff := time.Duration(1<<uint(attempt)) * base
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}
