package fetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/sheltercache/internal/resource"
)

// ErrBodyTooLarge is returned when a response body exceeds the configured cap.
var ErrBodyTooLarge = errors.New("response body too large")

// Fetcher retrieves a resource from the network.
type Fetcher interface {
	Fetch(ctx context.Context, req resource.Request) (resource.Response, error)
}

// Func adapts a function to the Fetcher interface.
type Func func(ctx context.Context, req resource.Request) (resource.Response, error)

func (f Func) Fetch(ctx context.Context, req resource.Request) (resource.Response, error) {
	return f(ctx, req)
}

// NetworkError reports a fetch that produced no response.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetworkError checks if an error is a network error.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
