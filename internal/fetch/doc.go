// Package fetch issues network requests on behalf of the cache controller.
//
// A [Fetcher] follows browser fetch semantics: a response with any HTTP status
// is a successful fetch, and only transport failures are errors (reported as
// [*NetworkError]). [HTTP] is the net/http implementation; [WithRetry] wraps a
// Fetcher with exponential backoff for the cache population step.
package fetch
