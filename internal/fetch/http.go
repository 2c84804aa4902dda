package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dshills/sheltercache/internal/resource"
)

const defaultTimeout = 30 * time.Second

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// HTTP fetches resources with net/http.
type HTTP struct {
	origin       *url.URL
	client       *http.Client
	maxBodyBytes int64
}

// Option configures an HTTP fetcher.
type Option func(*HTTP)

// WithClient replaces the underlying http.Client.
func WithClient(c *http.Client) Option {
	return func(h *HTTP) { h.client = c }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTP) {
		if d > 0 {
			h.client.Timeout = d
		}
	}
}

// WithMaxBodyBytes caps response bodies; n <= 0 means unbounded.
func WithMaxBodyBytes(n int64) Option {
	return func(h *HTTP) { h.maxBodyBytes = n }
}

// NewHTTP creates a fetcher that resolves relative URLs against origin.
// origin may be empty, in which case every request URL must be absolute.
func NewHTTP(origin string, opts ...Option) (*HTTP, error) {
	h := &HTTP{client: &http.Client{Timeout: defaultTimeout}}
	if origin != "" {
		u, err := url.Parse(origin)
		if err != nil {
			return nil, fmt.Errorf("parsing origin: %w", err)
		}
		if !u.IsAbs() {
			return nil, fmt.Errorf("origin %q must be an absolute URL", origin)
		}
		h.origin = u
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Resolve returns rawURL resolved against the fetcher's origin.
func (h *HTTP) Resolve(rawURL string) (string, error) {
	return Resolve(h.origin, rawURL)
}

// Resolve returns rawURL resolved against origin. A nil origin requires an
// absolute URL.
func Resolve(origin *url.URL, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", rawURL, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if origin == nil {
		return "", fmt.Errorf("relative url %q without an origin", rawURL)
	}
	return origin.ResolveReference(u).String(), nil
}

func (h *HTTP) Fetch(ctx context.Context, req resource.Request) (resource.Response, error) {
	target, err := h.Resolve(req.URL)
	if err != nil {
		return resource.Response{}, &NetworkError{URL: req.URL, Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.NormalizedMethod(), resource.StripFragment(target), nil)
	if err != nil {
		return resource.Response{}, &NetworkError{URL: target, Err: fmt.Errorf("creating request: %w", err)}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	removeHopHeaders(httpReq.Header)

	httpResp, err := h.client.Do(httpReq)
	if err != nil {
		return resource.Response{}, &NetworkError{URL: target, Err: err}
	}
	defer httpResp.Body.Close()

	var body io.Reader = httpResp.Body
	if h.maxBodyBytes > 0 {
		body = io.LimitReader(httpResp.Body, h.maxBodyBytes+1)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(body); err != nil {
		return resource.Response{}, &NetworkError{URL: target, Err: fmt.Errorf("reading response: %w", err)}
	}
	if h.maxBodyBytes > 0 && int64(buf.Len()) > h.maxBodyBytes {
		return resource.Response{}, &NetworkError{URL: target, Err: ErrBodyTooLarge}
	}

	header := httpResp.Header.Clone()
	removeHopHeaders(header)
	return resource.Response{
		Status: httpResp.StatusCode,
		Header: header,
		Body:   buf.Bytes(),
	}, nil
}

func removeHopHeaders(h http.Header) {
	if c := h.Get("Connection"); c != "" {
		for _, f := range strings.Split(c, ",") {
			h.Del(strings.TrimSpace(f))
		}
	}
	for _, k := range hopHeaders {
		h.Del(k)
	}
}
