package resource

import (
	"net/http"
	"strings"
)

// Source records which path produced a Response.
type Source string

const (
	SourceCache    Source = "cache"
	SourceNetwork  Source = "network"
	SourceBypass   Source = "bypass"
	SourceFallback Source = "fallback"
)

// Request is an intercepted fetch.
type Request struct {
	Method string
	URL    string
	Header http.Header
}

// Get returns a GET request for rawURL.
func Get(rawURL string) Request {
	return Request{Method: http.MethodGet, URL: rawURL}
}

// NormalizedMethod returns the upper-cased method, defaulting to GET.
func (r Request) NormalizedMethod() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(r.Method)
}

// Matchable reports whether the request can be answered from a bucket.
func (r Request) Matchable() bool {
	return r.NormalizedMethod() == http.MethodGet
}

// Key returns the bucket identity of req.
func Key(req Request) string {
	return req.NormalizedMethod() + " " + StripFragment(req.URL)
}

// StripFragment drops a trailing "#..." from rawURL.
func StripFragment(rawURL string) string {
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

// Response is a stored, fetched, or synthesized answer to a Request.
type Response struct {
	Status int
	Header http.Header
	Body   []byte

	// Source is set by the controller and never persisted.
	Source Source
}

// OK reports whether the status is in the 2xx range.
func (r Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// ContentType returns the Content-Type header, if any.
func (r Response) ContentType() string {
	if r.Header == nil {
		return ""
	}
	return r.Header.Get("Content-Type")
}

// Clone returns a deep copy so callers cannot mutate stored bytes.
func (r Response) Clone() Response {
	out := r
	if r.Header != nil {
		out.Header = r.Header.Clone()
	}
	out.Body = cloneBytes(r.Body)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
