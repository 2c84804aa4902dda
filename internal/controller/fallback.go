package controller

import (
	"net/http"

	"github.com/dshills/sheltercache/internal/resource"
)

// DefaultFallbackHTML tells the user the page is unavailable offline.
const DefaultFallbackHTML = `<!DOCTYPE html><html lang="ja"><head><meta charset="utf-8"><title>オフライン</title></head>` +
	`<body><h1>オフラインです</h1><p>このページはオフラインでは利用できません。</p></body></html>`

// FallbackStatus is the status of the synthesized fallback response.
const FallbackStatus = http.StatusServiceUnavailable

// Fallback returns the synthesized offline response.
func (c *Controller) Fallback() resource.Response {
	return resource.Response{
		Status: FallbackStatus,
		Header: http.Header{"Content-Type": {"text/html"}},
		Body:   []byte(c.fallback),
		Source: resource.SourceFallback,
	}
}
