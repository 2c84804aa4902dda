// Package resource defines the request and response values that flow between
// the page, the cache bucket store, and the network.
//
// A [Request] is identified in a bucket by [Key]: the method plus the URL with
// any fragment removed. Only GET requests can be matched against a bucket,
// mirroring the browser Cache API.
package resource
