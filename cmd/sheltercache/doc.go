// Sheltercache keeps the shelter map page usable offline.
//
// It populates a versioned cache bucket from an asset manifest, evicts stale
// buckets on activation, and serves the page through the cache with an
// offline fallback when the network is gone.
//
// Usage:
//
//	sheltercache install               # populate the current bucket
//	sheltercache activate              # delete stale buckets
//	sheltercache serve                 # install, activate and serve
//	sheltercache fetch ./index.html    # show how one request is answered
//	sheltercache buckets list          # list cache buckets
package main
