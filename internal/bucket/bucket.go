package bucket

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/dshills/sheltercache/internal/resource"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("bucket store is closed")

// ErrBucketDeleted is returned when writing through a handle whose bucket has
// since been deleted from the store.
var ErrBucketDeleted = errors.New("bucket has been deleted")

// Entry pairs a request with the response stored for it.
type Entry struct {
	Request  resource.Request
	Response resource.Response
}

// Store manages named buckets.
type Store interface {
	// Open returns the named bucket, creating it if absent.
	Open(ctx context.Context, name string) (Bucket, error)
	// Get returns the named bucket only if it already exists.
	Get(ctx context.Context, name string) (Bucket, bool, error)
	// Keys lists bucket names in creation order.
	Keys(ctx context.Context) ([]string, error)
	// Delete removes a bucket and all of its entries. It reports whether the
	// bucket existed.
	Delete(ctx context.Context, name string) (bool, error)
	Close() error
}

// Bucket is a single named request -> response map.
type Bucket interface {
	Name() string
	// Match looks up req. Requests that are not GET never match.
	Match(ctx context.Context, req resource.Request) (resource.Response, bool, error)
	Put(ctx context.Context, req resource.Request, resp resource.Response) error
	// PutAll stores every entry or none of them.
	PutAll(ctx context.Context, entries []Entry) error
	// Keys lists the stored requests.
	Keys(ctx context.Context) ([]resource.Request, error)
	Delete(ctx context.Context, req resource.Request) (bool, error)
}

// HashKey creates a SHA-256 hash of the given key material.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h)
}

func validName(name string) error {
	if name == "" {
		return errors.New("bucket name is required")
	}
	return nil
}

// stored strips the per-call Source so it is never persisted.
func stored(resp resource.Response) resource.Response {
	out := resp.Clone()
	out.Source = ""
	return out
}
