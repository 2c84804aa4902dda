package controller

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/dshills/sheltercache/internal/bucket"
	"github.com/dshills/sheltercache/internal/fetch"
	"github.com/dshills/sheltercache/internal/resource"
)

// fakeNetwork serves canned responses and counts calls.
type fakeNetwork struct {
	mu      sync.Mutex
	pages   map[string]resource.Response
	offline bool
	calls   atomic.Int64
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{pages: make(map[string]resource.Response)}
}

func (n *fakeNetwork) serve(url, contentType, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pages[url] = resource.Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {contentType}},
		Body:   []byte(body),
	}
}

func (n *fakeNetwork) setOffline(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offline = v
}

func (n *fakeNetwork) Fetch(ctx context.Context, req resource.Request) (resource.Response, error) {
	n.calls.Add(1)
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.offline {
		return resource.Response{}, &fetch.NetworkError{URL: req.URL, Err: errors.New("network unreachable")}
	}
	resp, ok := n.pages[resource.StripFragment(req.URL)]
	if !ok {
		return resource.Response{Status: http.StatusNotFound, Body: []byte("not found")}, nil
	}
	return resp.Clone(), nil
}

// countingStore records every bucket store access.
type countingStore struct {
	bucket.Store
	ops       atomic.Int64
	deleteErr map[string]error
	getErr    error
}

func newCountingStore() *countingStore {
	return &countingStore{Store: bucket.NewMemory()}
}

func (s *countingStore) Open(ctx context.Context, name string) (bucket.Bucket, error) {
	s.ops.Add(1)
	b, err := s.Store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &countingBucket{Bucket: b, ops: &s.ops}, nil
}

func (s *countingStore) Get(ctx context.Context, name string) (bucket.Bucket, bool, error) {
	s.ops.Add(1)
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	b, ok, err := s.Store.Get(ctx, name)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &countingBucket{Bucket: b, ops: &s.ops}, true, nil
}

func (s *countingStore) Keys(ctx context.Context) ([]string, error) {
	s.ops.Add(1)
	return s.Store.Keys(ctx)
}

func (s *countingStore) Delete(ctx context.Context, name string) (bool, error) {
	s.ops.Add(1)
	if err := s.deleteErr[name]; err != nil {
		return false, err
	}
	return s.Store.Delete(ctx, name)
}

type countingBucket struct {
	bucket.Bucket
	ops *atomic.Int64
}

func (b *countingBucket) Match(ctx context.Context, req resource.Request) (resource.Response, bool, error) {
	b.ops.Add(1)
	return b.Bucket.Match(ctx, req)
}

func (b *countingBucket) PutAll(ctx context.Context, entries []bucket.Entry) error {
	b.ops.Add(1)
	return b.Bucket.PutAll(ctx, entries)
}
