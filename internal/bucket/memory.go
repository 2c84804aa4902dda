package bucket

import (
	"context"
	"fmt"
	"sync"

	"github.com/dshills/sheltercache/internal/resource"
)

// Memory is an in-process Store.
type Memory struct {
	mu      sync.RWMutex
	buckets map[string]*memoryBucket
	order   []string
	closed  bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{buckets: make(map[string]*memoryBucket)}
}

// Open returns the named bucket, creating it if absent.
func (m *Memory) Open(ctx context.Context, name string) (Bucket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validName(name); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if b, ok := m.buckets[name]; ok {
		return b, nil
	}
	b := &memoryBucket{store: m, name: name, entries: make(map[string]Entry)}
	m.buckets[name] = b
	m.order = append(m.order, name)
	return b, nil
}

// Get returns the named bucket if it exists.
func (m *Memory) Get(ctx context.Context, name string) (Bucket, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	b, ok := m.buckets[name]
	if !ok {
		return nil, false, nil
	}
	return b, true, nil
}

// Keys lists bucket names in creation order.
func (m *Memory) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out, nil
}

// Delete removes a bucket. Handles to it stop matching and reject writes.
func (m *Memory) Delete(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	b, ok := m.buckets[name]
	if !ok {
		return false, nil
	}
	delete(m.buckets, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	b.mu.Lock()
	b.deleted = true
	b.entries = make(map[string]Entry)
	b.order = nil
	b.mu.Unlock()
	return true, nil
}

// Close is safe to call multiple times.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type memoryBucket struct {
	store *Memory
	name  string

	mu      sync.RWMutex
	entries map[string]Entry
	order   []string
	deleted bool
}

func (b *memoryBucket) Name() string { return b.name }

// Match returns a copy of the response stored for req.
func (b *memoryBucket) Match(ctx context.Context, req resource.Request) (resource.Response, bool, error) {
	if err := ctx.Err(); err != nil {
		return resource.Response{}, false, err
	}
	if !req.Matchable() {
		return resource.Response{}, false, nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.deleted {
		return resource.Response{}, false, nil
	}
	e, ok := b.entries[resource.Key(req)]
	if !ok {
		return resource.Response{}, false, nil
	}
	return e.Response.Clone(), true, nil
}

// Put stores a single entry.
func (b *memoryBucket) Put(ctx context.Context, req resource.Request, resp resource.Response) error {
	return b.PutAll(ctx, []Entry{{Request: req, Response: resp}})
}

// PutAll stores all entries under one lock.
func (b *memoryBucket) PutAll(ctx context.Context, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.store.mu.RLock()
	closed := b.store.closed
	b.store.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleted {
		return fmt.Errorf("bucket %s: %w", b.name, ErrBucketDeleted)
	}
	for _, e := range entries {
		key := resource.Key(e.Request)
		if _, ok := b.entries[key]; !ok {
			b.order = append(b.order, key)
		}
		b.entries[key] = Entry{
			Request:  resource.Request{Method: e.Request.NormalizedMethod(), URL: resource.StripFragment(e.Request.URL)},
			Response: stored(e.Response),
		}
	}
	return nil
}

// Keys lists stored requests in insertion order.
func (b *memoryBucket) Keys(ctx context.Context) ([]resource.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]resource.Request, 0, len(b.order))
	for _, key := range b.order {
		out = append(out, b.entries[key].Request)
	}
	return out, nil
}

// Delete removes the entry for req.
func (b *memoryBucket) Delete(ctx context.Context, req resource.Request) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := resource.Key(req)
	if _, ok := b.entries[key]; !ok {
		return false, nil
	}
	delete(b.entries, key)
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return true, nil
}
