package bucket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"github.com/dshills/sheltercache/internal/resource"
)

const markerFile = ".bucket"

// diskEntry is the on-disk form of a cached response.
type diskEntry struct {
	Key       string      `json:"key"`
	Method    string      `json:"method"`
	URL       string      `json:"url"`
	Status    int         `json:"status"`
	Header    http.Header `json:"header,omitempty"`
	Body      []byte      `json:"body"`
	CreatedAt time.Time   `json:"createdAt"`
}

type diskMarker struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Disk is a Store rooted at a directory. Each bucket is a subdirectory.
type Disk struct {
	dir string

	mu     sync.RWMutex
	closed bool
}

// NewDisk creates a disk store. If dir is empty, uses the default cache directory.
func NewDisk(dir string) (*Disk, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Disk{dir: dir}, nil
}

// Dir returns the store root.
func (d *Disk) Dir() string {
	return d.dir
}

// Open creates the bucket directory and marker if missing.
func (d *Disk) Open(ctx context.Context, name string) (Bucket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := d.bucketDir(name)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}

	marker := filepath.Join(dir, markerFile)
	if _, err := os.Stat(marker); err == nil {
		return &diskBucket{store: d, name: name, dir: dir}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating bucket %s: %w", name, err)
	}
	data, err := json.Marshal(diskMarker{Name: name, CreatedAt: time.Now()})
	if err != nil {
		return nil, fmt.Errorf("marshaling bucket marker: %w", err)
	}
	if err := atomic.WriteFile(marker, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("writing bucket marker: %w", err)
	}
	return &diskBucket{store: d, name: name, dir: dir}, nil
}

// Get returns the bucket if its marker file exists.
func (d *Disk) Get(ctx context.Context, name string) (Bucket, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	dir, err := d.bucketDir(name)
	if err != nil {
		return nil, false, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, false, ErrClosed
	}
	if _, err := os.Stat(filepath.Join(dir, markerFile)); err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading bucket %s: %w", name, err)
	}
	return &diskBucket{store: d, name: name, dir: dir}, true, nil
}

// Keys lists bucket names ordered by marker creation time.
func (d *Disk) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	dirs, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache directory: %w", err)
	}
	var markers []diskMarker
	for _, e := range dirs {
		if !e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(d.dir, e.Name(), markerFile))
		if err != nil {
			continue
		}
		var m diskMarker
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		markers = append(markers, m)
	}
	sort.SliceStable(markers, func(i, j int) bool {
		if markers[i].CreatedAt.Equal(markers[j].CreatedAt) {
			return markers[i].Name < markers[j].Name
		}
		return markers[i].CreatedAt.Before(markers[j].CreatedAt)
	})
	names := make([]string, 0, len(markers))
	for _, m := range markers {
		names = append(names, m.Name)
	}
	return names, nil
}

// Delete removes the bucket directory and every entry in it.
func (d *Disk) Delete(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dir, err := d.bucketDir(name)
	if err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false, ErrClosed
	}
	if _, err := os.Stat(filepath.Join(dir, markerFile)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading bucket %s: %w", name, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, fmt.Errorf("removing bucket %s: %w", name, err)
	}
	return true, nil
}

// Close is safe to call multiple times.
func (d *Disk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Stats returns on-disk statistics for the store.
type Stats struct {
	Dir        string `json:"dir"`
	Buckets    int    `json:"buckets"`
	Entries    int    `json:"entries"`
	TotalBytes int64  `json:"totalBytes"`
}

// GetStats walks the store and reports entry counts and sizes.
func (d *Disk) GetStats() (Stats, error) {
	stats := Stats{Dir: d.dir}
	d.mu.RLock()
	defer d.mu.RUnlock()
	dirs, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, fmt.Errorf("reading cache directory: %w", err)
	}
	for _, bd := range dirs {
		if !bd.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(d.dir, bd.Name()))
		if err != nil {
			continue
		}
		stats.Buckets++
		for _, f := range files {
			if filepath.Ext(f.Name()) != ".json" {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			stats.Entries++
			stats.TotalBytes += info.Size()
		}
	}
	return stats, nil
}

func (d *Disk) bucketDir(name string) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	if name == "." || name == ".." {
		return "", fmt.Errorf("invalid bucket name %q", name)
	}
	return filepath.Join(d.dir, url.PathEscape(name)), nil
}

type diskBucket struct {
	store *Disk
	name  string
	dir   string
}

func (b *diskBucket) Name() string { return b.name }

// Match reads the entry file for req.
func (b *diskBucket) Match(ctx context.Context, req resource.Request) (resource.Response, bool, error) {
	if err := ctx.Err(); err != nil {
		return resource.Response{}, false, err
	}
	if !req.Matchable() {
		return resource.Response{}, false, nil
	}
	b.store.mu.RLock()
	defer b.store.mu.RUnlock()
	if b.store.closed {
		return resource.Response{}, false, ErrClosed
	}
	data, err := os.ReadFile(b.entryPath(resource.Key(req)))
	if err != nil {
		if os.IsNotExist(err) {
			return resource.Response{}, false, nil
		}
		return resource.Response{}, false, fmt.Errorf("reading cache entry: %w", err)
	}
	var e diskEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return resource.Response{}, false, fmt.Errorf("parsing cache entry: %w", err)
	}
	return resource.Response{Status: e.Status, Header: e.Header, Body: e.Body}, true, nil
}

// Put stores a single entry.
func (b *diskBucket) Put(ctx context.Context, req resource.Request, resp resource.Response) error {
	return b.PutAll(ctx, []Entry{{Request: req, Response: resp}})
}

// undo restores a single entry file to its state before a PutAll write.
type undo struct {
	path    string
	prev    []byte
	existed bool
}

// PutAll writes every entry file, restoring previous contents on failure.
func (b *diskBucket) PutAll(ctx context.Context, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now()
	payloads := make([][]byte, len(entries))
	paths := make([]string, len(entries))
	for i, e := range entries {
		key := resource.Key(e.Request)
		resp := stored(e.Response)
		data, err := json.Marshal(diskEntry{
			Key:       key,
			Method:    e.Request.NormalizedMethod(),
			URL:       resource.StripFragment(e.Request.URL),
			Status:    resp.Status,
			Header:    resp.Header,
			Body:      resp.Body,
			CreatedAt: now.Add(time.Duration(i)),
		})
		if err != nil {
			return fmt.Errorf("marshaling cache entry: %w", err)
		}
		payloads[i] = data
		paths[i] = b.entryPath(key)
	}

	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	if b.store.closed {
		return ErrClosed
	}
	if _, err := os.Stat(filepath.Join(b.dir, markerFile)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("bucket %s: %w", b.name, ErrBucketDeleted)
		}
		return fmt.Errorf("bucket %s: %w", b.name, err)
	}

	var undos []undo
	for i := range payloads {
		prev, err := os.ReadFile(paths[i])
		existed := err == nil
		if err != nil && !os.IsNotExist(err) {
			rollback(undos)
			return fmt.Errorf("reading cache entry: %w", err)
		}
		if err := atomic.WriteFile(paths[i], bytes.NewReader(payloads[i])); err != nil {
			rollback(undos)
			return fmt.Errorf("writing cache entry: %w", err)
		}
		undos = append(undos, undo{path: paths[i], prev: prev, existed: existed})
	}
	return nil
}

func rollback(undos []undo) {
	for i := len(undos) - 1; i >= 0; i-- {
		u := undos[i]
		if u.existed {
			_ = atomic.WriteFile(u.path, bytes.NewReader(u.prev))
			continue
		}
		_ = os.Remove(u.path)
	}
}

// Keys lists stored requests in insertion order.
func (b *diskBucket) Keys(ctx context.Context) ([]resource.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.store.mu.RLock()
	defer b.store.mu.RUnlock()
	files, err := os.ReadDir(b.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading bucket %s: %w", b.name, err)
	}
	var entries []diskEntry
	for _, f := range files {
		if filepath.Ext(f.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(b.dir, f.Name()))
		if err != nil {
			continue
		}
		var e diskEntry
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	out := make([]resource.Request, 0, len(entries))
	for _, e := range entries {
		out = append(out, resource.Request{Method: e.Method, URL: e.URL})
	}
	return out, nil
}

// Delete removes the entry file for req.
func (b *diskBucket) Delete(ctx context.Context, req resource.Request) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	err := os.Remove(b.entryPath(resource.Key(req)))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("removing cache entry: %w", err)
}

func (b *diskBucket) entryPath(key string) string {
	return filepath.Join(b.dir, HashKey(key)+".json")
}

// DefaultDir returns the platform-appropriate cache directory.
func DefaultDir() (string, error) {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "sheltercache"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "sheltercache"), nil
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "sheltercache", "cache"), nil
		}
		return filepath.Join(home, "AppData", "Local", "sheltercache", "cache"), nil
	default:
		return filepath.Join(home, ".cache", "sheltercache"), nil
	}
}
