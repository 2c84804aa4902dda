package controller

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/sheltercache/internal/bucket"
	"github.com/dshills/sheltercache/internal/fetch"
)

const instrumentationName = "github.com/dshills/sheltercache/internal/controller"

// Config is the static configuration of one controller instance.
type Config struct {
	AppName string
	Version string
	// Origin is the page scope that relative manifest URLs resolve against.
	Origin   string
	Manifest []string
	// Bypass lists URL prefixes that always go to the network.
	Bypass       []string
	FallbackHTML string
	StrictSetup  bool
	SetupRetries int
	RetryBackoff time.Duration
}

// BucketName returns the current version-tagged bucket name.
func (c Config) BucketName() string {
	return c.AppName + "-" + c.Version
}

// Validate checks the configuration and the manifest policy: entries must be
// same-origin, unique once resolved, and never bypassed.
func (c Config) Validate() error {
	if strings.TrimSpace(c.AppName) == "" {
		return errors.New("app name is required")
	}
	if strings.TrimSpace(c.Version) == "" {
		return errors.New("version is required")
	}
	for _, p := range c.Bypass {
		if p == "" {
			return errors.New("bypass prefix must not be empty")
		}
	}
	_, err := c.resolvedManifest()
	return err
}

func (c Config) origin() (*url.URL, error) {
	if c.Origin == "" {
		return nil, nil
	}
	u, err := url.Parse(c.Origin)
	if err != nil {
		return nil, fmt.Errorf("parsing origin: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("origin %q must be an absolute URL", c.Origin)
	}
	return u, nil
}

func (c Config) resolvedManifest() ([]string, error) {
	origin, err := c.origin()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(c.Manifest))
	out := make([]string, 0, len(c.Manifest))
	for _, entry := range c.Manifest {
		abs, err := fetch.Resolve(origin, entry)
		if err != nil {
			return nil, fmt.Errorf("manifest entry %q: %w", entry, err)
		}
		if origin != nil && !sameOrigin(origin, abs) {
			return nil, fmt.Errorf("manifest entry %q is cross-origin", entry)
		}
		if bypassed(c.Bypass, abs) {
			return nil, fmt.Errorf("manifest entry %q matches a bypass prefix", entry)
		}
		if seen[abs] {
			return nil, fmt.Errorf("manifest entry %q is a duplicate", entry)
		}
		seen[abs] = true
		out = append(out, abs)
	}
	return out, nil
}

func sameOrigin(origin *url.URL, abs string) bool {
	u, err := url.Parse(abs)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, origin.Scheme) && strings.EqualFold(u.Host, origin.Host)
}

func bypassed(prefixes []string, rawURL string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(rawURL, p) {
			return true
		}
	}
	return false
}

// Controller reacts to setup, activation, and intercepted requests.
type Controller struct {
	cfg      Config
	origin   *url.URL
	manifest []string
	bypass   []string
	fallback string

	store   bucket.Store
	fetcher fetch.Fetcher
	setup   fetch.Fetcher
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the diagnostic logger. A nil logger discards.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracer overrides the tracer taken from the global otel provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) {
		if t != nil {
			c.tracer = t
		}
	}
}

// New builds a Controller over store and fetcher.
func New(cfg Config, store bucket.Store, fetcher fetch.Fetcher, opts ...Option) (*Controller, error) {
	if store == nil {
		return nil, errors.New("bucket store is required")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid controller config: %w", err)
	}
	origin, _ := cfg.origin()
	manifest, _ := cfg.resolvedManifest()

	fallback := cfg.FallbackHTML
	if fallback == "" {
		fallback = DefaultFallbackHTML
	}

	c := &Controller{
		cfg:      cfg,
		origin:   origin,
		manifest: manifest,
		bypass:   append([]string(nil), cfg.Bypass...),
		fallback: fallback,
		store:    store,
		fetcher:  fetcher,
		setup:    fetch.WithRetry(fetcher, cfg.SetupRetries, cfg.RetryBackoff),
		logger:   slog.New(slog.DiscardHandler),
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BucketName returns the bucket this controller populates and serves from.
func (c *Controller) BucketName() string {
	return c.cfg.BucketName()
}

// Manifest returns the resolved manifest URLs in order.
func (c *Controller) Manifest() []string {
	return append([]string(nil), c.manifest...)
}
