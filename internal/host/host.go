package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dshills/sheltercache/internal/fetch"
	"github.com/dshills/sheltercache/internal/resource"
)

// ErrInvalidTransition is returned when a lifecycle step is requested out of order.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// State is a lifecycle state.
type State int

const (
	Uninstalled State = iota
	Installing
	Installed
	Activating
	Active
	Redundant
)

func (s State) String() string {
	switch s {
	case Uninstalled:
		return "uninstalled"
	case Installing:
		return "installing"
	case Installed:
		return "installed"
	case Activating:
		return "activating"
	case Active:
		return "active"
	case Redundant:
		return "redundant"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Handler is the controller surface the host drives.
type Handler interface {
	OnSetup(ctx context.Context) error
	OnActivate(ctx context.Context) error
	OnIntercept(ctx context.Context, req resource.Request) (resource.Response, error)
}

// Host owns the lifecycle of one Handler.
type Host struct {
	handler Handler
	network fetch.Fetcher
	origin  *url.URL
	logger  *slog.Logger

	mu    sync.RWMutex
	state State
}

// New creates a host for handler. network answers requests while the host is
// not active; origin resolves relative request paths.
func New(handler Handler, network fetch.Fetcher, origin string, logger *slog.Logger) (*Host, error) {
	if handler == nil || network == nil {
		return nil, errors.New("handler and network are required")
	}
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parsing origin: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("origin %q must be an absolute URL", origin)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Host{handler: handler, network: network, origin: u, logger: logger}, nil
}

// State returns the current lifecycle state.
func (h *Host) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *Host) transition(from, to State) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != from {
		return fmt.Errorf("%w: %s -> %s (current %s)", ErrInvalidTransition, from, to, h.state)
	}
	h.state = to
	h.logger.Debug("lifecycle", "from", from.String(), "to", to.String())
	return nil
}

func (h *Host) set(s State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = s
}

// Install runs the setup handler and waits for it. A setup error makes the
// host redundant.
func (h *Host) Install(ctx context.Context) error {
	if err := h.transition(Uninstalled, Installing); err != nil {
		return err
	}
	if err := h.handler.OnSetup(ctx); err != nil {
		h.set(Redundant)
		return fmt.Errorf("setup: %w", err)
	}
	h.set(Installed)
	return nil
}

// Activate runs the activation handler and waits for it.
func (h *Host) Activate(ctx context.Context) error {
	if err := h.transition(Installed, Activating); err != nil {
		return err
	}
	if err := h.handler.OnActivate(ctx); err != nil {
		h.logger.Error("activation handler failed", "error", err)
	}
	h.set(Active)
	return nil
}

// Start installs and activates in sequence.
func (h *Host) Start(ctx context.Context) error {
	if err := h.Install(ctx); err != nil {
		return err
	}
	return h.Activate(ctx)
}

// ServeHTTP answers r through the controller when active, or the network otherwise.
func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := resource.Request{
		Method: r.Method,
		URL:    h.targetURL(r),
		Header: r.Header.Clone(),
	}

	var (
		resp resource.Response
		err  error
	)
	if h.State() == Active {
		resp, err = h.handler.OnIntercept(r.Context(), req)
	} else {
		resp, err = h.network.Fetch(r.Context(), req)
		resp.Source = resource.SourceNetwork
	}
	if err != nil {
		h.logger.Warn("request failed", "method", r.Method, "error", err)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	writeResponse(w, resp)
}

// targetURL keeps absolute proxy-style URLs and resolves paths against the origin.
func (h *Host) targetURL(r *http.Request) string {
	if r.URL.IsAbs() {
		return r.URL.String()
	}
	ref := &url.URL{Path: r.URL.Path, RawPath: r.URL.RawPath, RawQuery: r.URL.RawQuery}
	if len(ref.Path) > 0 && ref.Path[0] == '/' {
		ref.Path = ref.Path[1:]
		if ref.RawPath != "" {
			ref.RawPath = ref.RawPath[1:]
		}
	}
	return h.origin.ResolveReference(ref).String()
}

func writeResponse(w http.ResponseWriter, resp resource.Response) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Del("Content-Length")
	if resp.Source != "" {
		w.Header().Set("X-Cache-Source", string(resp.Source))
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}

// Run starts the lifecycle and serves on addr until ctx is cancelled.
func (h *Host) Run(ctx context.Context, addr string) error {
	if err := h.Start(ctx); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return h.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (h *Host) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("serving", "addr", ln.Addr().String(), "origin", h.origin.String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
