package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dshills/sheltercache/internal/bucket"
	"github.com/dshills/sheltercache/internal/config"
	"github.com/dshills/sheltercache/internal/controller"
	"github.com/dshills/sheltercache/internal/fetch"
	"github.com/dshills/sheltercache/internal/otel"
	"github.com/spf13/cobra"
)

// Shared flags
var (
	flagConfig     string
	flagFormat     string
	flagOut        string
	flagStore      string
	flagStoreDir   string
	flagDB         string
	flagVersionTag string
	flagOrigin     string
	flagLogLevel   string
)

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagConfig, "config", "c", "", "Config file path (JSON with comments)")
	cmd.Flags().StringVar(&flagFormat, "format", "", "Output format (text, json)")
	cmd.Flags().StringVar(&flagOut, "out", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&flagStore, "store", "", "Bucket store driver (disk, sqlite, memory)")
	cmd.Flags().StringVar(&flagStoreDir, "store-dir", "", "Directory for the disk store")
	cmd.Flags().StringVar(&flagDB, "db", "", "Database file for the sqlite store")
	cmd.Flags().StringVar(&flagVersionTag, "version-tag", "", "Cache version tag (bump to invalidate)")
	cmd.Flags().StringVar(&flagOrigin, "origin", "", "Origin the manifest resolves against")
	cmd.Flags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagFormat != "" {
		m["format"] = flagFormat
	}
	if flagStore != "" {
		m["store.driver"] = flagStore
	}
	if flagStoreDir != "" {
		m["store.dir"] = flagStoreDir
	}
	if flagDB != "" {
		m["store.path"] = flagDB
	}
	if flagVersionTag != "" {
		m["version"] = flagVersionTag
	}
	if flagOrigin != "" {
		m["origin"] = flagOrigin
	}
	if flagLogLevel != "" {
		m["log.level"] = flagLogLevel
	}
	return m
}

func loadConfig() (config.Config, error) {
	return config.Load(flagConfig, buildOverrides())
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}
	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}
}

func openStore(cfg config.StoreConfig) (bucket.Store, error) {
	switch cfg.Driver {
	case "disk", "":
		return bucket.NewDisk(cfg.Dir)
	case "sqlite":
		path := cfg.Path
		if path == "" {
			dir, err := bucket.DefaultDir()
			if err != nil {
				return nil, err
			}
			path = filepath.Join(dir, "buckets.db")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		return bucket.OpenSQLite(path)
	case "memory":
		return bucket.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}

func newFetcher(cfg config.Config) (*fetch.HTTP, error) {
	return fetch.NewHTTP(cfg.Origin,
		fetch.WithTimeout(time.Duration(cfg.Fetch.TimeoutSeconds)*time.Second),
		fetch.WithMaxBodyBytes(cfg.Fetch.MaxBodyBytes),
	)
}

func controllerConfig(cfg config.Config) controller.Config {
	return controller.Config{
		AppName:      cfg.AppName,
		Version:      cfg.Version,
		Origin:       cfg.Origin,
		Manifest:     cfg.Manifest,
		Bypass:       cfg.Bypass,
		FallbackHTML: cfg.FallbackHTML,
		StrictSetup:  cfg.StrictSetup,
		SetupRetries: cfg.Fetch.Retries,
		RetryBackoff: time.Duration(cfg.Fetch.RetryBackoffMs) * time.Millisecond,
	}
}

// stack is everything a command needs to drive the controller.
type stack struct {
	cfg        config.Config
	logger     *slog.Logger
	store      bucket.Store
	fetcher    *fetch.HTTP
	controller *controller.Controller
	shutdown   func(context.Context) error
}

// Close flushes pending spans and closes the bucket store.
func (s *stack) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(s.shutdown(ctx), s.store.Close())
}

func buildStack(cfg config.Config) (*stack, error) {
	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}
	shutdown, err := otel.Setup(context.Background(), "sheltercache", cfg.Otel.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	store, err := openStore(cfg.Store)
	if err != nil {
		shutdown(context.Background())
		return nil, fmt.Errorf("opening bucket store: %w", err)
	}
	s := &stack{cfg: cfg, logger: logger, store: store, shutdown: shutdown}
	s.fetcher, err = newFetcher(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	// The controller takes its tracer from the global provider Setup installed.
	s.controller, err = controller.New(controllerConfig(cfg), store, s.fetcher, controller.WithLogger(logger))
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
