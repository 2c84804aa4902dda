package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

// ErrConfigFileNotFound is returned when an explicitly named config file is missing.
var ErrConfigFileNotFound = errors.New("config file not found")

// Config represents the sheltercache configuration.
type Config struct {
	AppName      string      `json:"appName" env:"SHELTERCACHE_APP_NAME"`
	Version      string      `json:"version" env:"SHELTERCACHE_VERSION"`
	Origin       string      `json:"origin" env:"SHELTERCACHE_ORIGIN"`
	Manifest     []string    `json:"manifest" env:"SHELTERCACHE_MANIFEST"`
	Bypass       []string    `json:"bypass" env:"SHELTERCACHE_BYPASS"`
	FallbackHTML string      `json:"fallbackHtml,omitempty" env:"SHELTERCACHE_FALLBACK_HTML"`
	StrictSetup  bool        `json:"strictSetup" env:"SHELTERCACHE_STRICT_SETUP"`
	Listen       string      `json:"listen" env:"SHELTERCACHE_LISTEN"`
	Format       string      `json:"format" env:"SHELTERCACHE_FORMAT"`
	Store        StoreConfig `json:"store"`
	Fetch        FetchConfig `json:"fetch"`
	Log          LogConfig   `json:"log"`
	Otel         OtelConfig  `json:"otel"`
}

// StoreConfig selects and locates the bucket store.
type StoreConfig struct {
	Driver string `json:"driver" env:"SHELTERCACHE_STORE_DRIVER"`
	Dir    string `json:"dir,omitempty" env:"SHELTERCACHE_STORE_DIR"`
	Path   string `json:"path,omitempty" env:"SHELTERCACHE_STORE_PATH"`
}

// FetchConfig controls network fetches.
type FetchConfig struct {
	TimeoutSeconds int   `json:"timeoutSeconds" env:"SHELTERCACHE_FETCH_TIMEOUT_SECONDS"`
	Retries        int   `json:"retries" env:"SHELTERCACHE_FETCH_RETRIES"`
	RetryBackoffMs int   `json:"retryBackoffMs" env:"SHELTERCACHE_FETCH_RETRY_BACKOFF_MS"`
	MaxBodyBytes   int64 `json:"maxBodyBytes" env:"SHELTERCACHE_FETCH_MAX_BODY_BYTES"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level  string `json:"level" env:"SHELTERCACHE_LOG_LEVEL"`
	Format string `json:"format" env:"SHELTERCACHE_LOG_FORMAT"`
}

// OtelConfig controls trace export. Tracing is off while Endpoint is empty.
type OtelConfig struct {
	Endpoint string `json:"endpoint,omitempty" env:"SHELTERCACHE_OTEL_ENDPOINT"`
}

// DefaultManifest lists the assets the offline shelter map needs.
var DefaultManifest = []string{
	"./",
	"./index.html",
	"./mapbox-gl.js",
	"./mapbox-gl.css",
	"./mapbox-gl-language.js",
	"./papaparse.min.js",
	"./mapbox-gl-rtl-text.js",
	"./hinannjyo.csv",
	"./manifest.json",
	"./icon-192x192.png",
	"./icon-512x512.png",
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		AppName:  "shelter-map-offline",
		Version:  "v1",
		Origin:   "http://localhost:8000/",
		Manifest: append([]string(nil), DefaultManifest...),
		Bypass:   []string{"https://api.mapbox.com/"},
		Listen:   "127.0.0.1:8080",
		Format:   "text",
		Store: StoreConfig{
			Driver: "disk",
		},
		Fetch: FetchConfig{
			TimeoutSeconds: 30,
			Retries:        2,
			RetryBackoffMs: 500,
			MaxBodyBytes:   32 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ConfigDir returns the platform-appropriate config directory for sheltercache.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sheltercache"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "sheltercache"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "sheltercache"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "sheltercache"), nil
	default:
		return filepath.Join(home, ".config", "sheltercache"), nil
	}
}

// ConfigPath returns the full path to the default config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// LoadFile loads config from path, or from the default location when path is
// empty. A missing default file yields a zero Config and nil error; a missing
// explicit file is an error. Comments and trailing commas are allowed.
func LoadFile(path string) (Config, error) {
	var cfg Config
	if err := ReadInto(&cfg, path); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ReadInto decodes the config file at path (or the default location) over
// cfg. Keys present in the file replace the matching fields, including
// explicit zero values; absent keys leave cfg untouched.
func ReadInto(cfg *Config, path string) error {
	mustExist := path != ""
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
			}
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := decode(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func decode(data []byte, cfg *Config) error {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("invalid JSONC: %w", err)
	}
	if err := json.Unmarshal(standardized, cfg); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// Save writes the config to path, or to the default location when path is empty.
func Save(cfg Config, path string) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return atomic.WriteFile(path, bytes.NewReader(append(data, '\n')))
}

// Load builds the effective config by merging: defaults <- file <- env <- overrides.
// The overrides map comes from CLI flags (only non-zero values should be set).
func Load(path string, overrides map[string]string) (Config, error) {
	cfg := Default()

	if err := ReadInto(&cfg, path); err != nil {
		return Config{}, err
	}
	if err := mergeEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := mergeOverrides(&cfg, overrides); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// mergeEnv overlays SHELTERCACHE_* variables. Unset variables leave fields alone.
func mergeEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func mergeOverrides(cfg *Config, overrides map[string]string) error {
	for key, value := range overrides {
		if value == "" {
			continue
		}
		if err := SetField(cfg, key, value); err != nil {
			return err
		}
	}
	return nil
}

// SetField sets a single config field by key name. Returns error if key is unknown.
func SetField(cfg *Config, key, value string) error {
	switch key {
	case "appName":
		cfg.AppName = value
	case "version":
		cfg.Version = value
	case "origin":
		cfg.Origin = value
	case "manifest":
		cfg.Manifest = SplitList(value)
	case "bypass":
		cfg.Bypass = SplitList(value)
	case "fallbackHtml":
		cfg.FallbackHTML = value
	case "strictSetup":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("strictSetup must be a boolean: %w", err)
		}
		cfg.StrictSetup = b
	case "listen":
		cfg.Listen = value
	case "format":
		cfg.Format = value
	case "store.driver":
		cfg.Store.Driver = value
	case "store.dir":
		cfg.Store.Dir = value
	case "store.path":
		cfg.Store.Path = value
	case "fetch.timeoutSeconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("fetch.timeoutSeconds must be an integer: %w", err)
		}
		cfg.Fetch.TimeoutSeconds = n
	case "fetch.retries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("fetch.retries must be an integer: %w", err)
		}
		cfg.Fetch.Retries = n
	case "fetch.retryBackoffMs":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("fetch.retryBackoffMs must be an integer: %w", err)
		}
		cfg.Fetch.RetryBackoffMs = n
	case "fetch.maxBodyBytes":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("fetch.maxBodyBytes must be an integer: %w", err)
		}
		cfg.Fetch.MaxBodyBytes = n
	case "log.level":
		cfg.Log.Level = value
	case "log.format":
		cfg.Log.Format = value
	case "otel.endpoint":
		cfg.Otel.Endpoint = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

// SplitList splits a comma-separated list, trimming whitespace and skipping
// empty parts.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
