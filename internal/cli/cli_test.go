package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/sheltercache/internal/bucket"
	"github.com/dshills/sheltercache/internal/config"
	"github.com/dshills/sheltercache/internal/output"
	"github.com/google/go-cmp/cmp"
	gotel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

// resetFlags resets all package-level flag variables to their zero values.
func resetFlags() {
	flagConfig = ""
	flagFormat = ""
	flagOut = ""
	flagStore = ""
	flagStoreDir = ""
	flagDB = ""
	flagVersionTag = ""
	flagOrigin = ""
	flagLogLevel = ""
	flagListen = ""
	flagMethod = "GET"
	exitCode = ExitSuccess
}

// isolate points the default config location at an empty directory and
// clears environment overrides.
func isolate(t *testing.T) {
	t.Helper()
	resetFlags()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	for _, kv := range os.Environ() {
		if k, _, _ := strings.Cut(kv, "="); strings.HasPrefix(k, "SHELTERCACHE_") {
			t.Setenv(k, "")
			os.Unsetenv(k)
		}
	}
}

// --- buildOverrides tests ---

func TestBuildOverrides_NoFlags(t *testing.T) {
	resetFlags()
	m := buildOverrides()
	if len(m) != 0 {
		t.Errorf("buildOverrides() with no flags = %v, want empty map", m)
	}
}

func TestBuildOverrides_AllFlags(t *testing.T) {
	resetFlags()
	flagFormat = "json"
	flagStore = "sqlite"
	flagStoreDir = "/tmp/buckets"
	flagDB = "/tmp/buckets.db"
	flagVersionTag = "v2"
	flagOrigin = "https://example.com/map/"
	flagLogLevel = "debug"
	defer resetFlags()

	want := map[string]string{
		"format":       "json",
		"store.driver": "sqlite",
		"store.dir":    "/tmp/buckets",
		"store.path":   "/tmp/buckets.db",
		"version":      "v2",
		"origin":       "https://example.com/map/",
		"log.level":    "debug",
	}
	if diff := cmp.Diff(want, buildOverrides()); diff != "" {
		t.Errorf("buildOverrides() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildOverrides_AppliedByConfigLoad(t *testing.T) {
	isolate(t)
	flagVersionTag = "v9"
	flagStore = "memory"
	defer resetFlags()

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.Version != "v9" {
		t.Errorf("Version = %q, want v9", cfg.Version)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("Store.Driver = %q, want memory", cfg.Store.Driver)
	}
	if got := controllerConfig(cfg).BucketName(); got != "shelter-map-offline-v9" {
		t.Errorf("BucketName() = %q, want shelter-map-offline-v9", got)
	}
}

// --- stack tests ---

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		wantErr bool
	}{
		{"defaults", config.LogConfig{}, false},
		{"text debug", config.LogConfig{Level: "debug", Format: "text"}, false},
		{"json warn", config.LogConfig{Level: "warn", Format: "json"}, false},
		{"bad level", config.LogConfig{Level: "loud"}, true},
		{"bad format", config.LogConfig{Format: "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sb strings.Builder
			logger, err := newLogger(tt.cfg, &sb)
			if (err != nil) != tt.wantErr {
				t.Fatalf("newLogger() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && logger == nil {
				t.Fatal("newLogger() returned nil logger")
			}
		})
	}
}

func TestNewLogger_JSONRecord(t *testing.T) {
	var sb strings.Builder
	logger, err := newLogger(config.LogConfig{Level: "info", Format: "json"}, &sb)
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("hidden")
	logger.Info("shown", "bucket", "b")

	out := sb.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug record written at info level")
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("log output is not JSON: %v\n%s", err, out)
	}
	if rec["msg"] != "shown" || rec["bucket"] != "b" {
		t.Errorf("record = %v", rec)
	}
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		cfg     config.StoreConfig
		wantErr bool
	}{
		{"memory", config.StoreConfig{Driver: "memory"}, false},
		{"disk", config.StoreConfig{Driver: "disk", Dir: filepath.Join(dir, "disk")}, false},
		{"sqlite", config.StoreConfig{Driver: "sqlite", Path: filepath.Join(dir, "db", "b.db")}, false},
		{"unknown", config.StoreConfig{Driver: "redis"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := openStore(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("openStore() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer store.Close()
			if _, err := store.Open(t.Context(), "app-v1"); err != nil {
				t.Errorf("Open() error: %v", err)
			}
		})
	}
}

func TestOpenStore_SQLiteDefaultPath(t *testing.T) {
	cacheHome := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", cacheHome)

	store, err := openStore(config.StoreConfig{Driver: "sqlite"})
	if err != nil {
		t.Fatalf("openStore() error: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(filepath.Join(cacheHome, "sheltercache", "buckets.db")); err != nil {
		t.Errorf("database not created at default path: %v", err)
	}
}

func TestBuildStack_TracingFromConfig(t *testing.T) {
	prev := gotel.GetTracerProvider()
	t.Cleanup(func() { gotel.SetTracerProvider(prev) })
	gotel.SetTracerProvider(noop.NewTracerProvider())

	cfg := config.Default()
	cfg.Store.Driver = "memory"
	cfg.Log.Level = "error"

	s, err := buildStack(cfg)
	if err != nil {
		t.Fatalf("buildStack() error: %v", err)
	}
	if _, isNoop := gotel.GetTracerProvider().(noop.TracerProvider); !isNoop {
		t.Error("tracer provider installed without an endpoint")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	// Non-routable collector so nothing is exported.
	cfg.Otel.Endpoint = "http://192.0.2.1:4318"
	s, err = buildStack(cfg)
	if err != nil {
		t.Fatalf("buildStack() with endpoint error: %v", err)
	}
	if _, isNoop := gotel.GetTracerProvider().(noop.TracerProvider); isNoop {
		t.Error("tracer provider not installed for configured endpoint")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() with endpoint error: %v", err)
	}
}

// --- command tests ---

// assetServer serves every path with a small body and counts requests.
func assetServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("asset " + r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// writeConfig writes a JSONC config file for origin and returns its path.
func writeConfig(t *testing.T, origin, storeDir string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
	// test deployment
	"origin": "` + origin + `/",
	"manifest": ["./", "./index.html", "./app.js"],
	"store": {"driver": "disk", "dir": "` + storeDir + `"},
	"fetch": {"retries": 0},
	"log": {"level": "error"},
}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readReport(t *testing.T, path string) output.Report {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	var r output.Report
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("parsing report: %v\n%s", err, data)
	}
	return r
}

func TestInstallActivateLifecycle(t *testing.T) {
	isolate(t)
	defer resetFlags()

	srv := assetServer(t)
	storeDir := t.TempDir()
	cfgPath := writeConfig(t, srv.URL, storeDir)
	outDir := t.TempDir()

	// v1 install
	out := filepath.Join(outDir, "install-v1.json")
	installCmd.SetArgs([]string{"--config", cfgPath, "--format", "json", "--out", out})
	if err := installCmd.Execute(); err != nil {
		t.Fatalf("install v1: %v", err)
	}
	if exitCode != ExitSuccess {
		t.Fatalf("install v1 exit code = %d, want %d", exitCode, ExitSuccess)
	}
	r := readReport(t, out)
	if r.Bucket != "shelter-map-offline-v1" {
		t.Errorf("install bucket = %q", r.Bucket)
	}
	if len(r.Cached) != 3 {
		t.Errorf("cached = %v, want 3 entries", r.Cached)
	}

	// v2 install then activate
	resetFlags()
	installCmd.SetArgs([]string{"--config", cfgPath, "--version-tag", "v2", "--format", "json", "--out", filepath.Join(outDir, "install-v2.json")})
	if err := installCmd.Execute(); err != nil {
		t.Fatalf("install v2: %v", err)
	}

	resetFlags()
	out = filepath.Join(outDir, "activate.json")
	activateCmd.SetArgs([]string{"--config", cfgPath, "--version-tag", "v2", "--format", "json", "--out", out})
	if err := activateCmd.Execute(); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if exitCode != ExitSuccess {
		t.Fatalf("activate exit code = %d", exitCode)
	}
	r = readReport(t, out)
	if diff := cmp.Diff([]string{"shelter-map-offline-v1"}, r.Deleted); diff != "" {
		t.Errorf("deleted mismatch (-want +got):\n%s", diff)
	}

	// Only v2 remains on disk
	store, err := bucket.NewDisk(storeDir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	names, err := store.Keys(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"shelter-map-offline-v2"}, names); diff != "" {
		t.Errorf("buckets mismatch (-want +got):\n%s", diff)
	}
}

func TestInstall_FailedAssetIsIncomplete(t *testing.T) {
	isolate(t)
	defer resetFlags()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/app.js" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()
	cfgPath := writeConfig(t, srv.URL, t.TempDir())
	out := filepath.Join(t.TempDir(), "install.json")

	installCmd.SetArgs([]string{"--config", cfgPath, "--format", "json", "--out", out})
	if err := installCmd.Execute(); err != nil {
		t.Fatalf("install: %v", err)
	}
	if exitCode != ExitIncomplete {
		t.Errorf("exit code = %d, want %d", exitCode, ExitIncomplete)
	}
	r := readReport(t, out)
	if len(r.Cached) != 0 {
		t.Errorf("cached = %v, want none after failed population", r.Cached)
	}
	if len(r.Errors) == 0 {
		t.Error("expected population error in report")
	}
}

func TestFetch_OfflineFallbackAndCacheHit(t *testing.T) {
	isolate(t)
	defer resetFlags()

	srv := assetServer(t)
	cfgPath := writeConfig(t, srv.URL, t.TempDir())
	installCmd.SetArgs([]string{"--config", cfgPath, "--out", filepath.Join(t.TempDir(), "install.txt")})
	if err := installCmd.Execute(); err != nil {
		t.Fatalf("install: %v", err)
	}
	srv.Close()

	tests := []struct {
		url        string
		wantSource string
		wantStatus int
	}{
		{"./index.html", "cache", http.StatusOK},
		{"./missing.png", "fallback", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			resetFlags()
			out := filepath.Join(t.TempDir(), "fetch.json")
			fetchCmd.SetArgs([]string{tt.url, "--config", cfgPath, "--format", "json", "--out", out})
			if err := fetchCmd.Execute(); err != nil {
				t.Fatalf("fetch: %v", err)
			}
			if exitCode != ExitSuccess {
				t.Fatalf("exit code = %d", exitCode)
			}
			r := readReport(t, out)
			if r.Fetch == nil {
				t.Fatal("report has no fetch section")
			}
			if r.Fetch.Source != tt.wantSource || r.Fetch.Status != tt.wantStatus {
				t.Errorf("fetch = %+v, want source %s status %d", *r.Fetch, tt.wantSource, tt.wantStatus)
			}
		})
	}
}

func TestFetch_BypassFailureIsRuntimeError(t *testing.T) {
	isolate(t)
	defer resetFlags()

	srv := assetServer(t)
	cfgPath := writeConfig(t, srv.URL, t.TempDir())

	fetchCmd.SetArgs([]string{"http://127.0.0.1:1/styles", "--config", cfgPath, "--format", "json",
		"--out", filepath.Join(t.TempDir(), "fetch.json")})
	t.Setenv("SHELTERCACHE_BYPASS", "http://127.0.0.1:1/")
	if err := fetchCmd.Execute(); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if exitCode != ExitRuntimeError {
		t.Errorf("exit code = %d, want %d", exitCode, ExitRuntimeError)
	}
}

func TestBucketsListAndClear(t *testing.T) {
	isolate(t)
	defer resetFlags()

	storeDir := t.TempDir()
	store, err := bucket.NewDisk(storeDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"shelter-map-offline-v0", "shelter-map-offline-v1"} {
		if _, err := store.Open(t.Context(), name); err != nil {
			t.Fatal(err)
		}
	}
	store.Close()

	out := filepath.Join(t.TempDir(), "list.json")
	bucketsCmd.SetArgs([]string{"list", "--store-dir", storeDir, "--format", "json", "--out", out})
	if err := bucketsCmd.Execute(); err != nil {
		t.Fatalf("buckets list: %v", err)
	}
	r := readReport(t, out)
	want := []output.Bucket{
		{Name: "shelter-map-offline-v0"},
		{Name: "shelter-map-offline-v1", Current: true},
	}
	if diff := cmp.Diff(want, r.Buckets); diff != "" {
		t.Errorf("buckets mismatch (-want +got):\n%s", diff)
	}

	resetFlags()
	bucketsCmd.SetArgs([]string{"clear", "--store-dir", storeDir})
	if err := bucketsCmd.Execute(); err != nil {
		t.Fatalf("buckets clear: %v", err)
	}

	store, err = bucket.NewDisk(storeDir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	names, err := store.Keys(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Errorf("buckets after clear = %v, want none", names)
	}
}

func TestBucketsShow_Missing(t *testing.T) {
	isolate(t)
	defer resetFlags()

	bucketsCmd.SetArgs([]string{"show", "nope", "--store-dir", t.TempDir()})
	if err := bucketsCmd.Execute(); err != nil {
		t.Fatalf("buckets show: %v", err)
	}
	if exitCode != ExitRuntimeError {
		t.Errorf("exit code = %d, want %d", exitCode, ExitRuntimeError)
	}
}

func TestConfigInitAndSet(t *testing.T) {
	isolate(t)
	defer resetFlags()

	path := filepath.Join(t.TempDir(), "sub", "config.json")
	configCmd.SetArgs([]string{"init", "--config", path})
	if err := configCmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	resetFlags()
	configCmd.SetArgs([]string{"set", "store.driver", "sqlite", "--config", path})
	if err := configCmd.Execute(); err != nil {
		t.Fatalf("config set: %v", err)
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Store.Driver = %q, want sqlite", cfg.Store.Driver)
	}
	if cfg.AppName != "shelter-map-offline" {
		t.Errorf("AppName = %q, defaults not preserved", cfg.AppName)
	}
}

func TestConfigSet_PartialFileKeepsDefaults(t *testing.T) {
	isolate(t)
	defer resetFlags()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"version": "v3"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	configCmd.SetArgs([]string{"set", "log.level", "debug", "--config", path})
	if err := configCmd.Execute(); err != nil {
		t.Fatalf("config set: %v", err)
	}

	cfg, err := config.Load(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Version != "v3" || cfg.Log.Level != "debug" {
		t.Errorf("Version = %q, Log.Level = %q; want v3, debug", cfg.Version, cfg.Log.Level)
	}
	if cfg.Fetch.Retries != 2 || cfg.Fetch.TimeoutSeconds != 30 {
		t.Errorf("Fetch = %+v, defaults lost on save", cfg.Fetch)
	}
}

func TestConfigSet_UnknownKey(t *testing.T) {
	isolate(t)
	defer resetFlags()

	path := filepath.Join(t.TempDir(), "config.json")
	configCmd.SetArgs([]string{"set", "nope", "x", "--config", path})
	configCmd.SilenceUsage = true
	configCmd.SilenceErrors = true
	defer func() {
		configCmd.SilenceUsage = false
		configCmd.SilenceErrors = false
	}()
	err := configCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "unknown config key: nope") {
		t.Errorf("config set error = %v, want unknown config key", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("config file written despite unknown key")
	}
}

func TestExitCodes(t *testing.T) {
	codes := map[string]int{
		"ExitSuccess":      ExitSuccess,
		"ExitIncomplete":   ExitIncomplete,
		"ExitUsageError":   ExitUsageError,
		"ExitRuntimeError": ExitRuntimeError,
	}
	seen := make(map[int]string)
	for name, code := range codes {
		if other, ok := seen[code]; ok {
			t.Errorf("%s and %s share exit code %d", name, other, code)
		}
		seen[code] = name
	}
	if ExitSuccess != 0 {
		t.Errorf("ExitSuccess = %d, want 0", ExitSuccess)
	}
}

func TestVersionConstant(t *testing.T) {
	if version == "" {
		t.Error("version constant is empty")
	}
}
