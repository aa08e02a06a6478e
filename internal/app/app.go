// Package app provides the application context for shellcore.
// It allows dependency injection for testing.
package app

import (
	"net/http"
	"path/filepath"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/firefly-engineering/shellcore/internal/audit"
	"github.com/firefly-engineering/shellcore/internal/config"
	"github.com/firefly-engineering/shellcore/internal/history"
	"github.com/firefly-engineering/shellcore/internal/logging"
	"github.com/firefly-engineering/shellcore/internal/metrics"
	"github.com/firefly-engineering/shellcore/internal/shell"
	"github.com/firefly-engineering/shellcore/internal/stream"
	"github.com/firefly-engineering/shellcore/internal/system"
)

// App holds the application dependencies
type App struct {
	// Paths holds the configured paths
	Paths *config.Paths

	// Config is the loaded rc configuration
	Config *config.Config

	// Executor looks commands up and replaces the process for exec
	Executor system.CommandExecutor

	// FileSystem is used by the builtins that read or write files
	FileSystem system.FileSystem

	// Registry collects metrics when they are enabled
	Registry *prom.Registry

	// NoHistory disables the persistent history store
	NoHistory bool

	mu       sync.Mutex
	recorder metrics.Recorder
	store    *history.Store
	audit    *audit.Logger
}

// Option is a function that configures the App
type Option func(*App)

// WithPaths sets custom paths
func WithPaths(paths *config.Paths) Option {
	return func(a *App) {
		a.Paths = paths
	}
}

// WithConfig sets the rc configuration instead of loading it
func WithConfig(cfg *config.Config) Option {
	return func(a *App) {
		a.Config = cfg
	}
}

// WithExecutor sets a custom command executor
func WithExecutor(e system.CommandExecutor) Option {
	return func(a *App) {
		a.Executor = e
	}
}

// WithFileSystem sets a custom file system
func WithFileSystem(fs system.FileSystem) Option {
	return func(a *App) {
		a.FileSystem = fs
	}
}

// WithHistoryStore sets an already open history store
func WithHistoryStore(store *history.Store) Option {
	return func(a *App) {
		a.store = store
	}
}

// WithoutHistory disables the persistent history store
func WithoutHistory() Option {
	return func(a *App) {
		a.NoHistory = true
	}
}

// New creates a new App with the given options.
// The configuration defaults to config.Default until LoadConfig is called.
func New(opts ...Option) *App {
	app := &App{
		Paths:      config.DefaultPaths(),
		Executor:   system.DefaultExecutor(),
		FileSystem: system.DefaultFS(),
	}

	for _, opt := range opts {
		opt(app)
	}

	if app.Config == nil {
		app.Config = config.Default()
	}
	return app
}

// LoadConfig loads the rc file at path, or the default one when path is
// empty. norc skips the file and only applies the env files.
func (a *App) LoadConfig(path string, norc bool) error {
	var cfg *config.Config
	var err error
	switch {
	case norc:
		cfg = config.Default()
		err = cfg.LoadEnvFiles()
	case path != "":
		cfg, err = config.Load(path)
	default:
		cfg, err = config.LoadDefault(a.Paths)
	}
	if err != nil {
		return err
	}
	a.Config = cfg
	return nil
}

// HistoryFile returns the path of the history database.
func (a *App) HistoryFile() string {
	if a.Config != nil && a.Config.HistoryFile != "" {
		return a.Config.HistoryFile
	}
	return a.Paths.HistoryDB()
}

// HistoryStore opens the history store on first use. It returns nil when
// history is disabled.
func (a *App) HistoryStore() (*history.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.store != nil || a.NoHistory {
		return a.store, nil
	}
	path := a.HistoryFile()
	if err := a.FileSystem.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	store, err := history.OpenStore(path)
	if err != nil {
		return nil, err
	}
	logging.Debug("history store opened", "path", path)
	a.store = store
	return store, nil
}

// AuditLogger returns the audit logger, or nil when no audit directory is
// configured.
func (a *App) AuditLogger() *audit.Logger {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.audit == nil && a.Config != nil && a.Config.AuditDir != "" {
		a.audit = audit.NewLogger(a.Config.AuditDir)
	}
	return a.audit
}

// EnableMetrics registers the shell collectors on a fresh registry.
func (a *App) EnableMetrics() *prom.Registry {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Registry == nil {
		a.Registry = prom.NewRegistry()
		a.recorder = metrics.NewPrometheusRecorder(a.Registry)
	}
	return a.Registry
}

// MetricsServer returns a server exposing the metrics registry on addr.
func (a *App) MetricsServer(addr string) *http.Server {
	reg := a.EnableMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(reg))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// NewCore creates a shell session wired to the app's dependencies. opts
// are applied last.
func (a *App) NewCore(s *stream.ShellStream, opts ...shell.Option) (*shell.Core, error) {
	base := []shell.Option{
		shell.WithConfig(a.Config),
		shell.WithExecutor(a.Executor),
		shell.WithFileSystem(a.FileSystem),
	}

	store, err := a.HistoryStore()
	if err != nil {
		logging.Warn("history disabled", "error", err)
	} else if store != nil {
		base = append(base, shell.WithHistoryStore(store))
	}
	if l := a.AuditLogger(); l != nil {
		base = append(base, shell.WithAudit(l))
	}
	a.mu.Lock()
	if a.recorder != nil {
		base = append(base, shell.WithRecorder(a.recorder))
	}
	a.mu.Unlock()

	return shell.New(s, append(base, opts...)...)
}

// Close releases the history store.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// Default is the default application instance
var Default = New()

// SetDefault sets the default application instance (used for testing)
func SetDefault(app *App) {
	Default = app
}

// ResetDefault resets to the default application instance
func ResetDefault() {
	Default = New()
}
