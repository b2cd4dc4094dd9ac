// Package taskmgr is the embeddable facade over the bounded task manager:
// the admission service, its stores, history sinks and HTTP surfaces.
package taskmgr

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/taskmgr/internal/config"
	"github.com/loykin/taskmgr/internal/history"
	histfactory "github.com/loykin/taskmgr/internal/history/factory"
	"github.com/loykin/taskmgr/internal/metrics"
	"github.com/loykin/taskmgr/internal/server"
	"github.com/loykin/taskmgr/internal/service"
	"github.com/loykin/taskmgr/internal/store"
	storefactory "github.com/loykin/taskmgr/internal/store/factory"
	"github.com/loykin/taskmgr/internal/store/memory"
	"github.com/loykin/taskmgr/internal/task"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Process = task.Process

type Priority = task.Priority

type Strategy = task.Strategy

type SortKey = task.SortKey

const (
	Low    = task.Low
	Medium = task.Medium
	High   = task.High

	Naive      = task.Naive
	FIFO       = task.FIFO
	ByPriority = task.ByPriority

	SortByDate     = task.SortByDate
	SortByPriority = task.SortByPriority
	SortByID       = task.SortByID
)

// Error kinds, for errors.Is.
var (
	ErrValidation       = task.ErrValidation
	ErrCapacityExceeded = task.ErrCapacityExceeded
	ErrPriorityOrder    = task.ErrPriorityOrder
	ErrNotFound         = task.ErrNotFound
	ErrInvalidArgument  = task.ErrInvalidArgument
)

type Store = store.Store

type HistorySink = history.Sink

type Config = cfg.Config

type Option = service.Option

func WithCapacity(n int) Option               { return service.WithCapacity(n) }
func WithLogger(l *slog.Logger) Option        { return service.WithLogger(l) }
func WithHistory(sinks ...HistorySink) Option { return service.WithHistory(sinks...) }

// OpenStore selects a store by DSN: memory://, sqlite://path, postgres://...
func OpenStore(dsn string) (Store, error) { return storefactory.NewFromDSN(dsn) }

func NewMemoryStore() Store { return memory.New() }

// OpenHistory opens one sink per DSN (sqlite, postgres, clickhouse, opensearch).
func OpenHistory(dsns ...string) ([]HistorySink, error) { return histfactory.OpenAll(dsns) }

func CloseHistory(sinks []HistorySink) { histfactory.CloseAll(sinks) }

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// Manager is a thin facade over internal/service.Service.
type Manager struct{ inner *service.Service }

// New prepares st and returns a manager bound to it. The caller keeps
// ownership of st and closes it.
func New(ctx context.Context, st Store, opts ...Option) (*Manager, error) {
	s, err := service.New(ctx, st, opts...)
	if err != nil {
		return nil, err
	}
	return &Manager{inner: s}, nil
}

func (m *Manager) AddProcess(ctx context.Context, title string, st Strategy, p Priority) (Process, error) {
	return m.inner.AddProcess(ctx, title, st, p)
}
func (m *Manager) ListProcesses(ctx context.Context, key SortKey) ([]Process, error) {
	return m.inner.ListProcesses(ctx, key)
}
func (m *Manager) GetProcess(ctx context.Context, pid int64) (Process, error) {
	return m.inner.GetProcess(ctx, pid)
}
func (m *Manager) KillProcesses(ctx context.Context, pids ...int64) ([]Process, error) {
	return m.inner.KillProcesses(ctx, pids...)
}
func (m *Manager) KillAllProcesses(ctx context.Context) ([]Process, error) {
	return m.inner.KillAllProcesses(ctx)
}
func (m *Manager) MaxCapacity() int               { return m.inner.MaxCapacity() }
func (m *Manager) SetMaxCapacity(n int) error     { return m.inner.SetMaxCapacity(n) }
func (m *Manager) Ping(ctx context.Context) error { return m.inner.Ping(ctx) }

// Handler returns the REST API as an http.Handler mounted under basePath.
func (m *Manager) Handler(basePath string, log *slog.Logger) http.Handler {
	return server.NewRouter(m.inner, basePath, log).Handler()
}

// AdminHandler returns the management API; metrics may be nil.
func (m *Manager) AdminHandler(metricsHandler http.Handler, log *slog.Logger) http.Handler {
	return server.NewAdminRouter(m.inner, metricsHandler, log).Handler()
}

// NewHTTPServer starts an HTTP server exposing the REST API using the given manager.
func NewHTTPServer(addr, basePath string, m *Manager) (*http.Server, error) {
	return server.NewServer(addr, basePath, m.inner, nil, nil)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
