package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/loykin/taskmgr/internal/config"
	histfactory "github.com/loykin/taskmgr/internal/history/factory"
	"github.com/loykin/taskmgr/internal/metrics"
	"github.com/loykin/taskmgr/internal/server"
	"github.com/loykin/taskmgr/internal/service"
	storefactory "github.com/loykin/taskmgr/internal/store/factory"
	tlsutil "github.com/loykin/taskmgr/internal/tls"
	"github.com/loykin/taskmgr/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// runServe blocks until ctx is cancelled or SIGINT/SIGTERM arrives.
func runServe(ctx context.Context, configPath string, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	log, logCloser, err := cfg.Log.NewSlogger(os.Stderr)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logCloser.Close() }()
	gin.SetMode(gin.ReleaseMode)

	stopTracing, err := tracing.Init(cfg.Tracing, version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = stopTracing(sctx)
	}()

	st, err := storefactory.NewFromDSN(cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	sinks, err := histfactory.OpenAll(cfg.History.DSNs)
	if err != nil {
		return err
	}
	defer histfactory.CloseAll(sinks)

	var metricsHandler http.Handler
	if cfg.Management.Metrics {
		if metricsHandler, err = newMetricsHandler(); err != nil {
			log.Warn("failed to register metrics", "error", err)
		}
	}

	svc, err := service.New(ctx, st,
		service.WithCapacity(cfg.Capacity.Max),
		service.WithLogger(log),
		service.WithHistory(sinks...),
	)
	if err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	tlsCfg, err := tlsutil.SetupTLS(cfg.Server)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	protocol := "HTTP"
	if tlsCfg != nil {
		protocol = "HTTPS"
	}

	api, err := server.NewServer(cfg.Server.Listen, cfg.Server.BasePath, svc, tlsCfg, log)
	if err != nil {
		return fmt.Errorf("failed to create %s server: %w", protocol, err)
	}
	servers := []*http.Server{api}
	_, _ = fmt.Fprintf(out, "Starting taskmgr %s server on %s%s (capacity %d)\n",
		protocol, api.Addr, cfg.Server.BasePath, svc.MaxCapacity())

	if cfg.Management.Listen != "" {
		admin, err := server.NewAdminServer(cfg.Management.Listen, svc, metricsHandler, nil, log)
		if err != nil {
			_ = api.Close()
			return fmt.Errorf("failed to create management server: %w", err)
		}
		servers = append(servers, admin)
		_, _ = fmt.Fprintf(out, "Management endpoints on %s\n", admin.Addr)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	_, _ = fmt.Fprintln(out, "Shutting down...")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	var errs []error
	for _, s := range servers {
		if err := s.Shutdown(sctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newMetricsHandler serves the taskmgr collectors together with the Go runtime
// and process collectors from a registry of its own.
func newMetricsHandler() (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	if err := metrics.Register(reg); err != nil {
		return nil, err
	}
	return metrics.HandlerFor(reg), nil
}
