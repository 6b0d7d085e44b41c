package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/comfyctl/internal/config"
	"github.com/aretw0/comfyctl/internal/logging"
	"github.com/aretw0/comfyctl/internal/presentation/tui"
	"github.com/aretw0/comfyctl/pkg/adapters/memory"
	"github.com/aretw0/comfyctl/pkg/adapters/redis"
	"github.com/aretw0/comfyctl/pkg/observability"
	"github.com/aretw0/comfyctl/pkg/ports"
)

// Streams are the standard streams a command writes to.
type Streams struct {
	Out io.Writer
	Err io.Writer
	// TTY is true when Out is a terminal.
	TTY bool
}

// environment holds the per-command infrastructure built from the config.
type environment struct {
	cfg      config.Config
	logger   *slog.Logger
	status   *tui.Status
	registry *prometheus.Registry
	metrics  *observability.Metrics
	ledger   ports.JobLedger
	closers  []func() error
}

func newEnvironment(cfg config.Config, s Streams) (*environment, error) {
	env := &environment{
		cfg:      cfg,
		logger:   logging.NewWriter(s.Err, logging.Level(cfg.Debug)),
		status:   tui.NewStatus(s.Err),
		registry: prometheus.NewRegistry(),
	}
	env.registry.MustRegister(collectors.NewGoCollector())
	env.metrics = observability.NewMetrics(env.registry)

	ledger, closer, err := openLedger(cfg.Ledger)
	if err != nil {
		return nil, err
	}
	env.ledger = ledger
	if closer != nil {
		env.closers = append(env.closers, closer)
	}

	if cfg.MetricsAddr != "" {
		srv, err := startMetricsServer(cfg.MetricsAddr, env.registry, env.logger)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.closers = append(env.closers, srv.Close)
	}
	return env, nil
}

// Close releases everything the environment opened, last first.
func (e *environment) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.logger.Warn("cleanup failed", "err", err)
		}
	}
	e.closers = nil
}

// openLedger picks the ledger for url: in-memory when empty or "memory",
// redis for redis:// and rediss:// URLs.
func openLedger(url string) (ports.JobLedger, func() error, error) {
	switch {
	case url == "" || url == "memory":
		return memory.NewLedger(), nil, nil
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		ledger, err := redis.New(url)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		return ledger, ledger.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported ledger %q: use a redis:// URL", url)
	}
}

// metricsServer serves /metrics while a command runs.
type metricsServer struct {
	srv *http.Server
	ln  net.Listener
}

func startMetricsServer(addr string, reg *prometheus.Registry, logger *slog.Logger) (*metricsServer, error) {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to serve metrics: %w", err)
	}
	m := &metricsServer{
		srv: &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	go func() {
		if err := m.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "err", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())
	return m, nil
}

// Addr is the bound listen address.
func (m *metricsServer) Addr() string {
	return m.ln.Addr().String()
}

// Close shuts the server down, waiting briefly for in-flight scrapes.
func (m *metricsServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return m.srv.Shutdown(ctx)
}
