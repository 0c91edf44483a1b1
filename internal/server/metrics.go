package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/teemow/mailmcp/internal/instrumentation"
)

const (
	// DefaultMetricsAddr is the default address for the metrics server.
	DefaultMetricsAddr = ":9090"

	DefaultMetricsReadTimeout  = 10 * time.Second
	DefaultMetricsWriteTimeout = 10 * time.Second
	DefaultMetricsIdleTimeout  = 60 * time.Second

	// DefaultShutdownTimeout bounds graceful shutdown of every listener.
	DefaultShutdownTimeout = 30 * time.Second
)

// MetricsServerConfig holds configuration for the metrics server.
type MetricsServerConfig struct {
	// Addr is the address to bind the metrics server to (e.g., ":9090").
	Addr string

	// Enabled determines whether the metrics server should be started.
	Enabled bool

	// InstrumentationProvider supplies the Prometheus registry and its path.
	InstrumentationProvider *instrumentation.Provider

	// Health, when set, serves the liveness and readiness endpoints next to
	// the metrics. Without it only a plain /healthz is registered.
	Health *HealthChecker

	Logger *slog.Logger
}

// MetricsServer serves Prometheus metrics and health checks on their own
// port, outside the MCP transport's rate limit.
type MetricsServer struct {
	addr    string
	handler http.Handler
	logger  *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	closed     bool
}

// NewMetricsServer fails unless the provider is enabled and uses the
// prometheus exporter.
func NewMetricsServer(config MetricsServerConfig) (*MetricsServer, error) {
	if config.Addr == "" {
		config.Addr = DefaultMetricsAddr
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	provider := config.InstrumentationProvider
	if provider == nil {
		return nil, errors.New("instrumentation provider is required for metrics server")
	}
	if !provider.Enabled() {
		return nil, errors.New("instrumentation provider is not enabled")
	}
	metrics := provider.MetricsHandler()
	if metrics == nil {
		return nil, errors.New("metrics server requires the prometheus exporter")
	}

	mux := http.NewServeMux()
	mux.Handle(provider.MetricsPath(), metrics)
	if config.Health != nil {
		config.Health.RegisterHealthEndpoints(mux)
	} else {
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
	}

	return &MetricsServer{
		addr:    config.Addr,
		handler: mux,
		logger:  config.Logger,
	}, nil
}

// Handler returns the metrics and health mux.
func (s *MetricsServer) Handler() http.Handler {
	return s.handler
}

// Start blocks until the server stops. It returns http.ErrServerClosed
// after Shutdown.
func (s *MetricsServer) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	if s.httpServer != nil {
		s.mu.Unlock()
		return errors.New("metrics server already started")
	}
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: DefaultMetricsReadTimeout,
		WriteTimeout:      DefaultMetricsWriteTimeout,
		IdleTimeout:       DefaultMetricsIdleTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("starting metrics server", slog.String("addr", s.addr))
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the metrics server. A later Start returns
// http.ErrServerClosed immediately.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("shutting down metrics server")
	return srv.Shutdown(ctx)
}

// Addr returns the configured address for the metrics server.
func (s *MetricsServer) Addr() string {
	return s.addr
}
