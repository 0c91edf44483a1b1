package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/mailmcp/internal/collections"
	"github.com/teemow/mailmcp/internal/config"
	"github.com/teemow/mailmcp/internal/imapconn"
	"github.com/teemow/mailmcp/internal/instrumentation"
	"github.com/teemow/mailmcp/internal/logging"
	"github.com/teemow/mailmcp/internal/mailbox"
	"github.com/teemow/mailmcp/internal/server"
	"github.com/teemow/mailmcp/internal/smtp"
	"github.com/teemow/mailmcp/internal/tools/collection_tools"
	"github.com/teemow/mailmcp/internal/tools/mail_tools"
)

const transportStdio = "stdio"

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string

	// Exporter overrides METRICS_EXPORTER when set
	Exporter string
}

// ServeConfig collects the serve command flags.
type ServeConfig struct {
	Transport             string
	HTTPAddr              string
	AuthToken             string
	Debug                 bool
	LogFormat             string
	EnableWriteOperations bool
	EnvFile               string
	RateLimit             float64
	RateBurst             int
	Metrics               MetricsConfig
}

func newServeCmd() *cobra.Command {
	cfg := ServeConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server to provide mailbox tools
for AI assistants.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - sse: Server-Sent Events over HTTP
  - streamable-http: Streamable HTTP transport

Safety Mode:
  By default, mail-move and mail-delete are not registered.
  Use --enable-write-operations to register them.

Configuration:
  The mailbox account is read from the environment and from an optional
  .env file (--env-file, default ./.env). Variables already present in the
  environment take precedence over the file.

    EMAIL_ADDRESS, EMAIL_PASSWORD        account credentials (required)
    IMAP_SERVER, IMAP_PORT, IMAP_TLS     default imap.gmail.com:993, tls
    SMTP_SERVER, SMTP_PORT, SMTP_TLS     default smtp.gmail.com:587, starttls
    MAIL_COLLECTIONS_DB                  SQLite file for collections (default: in memory)

HTTP transports:
  The sse and streamable-http transports listen on 127.0.0.1:8080 by
  default and require a bearer token (--auth-token or MCP_AUTH_TOKEN).
  Clients send it as "Authorization: Bearer <token>". Health endpoints
  are served without authentication.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("auth-token") {
				cfg.AuthToken = os.Getenv("MCP_AUTH_TOKEN")
			}
			if !cmd.Flags().Changed("metrics-addr") {
				if addr := os.Getenv("METRICS_ADDR"); addr != "" {
					cfg.Metrics.Addr = addr
				}
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.Transport, "transport", transportStdio, "Transport type: stdio, sse, or streamable-http")
	cmd.Flags().StringVar(&cfg.HTTPAddr, "http-addr", server.DefaultHTTPAddr, "HTTP server address (for sse and streamable-http transports)")
	cmd.Flags().StringVar(&cfg.AuthToken, "auth-token", "", "Bearer token required on HTTP transports (or MCP_AUTH_TOKEN)")
	cmd.Flags().BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&cfg.LogFormat, "log-format", logging.FormatText, "Log output format: text or json")
	cmd.Flags().BoolVar(&cfg.EnableWriteOperations, "enable-write-operations", false, "Register mail-move and mail-delete")
	cmd.Flags().StringVar(&cfg.EnvFile, "env-file", "", "Path to a .env file (default: ./.env when present)")
	cmd.Flags().Float64Var(&cfg.RateLimit, "rate-limit", server.DefaultRateLimit, "Requests per second allowed per client IP on HTTP transports (0 disables)")
	cmd.Flags().IntVar(&cfg.RateBurst, "rate-burst", server.DefaultRateBurst, "Burst size allowed per client IP on HTTP transports")
	cmd.Flags().BoolVar(&cfg.Metrics.Enabled, "metrics-enabled", true, "Start the metrics server on HTTP transports")
	cmd.Flags().StringVar(&cfg.Metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address (or METRICS_ADDR)")
	cmd.Flags().StringVar(&cfg.Metrics.Exporter, "metrics-exporter", "", "Metrics exporter: prometheus, otlp or stdout (overrides METRICS_EXPORTER)")

	return cmd
}

func runServe(cfg ServeConfig) error {
	cfg.Transport = strings.ToLower(strings.TrimSpace(cfg.Transport))
	switch cfg.Transport {
	case transportStdio, server.TransportSSE, server.TransportStreamableHTTP:
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, sse, streamable-http)", cfg.Transport)
	}
	if cfg.Transport != transportStdio && cfg.AuthToken == "" {
		return fmt.Errorf("%w: set --auth-token or MCP_AUTH_TOKEN", server.ErrAuthTokenRequired)
	}

	// stdout carries the MCP stream on stdio, so logs always go to stderr.
	logger, err := logging.NewLogger(os.Stderr, cfg.LogFormat, cfg.Debug)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	appConfig, err := config.Load(cfg.EnvFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := appConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if cfg.Metrics.Exporter != "" {
		instrConfig.MetricsExporter = cfg.Metrics.Exporter
	}
	if err := instrConfig.Validate(); err != nil {
		return fmt.Errorf("invalid instrumentation configuration: %w", err)
	}

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(err))
		}
	}()
	metrics := provider.Metrics()

	serverContext, err := newServerContext(ctx, appConfig, metrics, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("server context shutdown failed", logging.Err(err))
		}
	}()

	// Set metrics and audit logger on server context for tool instrumentation
	if provider.Enabled() {
		serverContext.SetMetrics(metrics)
		serverContext.SetAuditLogger(instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging))
	}

	mcpSrv := mcpserver.NewMCPServer("mailmcp", version,
		mcpserver.WithToolCapabilities(true),
	)

	readOnly := !cfg.EnableWriteOperations
	if readOnly {
		logger.Info("starting in read-only mode (use --enable-write-operations to register mail-move and mail-delete)")
	} else {
		logger.Info("starting with write operations enabled")
	}

	if err := registerAllTools(mcpSrv, serverContext, readOnly); err != nil {
		return err
	}

	logger.Info("starting mailmcp MCP server",
		slog.String("transport", cfg.Transport),
		slog.String("version", version),
		logging.UserHash(appConfig.Account.Address))

	if cfg.Transport == transportStdio {
		return runStdioServer(mcpSrv)
	}
	return runHTTPServer(ctx, mcpSrv, serverContext, cfg, provider, logger)
}

// newServerContext builds the mailbox client and collection store from the
// loaded configuration.
func newServerContext(ctx context.Context, appConfig *config.Config, metrics *instrumentation.Metrics, logger *slog.Logger) (*server.ServerContext, error) {
	imapProvider, err := imapconn.NewProvider(appConfig.IMAPConnection(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create IMAP provider: %w", err)
	}
	sender, err := smtp.NewSender(appConfig.SMTPConnection(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP sender: %w", err)
	}

	mailboxOpts := appConfig.MailboxOptions()
	mailboxOpts.Logger = logger
	mailboxOpts.Recorder = metrics
	client := mailbox.NewClient(imapProvider, sender, mailboxOpts)

	store, err := collections.Open(appConfig.Collections.DatabasePath, collections.Options{
		Logger:   logging.NewSlogAdapter(logging.WithService(logger, "collections")),
		Recorder: metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open collection store: %w", err)
	}

	return server.NewServerContext(ctx, client, store,
		server.WithLogger(logger),
		server.WithAccount(appConfig.Account.Address),
	), nil
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// runHTTPServer serves MCP over HTTP next to the metrics server and shuts
// both down when ctx is cancelled or either of them fails.
func runHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, cfg ServeConfig, provider *instrumentation.Provider, logger *slog.Logger) error {
	health := server.NewHealthChecker(sc)
	health.AddCheck("collections", func(ctx context.Context) error {
		_, err := sc.Collections().List(ctx)
		return err
	})

	httpSrv, err := server.NewHTTPServer(mcpSrv, server.HTTPServerConfig{
		Addr:      cfg.HTTPAddr,
		Transport: cfg.Transport,
		AuthToken: cfg.AuthToken,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
		Health:    health,
		Metrics:   provider.Metrics(),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	var metricsServer *server.MetricsServer
	switch {
	case !cfg.Metrics.Enabled || !provider.Enabled():
	case provider.MetricsHandler() == nil:
		logger.Warn("metrics server skipped, the configured exporter has no scrape endpoint")
	default:
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.Metrics.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
			Health:                  health,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	if metricsServer != nil {
		g.Go(func() error {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		health.SetReady(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()

		var errs []error
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// registerAllTools registers all MCP tools
func registerAllTools(mcpSrv *mcpserver.MCPServer, ctx *server.ServerContext, readOnly bool) error {
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Mail",
			register: func() error {
				return mail_tools.RegisterMailTools(mcpSrv, ctx, readOnly)
			},
		},
		{
			name: "Collection",
			register: func() error {
				return collection_tools.RegisterCollectionTools(mcpSrv, ctx)
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s tools: %w", reg.name, err)
		}
	}

	return nil
}
