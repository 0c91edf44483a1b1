package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teemow/mailmcp/internal/collections"
	"github.com/teemow/mailmcp/internal/instrumentation"
	"github.com/teemow/mailmcp/internal/mailbox"
)

// Mailbox is the set of mailbox operations the tools rely on.
// *mailbox.Client implements it.
type Mailbox interface {
	Search(ctx context.Context, criteria mailbox.SearchCriteria) ([]mailbox.Summary, error)
	GetContent(ctx context.Context, id, folder string) (*mailbox.Content, error)
	Send(ctx context.Context, msg mailbox.Message) error
	CountDaily(ctx context.Context, startDate, endDate string) (mailbox.DailyCounts, error)
	ListFolders(ctx context.Context) ([]mailbox.Folder, error)
	Move(ctx context.Context, ids []string, source, destination string) error
	Delete(ctx context.Context, ids []string, folder string, permanent bool) error
}

var _ Mailbox = (*mailbox.Client)(nil)

// ServerContext holds the dependencies shared by all tool handlers.
type ServerContext struct {
	ctx         context.Context
	cancel      context.CancelFunc
	mailbox     Mailbox
	collections *collections.Service
	account     string
	logger      *slog.Logger

	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger

	mu       sync.RWMutex
	shutdown bool
}

// Option configures a ServerContext.
type Option func(*ServerContext)

// WithLogger sets the logger handed to tool handlers.
func WithLogger(logger *slog.Logger) Option {
	return func(sc *ServerContext) { sc.logger = logger }
}

// WithAccount sets the mailbox address used for audit records.
func WithAccount(address string) Option {
	return func(sc *ServerContext) { sc.account = address }
}

// NewServerContext creates a new server context
func NewServerContext(ctx context.Context, mb Mailbox, store *collections.Service, opts ...Option) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)
	sc := &ServerContext{
		ctx:         shutdownCtx,
		cancel:      cancel,
		mailbox:     mb,
		collections: store,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Mailbox returns the mailbox client.
func (sc *ServerContext) Mailbox() Mailbox {
	return sc.mailbox
}

// Collections returns the collection service.
func (sc *ServerContext) Collections() *collections.Service {
	return sc.collections
}

// Account returns the configured mailbox address.
func (sc *ServerContext) Account() string {
	return sc.account
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// SetMetrics sets the metrics recorder. Nil disables tool metrics.
func (sc *ServerContext) SetMetrics(m *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = m
}

// Metrics returns the metrics recorder, or nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// SetAuditLogger sets the audit logger. Nil disables audit records.
func (sc *ServerContext) SetAuditLogger(l *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.auditLogger = l
}

// AuditLogger returns the audit logger, or nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context and closes the collection store.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	if sc.collections != nil {
		return sc.collections.Close()
	}
	return nil
}
