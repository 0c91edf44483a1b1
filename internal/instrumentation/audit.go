package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/mailmcp/internal/logging"
)

// ToolInvocation is the audit record of one MCP tool call.
//
// Mailbox is the configured account address and therefore PII. It is only
// written verbatim when the audit logger is configured with IncludePII.
type ToolInvocation struct {
	Tool      string
	Mailbox   string
	Service   string // imap, smtp or collections
	Operation string
	Folder    string
	// Items is the number of messages or rows the call touched, when known.
	Items int

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewToolInvocation starts timing a tool call.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{Tool: tool, StartTime: time.Now()}
}

func (ti *ToolInvocation) WithMailbox(address string) *ToolInvocation {
	ti.Mailbox = address
	return ti
}

func (ti *ToolInvocation) WithService(service, operation string) *ToolInvocation {
	ti.Service, ti.Operation = service, operation
	return ti
}

func (ti *ToolInvocation) WithFolder(folder string) *ToolInvocation {
	ti.Folder = folder
	return ti
}

func (ti *ToolInvocation) WithItems(n int) *ToolInvocation {
	ti.Items = n
	return ti
}

// WithSpanContext copies the trace and span ids of the span in ctx, if any.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		ti.TraceID = sc.TraceID().String()
		ti.SpanID = sc.SpanID().String()
	}
	return ti
}

// Finish stops the timer. err, when set, is kept as the failure reason; a
// tool error result fails the call without one.
func (ti *ToolInvocation) Finish(success bool, err error) {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = success && err == nil
	if err != nil {
		ti.Error = err.Error()
	}
}

func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// MailboxDomain is the domain of the account address, or "unknown".
func (ti *ToolInvocation) MailboxDomain() string {
	if d := logging.ExtractDomain(ti.Mailbox); d != "" {
		return d
	}
	return "unknown"
}

// attrs renders the record. Without includePII the address is replaced by
// its hash and domain and the span id is left out.
func (ti *ToolInvocation) attrs(includePII bool) []slog.Attr {
	attrs := []slog.Attr{
		slog.String(logging.KeyTool, ti.Tool),
		slog.Duration(logging.KeyDuration, ti.Duration),
		slog.Bool("success", ti.Success),
	}
	if includePII {
		attrs = append(attrs, slog.String("mailbox", ti.Mailbox))
	} else {
		attrs = append(attrs, slog.String("user_domain", ti.MailboxDomain()))
		if ti.Mailbox != "" {
			attrs = append(attrs, logging.UserHash(ti.Mailbox))
		}
	}

	optional := []struct {
		key, value string
	}{
		{logging.KeyService, ti.Service},
		{logging.KeyOperation, ti.Operation},
		{"trace_id", ti.TraceID},
		{logging.KeyError, ti.Error},
	}
	for _, o := range optional {
		if o.value != "" {
			attrs = append(attrs, slog.String(o.key, o.value))
		}
	}
	if ti.Folder != "" {
		attrs = append(attrs, slog.String(logging.KeyFolder, FolderClass(ti.Folder)))
	}
	if ti.Items > 0 {
		attrs = append(attrs, slog.Int(logging.KeyCount, ti.Items))
	}
	if includePII && ti.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ti.SpanID))
	}
	return attrs
}

// AuditLogger writes one record per tool invocation: "tool_executed" at the
// configured level, or "tool_failed" at WARN.
type AuditLogger struct {
	logger *slog.Logger
	config AuditLoggingConfig
	level  slog.Level
}

// NewAuditLogger uses slog.Default when logger is nil.
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger: logger,
		config: config,
		level:  parseLevel(config.LogLevel),
	}
}

func (al *AuditLogger) Log(ctx context.Context, ti *ToolInvocation) {
	if !al.config.Enabled {
		return
	}
	level, msg := al.level, "tool_executed"
	if !ti.Success {
		level, msg = slog.LevelWarn, "tool_failed"
	}
	al.logger.LogAttrs(ctx, level, msg, ti.attrs(al.config.IncludePII)...)
}

// parseLevel maps debug, info, warn and error onto slog levels. Anything
// else is INFO.
func parseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}
