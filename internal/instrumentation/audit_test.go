package instrumentation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMailbox = "jane@example.com"
	testTraceID = "abc123def456"
	testSpanID  = "span789"
)

func TestToolInvocation_Finish(t *testing.T) {
	ti := NewToolInvocation("mail-search")
	require.False(t, ti.StartTime.IsZero())

	ti.Finish(true, nil)
	assert.True(t, ti.Success)
	assert.GreaterOrEqual(t, ti.Duration, time.Duration(0))
	assert.Equal(t, StatusSuccess, ti.Status())

	failed := NewToolInvocation("mail-move")
	failed.Finish(true, errors.New("NO [TRYCREATE] no such mailbox"))
	assert.False(t, failed.Success)
	assert.Equal(t, "NO [TRYCREATE] no such mailbox", failed.Error)
	assert.Equal(t, StatusError, failed.Status())

	rejected := NewToolInvocation("mail-search")
	rejected.Finish(false, nil)
	assert.False(t, rejected.Success)
	assert.Empty(t, rejected.Error)
}

func TestToolInvocation_Builders(t *testing.T) {
	ti := NewToolInvocation("mail-move").
		WithMailbox(testMailbox).
		WithService(ServiceIMAP, OperationMove).
		WithFolder("[Gmail]/Trash").
		WithItems(3).
		WithSpanContext(context.Background())

	assert.Equal(t, "example.com", ti.MailboxDomain())
	assert.Equal(t, ServiceIMAP, ti.Service)
	assert.Equal(t, OperationMove, ti.Operation)
	assert.Equal(t, 3, ti.Items)
	assert.Empty(t, ti.TraceID, "no span in context")

	assert.Equal(t, "unknown", (&ToolInvocation{}).MailboxDomain())
}

func attrMap(attrs []slog.Attr) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[a.Key] = a.Value.String()
	}
	return m
}

func TestToolInvocation_AttrsWithoutPII(t *testing.T) {
	ti := &ToolInvocation{
		Tool:      "mail-move",
		Mailbox:   testMailbox,
		Service:   ServiceIMAP,
		Operation: OperationMove,
		Folder:    "[Gmail]/Trash",
		Items:     2,
		Success:   true,
		TraceID:   testTraceID,
		SpanID:    testSpanID,
	}

	got := attrMap(ti.attrs(false))
	for _, v := range got {
		assert.NotContains(t, v, testMailbox)
	}
	assert.Equal(t, map[string]string{
		"tool":        "mail-move",
		"duration":    "0s",
		"success":     "true",
		"user_domain": "example.com",
		"user_hash":   got["user_hash"],
		"service":     ServiceIMAP,
		"operation":   OperationMove,
		"trace_id":    testTraceID,
		"folder":      FolderClassTrash,
		"count":       "2",
	}, got)
	assert.True(t, strings.HasPrefix(got["user_hash"], "user:"))
}

func TestToolInvocation_AttrsWithPII(t *testing.T) {
	ti := &ToolInvocation{Tool: "mail-search", Mailbox: testMailbox, SpanID: testSpanID, Error: "timeout"}

	got := attrMap(ti.attrs(true))
	assert.Equal(t, testMailbox, got["mailbox"])
	assert.Equal(t, testSpanID, got["span_id"])
	assert.Equal(t, "timeout", got["error"])
	assert.NotContains(t, got, "user_hash")
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		out = append(out, m)
	}
	return out
}

func newBufferedAuditLogger(config AuditLoggingConfig) (*AuditLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)), config), &buf
}

func TestAuditLogger_Log(t *testing.T) {
	ctx := context.Background()
	al, buf := newBufferedAuditLogger(AuditLoggingConfig{Enabled: true})

	al.Log(ctx, &ToolInvocation{Tool: "mail-search", Mailbox: testMailbox, Success: true})
	al.Log(ctx, &ToolInvocation{Tool: "mail-move", Mailbox: testMailbox, Error: "denied"})

	out := buf.String()
	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "tool_executed", lines[0]["msg"])
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "tool_failed", lines[1]["msg"])
	assert.Equal(t, "WARN", lines[1]["level"])
	assert.NotContains(t, out, testMailbox)
}

func TestAuditLogger_IncludePII(t *testing.T) {
	al, buf := newBufferedAuditLogger(AuditLoggingConfig{Enabled: true, IncludePII: true})
	al.Log(context.Background(), &ToolInvocation{Tool: "mail-search", Mailbox: testMailbox, Success: true})
	assert.Contains(t, buf.String(), testMailbox)
}

func TestAuditLogger_Disabled(t *testing.T) {
	al, buf := newBufferedAuditLogger(AuditLoggingConfig{Enabled: false})
	al.Log(context.Background(), &ToolInvocation{Tool: "mail-search", Success: true})
	assert.Zero(t, buf.Len())
}

func TestNewAuditLogger_NilLogger(t *testing.T) {
	assert.NotNil(t, NewAuditLogger(nil, AuditLoggingConfig{}).logger)
}

func TestAuditLogger_LogLevel(t *testing.T) {
	ctx := context.Background()
	al, buf := newBufferedAuditLogger(AuditLoggingConfig{Enabled: true, LogLevel: "debug"})

	al.Log(ctx, &ToolInvocation{Tool: "mail-search", Success: true})
	assert.Zero(t, buf.Len(), "debug record passed an info handler")

	al.Log(ctx, &ToolInvocation{Tool: "mail-search", Success: false})
	assert.Contains(t, buf.String(), "tool_failed")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}
