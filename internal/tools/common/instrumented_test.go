package common

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/teemow/mailmcp/internal/instrumentation"
	"github.com/teemow/mailmcp/internal/server"
)

func newServerContext(t *testing.T) *server.ServerContext {
	t.Helper()
	sc := server.NewServerContext(context.Background(), nil, nil, server.WithAccount("me@example.com"))
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func textHandler(text string) ToolHandler {
	return func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(text), nil
	}
}

// auditRecords attaches a JSON audit logger to sc and returns a function
// decoding what was logged so far.
func auditRecords(t *testing.T, sc *server.ServerContext) func() []map[string]any {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	sc.SetAuditLogger(instrumentation.NewAuditLogger(logger, instrumentation.AuditLoggingConfig{Enabled: true}))
	return func() []map[string]any {
		var out []map[string]any
		dec := json.NewDecoder(&buf)
		for dec.More() {
			var rec map[string]any
			require.NoError(t, dec.Decode(&rec))
			out = append(out, rec)
		}
		return out
	}
}

func TestInstrumentedToolHandlerWithService_AddTool(t *testing.T) {
	sc := newServerContext(t)
	s := mcpserver.NewMCPServer("test", "1.0.0", mcpserver.WithToolCapabilities(true))

	var handler mcpserver.ToolHandlerFunc = InstrumentedToolHandlerWithService(
		"mail-folders", instrumentation.ServiceIMAP, instrumentation.OperationListFolders, sc, textHandler("INBOX"))
	s.AddTool(mcp.NewTool("mail-folders"), handler)

	tool := s.GetTool("mail-folders")
	require.NotNil(t, tool)
	result, err := tool.Handler(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	assert.Equal(t, "INBOX", text.Text)
}

func TestInstrumentedToolHandler_Uninstrumented(t *testing.T) {
	sc := newServerContext(t)

	called := false
	wrapped := InstrumentedToolHandlerWithService("mail-folders", instrumentation.ServiceIMAP, instrumentation.OperationListFolders, sc, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("INBOX"), nil
	})

	result, err := wrapped(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.True(t, called)
	assert.NotNil(t, result)
}

func TestInstrumentedToolHandler_Error(t *testing.T) {
	sc := newServerContext(t)
	records := auditRecords(t, sc)

	errReset := errors.New("connection reset")
	wrapped := InstrumentedToolHandlerWithService("mail-folders", instrumentation.ServiceIMAP, instrumentation.OperationListFolders, sc, func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, errReset
	})

	_, err := wrapped(context.Background(), mcp.CallToolRequest{})
	assert.ErrorIs(t, err, errReset)

	logged := records()
	require.Len(t, logged, 1)
	assert.Equal(t, "tool_failed", logged[0]["msg"])
	assert.Equal(t, "connection reset", logged[0]["error"])
}

func TestInstrumentedToolHandler_ErrorResult(t *testing.T) {
	sc := newServerContext(t)
	records := auditRecords(t, sc)

	wrapped := InstrumentedToolHandlerWithService("mail-search", instrumentation.ServiceIMAP, instrumentation.OperationSearch, sc, func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("No emails found matching the criteria."), nil
	})

	result, err := wrapped(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)

	logged := records()
	require.Len(t, logged, 1)
	assert.Equal(t, "tool_failed", logged[0]["msg"])
	assert.NotContains(t, logged[0], "error")
}

func TestInstrumentedToolHandlerWithService_AuditRecord(t *testing.T) {
	sc := newServerContext(t)
	records := auditRecords(t, sc)

	wrapped := InstrumentedToolHandlerWithService("mail-move", instrumentation.ServiceIMAP, instrumentation.OperationMove, sc, textHandler("moved"))
	_, err := wrapped(context.Background(), callRequest(map[string]any{
		"email_ids":          []any{"1", "2", "3"},
		"source_folder":      "[Gmail]/Sent Mail",
		"destination_folder": "Archive",
	}))
	require.NoError(t, err)

	logged := records()
	require.Len(t, logged, 1)
	rec := logged[0]
	assert.Subset(t, rec, map[string]any{
		"msg":         "tool_executed",
		"tool":        "mail-move",
		"service":     "imap",
		"operation":   "move",
		"folder":      "sent",
		"count":       float64(3),
		"user_domain": "example.com",
		"success":     true,
	})
	assert.NotContains(t, rec, "mailbox", "address logged without PII opt-in")
}

func TestInstrumentedToolHandlerWithService_RecordsMetrics(t *testing.T) {
	sc := newServerContext(t)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := instrumentation.NewMetrics(mp.Meter("test"), false)
	require.NoError(t, err)
	sc.SetMetrics(metrics)

	wrapped := InstrumentedToolHandlerWithService("mail-search", instrumentation.ServiceIMAP, instrumentation.OperationSearch, sc, textHandler("ok"))
	for range 2 {
		_, err := wrapped(context.Background(), mcp.CallToolRequest{})
		require.NoError(t, err)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "mcp_tool_invocations_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	assert.EqualValues(t, 2, total)
}
