package common

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/mailmcp/internal/instrumentation"
	"github.com/teemow/mailmcp/internal/server"
	"github.com/teemow/mailmcp/internal/tools/batch"
)

// ToolHandler is the signature of an MCP tool handler. It is an alias so
// wrapped handlers can be passed straight to AddTool.
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// InstrumentedToolHandlerWithService wraps handler in a tool span, the tool
// metrics and one audit record per call. serviceName ("imap", "smtp" or
// "collections") and operation label the span and the audit record. Without
// metrics and audit logger on sc the handler runs unwrapped.
//
// Usage:
//
//	s.AddTool(tool, common.InstrumentedToolHandlerWithService("mail-move", "imap", "move", sc, handler))
func InstrumentedToolHandlerWithService(toolName, serviceName, operation string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		metrics := sc.Metrics()
		auditLogger := sc.AuditLogger()

		if metrics == nil && auditLogger == nil {
			return handler(ctx, request)
		}

		ctx, span := instrumentation.StartToolSpan(ctx, toolName, serviceName, operation)
		defer span.End()

		start := time.Now()
		invocation := instrumentation.NewToolInvocation(toolName).
			WithSpanContext(ctx).
			WithMailbox(sc.Account())
		if serviceName != "" {
			invocation.WithService(serviceName, operation)
		}

		args := request.GetArguments()
		if folder := FolderFromArgs(args); folder != "" {
			invocation.WithFolder(folder)
		}
		if ids, err := batch.ParseStringOrArray(args["email_ids"], "email_ids"); err == nil {
			invocation.WithItems(len(ids))
		}

		result, err := handler(ctx, request)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		if err != nil || (result != nil && result.IsError) {
			status = instrumentation.StatusError
		}
		invocation.Finish(status == instrumentation.StatusSuccess, err)
		instrumentation.FinishSpan(span, status, err)

		if metrics != nil {
			metrics.RecordToolInvocation(ctx, toolName, status, duration)
		}
		if auditLogger != nil {
			auditLogger.Log(ctx, invocation)
		}

		return result, err
	}
}
