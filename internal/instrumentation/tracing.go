package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer every span in this module comes from.
const TracerName = "github.com/teemow/mailmcp"

// Span attribute keys.
const (
	SpanAttrTool         = "mcp.tool"
	SpanAttrService      = "mcp.service"
	SpanAttrStatus       = "mcp.status"
	SpanAttrOperation    = "mailbox.operation"
	SpanAttrFolder       = "mailbox.folder"
	SpanAttrMessageCount = "mailbox.message_count"
	SpanAttrStrategy     = "mailbox.search_strategy"
)

func tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(TracerName)
}

// StartToolSpan opens the server span "tool.<name>" for one MCP tool call.
// service and operation are omitted when service is empty.
func StartToolSpan(ctx context.Context, tool, service, operation string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String(SpanAttrTool, tool)}
	if service != "" {
		attrs = append(attrs,
			attribute.String(SpanAttrService, service),
			attribute.String(SpanAttrOperation, operation))
	}
	return tracer().Start(ctx, "tool."+tool,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindServer))
}

// StartMailboxSpan opens the client span "mailbox.<operation>" covering one
// session from connect to logout. folder may be empty.
func StartMailboxSpan(ctx context.Context, operation, folder string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String(SpanAttrOperation, operation)}
	if folder != "" {
		attrs = append(attrs, attribute.String(SpanAttrFolder, folder))
	}
	return tracer().Start(ctx, "mailbox."+operation,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient))
}

// AnnotatePage tags the span in ctx with the strategy that served a search
// page and the number of ids it returned. It is a no-op without a span.
func AnnotatePage(ctx context.Context, strategy string, count int) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(
		attribute.String(SpanAttrStrategy, strategy),
		attribute.Int(SpanAttrMessageCount, count))
}

// FinishSpan sets the span status from the outcome. A non-nil err is
// recorded on the span; otherwise a status of StatusError marks the span
// failed without an error event.
func FinishSpan(span trace.Span, status string, err error) {
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case status == StatusError:
		span.SetAttributes(attribute.String(SpanAttrStatus, status))
		span.SetStatus(codes.Error, "")
	default:
		span.SetStatus(codes.Ok, "")
	}
}
