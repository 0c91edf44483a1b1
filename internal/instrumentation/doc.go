// Package instrumentation provides OpenTelemetry instrumentation for the
// mailmcp MCP server.
//
// # Metrics
//
// HTTP:
//   - http_requests_total: requests by method, path and status
//   - http_request_duration_seconds: request latency
//
// Mailbox:
//   - mailbox_operations_total: IMAP and SMTP operations by service, operation, folder class and status
//   - mailbox_operation_duration_seconds: operation latency
//   - mailbox_search_strategy_total: which paging strategy served a search page and how it ended
//
// Collections:
//   - collection_operations_total: collection store operations by backend, operation and status
//
// MCP tools:
//   - mcp_tool_invocations_total: invocations by tool and status
//   - mcp_tool_duration_seconds: tool latency
//
// Folder names are reduced to none, inbox, sent, trash or other unless detailed
// labels are enabled, keeping label cardinality bounded for mailboxes with
// many user folders.
//
// # Tracing
//
// Spans are created for MCP tool invocations (tool.<name>) and mailbox
// round-trips (mailbox.<operation>).
//
// # Configuration
//
//   - INSTRUMENTATION_ENABLED: enable or disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces and metrics
//   - OTEL_TRACES_SAMPLER_ARG: sampling rate between 0.0 and 1.0 (default: 0.1)
//   - METRICS_EXPORT_INTERVAL: push interval for otlp and stdout metrics (default: 30s)
//   - METRICS_PATH: scrape path on the metrics server (default: /metrics)
//   - METRICS_DETAILED_LABELS: keep raw folder names as labels
//   - OTEL_SERVICE_NAME: service name (default: mailmcp)
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_PII, AUDIT_LOGGING_LEVEL: audit log behaviour
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
//		ServiceName:    "mailmcp",
//		ServiceVersion: "0.1.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	metrics := provider.Metrics()
//	metrics.RecordMailboxOperation(ctx, instrumentation.OperationSearch, "INBOX", "success", time.Since(start))
//	metrics.RecordToolInvocation(ctx, "mail-search", "success", time.Since(start))
package instrumentation
