// Package server provides the MCP server context and the HTTP servers of
// mailmcp.
//
// # Key Components
//
// ServerContext carries the dependencies every tool handler needs: the
// Mailbox (implemented by *mailbox.Client), the collections.Service, and
// the optional metrics and audit logger.
//
// HTTPServer exposes the MCP server over SSE (/sse, /message) or
// streamable HTTP (/mcp). Requests are rate limited per client IP, traced
// with otelhttp and counted in the HTTP request metrics.
//
// HealthChecker serves /healthz, /readyz and /healthz/detailed. Readiness
// runs the dependency checks registered with AddCheck.
//
// MetricsServer serves Prometheus metrics on a dedicated port, optionally
// together with the health endpoints.
package server
