package instrumentation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrMethod     = "method"
	attrPath       = "path"
	attrStatus     = "status"
	attrOperation  = "operation"
	attrService    = "service"
	attrTool       = "tool"
	attrStrategy   = "strategy"
	attrOutcome    = "outcome"
	attrFolder     = "folder"
	attrCollection = "collection_backend"
)

var (
	httpBuckets    = []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10}
	mailboxBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
	toolBuckets    = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
)

// Metrics records the server's counters and histograms. The zero value
// records nothing, which is what a disabled Provider hands out.
type Metrics struct {
	httpRequests    metric.Int64Counter
	httpDuration    metric.Float64Histogram
	mailboxOps      metric.Int64Counter
	mailboxDuration metric.Float64Histogram
	searchStrategy  metric.Int64Counter
	collectionOps   metric.Int64Counter
	toolCalls       metric.Int64Counter
	toolDuration    metric.Float64Histogram

	// detailedLabels keeps raw folder names instead of their FolderClass.
	detailedLabels bool
}

// NewMetrics creates every instrument on meter.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{detailedLabels: detailedLabels}

	counters := []struct {
		dst        *metric.Int64Counter
		name, desc string
		unit       string
	}{
		{&m.httpRequests, "http_requests_total", "HTTP requests served on the MCP transport", "{request}"},
		{&m.mailboxOps, "mailbox_operations_total", "IMAP and SMTP operations, one per session", "{operation}"},
		{&m.searchStrategy, "mailbox_search_strategy_total", "Search pages by pagination strategy and outcome", "{search}"},
		{&m.collectionOps, "collection_operations_total", "Collection store operations", "{operation}"},
		{&m.toolCalls, "mcp_tool_invocations_total", "MCP tool invocations", "{invocation}"},
	}
	histograms := []struct {
		dst        *metric.Float64Histogram
		name, desc string
		buckets    []float64
	}{
		{&m.httpDuration, "http_request_duration_seconds", "HTTP request duration", httpBuckets},
		{&m.mailboxDuration, "mailbox_operation_duration_seconds", "Mailbox session duration including connect and logout", mailboxBuckets},
		{&m.toolDuration, "mcp_tool_duration_seconds", "MCP tool execution duration", toolBuckets},
	}

	var errs []error
	for _, c := range counters {
		var err error
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			errs = append(errs, fmt.Errorf("counter %s: %w", c.name, err))
		}
	}
	for _, h := range histograms {
		var err error
		*h.dst, err = meter.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(h.buckets...))
		if err != nil {
			errs = append(errs, fmt.Errorf("histogram %s: %w", h.name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordHTTPRequest records one request on the HTTP transport. path should
// already be the route, not the raw URL.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m.httpRequests == nil {
		return
	}
	opt := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequests.Add(ctx, 1, opt)
	m.httpDuration.Record(ctx, duration.Seconds(), opt)
}

// RecordMailboxOperation records one mailbox session. folder is the folder
// the session selected, or "" for operations that select none; it is
// reduced to its FolderClass unless detailed labels are enabled.
func (m *Metrics) RecordMailboxOperation(ctx context.Context, operation, folder, status string, duration time.Duration) {
	if m.mailboxOps == nil {
		return
	}
	opt := metric.WithAttributes(
		attribute.String(attrService, serviceFor(operation)),
		attribute.String(attrOperation, operation),
		attribute.String(attrFolder, m.folderLabel(folder)),
		attribute.String(attrStatus, status),
	)
	m.mailboxOps.Add(ctx, 1, opt)
	m.mailboxDuration.Record(ctx, duration.Seconds(), opt)
}

func (m *Metrics) folderLabel(folder string) string {
	switch {
	case folder == "":
		return FolderClassNone
	case m.detailedLabels:
		return folder
	default:
		return FolderClass(folder)
	}
}

// RecordSearchStrategy counts one search page by the strategy that served
// it. outcome is OutcomeServed or OutcomeFailed.
func (m *Metrics) RecordSearchStrategy(ctx context.Context, strategy, outcome string) {
	if m.searchStrategy == nil {
		return
	}
	m.searchStrategy.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrStrategy, strategy),
		attribute.String(attrOutcome, outcome),
	))
}

func (m *Metrics) RecordCollectionOperation(ctx context.Context, backend, operation, status string) {
	if m.collectionOps == nil {
		return
	}
	m.collectionOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrCollection, backend),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	))
}

func (m *Metrics) RecordToolInvocation(ctx context.Context, tool, status string, duration time.Duration) {
	if m.toolCalls == nil {
		return
	}
	opt := metric.WithAttributes(
		attribute.String(attrTool, tool),
		attribute.String(attrStatus, status),
	)
	m.toolCalls.Add(ctx, 1, opt)
	m.toolDuration.Record(ctx, duration.Seconds(), opt)
}

func serviceFor(operation string) string {
	if operation == OperationSend {
		return ServiceSMTP
	}
	return ServiceIMAP
}
