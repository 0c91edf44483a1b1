package instrumentation

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variables read by DefaultConfig.
const (
	EnvServiceName        = "OTEL_SERVICE_NAME"
	EnvServiceInstanceID  = "OTEL_SERVICE_INSTANCE_ID"
	EnvEnabled            = "INSTRUMENTATION_ENABLED"
	EnvMetricsExporter    = "METRICS_EXPORTER"
	EnvMetricsInterval    = "METRICS_EXPORT_INTERVAL"
	EnvMetricsPath        = "METRICS_PATH"
	EnvDetailedLabels     = "METRICS_DETAILED_LABELS"
	EnvTracingExporter    = "TRACING_EXPORTER"
	EnvOTLPEndpoint       = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPInsecure       = "OTEL_EXPORTER_OTLP_INSECURE"
	EnvTraceSamplingRate  = "OTEL_TRACES_SAMPLER_ARG"
	EnvAuditEnabled       = "AUDIT_LOGGING_ENABLED"
	EnvAuditIncludePII    = "AUDIT_LOGGING_INCLUDE_PII"
	EnvAuditLevel         = "AUDIT_LOGGING_LEVEL"
	DefaultServiceName    = "mailmcp"
	DefaultMetricsPath    = "/metrics"
	DefaultSamplingRate   = 0.1
	DefaultMetricInterval = 30 * time.Second
)

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// ServiceInstanceID defaults to the hostname (the pod name on Kubernetes).
	ServiceInstanceID string
	K8sNamespace      string
	K8sPodName        string

	// Enabled turns metrics and tracing on. With INSTRUMENTATION_ENABLED=false
	// the provider hands out no-op recorders.
	Enabled bool

	// MetricsExporter is prometheus, otlp or stdout.
	MetricsExporter string

	// MetricsInterval is the push interval of the otlp and stdout exporters.
	// Prometheus is scraped and ignores it.
	MetricsInterval time.Duration

	// MetricsPath is where the metrics server serves the Prometheus registry.
	MetricsPath string

	// TracingExporter is otlp, stdout or none.
	TracingExporter string

	// OTLPEndpoint is host:port without a scheme, e.g. "localhost:4318".
	OTLPEndpoint string

	// OTLPInsecure disables TLS towards the collector. Spans carry folder
	// names and recipient domains, so keep this off outside development.
	OTLPInsecure bool

	// TraceSamplingRate is the parent-based ratio in [0, 1].
	TraceSamplingRate float64

	// DetailedLabels records folder names verbatim instead of by class.
	// Mailboxes with many custom folders will blow up series cardinality.
	DetailedLabels bool

	AuditLogging AuditLoggingConfig
}

// AuditLoggingConfig holds configuration for audit logging.
type AuditLoggingConfig struct {
	Enabled bool

	// IncludePII logs the full mailbox address instead of its hash and
	// domain.
	IncludePII bool

	// LogLevel is the level of successful invocation records: debug, info,
	// warn or error. Failures are always logged at warn.
	LogLevel string
}

// DefaultConfig returns the configuration described by the environment.
func DefaultConfig() Config {
	return Config{
		ServiceName:       getEnvOrDefault(EnvServiceName, DefaultServiceName),
		ServiceVersion:    "unknown",
		ServiceInstanceID: getEnvOrDefault(EnvServiceInstanceID, ""),
		K8sNamespace:      getEnvOrDefault("K8S_NAMESPACE", getEnvOrDefault("POD_NAMESPACE", "")),
		K8sPodName:        getEnvOrDefault("K8S_POD_NAME", getEnvOrDefault("HOSTNAME", "")),
		Enabled:           getEnvBoolOrDefault(EnvEnabled, true),
		MetricsExporter:   getEnvOrDefault(EnvMetricsExporter, ExporterPrometheus),
		MetricsInterval:   getEnvDurationOrDefault(EnvMetricsInterval, DefaultMetricInterval),
		MetricsPath:       getEnvOrDefault(EnvMetricsPath, DefaultMetricsPath),
		TracingExporter:   getEnvOrDefault(EnvTracingExporter, ExporterNone),
		OTLPEndpoint:      getEnvOrDefault(EnvOTLPEndpoint, ""),
		OTLPInsecure:      getEnvBoolOrDefault(EnvOTLPInsecure, false),
		TraceSamplingRate: getEnvFloatOrDefault(EnvTraceSamplingRate, DefaultSamplingRate),
		DetailedLabels:    getEnvBoolOrDefault(EnvDetailedLabels, false),
		AuditLogging: AuditLoggingConfig{
			Enabled:    getEnvBoolOrDefault(EnvAuditEnabled, true),
			IncludePII: getEnvBoolOrDefault(EnvAuditIncludePII, false),
			LogLevel:   getEnvOrDefault(EnvAuditLevel, "info"),
		},
	}
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		errs = append(errs, fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %g", c.TraceSamplingRate))
	}

	switch c.MetricsExporter {
	case "", ExporterPrometheus, ExporterStdout:
	case ExporterOTLP:
		if c.OTLPEndpoint == "" {
			errs = append(errs, errors.New("OTLP endpoint is required when using OTLP metrics exporter"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter))
	}

	switch c.TracingExporter {
	case "", ExporterNone, ExporterStdout:
	case ExporterOTLP:
		if c.OTLPEndpoint == "" {
			errs = append(errs, errors.New("OTLP endpoint is required when using OTLP tracing exporter"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter))
	}

	if c.MetricsInterval < 0 {
		errs = append(errs, fmt.Errorf("metrics export interval cannot be negative, got %s", c.MetricsInterval))
	}
	if c.MetricsPath != "" && c.MetricsPath[0] != '/' {
		errs = append(errs, fmt.Errorf("metrics path must start with '/', got %q", c.MetricsPath))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBoolOrDefault falls back to defaultValue when the variable does not
// parse.
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	parsed, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	parsed, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	parsed, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return parsed
}

// Exporter names accepted by METRICS_EXPORTER and TRACING_EXPORTER.
const (
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)
