// Package observability provides OpenTelemetry tracing and metrics plus the
// structured logger used by every boundcheck command.
package observability

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// AppMode identifies how the checker was launched.
type AppMode string

const (
	// ModeCLI is the command line mode.
	ModeCLI AppMode = "cli"
	// ModeEmbedded is used when sessions run inside another program or a test harness.
	ModeEmbedded AppMode = "embedded"
)

const (
	// defaultServiceName is the default OTel service name.
	defaultServiceName = "boundcheck"

	// defaultShutdownTimeoutSec is the default shutdown timeout in seconds.
	defaultShutdownTimeoutSec = 5
)

// Config holds all observability configuration.
type Config struct {
	// ServiceName is the OTel resource service name.
	ServiceName string

	// ServiceVersion is the version of the running binary.
	ServiceVersion string

	// Mode identifies how the binary was launched.
	Mode AppMode

	// OTLPEndpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	// Empty disables export.
	OTLPEndpoint string

	// OTLPHeaders are additional gRPC metadata headers for the OTLP exporter.
	OTLPHeaders map[string]string

	// OTLPInsecure disables TLS for the OTLP gRPC connection.
	OTLPInsecure bool

	// PrometheusRegistry, when set and OTLPEndpoint is empty, receives the
	// OTel metrics through the Prometheus exporter.
	PrometheusRegistry *prometheus.Registry

	// LogLevel controls the minimum slog severity. Session verbosity adjusts it later.
	LogLevel *slog.LevelVar

	// LogJSON enables JSON-formatted log output.
	LogJSON bool

	// ShutdownTimeoutSec is the maximum seconds to wait for flush on shutdown.
	ShutdownTimeoutSec int
}

// DefaultConfig returns a Config with defaults for zero-config startup.
func DefaultConfig() Config {
	level := &slog.LevelVar{}
	level.Set(slog.LevelWarn)

	return Config{
		ServiceName:        defaultServiceName,
		Mode:               ModeCLI,
		LogLevel:           level,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}

// LevelForVerbosity maps a session verbosity to a log level:
// 0 warnings only, 1 info, 2 and above debug.
func LevelForVerbosity(verbosity int) slog.Level {
	switch {
	case verbosity <= 0:
		return slog.LevelWarn
	case verbosity == 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
