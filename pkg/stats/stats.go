// Package stats records key/value session statistics. Sinks never fail the
// session: write errors are logged and the sink keeps going.
package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Well-known statistic keys.
const (
	KeyResult         = "result"
	KeyMode           = "mode"
	KeyModel          = "model"
	KeyEntryPoint     = "entry-point"
	KeyExecutions     = "executions"
	KeySteps          = "steps"
	KeyPruned         = "pruned"
	KeyMaxDepth       = "max-depth-explored"
	KeyFrontier       = "frontier-remaining"
	KeyTimeSearch     = "time-search-seconds"
	KeyTimePost       = "time-post-seconds"
	KeyMemoryPeak     = "memory-max-MB"
	KeySolverQueries  = "solver-queries"
	KeySolverHits     = "solver-cache-hits"
	KeyTracePath      = "trace-file"
	KeyCheckpointPath = "checkpoint-file"
)

// Sink accepts statistics records.
type Sink interface {
	Log(key, value string)
	Close() error
}

// Discard drops every record.
type Discard struct{}

// Log implements Sink.
func (Discard) Log(string, string) {}

// Close implements Sink.
func (Discard) Close() error { return nil }

// FileSink appends "key:\tvalue" lines to a text file.
type FileSink struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	failed bool
	logger *slog.Logger
}

// FilePath returns the statistics file of a project inside outputFolder.
func FilePath(outputFolder, project string) string {
	return filepath.Join(outputFolder, "stats-"+project+".log")
}

// NewFileSink creates a sink writing to path. The file is opened on first use.
func NewFileSink(path string, logger *slog.Logger) *FileSink {
	if logger == nil {
		logger = slog.Default()
	}

	return &FileSink{path: path, logger: logger}
}

// Path returns the file written to.
func (s *FileSink) Path() string {
	return s.path
}

// Log implements Sink.
func (s *FileSink) Log(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed {
		return
	}

	err := s.open()
	if err == nil {
		_, err = fmt.Fprintf(s.file, "%s:\t%s\n", key, value)
	}

	if err != nil {
		s.failed = true
		s.logger.WarnContext(context.Background(), "statistics file disabled", "path", s.path, "error", err)
	}
}

func (s *FileSink) open() error {
	if s.file != nil {
		return nil
	}

	err := os.MkdirAll(filepath.Dir(s.path), 0o750)
	if err != nil {
		return fmt.Errorf("create stats directory: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open stats file: %w", err)
	}

	s.file = f

	return nil
}

// Close implements Sink.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	err := s.file.Close()
	s.file = nil

	if err != nil {
		return fmt.Errorf("close stats file: %w", err)
	}

	return nil
}

// PromSink exports numeric statistics as gauges and writes them in the
// Prometheus text format on Close.
type PromSink struct {
	path     string
	registry *prometheus.Registry
	values   *prometheus.GaugeVec
	labels   *prometheus.GaugeVec
}

// NewPromSink creates a sink that writes a textfile to path. Metrics are
// registered in registry, which may be shared with other collectors.
func NewPromSink(path string, registry *prometheus.Registry) (*PromSink, error) {
	values := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "boundcheck",
		Name:      "session_stat",
		Help:      "Numeric statistics of the last verification session.",
	}, []string{"key"})

	labels := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "boundcheck",
		Name:      "session_info",
		Help:      "Non-numeric statistics of the last verification session.",
	}, []string{"key", "value"})

	err := errors.Join(registry.Register(values), registry.Register(labels))
	if err != nil {
		return nil, fmt.Errorf("register statistics collectors: %w", err)
	}

	return &PromSink{path: path, registry: registry, values: values, labels: labels}, nil
}

// Log implements Sink.
func (s *PromSink) Log(key, value string) {
	f, err := strconv.ParseFloat(value, 64)
	if err == nil {
		s.values.WithLabelValues(key).Set(f)

		return
	}

	s.labels.WithLabelValues(key, value).Set(1)
}

// Close implements Sink.
func (s *PromSink) Close() error {
	err := os.MkdirAll(filepath.Dir(s.path), 0o750)
	if err != nil {
		return fmt.Errorf("create textfile directory: %w", err)
	}

	err = prometheus.WriteToTextfile(s.path, s.registry)
	if err != nil {
		return fmt.Errorf("write prometheus textfile: %w", err)
	}

	return nil
}

// Multi fans records out to several sinks.
type Multi []Sink

// Log implements Sink.
func (m Multi) Log(key, value string) {
	for _, s := range m {
		s.Log(key, value)
	}
}

// Close implements Sink and closes every sink.
func (m Multi) Close() error {
	var errs []error

	for _, s := range m {
		errs = append(errs, s.Close())
	}

	return errors.Join(errs...)
}

// Seconds formats a duration in seconds the way statistics files expect.
func Seconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}

// Int formats an integer statistic.
func Int(v int) string {
	return strconv.Itoa(v)
}
