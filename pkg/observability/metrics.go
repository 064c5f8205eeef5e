package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricSessionsTotal  = "boundcheck.sessions.total"
	metricSearchDuration = "boundcheck.search.duration.seconds"
	metricExecutions     = "boundcheck.search.executions.total"
	metricCheckpoints    = "boundcheck.checkpoints.total"

	attrOutcome = "outcome"
	attrRunMode = "run_mode"
	attrStatus  = "status"
)

// durationBucketBoundaries covers 10ms to 1h of search time.
var durationBucketBoundaries = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600}

// SessionMetrics holds the OTel instruments of verification sessions.
type SessionMetrics struct {
	sessions       metric.Int64Counter
	searchDuration metric.Float64Histogram
	executions     metric.Int64Counter
	checkpoints    metric.Int64Counter
}

// NewSessionMetrics creates session instruments from mt.
func NewSessionMetrics(mt metric.Meter) (*SessionMetrics, error) {
	sessions, err := mt.Int64Counter(metricSessionsTotal,
		metric.WithDescription("Verification sessions by outcome and run mode"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricSessionsTotal, err)
	}

	duration, err := mt.Float64Histogram(metricSearchDuration,
		metric.WithDescription("Search duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricSearchDuration, err)
	}

	executions, err := mt.Int64Counter(metricExecutions,
		metric.WithDescription("Executions explored by searches"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricExecutions, err)
	}

	checkpoints, err := mt.Int64Counter(metricCheckpoints,
		metric.WithDescription("Checkpoint save attempts by status"),
		metric.WithUnit("{checkpoint}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCheckpoints, err)
	}

	return &SessionMetrics{
		sessions:       sessions,
		searchDuration: duration,
		executions:     executions,
		checkpoints:    checkpoints,
	}, nil
}

// RecordSession records one finished session.
func (sm *SessionMetrics) RecordSession(ctx context.Context, runMode, result string, search time.Duration, executions int) {
	attrs := metric.WithAttributes(
		attribute.String(attrRunMode, runMode),
		attribute.String(attrOutcome, result),
	)

	sm.sessions.Add(ctx, 1, attrs)
	sm.searchDuration.Record(ctx, search.Seconds(), attrs)
	sm.executions.Add(ctx, int64(executions), metric.WithAttributes(attribute.String(attrRunMode, runMode)))
}

// RecordCheckpoint records a checkpoint save attempt.
func (sm *SessionMetrics) RecordCheckpoint(ctx context.Context, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}

	sm.checkpoints.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
}
