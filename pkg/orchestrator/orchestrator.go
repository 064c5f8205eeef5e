// Package orchestrator runs verification sessions end to end: it selects the
// model and entry point, initializes the session, drives the searcher or
// replayer, persists checkpoints and statistics, and maps the outcome to an
// exit status.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/boundcheck/pkg/checkpoint"
	"github.com/Sumatoshi-tech/boundcheck/pkg/config"
	"github.com/Sumatoshi-tech/boundcheck/pkg/model"
	"github.com/Sumatoshi-tech/boundcheck/pkg/observability"
	"github.com/Sumatoshi-tech/boundcheck/pkg/registry"
	"github.com/Sumatoshi-tech/boundcheck/pkg/search"
	"github.com/Sumatoshi-tech/boundcheck/pkg/session"
	"github.com/Sumatoshi-tech/boundcheck/pkg/stats"
	tracefile "github.com/Sumatoshi-tech/boundcheck/pkg/trace"
	"github.com/Sumatoshi-tech/boundcheck/pkg/units"
)

// Span names.
const (
	spanSession = "boundcheck.session"
	spanSearch  = "boundcheck.search"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger used outside of sessions.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithTracer sets the tracer for session and search spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithMetrics sets the instruments finished sessions are recorded in.
func WithMetrics(m *observability.SessionMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator runs sessions one after another.
type Orchestrator struct {
	registry *registry.Registry
	sessions *session.Manager
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *observability.SessionMetrics
}

// New creates an orchestrator discovering models in reg and creating
// sessions through sessions.
func New(reg *registry.Registry, sessions *session.Manager, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: reg,
		sessions: sessions,
		logger:   slog.Default(),
		tracer:   nooptrace.NewTracerProvider().Tracer("boundcheck"),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// target is what a session verifies.
type target struct {
	model model.Model
	entry model.EntryPoint
	state *checkpoint.State
	trace *tracefile.Trace
}

// Run executes one session described by cfg. It always returns a report; the
// report's ExitCode is the process exit status.
func (o *Orchestrator) Run(ctx context.Context, cfg *config.SessionConfig) *Report {
	ctx, span := o.tracer.Start(ctx, spanSession)
	defer span.End()

	report := o.run(ctx, cfg)

	span.SetAttributes(
		attribute.String("boundcheck.mode", string(report.Mode)),
		attribute.String("boundcheck.model", report.Model),
		attribute.String("boundcheck.entry_point", report.EntryPoint),
		attribute.String("boundcheck.outcome", report.Outcome.String()),
		attribute.Int("boundcheck.exit_code", report.ExitCode()),
	)

	if report.Err != nil {
		span.RecordError(report.Err)
		span.SetStatus(codes.Error, report.Outcome.String())
	}

	if o.metrics != nil {
		o.metrics.RecordSession(ctx, string(report.Mode), report.Outcome.String(),
			report.Stats.SearchTime, report.Stats.Executions)
	}

	o.logger.InfoContext(ctx, "session finished",
		"outcome", report.Outcome.String(),
		"exit_code", report.ExitCode(),
		"executions", report.Stats.Executions)

	return report
}

func (o *Orchestrator) run(ctx context.Context, shared *config.SessionConfig) *Report {
	// The project name is derived per session, so each run works on a copy.
	local := *shared
	cfg := &local

	report := &Report{Mode: cfg.Mode()}

	err := cfg.Validate()
	if err != nil {
		return report.fail(err)
	}

	ckpts := newCheckpoints(cfg, o.logger)
	defer func() {
		closeErr := ckpts.Close()
		if closeErr != nil {
			o.logger.WarnContext(ctx, "close checkpoint store", "error", closeErr)
			report.warn(fmt.Sprintf("close checkpoint store: %v", closeErr))
		}
	}()

	tgt, err := o.resolve(ctx, cfg, ckpts, report)
	if err != nil {
		return report.fail(err)
	}

	report.Model = tgt.model.Name
	report.EntryPoint = tgt.entry.Name

	project, err := cfg.DeriveProjectName(projectSource(tgt))
	if err != nil {
		return report.fail(err)
	}

	report.ProjectName = project

	return o.execute(ctx, cfg, tgt, ckpts, report)
}

// projectSource is the name the project name is derived from when unset.
func projectSource(tgt target) string {
	if tgt.state != nil && tgt.state.ProjectName != "" {
		return tgt.state.ProjectName
	}

	return tgt.model.Name
}

// resolve finds the model and entry point of the run mode. Nothing is set up
// yet, so an ambiguous default entry point exits without side effects.
func (o *Orchestrator) resolve(
	ctx context.Context, cfg *config.SessionConfig, ckpts *checkpoints, report *Report,
) (target, error) {
	switch cfg.Mode() {
	case config.ModeReplay:
		tr, err := tracefile.Load(cfg.ReplayFromTraceFile)
		if err != nil {
			return target{}, err
		}

		tgt, err := o.recorded(tr.Model, tr.EntryPoint)
		tgt.trace = tr

		return tgt, err

	case config.ModeResume:
		mgr, key, err := ckpts.source()
		if err != nil {
			return target{}, err
		}

		state, err := mgr.Load(ctx, key)
		if err != nil {
			return target{}, err
		}

		tgt, err := o.recorded(state.Model, state.EntryPoint)
		tgt.state = state

		return tgt, err

	default:
		m, skipped, err := o.registry.Select(cfg.Model)
		if err != nil {
			return target{}, err
		}

		if skipped {
			o.logger.WarnContext(ctx, "several models registered, verifying the first", "model", m.Name)
			report.warn(fmt.Sprintf("several models registered, verifying %s", m.Name))
		}

		entry, err := registry.Resolve(m, cfg.EntryPoint, cfg.EntryPointDefault)
		if err != nil {
			o.logger.ErrorContext(ctx, "entry point not resolved",
				"model", m.Name, "requested", cfg.EntryPoint, "error", err)

			return target{model: m}, err
		}

		return target{model: m, entry: entry}, nil
	}
}

// recorded looks up the model and entry point named by a checkpoint or trace.
func (o *Orchestrator) recorded(modelName, entryName string) (target, error) {
	m, err := o.registry.Lookup(modelName)
	if err != nil {
		return target{}, err
	}

	entry, err := registry.Resolve(m, entryName, "")
	if err != nil {
		return target{model: m}, err
	}

	return target{model: m, entry: entry}, nil
}

// execute runs an initialized session. Teardown runs on every path.
func (o *Orchestrator) execute(
	ctx context.Context, cfg *config.SessionConfig, tgt target, ckpts *checkpoints, report *Report,
) *Report {
	sink := o.openStats(ctx, cfg, report)

	sess, runCtx, err := o.sessions.Initialize(ctx, cfg, sink)
	if err != nil {
		closeErr := sink.Close()
		if closeErr != nil {
			report.warn(fmt.Sprintf("close statistics: %v", closeErr))
		}

		return report.fail(err)
	}

	defer o.teardown(ctx, sess, report)

	sess.Logger.InfoContext(ctx, "session started",
		"mode", string(report.Mode),
		"model", tgt.model.Name,
		"entry_point", tgt.entry.Name,
		"project", report.ProjectName)

	if tgt.trace != nil {
		o.replay(runCtx, sess, tgt, report)

		return report
	}

	searcher, err := o.searcher(ctx, cfg, sess, tgt, ckpts, report)
	if err != nil {
		report.fail(err)
		sess.Monitors.StartInterval()
		o.logStats(sess, tgt, report)

		return report
	}

	searchCtx, span := o.tracer.Start(runCtx, spanSearch,
		trace.WithAttributes(attribute.String("boundcheck.variant", string(searcher.Variant()))))
	res := searcher.Run(searchCtx)
	span.SetAttributes(attribute.Int("boundcheck.executions", res.Stats.Executions))
	span.End()

	report.Outcome = res.Kind
	report.Err = res.Err
	report.Violation = res.Violation
	report.Trace = res.Trace
	report.TracePath = res.TracePath
	report.Stats = res.Stats

	sess.Monitors.StartInterval()

	if cfg.WriteCheckpoint {
		o.saveCheckpoint(ctx, sess, searcher, ckpts, report)
	}

	o.logStats(sess, tgt, report)

	return report
}

func (o *Orchestrator) replay(ctx context.Context, sess *session.Context, tgt target, report *Report) {
	replayCtx, span := o.tracer.Start(ctx, spanSearch,
		trace.WithAttributes(attribute.String("boundcheck.variant", "replay")))
	res := search.NewReplay(tgt.trace, tgt.entry, sess.Logger).Replay(replayCtx)
	span.End()

	report.Outcome = res.Kind
	report.Err = res.Err
	report.Violation = res.Violation
	report.Trace = res.Trace
	report.TracePath = sess.Config.ReplayFromTraceFile
	report.Stats = res.Stats

	sess.Monitors.StartInterval()
	o.logStats(sess, tgt, report)
}

// searcher builds the searcher of a fresh or resumed session.
func (o *Orchestrator) searcher(
	ctx context.Context, cfg *config.SessionConfig, sess *session.Context,
	tgt target, ckpts *checkpoints, report *Report,
) (search.Searcher, error) {
	opts := search.Options{
		Model:       tgt.model.Name,
		ProjectName: report.ProjectName,
		Bounds:      search.Bounds{MaxDepth: cfg.MaxDepth, MaxExecutions: cfg.MaxExecutions},
		OrderSeed:   sess.Random.Uint64(),
		Shuffle:     cfg.Shuffle,
		Traces:      tracefile.NewStore(tracefile.Dir(cfg.OutputFolder), report.ProjectName),
		Solver:      sess.Solver,
		Logger:      sess.Logger,
	}

	if cfg.WriteCheckpoint && cfg.CheckpointInterval > 0 {
		opts.SafePoint = o.periodicCheckpoint(ctx, sess, ckpts, report)
	}

	if tgt.state != nil {
		return search.Resume(tgt.state, tgt.entry, opts)
	}

	if cfg.UseReduction {
		return search.NewReduction(tgt.entry, opts), nil
	}

	return search.NewBounded(tgt.entry, opts), nil
}

// periodicCheckpoint returns a safe-point hook saving a checkpoint every
// CheckpointInterval executions.
func (o *Orchestrator) periodicCheckpoint(
	ctx context.Context, sess *session.Context, ckpts *checkpoints, report *Report,
) func(context.Context, search.Searcher) {
	interval := sess.Config.CheckpointInterval
	last := -1

	return func(_ context.Context, s search.Searcher) {
		executions := s.Stats().Executions
		if last < 0 {
			last = executions - executions%interval
		}

		if executions-last < interval {
			return
		}

		last = executions
		o.saveCheckpoint(ctx, sess, s, ckpts, report)
	}
}

// saveCheckpoint persists the searcher state. Failures are warnings.
func (o *Orchestrator) saveCheckpoint(
	ctx context.Context, sess *session.Context, s search.Searcher, ckpts *checkpoints, report *Report,
) {
	err := o.writeCheckpoint(ctx, s, ckpts, report)

	if o.metrics != nil {
		o.metrics.RecordCheckpoint(ctx, err == nil)
	}

	if err != nil {
		sess.Logger.WarnContext(ctx, "checkpoint not written", "error", err)
		report.warn(fmt.Sprintf("checkpoint not written: %v", err))
	}
}

func (o *Orchestrator) writeCheckpoint(ctx context.Context, s search.Searcher, ckpts *checkpoints, report *Report) error {
	state, err := s.Checkpoint()
	if err != nil {
		return err
	}

	mgr, key, path, err := ckpts.target(report.ProjectName)
	if err != nil {
		return err
	}

	err = mgr.Save(context.WithoutCancel(ctx), key, state)
	if err != nil {
		return err
	}

	report.CheckpointPath = path

	return nil
}

// openStats creates the statistics sink of a session.
func (o *Orchestrator) openStats(ctx context.Context, cfg *config.SessionConfig, report *Report) stats.Sink {
	report.StatsPath = stats.FilePath(cfg.OutputFolder, report.ProjectName)
	sinks := stats.Multi{stats.NewFileSink(report.StatsPath, o.logger)}

	if cfg.StatsTextfile != "" {
		prom, err := stats.NewPromSink(cfg.StatsTextfile, prometheus.NewRegistry())
		if err != nil {
			o.logger.WarnContext(ctx, "prometheus statistics disabled", "error", err)
			report.warn(fmt.Sprintf("prometheus statistics disabled: %v", err))
		} else {
			sinks = append(sinks, prom)
		}
	}

	return sinks
}

func (o *Orchestrator) logStats(sess *session.Context, tgt target, report *Report) {
	sink := sess.Stats
	st := report.Stats

	sink.Log(stats.KeyResult, report.Outcome.String())
	sink.Log(stats.KeyMode, string(report.Mode))
	sink.Log(stats.KeyModel, tgt.model.Name)
	sink.Log(stats.KeyEntryPoint, tgt.entry.Name)
	sink.Log(stats.KeyExecutions, stats.Int(st.Executions))
	sink.Log(stats.KeySteps, stats.Int(st.Steps))
	sink.Log(stats.KeyPruned, stats.Int(st.Pruned))
	sink.Log(stats.KeyMaxDepth, stats.Int(st.MaxDepth))
	sink.Log(stats.KeyFrontier, stats.Int(st.Frontier))
	sink.Log(stats.KeyTimeSearch, stats.Seconds(st.SearchTime.Seconds()))
	report.PeakMemory = sess.Monitors.PeakMemory()
	sink.Log(stats.KeyMemoryPeak, fmt.Sprintf("%.1f", units.InMiB(report.PeakMemory)))

	solverStats := sess.Solver.Stats()
	sink.Log(stats.KeySolverQueries, stats.Int(solverStats.Queries))
	sink.Log(stats.KeySolverHits, stats.Int(solverStats.CacheHits))

	if report.TracePath != "" {
		sink.Log(stats.KeyTracePath, report.TracePath)
	}

	if report.CheckpointPath != "" {
		sink.Log(stats.KeyCheckpointPath, report.CheckpointPath)
	}

	sink.Log(stats.KeyTimePost, stats.Seconds(sess.Monitors.StopInterval().Seconds()))
}

// teardown stops the monitors and flushes statistics.
func (o *Orchestrator) teardown(ctx context.Context, sess *session.Context, report *Report) {
	err := errors.Join(o.sessions.Teardown(sess), sess.Stats.Close())
	if err == nil {
		return
	}

	sess.Logger.WarnContext(ctx, "session teardown", "error", err)
	report.warn(fmt.Sprintf("session teardown: %v", err))
}
