package orchestrator_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/boundcheck/internal/models"
	"github.com/Sumatoshi-tech/boundcheck/pkg/checkpoint"
	"github.com/Sumatoshi-tech/boundcheck/pkg/config"
	"github.com/Sumatoshi-tech/boundcheck/pkg/model"
	"github.com/Sumatoshi-tech/boundcheck/pkg/observability"
	"github.com/Sumatoshi-tech/boundcheck/pkg/orchestrator"
	"github.com/Sumatoshi-tech/boundcheck/pkg/outcome"
	"github.com/Sumatoshi-tech/boundcheck/pkg/registry"
	"github.com/Sumatoshi-tech/boundcheck/pkg/search"
	"github.com/Sumatoshi-tech/boundcheck/pkg/session"
	"github.com/Sumatoshi-tech/boundcheck/pkg/stats"
)

type harness struct {
	orch     *orchestrator.Orchestrator
	sessions *session.Manager

	mu    sync.Mutex
	steps []session.Step
}

func newHarness(t *testing.T, reg *registry.Registry, opts ...orchestrator.Option) *harness {
	t.Helper()

	h := &harness{}
	h.sessions = session.NewManager(session.WithObserver(func(s session.Step) {
		h.mu.Lock()
		defer h.mu.Unlock()

		h.steps = append(h.steps, s)
	}))
	h.orch = orchestrator.New(reg, h.sessions, opts...)

	return h
}

func (h *harness) setupSteps() []session.Step {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]session.Step(nil), h.steps...)
}

func registryWith(t *testing.T, ms ...model.Model) *registry.Registry {
	t.Helper()

	reg := registry.New()
	for _, m := range ms {
		require.NoError(t, reg.Register(m))
	}

	return reg
}

func sessionConfig(t *testing.T, depth int) *config.SessionConfig {
	t.Helper()

	cfg := config.Default()
	cfg.OutputFolder = filepath.Join(t.TempDir(), "out")
	cfg.MaxDepth = depth

	return cfg
}

func TestZeroModelsBuildsNothing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, registry.New())
	cfg := sessionConfig(t, 10)

	report := h.orch.Run(context.Background(), cfg)
	assert.Equal(t, outcome.ConfigurationError, report.Outcome)
	assert.Equal(t, outcome.ExitError, report.ExitCode())
	require.ErrorIs(t, report.Err, registry.ErrNoModels)
	assert.Empty(t, h.setupSteps())
	assert.Nil(t, h.sessions.Active())
	assert.NoDirExists(t, cfg.OutputFolder)
}

func TestResumeAndReplayRejectedBeforeSetup(t *testing.T) {
	t.Parallel()

	h := newHarness(t, registryWith(t, models.Mailbox()))
	cfg := sessionConfig(t, 10)
	cfg.ResumeFromCheckpoint = "a.ckpt"
	cfg.ReplayFromTraceFile = "b.trace.json"

	report := h.orch.Run(context.Background(), cfg)
	assert.Equal(t, outcome.ConfigurationError, report.Outcome)
	require.ErrorIs(t, report.Err, config.ErrConflictingModes)
	assert.Empty(t, h.setupSteps())
	assert.NoDirExists(t, cfg.OutputFolder)
}

func TestAmbiguousDefaultExitsBeforeSetup(t *testing.T) {
	t.Parallel()

	h := newHarness(t, registryWith(t, models.LostUpdate()))
	cfg := sessionConfig(t, 10)

	report := h.orch.Run(context.Background(), cfg)
	assert.Equal(t, outcome.EntryPointAmbiguous, report.Outcome)
	assert.Equal(t, outcome.ExitAmbiguousTarget, report.ExitCode())
	require.ErrorIs(t, report.Err, registry.ErrAmbiguousDefault)
	assert.Contains(t, report.Err.Error(), "implementation.RacyIncrement.execute")
	assert.Contains(t, report.Err.Error(), "implementation.LockedIncrement.execute")
	assert.Empty(t, h.setupSteps())
	assert.NoDirExists(t, cfg.OutputFolder)
}

func TestUnknownEntryPointIsConfigurationError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, registryWith(t, models.LostUpdate()))
	cfg := sessionConfig(t, 10)
	cfg.EntryPoint = "Missing"

	report := h.orch.Run(context.Background(), cfg)
	assert.Equal(t, outcome.ConfigurationError, report.Outcome)
	require.ErrorIs(t, report.Err, registry.ErrEntryPointNotFound)
	assert.Empty(t, h.setupSteps())
}

func TestDepthThreeViolation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, registryWith(t, models.Mailbox()))

	cfg := sessionConfig(t, 10)
	report := h.orch.Run(context.Background(), cfg)
	require.Equal(t, outcome.ViolationFound, report.Outcome, report.Err)
	assert.Equal(t, outcome.ExitViolation, report.ExitCode())
	assert.Equal(t, "Mailbox", report.ProjectName)
	assert.Equal(t, "examples.Mailbox", report.Model)
	assert.FileExists(t, report.TracePath)
	assert.Len(t, report.Trace.Actions, 3)
	assert.Equal(t, []session.Step{
		session.StepVerbosity, session.StepSolverReset, session.StepLimits, session.StepMonitors,
	}, h.setupSteps())
	assert.Nil(t, h.sessions.Active())

	data, err := os.ReadFile(report.StatsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), stats.KeyResult+":\tviolation-found\n")
	assert.Contains(t, string(data), stats.KeyTimePost+":\t")

	cfg = sessionConfig(t, 2)
	report = h.orch.Run(context.Background(), cfg)
	require.Equal(t, outcome.Completed, report.Outcome, report.Err)
	assert.Equal(t, outcome.ExitCompleted, report.ExitCode())
	assert.Empty(t, report.TracePath)
	assert.Equal(t, 2, report.Stats.MaxDepth)
}

func TestSharedConfigRunsTwice(t *testing.T) {
	t.Parallel()

	h := newHarness(t, registryWith(t, models.Mailbox()))
	cfg := sessionConfig(t, 2)

	for range 2 {
		report := h.orch.Run(context.Background(), cfg)
		require.Equal(t, outcome.Completed, report.Outcome, report.Err)
	}

	assert.Empty(t, cfg.ProjectName)
}

func TestCheckpointWriteAndResume(t *testing.T) {
	t.Parallel()

	for _, backend := range []string{config.BackendFile, config.BackendBadger} {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, registryWith(t, models.Mailbox()))

			cfg := sessionConfig(t, 3)
			cfg.WriteCheckpoint = true
			cfg.CheckpointBackend = backend

			first := h.orch.Run(context.Background(), cfg)
			require.Equal(t, outcome.ViolationFound, first.Outcome, first.Err)
			require.NotEmpty(t, first.CheckpointPath)
			assert.Empty(t, first.Warnings)

			resume := sessionConfig(t, 3)
			resume.OutputFolder = cfg.OutputFolder
			resume.CheckpointBackend = backend
			resume.ResumeFromCheckpoint = first.CheckpointPath

			if backend == config.BackendBadger {
				resume.ResumeFromCheckpoint = checkpoint.Key("Mailbox")
			}

			second := h.orch.Run(context.Background(), resume)
			require.Equal(t, outcome.Completed, second.Outcome, second.Err)
			assert.Equal(t, config.ModeResume, second.Mode)
			assert.Greater(t, second.Stats.Executions, first.Stats.Executions)
			assert.Empty(t, second.TracePath)
		})
	}
}

func TestPeriodicCheckpoints(t *testing.T) {
	t.Parallel()

	h := newHarness(t, registryWith(t, models.Mailbox()))

	cfg := sessionConfig(t, 2)
	cfg.WriteCheckpoint = true
	cfg.CheckpointInterval = 1

	report := h.orch.Run(context.Background(), cfg)
	require.Equal(t, outcome.Completed, report.Outcome, report.Err)
	require.FileExists(t, report.CheckpointPath)

	data, err := os.ReadFile(report.CheckpointPath)
	require.NoError(t, err)

	state, err := checkpoint.Decode(data)
	require.NoError(t, err)
	assert.True(t, state.Done())
	assert.Equal(t, report.Stats.Executions, state.Counters.Executions)
}

func TestResumeUnknownVariantRecordsStatistics(t *testing.T) {
	t.Parallel()

	h := newHarness(t, registryWith(t, models.Mailbox()))

	data, err := checkpoint.Encode(&checkpoint.State{
		Variant:     "random",
		Model:       "examples.Mailbox",
		EntryPoint:  "implementation.UncheckedSend.execute",
		ProjectName: "Mailbox",
		MaxDepth:    3,
		Frontier:    []checkpoint.Node{{}},
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "Mailbox.ckpt")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg := sessionConfig(t, 3)
	cfg.ResumeFromCheckpoint = path

	report := h.orch.Run(context.Background(), cfg)
	assert.Equal(t, outcome.ConfigurationError, report.Outcome)
	require.ErrorIs(t, report.Err, search.ErrUnknownVariant)
	assert.Nil(t, h.sessions.Active())

	written, err := os.ReadFile(report.StatsPath)
	require.NoError(t, err)
	assert.Contains(t, string(written), "result:\tconfiguration-error\n")
	assert.Contains(t, string(written), "time-post-seconds:\t")
}

func TestResumeMissingCheckpoint(t *testing.T) {
	t.Parallel()

	h := newHarness(t, registryWith(t, models.Mailbox()))
	cfg := sessionConfig(t, 3)
	cfg.ResumeFromCheckpoint = filepath.Join(t.TempDir(), "missing.ckpt")

	report := h.orch.Run(context.Background(), cfg)
	assert.Equal(t, outcome.ConfigurationError, report.Outcome)
	require.ErrorIs(t, report.Err, checkpoint.ErrNotFound)
	assert.Empty(t, h.setupSteps())
}

func TestCheckpointFailureIsWarning(t *testing.T) {
	t.Parallel()

	h := newHarness(t, registryWith(t, models.Mailbox()))

	cfg := sessionConfig(t, 10)
	cfg.WriteCheckpoint = true
	require.NoError(t, os.MkdirAll(cfg.OutputFolder, 0o750))
	require.NoError(t, os.WriteFile(checkpoint.Dir(cfg.OutputFolder), []byte("not a directory"), 0o600))

	report := h.orch.Run(context.Background(), cfg)
	assert.Equal(t, outcome.ViolationFound, report.Outcome)
	assert.NoError(t, report.Err)
	assert.Empty(t, report.CheckpointPath)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "checkpoint not written")
}

// safeMailbox has the mailbox model's name and entry point but never
// overflows.
type safeMailbox struct{ sent int }

func (s *safeMailbox) Enabled() []model.Action {
	if s.sent < 4 {
		return []model.Action{"sender.send"}
	}

	return nil
}

func (s *safeMailbox) Step(model.Action) error {
	s.sent++

	return nil
}

func (s *safeMailbox) Check() error { return nil }

func fixedMailbox() model.Model {
	return model.Model{
		Name: "examples.Mailbox",
		EntryPoints: []model.EntryPoint{{
			Name: "implementation.UncheckedSend.execute",
			New:  func() model.System { return &safeMailbox{} },
		}},
	}
}

func TestReplay(t *testing.T) {
	t.Parallel()

	h := newHarness(t, registryWith(t, models.Mailbox()))

	cfg := sessionConfig(t, 10)
	found := h.orch.Run(context.Background(), cfg)
	require.Equal(t, outcome.ViolationFound, found.Outcome, found.Err)

	replay := sessionConfig(t, 10)
	replay.ReplayFromTraceFile = found.TracePath

	report := h.orch.Run(context.Background(), replay)
	require.Equal(t, outcome.ViolationFound, report.Outcome, report.Err)
	assert.Equal(t, config.ModeReplay, report.Mode)
	assert.Equal(t, found.Trace.Actions, report.Trace.Actions)
	assert.Equal(t, found.TracePath, report.TracePath)

	fixed := newHarness(t, registryWith(t, fixedMailbox()))
	report = fixed.orch.Run(context.Background(), replay)
	assert.Equal(t, outcome.ReplayDivergence, report.Outcome)
	assert.Equal(t, outcome.ExitError, report.ExitCode())
	assert.Error(t, report.Err)
}

func TestReplayUnknownModel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, registryWith(t, models.Mailbox()))
	found := h.orch.Run(context.Background(), sessionConfig(t, 10))
	require.Equal(t, outcome.ViolationFound, found.Outcome)

	other := newHarness(t, registryWith(t, models.LostUpdate()))
	replay := sessionConfig(t, 10)
	replay.ReplayFromTraceFile = found.TracePath

	report := other.orch.Run(context.Background(), replay)
	assert.Equal(t, outcome.ConfigurationError, report.Outcome)
	require.ErrorIs(t, report.Err, registry.ErrUnknownModel)
}

func TestSeveralModelsWarns(t *testing.T) {
	t.Parallel()

	h := newHarness(t, registryWith(t, models.Mailbox(), models.LostUpdate()))
	cfg := sessionConfig(t, 10)
	cfg.EntryPoint = "LockedIncrement"

	report := h.orch.Run(context.Background(), cfg)
	require.Equal(t, outcome.Completed, report.Outcome, report.Err)
	assert.Equal(t, "examples.LostUpdate", report.Model)
	require.Len(t, report.Warnings, 1)

	cfg = sessionConfig(t, 10)
	cfg.Model = "examples.Mailbox"

	report = h.orch.Run(context.Background(), cfg)
	require.Equal(t, outcome.ViolationFound, report.Outcome, report.Err)
	assert.Empty(t, report.Warnings)
}

func TestInterruptedSessionIsClassified(t *testing.T) {
	t.Parallel()

	h := newHarness(t, registryWith(t, models.Mailbox()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := h.orch.Run(ctx, sessionConfig(t, 10))
	assert.Equal(t, outcome.InternalError, report.Outcome)
	assert.Nil(t, h.sessions.Active())
}

func TestSpansAndMetrics(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	t.Cleanup(func() {
		require.NoError(t, tp.Shutdown(context.Background()))
		require.NoError(t, mp.Shutdown(context.Background()))
	})

	metrics, err := observability.NewSessionMetrics(mp.Meter("test"))
	require.NoError(t, err)

	h := newHarness(t, registryWith(t, models.Mailbox()),
		orchestrator.WithTracer(tp.Tracer("test")),
		orchestrator.WithMetrics(metrics))

	report := h.orch.Run(context.Background(), sessionConfig(t, 10))
	require.Equal(t, outcome.ViolationFound, report.Outcome)

	var names []string
	for _, span := range exporter.GetSpans() {
		names = append(names, span.Name)
	}

	assert.ElementsMatch(t, []string{"boundcheck.session", "boundcheck.search"}, names)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var metricNames []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			metricNames = append(metricNames, m.Name)
		}
	}

	assert.Contains(t, metricNames, "boundcheck.sessions.total")
	assert.Contains(t, metricNames, "boundcheck.search.executions.total")
}
