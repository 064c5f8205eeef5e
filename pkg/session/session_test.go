package session_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/boundcheck/pkg/config"
	"github.com/Sumatoshi-tech/boundcheck/pkg/monitor"
	"github.com/Sumatoshi-tech/boundcheck/pkg/session"
	"github.com/Sumatoshi-tech/boundcheck/pkg/solver"
)

func validConfig(t *testing.T) *config.SessionConfig {
	t.Helper()

	cfg := config.Default()
	cfg.RandomSeed = 11
	require.NoError(t, cfg.Validate())

	return cfg
}

func TestInitializeOrder(t *testing.T) {
	t.Parallel()

	var steps []session.Step

	mgr := session.NewManager(session.WithObserver(func(s session.Step) { steps = append(steps, s) }))

	sess, _, err := mgr.Initialize(context.Background(), validConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Teardown(sess) })

	assert.Equal(t, []session.Step{
		session.StepVerbosity,
		session.StepSolverReset,
		session.StepLimits,
		session.StepMonitors,
	}, steps)
}

func TestInitializeAppliesConfig(t *testing.T) {
	t.Parallel()

	level := &slog.LevelVar{}
	mgr := session.NewManager(session.WithLevel(level),
		session.WithMonitorOptions(monitor.WithProbe(func() uint64 { return 1 })))

	cfg := validConfig(t)
	cfg.Verbosity = 2
	cfg.SolverBackend = "sat"
	cfg.TimeLimit = time.Hour

	sess, ctx, err := mgr.Initialize(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, level.Level())
	assert.Equal(t, solver.BackendSAT, sess.Solver.Backend())
	assert.Equal(t, time.Hour, sess.Monitors.Limits().Time)
	assert.True(t, sess.Monitors.Running())
	assert.NotEmpty(t, sess.ID)
	assert.Same(t, sess, mgr.Active())
	require.NoError(t, ctx.Err())

	require.NoError(t, mgr.Teardown(sess))
	assert.False(t, sess.Monitors.Running())
	assert.Nil(t, mgr.Active())
}

func TestSecondInitializeRejected(t *testing.T) {
	t.Parallel()

	mgr := session.NewManager()

	first, _, err := mgr.Initialize(context.Background(), validConfig(t), nil)
	require.NoError(t, err)

	_, _, err = mgr.Initialize(context.Background(), validConfig(t), nil)
	require.ErrorIs(t, err, session.ErrSessionActive)
	assert.Same(t, first, mgr.Active())

	require.NoError(t, mgr.Teardown(first))
	require.ErrorIs(t, mgr.Teardown(first), session.ErrNotActive)

	second, _, err := mgr.Initialize(context.Background(), validConfig(t), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Solver.Generation(), "solver must be reset before reuse")
	require.NoError(t, mgr.Teardown(second))
}

func TestInitializeFailureLeavesNoSession(t *testing.T) {
	t.Parallel()

	var steps []session.Step

	mgr := session.NewManager(session.WithObserver(func(s session.Step) { steps = append(steps, s) }))

	cfg := validConfig(t)
	cfg.SolverBackend = "z3"

	_, _, err := mgr.Initialize(context.Background(), cfg, nil)
	require.ErrorIs(t, err, solver.ErrUnknownBackend)
	assert.Nil(t, mgr.Active())
	assert.Equal(t, []session.Step{session.StepVerbosity}, steps)
}

func TestRandomIsSeeded(t *testing.T) {
	t.Parallel()

	draw := func() uint64 {
		mgr := session.NewManager()

		sess, _, err := mgr.Initialize(context.Background(), validConfig(t), nil)
		require.NoError(t, err)

		defer func() { require.NoError(t, mgr.Teardown(sess)) }()

		return sess.Random.Uint64()
	}

	assert.Equal(t, draw(), draw())
}
