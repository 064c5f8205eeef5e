// Package session owns the state shared by all components of one
// verification session and enforces that only one session is active at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sumatoshi-tech/boundcheck/pkg/config"
	"github.com/Sumatoshi-tech/boundcheck/pkg/monitor"
	"github.com/Sumatoshi-tech/boundcheck/pkg/observability"
	"github.com/Sumatoshi-tech/boundcheck/pkg/solver"
	"github.com/Sumatoshi-tech/boundcheck/pkg/stats"
)

// ErrSessionActive is returned by Initialize while another session is active.
var ErrSessionActive = errors.New("a session is already active")

// ErrNotActive is returned by Teardown for a session the manager does not own.
var ErrNotActive = errors.New("session is not active")

// seedMix decorrelates the two PCG seed words.
const seedMix = 0x9e3779b97f4a7c15

// Step identifies one ordered phase of Initialize.
type Step string

// Initialization phases in the order they run.
const (
	StepVerbosity   Step = "verbosity"
	StepSolverReset Step = "solver-reset"
	StepLimits      Step = "limits"
	StepMonitors    Step = "monitors"
)

// Context is the state of one active session.
type Context struct {
	ID       string
	Config   *config.SessionConfig
	Logger   *slog.Logger
	Solver   *solver.Context
	Monitors *monitor.Set
	Random   *rand.Rand
	Stats    stats.Sink
	Started  time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithLevel sets the level variable verbosity is applied to.
func WithLevel(level *slog.LevelVar) Option {
	return func(m *Manager) { m.level = level }
}

// WithMonitorOptions passes options to every monitor set the manager creates.
func WithMonitorOptions(opts ...monitor.Option) Option {
	return func(m *Manager) { m.monitorOpts = append(m.monitorOpts, opts...) }
}

// WithObserver registers a callback invoked after each initialization phase.
func WithObserver(fn func(Step)) Option {
	return func(m *Manager) { m.observer = fn }
}

// Manager creates and tears down sessions. The solver context is reused
// across sessions and reset at the start of each one.
type Manager struct {
	mu          sync.Mutex
	active      *Context
	logger      *slog.Logger
	level       *slog.LevelVar
	solver      *solver.Context
	monitorOpts []monitor.Option
	observer    func(Step)
}

// NewManager creates a manager with no active session.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		logger: slog.Default(),
		level:  &slog.LevelVar{},
		solver: solver.New(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Active returns the active session or nil.
func (m *Manager) Active() *Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.active
}

// Initialize starts a session: it applies verbosity, resets the solver,
// installs the resource limits, then starts the monitors and seeds the
// random source. The returned context is cancelled when a limit expires.
func (m *Manager) Initialize(
	parent context.Context, cfg *config.SessionConfig, sink stats.Sink,
) (*Context, context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrSessionActive, m.active.ID)
	}

	if sink == nil {
		sink = stats.Discard{}
	}

	id := uuid.NewString()
	logger := m.logger.With("session", id)

	m.level.Set(observability.LevelForVerbosity(cfg.Verbosity))
	m.notify(StepVerbosity)

	err := m.solver.Reset(cfg.SolverBackend)
	if err != nil {
		return nil, nil, fmt.Errorf("reset solver: %w", err)
	}

	m.notify(StepSolverReset)

	limits := monitor.Limits{Time: cfg.TimeLimit, Memory: cfg.MemLimitBytes()}
	opts := append([]monitor.Option{monitor.WithLogger(logger)}, m.monitorOpts...)
	monitors := monitor.New(limits, opts...)
	m.notify(StepLimits)

	ctx, err := monitors.Start(parent)
	if err != nil {
		return nil, nil, fmt.Errorf("start monitors: %w", err)
	}

	sess := &Context{
		ID:       id,
		Config:   cfg,
		Logger:   logger,
		Solver:   m.solver,
		Monitors: monitors,
		Random:   rand.New(rand.NewPCG(cfg.RandomSeed, cfg.RandomSeed^seedMix)), //nolint:gosec // deterministic search order, not security
		Stats:    sink,
		Started:  time.Now(),
	}
	m.notify(StepMonitors)

	m.active = sess

	logger.InfoContext(ctx, "session initialized",
		"solver", cfg.SolverBackend,
		"time_limit", limits.Time.String(),
		"mem_limit_bytes", limits.Memory,
		"seed", cfg.RandomSeed)

	return sess, ctx, nil
}

func (m *Manager) notify(step Step) {
	if m.observer != nil {
		m.observer(step)
	}
}

// Teardown stops the monitors of s and releases the active slot.
func (m *Manager) Teardown(s *Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s == nil || m.active != s {
		return ErrNotActive
	}

	s.Monitors.Stop()
	m.active = nil

	return nil
}
