// Package monitor implements the session time and memory watchdogs.
//
// Both watchdogs are soft: on expiry they cancel the session context with a
// tagged cause and leave it to the search to unwind at its next step.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	runtimemetrics "runtime/metrics"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/boundcheck/pkg/outcome"
)

// Cancellation causes installed on the session context.
var (
	ErrTimeLimitExceeded = outcome.Sentinel(outcome.TimedOut, "time limit exceeded")
	ErrMemLimitExceeded  = outcome.Sentinel(outcome.MemoryExhausted, "memory limit exceeded")
)

// ErrAlreadyRunning is returned by Start on a running Set.
var ErrAlreadyRunning = errors.New("monitors already running")

// DefaultPollInterval is how often the memory watchdog samples usage.
const DefaultPollInterval = 50 * time.Millisecond

const (
	metricTotal    = "/memory/classes/total:bytes"
	metricReleased = "/memory/classes/heap/released:bytes"
)

// Limits are the session resource limits. Zero means unlimited.
type Limits struct {
	Time   time.Duration
	Memory uint64
}

// Probe returns the current memory usage in bytes.
type Probe func() uint64

// RuntimeProbe reports memory mapped by the Go runtime minus heap returned to the OS.
func RuntimeProbe() uint64 {
	samples := []runtimemetrics.Sample{
		{Name: metricTotal},
		{Name: metricReleased},
	}

	runtimemetrics.Read(samples)

	var total, released uint64

	if samples[0].Value.Kind() == runtimemetrics.KindUint64 {
		total = samples[0].Value.Uint64()
	}

	if samples[1].Value.Kind() == runtimemetrics.KindUint64 {
		released = samples[1].Value.Uint64()
	}

	if released > total {
		return 0
	}

	return total - released
}

// Option configures a Set.
type Option func(*Set)

// WithProbe replaces the memory probe.
func WithProbe(p Probe) Option {
	return func(s *Set) { s.probe = p }
}

// WithPollInterval sets the memory sampling period.
func WithPollInterval(d time.Duration) Option {
	return func(s *Set) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithLogger sets the logger used to report limit expiry.
func WithLogger(l *slog.Logger) Option {
	return func(s *Set) { s.logger = l }
}

// Set owns the watchdogs of one session.
type Set struct {
	limits       Limits
	probe        Probe
	pollInterval time.Duration
	logger       *slog.Logger

	mu            sync.Mutex
	running       bool
	cancel        context.CancelCauseFunc
	stopPoll      context.CancelFunc
	timer         *time.Timer
	group         *errgroup.Group
	started       time.Time
	intervalStart time.Time

	peak atomic.Uint64
}

// New creates a stopped Set.
func New(limits Limits, opts ...Option) *Set {
	s := &Set{
		limits:       limits,
		probe:        RuntimeProbe,
		pollInterval: DefaultPollInterval,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Limits returns the installed limits.
func (s *Set) Limits() Limits {
	return s.limits
}

// Start arms the watchdogs and returns a context that is cancelled with
// ErrTimeLimitExceeded or ErrMemLimitExceeded, whichever fires first.
func (s *Set) Start(parent context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil, ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancelCause(parent)
	s.cancel = cancel
	s.started = time.Now()
	s.intervalStart = s.started
	s.running = true
	s.peak.Store(0)

	if s.limits.Time > 0 {
		s.timer = time.AfterFunc(s.limits.Time, func() {
			s.logger.WarnContext(ctx, "time limit reached", "limit", s.limits.Time.String())
			cancel(ErrTimeLimitExceeded)
		})
	}

	pollCtx, stopPoll := context.WithCancel(ctx)
	s.stopPoll = stopPoll
	s.group = &errgroup.Group{}
	s.group.Go(func() error {
		s.poll(pollCtx, cancel)

		return nil
	})

	return ctx, nil
}

func (s *Set) poll(ctx context.Context, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if s.sample(ctx, cancel) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sample records usage and reports whether the limit was exceeded.
func (s *Set) sample(ctx context.Context, cancel context.CancelCauseFunc) bool {
	used := s.probe()

	for {
		peak := s.peak.Load()
		if used <= peak || s.peak.CompareAndSwap(peak, used) {
			break
		}
	}

	if s.limits.Memory == 0 || used <= s.limits.Memory {
		return false
	}

	s.logger.WarnContext(ctx, "memory limit reached",
		"used", humanize.IBytes(used), "limit", humanize.IBytes(s.limits.Memory))
	cancel(ErrMemLimitExceeded)

	return true
}

// Stop disarms the watchdogs and waits for the memory poller to exit.
// It is safe to call on a stopped Set.
func (s *Set) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()

		return
	}

	s.running = false

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	s.stopPoll()
	group := s.group
	cancel := s.cancel
	s.mu.Unlock()

	_ = group.Wait()

	cancel(context.Canceled)
}

// Running reports whether the watchdogs are armed.
func (s *Set) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// Elapsed returns the time since Start.
func (s *Set) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started.IsZero() {
		return 0
	}

	return time.Since(s.started)
}

// StartInterval begins a new measured interval.
func (s *Set) StartInterval() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.intervalStart = time.Now()
}

// StopInterval returns the duration of the current interval and starts a new one.
func (s *Set) StopInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.intervalStart.IsZero() {
		return 0
	}

	now := time.Now()
	d := now.Sub(s.intervalStart)
	s.intervalStart = now

	return d
}

// PeakMemory returns the highest usage sampled since Start.
func (s *Set) PeakMemory() uint64 {
	return s.peak.Load()
}
