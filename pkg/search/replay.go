package search

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Sumatoshi-tech/boundcheck/pkg/model"
	"github.com/Sumatoshi-tech/boundcheck/pkg/outcome"
	"github.com/Sumatoshi-tech/boundcheck/pkg/trace"
)

// ErrReplayDivergence means the model no longer follows or violates the recorded trace.
var ErrReplayDivergence = outcome.Sentinel(outcome.ReplayDivergence, "recorded trace did not reproduce its violation")

// DivergenceError explains where a replay left the recorded trace.
type DivergenceError struct {
	// Step is the index of the first action that could not be replayed, or
	// the trace length when every action replayed but no violation occurred.
	Step     int
	Reason   string
	Recorded []model.Action
	Replayed []model.Action
	Diff     string
}

// Error implements the error interface.
func (e *DivergenceError) Error() string {
	return fmt.Sprintf("%v at step %d: %s", ErrReplayDivergence, e.Step, e.Reason)
}

// Unwrap exposes the tagged sentinel.
func (e *DivergenceError) Unwrap() error {
	return ErrReplayDivergence
}

// ReplayScheduler deterministically re-executes a recorded counterexample.
type ReplayScheduler struct {
	trace  *trace.Trace
	entry  model.EntryPoint
	logger *slog.Logger
}

// NewReplay creates a replayer for tr against entry.
func NewReplay(tr *trace.Trace, entry model.EntryPoint, logger *slog.Logger) *ReplayScheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &ReplayScheduler{
		trace:  tr,
		entry:  entry,
		logger: logger.With("trace", tr.ID, "entry_point", entry.Name),
	}
}

// Replay returns ViolationFound when the recorded violation reproduces and
// ReplayDivergence otherwise.
func (r *ReplayScheduler) Replay(ctx context.Context) Result {
	start := time.Now()
	sys := r.entry.New()

	var replayed []model.Action

	result := func(kind outcome.Kind, err error, v *model.Violation) Result {
		res := Result{Kind: kind, Err: err, Violation: v, Stats: Stats{SearchTime: time.Since(start)}}
		res.Stats.Executions = 1
		res.Stats.Steps = len(replayed)
		res.Stats.MaxDepth = len(replayed)

		if kind == outcome.ViolationFound {
			res.Trace = r.trace
		}

		return res
	}

	v, err := checkState(sys)
	if err != nil {
		return result(outcome.KindOf(err), err, nil)
	}

	if v != nil {
		return r.matched(ctx, v, replayed, result)
	}

	for i, a := range r.trace.Actions {
		if ctx.Err() != nil {
			kind, cause := interrupted(ctx)

			return result(kind, cause, nil)
		}

		enabled := sys.Enabled()
		if !slices.Contains(enabled, a) {
			div := r.diverged(i, fmt.Sprintf("action %q not enabled, enabled %v", a, enabled), replayed)

			return result(outcome.ReplayDivergence, div, nil)
		}

		replayed = append(replayed, a)

		v, err = fire(sys, a)
		if err != nil {
			return result(outcome.KindOf(err), err, nil)
		}

		if v != nil {
			return r.matched(ctx, v, replayed, result)
		}
	}

	div := r.diverged(len(r.trace.Actions), "trace ended without a violation", replayed)

	return result(outcome.ReplayDivergence, div, nil)
}

func (r *ReplayScheduler) matched(
	ctx context.Context, v *model.Violation, replayed []model.Action,
	result func(outcome.Kind, error, *model.Violation) Result,
) Result {
	if v.Property != r.trace.Violation.Property {
		div := r.diverged(len(replayed),
			fmt.Sprintf("violated %q instead of %q", v.Property, r.trace.Violation.Property), replayed)

		return result(outcome.ReplayDivergence, div, nil)
	}

	if len(replayed) < len(r.trace.Actions) {
		r.logger.WarnContext(ctx, "violation reproduced before the end of the trace",
			"step", len(replayed), "trace_length", len(r.trace.Actions))
	}

	r.logger.InfoContext(ctx, "violation reproduced", "property", v.Property)

	return result(outcome.ViolationFound, nil, v)
}

func (r *ReplayScheduler) diverged(step int, reason string, replayed []model.Action) *DivergenceError {
	div := &DivergenceError{
		Step:     step,
		Reason:   reason,
		Recorded: slices.Clone(r.trace.Actions),
		Replayed: slices.Clone(replayed),
		Diff:     actionDiff(r.trace.Actions, replayed),
	}

	r.logger.Warn("replay diverged", "step", step, "reason", reason)

	return div
}

// actionDiff renders a line diff of two action sequences with "-" marking
// recorded-only and "+" replayed-only actions.
func actionDiff(recorded, replayed []model.Action) string {
	dmp := diffmatchpatch.New()

	src, dst, lines := dmp.DiffLinesToRunes(joinLines(recorded), joinLines(replayed))
	diffs := dmp.DiffCharsToLines(dmp.DiffMainRunes(src, dst, false), lines)

	var b strings.Builder

	for _, d := range diffs {
		prefix := "  "

		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffEqual:
		}

		for line := range strings.SplitSeq(strings.TrimSuffix(d.Text, "\n"), "\n") {
			b.WriteString(prefix)
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	return b.String()
}

func joinLines(actions []model.Action) string {
	var b strings.Builder
	for _, a := range actions {
		b.WriteString(string(a))
		b.WriteByte('\n')
	}

	return b.String()
}
