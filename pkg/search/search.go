// Package search implements the bounded searchers that explore a model's
// executions and the replayer that re-runs a recorded counterexample.
//
// Searchers are stateless: every execution starts from a freshly constructed
// System and re-applies its prefix, so the whole search state is the DFS
// frontier plus counters and fits into a checkpoint.
package search

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Sumatoshi-tech/boundcheck/pkg/checkpoint"
	"github.com/Sumatoshi-tech/boundcheck/pkg/model"
	"github.com/Sumatoshi-tech/boundcheck/pkg/outcome"
	"github.com/Sumatoshi-tech/boundcheck/pkg/solver"
	"github.com/Sumatoshi-tech/boundcheck/pkg/trace"
)

// Sentinel errors.
var (
	ErrUnknownVariant     = outcome.Sentinel(outcome.ConfigurationError, "checkpoint variant cannot be resumed")
	ErrEntryPointMismatch = outcome.Sentinel(outcome.ConfigurationError, "checkpoint was taken for another entry point")
	ErrNondeterministic   = outcome.Sentinel(outcome.InternalError, "model is not deterministic")
	ErrModelStep          = errors.New("model step failed")
)

// DefaultProgressInterval is the minimum time between progress log lines.
const DefaultProgressInterval = 5 * time.Second

// Bounds limit the search. MaxExecutions of zero means unlimited.
type Bounds struct {
	MaxDepth      int
	MaxExecutions int
}

// Options configure a searcher.
type Options struct {
	// Model and ProjectName are recorded in traces and checkpoints.
	Model       string
	ProjectName string

	Bounds Bounds

	// OrderSeed seeds the per-prefix exploration order when Shuffle is set.
	OrderSeed uint64
	Shuffle   bool

	// Traces receives every counterexample found. Nil disables persistence.
	Traces trace.Writer

	// Solver caches dependence queries of the reduction searcher.
	Solver *solver.Context

	// SafePoint is called after every completed execution, on the search
	// goroutine. Checkpoint may be called from it.
	SafePoint func(ctx context.Context, s Searcher)

	Logger           *slog.Logger
	ProgressInterval time.Duration
}

// Stats describe the work done by a searcher.
type Stats struct {
	checkpoint.Counters

	Frontier   int
	SearchTime time.Duration
}

// Result is the outcome of Run or Replay.
type Result struct {
	Kind outcome.Kind

	// Err is the cause for every kind except Completed and ViolationFound.
	Err error

	// Violation, Trace and TracePath are set for ViolationFound.
	Violation *model.Violation
	Trace     *trace.Trace
	TracePath string

	Stats Stats
}

// Searcher is implemented by the bounded and the reduction searcher.
type Searcher interface {
	// Run explores until the bounds are exhausted, a violation is found or
	// ctx is cancelled. It may be called again to continue after a violation.
	Run(ctx context.Context) Result

	// Checkpoint captures the state needed to resume. It must not be called
	// concurrently with Run except from the SafePoint hook.
	Checkpoint() (*checkpoint.State, error)

	Variant() checkpoint.Variant
	Stats() Stats
}

// Replayer is implemented by the replay scheduler only.
type Replayer interface {
	Replay(ctx context.Context) Result
}

// interrupted classifies a cancelled context.
func interrupted(ctx context.Context) (outcome.Kind, error) {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = ctx.Err()
	}

	return outcome.KindOf(cause), cause
}
