package search

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/time/rate"

	"github.com/Sumatoshi-tech/boundcheck/pkg/checkpoint"
	"github.com/Sumatoshi-tech/boundcheck/pkg/model"
	"github.com/Sumatoshi-tech/boundcheck/pkg/outcome"
	"github.com/Sumatoshi-tech/boundcheck/pkg/trace"
)

// dfs is the depth-first searcher shared by both variants. With reduce set it
// maintains sleep sets and skips interleavings of independent actions.
type dfs struct {
	variant checkpoint.Variant
	reduce  bool
	entry   model.EntryPoint
	opts    Options
	order   orderer
	dep     dependence
	logger  *slog.Logger

	frontier []checkpoint.Node
	counters checkpoint.Counters
	reported []string

	searchTime time.Duration
	runStart   time.Time
	progress   *rate.Sometimes
}

// NewBounded creates a searcher exploring every interleaving up to the bounds.
func NewBounded(entry model.EntryPoint, opts Options) Searcher {
	return newDFS(checkpoint.VariantBounded, entry, opts)
}

// NewReduction creates a searcher that prunes interleavings of independent
// actions with sleep sets. It reaches every violation NewBounded reaches
// under the same bounds.
func NewReduction(entry model.EntryPoint, opts Options) Searcher {
	return newDFS(checkpoint.VariantReduction, entry, opts)
}

// Resume rebuilds the searcher recorded in state. Bounds and ordering come
// from the checkpoint; opts supplies collaborators.
func Resume(state *checkpoint.State, entry model.EntryPoint, opts Options) (Searcher, error) {
	if state == nil {
		return nil, fmt.Errorf("%w: nil state", ErrUnknownVariant)
	}

	if state.Variant != checkpoint.VariantBounded && state.Variant != checkpoint.VariantReduction {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, state.Variant)
	}

	if state.EntryPoint != entry.Name {
		return nil, fmt.Errorf("%w: %q, got %q", ErrEntryPointMismatch, state.EntryPoint, entry.Name)
	}

	opts.Model = state.Model
	opts.ProjectName = state.ProjectName
	opts.Bounds = Bounds{MaxDepth: state.MaxDepth, MaxExecutions: state.MaxExecutions}
	opts.OrderSeed = state.OrderSeed
	opts.Shuffle = state.Shuffle

	s := newDFS(state.Variant, entry, opts)
	s.frontier = cloneFrontier(state.Frontier)
	s.counters = state.Counters
	s.reported = slices.Clone(state.Reported)
	s.searchTime = state.SearchTime

	return s, nil
}

func newDFS(variant checkpoint.Variant, entry model.EntryPoint, opts Options) *dfs {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := opts.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}

	return &dfs{
		variant:  variant,
		reduce:   variant == checkpoint.VariantReduction,
		entry:    entry,
		opts:     opts,
		order:    orderer{seed: opts.OrderSeed, shuffle: opts.Shuffle},
		dep:      dependence{solver: opts.Solver},
		logger:   logger.With("variant", string(variant), "entry_point", entry.Name),
		frontier: []checkpoint.Node{{}},
		progress: &rate.Sometimes{Interval: interval},
	}
}

func (s *dfs) Variant() checkpoint.Variant {
	return s.variant
}

func (s *dfs) Stats() Stats {
	elapsed := s.searchTime
	if !s.runStart.IsZero() {
		elapsed += time.Since(s.runStart)
	}

	return Stats{Counters: s.counters, Frontier: len(s.frontier), SearchTime: elapsed}
}

func (s *dfs) Checkpoint() (*checkpoint.State, error) {
	stats := s.Stats()

	return &checkpoint.State{
		Variant:       s.variant,
		Model:         s.opts.Model,
		EntryPoint:    s.entry.Name,
		ProjectName:   s.opts.ProjectName,
		MaxDepth:      s.opts.Bounds.MaxDepth,
		MaxExecutions: s.opts.Bounds.MaxExecutions,
		OrderSeed:     s.opts.OrderSeed,
		Shuffle:       s.opts.Shuffle,
		Frontier:      cloneFrontier(s.frontier),
		Counters:      s.counters,
		Reported:      slices.Clone(s.reported),
		SearchTime:    stats.SearchTime,
	}, nil
}

func (s *dfs) Run(ctx context.Context) Result {
	s.runStart = time.Now()

	defer func() {
		s.searchTime += time.Since(s.runStart)
		s.runStart = time.Time{}
	}()

	for len(s.frontier) > 0 {
		if ctx.Err() != nil {
			return s.stop(ctx)
		}

		if s.opts.Bounds.MaxExecutions > 0 && s.counters.Executions >= s.opts.Bounds.MaxExecutions {
			s.logger.InfoContext(ctx, "execution bound reached", "executions", s.counters.Executions)

			break
		}

		node := s.frontier[len(s.frontier)-1]
		s.frontier = s.frontier[:len(s.frontier)-1]

		ex := s.execute(ctx, node)

		if ex.cancelled {
			s.frontier = append(s.frontier, node)

			return s.stop(ctx)
		}

		if ex.err != nil {
			s.frontier = append(s.frontier, node)

			return Result{Kind: outcome.KindOf(ex.err), Err: ex.err, Stats: s.Stats()}
		}

		s.push(ex.siblings)
		s.counters.Executions++
		s.counters.Steps += ex.steps
		s.counters.MaxDepth = max(s.counters.MaxDepth, len(ex.path))

		if ex.blocked {
			s.counters.Pruned++
		}

		if ex.violation != nil {
			return s.report(ctx, ex)
		}

		s.progress.Do(func() {
			s.logger.InfoContext(ctx, "search progress",
				"executions", s.counters.Executions,
				"frontier", len(s.frontier),
				"max_depth", s.counters.MaxDepth)
		})

		if s.opts.SafePoint != nil {
			s.opts.SafePoint(ctx, s)
		}
	}

	return Result{Kind: outcome.Completed, Stats: s.Stats()}
}

func (s *dfs) stop(ctx context.Context) Result {
	kind, cause := interrupted(ctx)
	s.logger.WarnContext(ctx, "search interrupted", "cause", cause, "executions", s.counters.Executions)

	return Result{Kind: kind, Err: cause, Stats: s.Stats()}
}

// push adds siblings in order; the last one is explored next.
func (s *dfs) push(siblings []checkpoint.Node) {
	s.frontier = append(s.frontier, siblings...)
}

func (s *dfs) report(ctx context.Context, ex execution) Result {
	s.counters.Violations++

	tr := trace.New(s.opts.Model, s.entry.Name, ex.path, ex.violation)
	s.reported = append(s.reported, tr.ID)

	res := Result{Kind: outcome.ViolationFound, Violation: ex.violation, Trace: tr}

	if s.opts.Traces != nil {
		path, err := s.opts.Traces.Write(tr)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to persist counterexample", "error", err)
		} else {
			res.TracePath = path
		}
	}

	s.logger.InfoContext(ctx, "violation found",
		"property", ex.violation.Property,
		"depth", len(ex.path),
		"trace", res.TracePath)

	res.Stats = s.Stats()

	return res
}

// execution is the result of running one prefix to completion.
type execution struct {
	path      []model.Action
	steps     int
	violation *model.Violation
	blocked   bool
	cancelled bool
	err       error

	// siblings are ordered shallow to deep, each depth's first alternative last.
	siblings []checkpoint.Node
}

// execute replays node.Prefix on a fresh system and extends it depth-first
// up to the depth bound, collecting the unexplored alternatives.
func (s *dfs) execute(ctx context.Context, node checkpoint.Node) execution {
	var ex execution

	sys := s.entry.New()

	if len(node.Prefix) == 0 {
		if v, err := checkState(sys); err != nil || v != nil {
			ex.violation, ex.err = v, err

			return ex
		}
	}

	for i, a := range node.Prefix {
		if ctx.Err() != nil {
			ex.cancelled = true

			return ex
		}

		if !slices.Contains(sys.Enabled(), a) {
			ex.err = fmt.Errorf("%w: action %q not enabled at depth %d", ErrNondeterministic, a, i)

			return ex
		}

		ex.path = append(ex.path, a)
		ex.steps++

		v, err := fire(sys, a)
		if err != nil || v != nil {
			ex.violation, ex.err = v, err

			return ex
		}
	}

	sleep := slices.Clone(node.Sleep)

	for len(ex.path) < s.opts.Bounds.MaxDepth {
		if ctx.Err() != nil {
			ex.cancelled = true

			return ex
		}

		enabled := sys.Enabled()
		if len(enabled) == 0 {
			return ex
		}

		candidates := s.order.order(enabled, ex.path)
		if s.reduce {
			candidates = slices.DeleteFunc(candidates, func(a model.Action) bool { return slices.Contains(sleep, a) })
			if len(candidates) == 0 {
				ex.blocked = true

				return ex
			}
		}

		chosen := candidates[0]

		alts := s.alternatives(sys, ex.path, sleep, candidates)
		slices.Reverse(alts)
		ex.siblings = append(ex.siblings, alts...)

		if s.reduce {
			sleep = s.dep.independentOf(sys, sleep, chosen)
		}

		ex.path = append(ex.path, chosen)
		ex.steps++

		v, err := fire(sys, chosen)
		if err != nil || v != nil {
			ex.violation, ex.err = v, err

			return ex
		}
	}

	return ex
}

// alternatives builds the frontier nodes for candidates[1:] at path. With
// reduction, each alternative sleeps on the actions explored before it that
// commute with it.
func (s *dfs) alternatives(
	sys model.System, path, sleep, candidates []model.Action,
) []checkpoint.Node {
	nodes := make([]checkpoint.Node, 0, len(candidates)-1)

	for i := 1; i < len(candidates); i++ {
		alt := candidates[i]
		node := checkpoint.Node{Prefix: append(slices.Clone(path), alt)}

		if s.reduce {
			done := append(slices.Clone(sleep), candidates[:i]...)
			node.Sleep = s.dep.independentOf(sys, done, alt)
		}

		nodes = append(nodes, node)
	}

	return nodes
}

// fire steps a and checks the property in the resulting state.
func fire(sys model.System, a model.Action) (*model.Violation, error) {
	err := sys.Step(a)
	if err != nil {
		if v, ok := model.AsViolation(err); ok {
			return v, nil
		}

		return nil, fmt.Errorf("%w: %q: %w", ErrModelStep, a, err)
	}

	return checkState(sys)
}

func checkState(sys model.System) (*model.Violation, error) {
	err := sys.Check()
	if err == nil {
		return nil, nil
	}

	if v, ok := model.AsViolation(err); ok {
		return v, nil
	}

	return nil, fmt.Errorf("%w: check: %w", ErrModelStep, err)
}

func cloneFrontier(nodes []checkpoint.Node) []checkpoint.Node {
	out := make([]checkpoint.Node, len(nodes))
	for i, n := range nodes {
		out[i] = checkpoint.Node{Prefix: slices.Clone(n.Prefix), Sleep: slices.Clone(n.Sleep)}
	}

	return out
}
