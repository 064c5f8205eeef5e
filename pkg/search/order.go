package search

import (
	"hash/fnv"
	"math/rand/v2"
	"slices"

	"github.com/Sumatoshi-tech/boundcheck/pkg/model"
	"github.com/Sumatoshi-tech/boundcheck/pkg/solver"
)

// orderer decides the exploration order of enabled actions.
type orderer struct {
	seed    uint64
	shuffle bool
}

// order returns the actions in exploration order. The order depends only on
// the seed and the prefix, so a resumed search makes the same choices.
func (o orderer) order(enabled []model.Action, prefix []model.Action) []model.Action {
	out := slices.Clone(enabled)
	if !o.shuffle || len(out) < 2 {
		return out
	}

	rng := rand.New(rand.NewPCG(o.seed, prefixHash(prefix))) //nolint:gosec // exploration order only
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })

	return out
}

func prefixHash(prefix []model.Action) uint64 {
	h := fnv.New64a()
	for _, a := range prefix {
		_, _ = h.Write([]byte(a))
		_, _ = h.Write([]byte{0})
	}

	return h.Sum64()
}

// dependence answers whether two actions may not commute.
type dependence struct {
	solver *solver.Context
}

func (d dependence) dependent(sys model.System, a, b model.Action) bool {
	if a == b {
		return true
	}

	dep, ok := sys.(model.Dependence)
	if !ok {
		return true
	}

	fp, ok := sys.(model.Fingerprinter)
	if d.solver == nil || !ok {
		return dep.Dependent(a, b)
	}

	x, y := a, b
	if y < x {
		x, y = y, x
	}

	key := "dep:" + fp.Fingerprint() + "|" + string(x) + "|" + string(y)

	return d.solver.Query(key, func() bool { return dep.Dependent(a, b) })
}

// independentOf keeps the members of set that commute with a.
func (d dependence) independentOf(sys model.System, set []model.Action, a model.Action) []model.Action {
	var out []model.Action

	for _, s := range set {
		if !d.dependent(sys, s, a) {
			out = append(out, s)
		}
	}

	return out
}
