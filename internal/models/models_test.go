package models_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/boundcheck/internal/models"
	"github.com/Sumatoshi-tech/boundcheck/pkg/config"
	"github.com/Sumatoshi-tech/boundcheck/pkg/model"
	"github.com/Sumatoshi-tech/boundcheck/pkg/outcome"
	"github.com/Sumatoshi-tech/boundcheck/pkg/registry"
	"github.com/Sumatoshi-tech/boundcheck/pkg/search"
)

func searchOpts(depth int) search.Options {
	return search.Options{Model: "test", ProjectName: "test", Bounds: search.Bounds{MaxDepth: depth}}
}

func TestRegisterBundled(t *testing.T) {
	t.Parallel()

	r := registry.New()
	models.Register(r)

	found, err := r.Discover()
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "examples.LostUpdate", found[0].Name)
	assert.Equal(t, "examples.Mailbox", found[1].Name)

	assert.Panics(t, func() { models.Register(r) })
}

func TestDefaultRegistryHasBundled(t *testing.T) {
	t.Parallel()

	m, err := registry.Default.Lookup("examples.Mailbox")
	require.NoError(t, err)
	assert.Equal(t, []string{"implementation.UncheckedSend.execute"}, m.EntryPointNames())
}

func TestLostUpdateDefaultIsAmbiguous(t *testing.T) {
	t.Parallel()

	_, err := registry.Resolve(models.LostUpdate(), config.DefaultEntryPointName, config.DefaultEntryPointName)
	require.Error(t, err)
	assert.Equal(t, outcome.EntryPointAmbiguous, outcome.KindOf(err))
}

func TestLostUpdateRacyViolates(t *testing.T) {
	t.Parallel()

	entry, err := registry.Resolve(models.LostUpdate(), "RacyIncrement", config.DefaultEntryPointName)
	require.NoError(t, err)

	for _, newSearcher := range []func(model.EntryPoint, search.Options) search.Searcher{
		search.NewBounded, search.NewReduction,
	} {
		res := newSearcher(entry, searchOpts(10)).Run(context.Background())
		require.Equal(t, outcome.ViolationFound, res.Kind)
		assert.Equal(t, models.PropertyNoLostUpdate, res.Violation.Property)
		assert.Len(t, res.Trace.Actions, 4)
	}
}

func TestLostUpdateLockedIsSafe(t *testing.T) {
	t.Parallel()

	entry, err := registry.Resolve(models.LostUpdate(), "implementation.LockedIncrement.execute", "")
	require.NoError(t, err)

	bounded := search.NewBounded(entry, searchOpts(20)).Run(context.Background())
	require.Equal(t, outcome.Completed, bounded.Kind)
	assert.Equal(t, 2, bounded.Stats.Executions)
	assert.Equal(t, 8, bounded.Stats.MaxDepth)

	reduced := search.NewReduction(entry, searchOpts(20)).Run(context.Background())
	require.Equal(t, outcome.Completed, reduced.Kind)
	assert.LessOrEqual(t, reduced.Stats.Executions, bounded.Stats.Executions)
}

func TestMailboxOverflowsAtDepthThree(t *testing.T) {
	t.Parallel()

	entry, err := registry.Resolve(models.Mailbox(), config.DefaultEntryPointName, config.DefaultEntryPointName)
	require.NoError(t, err)

	res := search.NewBounded(entry, searchOpts(2)).Run(context.Background())
	assert.Equal(t, outcome.Completed, res.Kind)

	res = search.NewBounded(entry, searchOpts(3)).Run(context.Background())
	require.Equal(t, outcome.ViolationFound, res.Kind)
	assert.Equal(t, models.PropertyBoundedMailbox, res.Violation.Property)
	assert.Equal(t, []model.Action{"sender.send", "sender.send", "sender.send"}, res.Trace.Actions)
}
