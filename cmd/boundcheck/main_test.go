package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/boundcheck/cmd/boundcheck/commands"
	"github.com/Sumatoshi-tech/boundcheck/pkg/outcome"
)

func commandReturning(err error) *cobra.Command {
	return &cobra.Command{
		Use:           "test",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          func(*cobra.Command, []string) error { return err },
	}
}

func TestExecuteMapsExitStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, outcome.ExitCompleted, execute(commandReturning(nil)))
	assert.Equal(t, outcome.ExitAmbiguousTarget,
		execute(commandReturning(&commands.ExitStatus{Code: outcome.ExitAmbiguousTarget})))
	assert.Equal(t, outcome.ExitError, execute(commandReturning(assert.AnError)))
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	root := newRootCommand()

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "boundcheck ")
}

func TestRootHasCommands(t *testing.T) {
	t.Parallel()

	root := newRootCommand()

	for _, name := range []string{"run", "list", "inspect", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}
