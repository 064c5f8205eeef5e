package commands

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/boundcheck/pkg/model"
	"github.com/Sumatoshi-tech/boundcheck/pkg/registry"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	return newListCommandWithDeps(defaultRegistry)
}

func newListCommandWithDeps(registryFn registryProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered models and their entry points",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			models, err := registryFn().Discover()
			if err != nil {
				return exitFor(err)
			}

			writeModelTable(cmd.OutOrStdout(), models)

			return nil
		},
	}
}

func newTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateHeader = false

	return tbl
}

func writeModelTable(w io.Writer, models []model.Model) {
	tbl := newTable()
	tbl.AppendHeader(table.Row{"Model", "Entry point", "Normalized", "Description"})

	entries := 0

	for _, m := range models {
		for _, ep := range m.EntryPoints {
			tbl.AppendRow(table.Row{m.Name, ep.Name, registry.NormalizeName(ep.Name), ep.Description})

			entries++
		}
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d models, %d entry points", len(models), entries)})

	fmt.Fprintln(w, tbl.Render())
}
