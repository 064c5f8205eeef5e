package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/boundcheck/pkg/checkpoint"
	"github.com/Sumatoshi-tech/boundcheck/pkg/config"
	"github.com/Sumatoshi-tech/boundcheck/pkg/outcome"
	"github.com/Sumatoshi-tech/boundcheck/pkg/trace"
)

// Output formats of the inspect command.
const (
	FormatTable = "table"
	FormatYAML  = "yaml"
)

// ErrUnknownFormat is returned for an unsupported --format value.
var ErrUnknownFormat = outcome.Sentinel(outcome.ConfigurationError, "unknown output format")

// artifactInfo is the metadata shown for a checkpoint or trace.
type artifactInfo struct {
	Kind        string   `yaml:"kind"`
	Version     int      `yaml:"version"`
	Model       string   `yaml:"model"`
	EntryPoint  string   `yaml:"entry_point"`
	ProjectName string   `yaml:"project_name,omitempty"`
	Variant     string   `yaml:"variant,omitempty"`
	CreatedAt   string   `yaml:"created_at"`
	Checksum    string   `yaml:"checksum,omitempty"`
	Executions  int      `yaml:"executions,omitempty"`
	Frontier    int      `yaml:"frontier,omitempty"`
	ID          string   `yaml:"id,omitempty"`
	Property    string   `yaml:"property,omitempty"`
	Detail      string   `yaml:"detail,omitempty"`
	Actions     []string `yaml:"actions,omitempty"`
}

type inspectOptions struct {
	format       string
	backend      string
	outputFolder string
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand() *cobra.Command {
	opts := &inspectOptions{}

	cmd := &cobra.Command{
		Use:   "inspect <checkpoint-or-trace>",
		Short: "Show checkpoint or trace metadata",
		Long: `Inspect prints the header of a checkpoint or the contents of a trace.

Files ending in ` + trace.Extension + ` are read as traces. With
--checkpoint-backend badger the argument is a checkpoint key inside the
output folder's database.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := opts.load(cmd.Context(), args[0])
			if err != nil {
				return exitFor(err)
			}

			err = writeArtifact(cmd.OutOrStdout(), info, opts.format)
			if err != nil {
				return exitFor(err)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&opts.format, "format", FormatTable, "Output format: table or yaml")
	cmd.Flags().StringVar(&opts.backend, "checkpoint-backend", config.DefaultCheckpointBackend,
		"Checkpoint store: file or badger")
	cmd.Flags().StringVarP(&opts.outputFolder, "output-folder", "o", config.DefaultOutputFolder,
		"Output folder holding the badger database")

	return cmd
}

func (o *inspectOptions) load(ctx context.Context, arg string) (*artifactInfo, error) {
	if strings.HasSuffix(arg, trace.Extension) {
		tr, err := trace.Load(arg)
		if err != nil {
			return nil, err
		}

		return traceInfo(tr), nil
	}

	if o.backend == config.BackendBadger {
		store, err := checkpoint.OpenBadgerStore(checkpoint.BadgerConfig{Path: checkpoint.BadgerDir(o.outputFolder)})
		if err != nil {
			return nil, err
		}

		mgr := checkpoint.NewManager(store)
		defer func() { _ = mgr.Close() }()

		meta, err := mgr.Metadata(ctx, arg)
		if err != nil {
			return nil, err
		}

		return checkpointInfo(meta), nil
	}

	data, err := os.ReadFile(arg)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", checkpoint.ErrNotFound, arg)
		}

		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	meta, err := checkpoint.DecodeMetadata(data)
	if err != nil {
		return nil, err
	}

	return checkpointInfo(meta), nil
}

func checkpointInfo(meta *checkpoint.Metadata) *artifactInfo {
	return &artifactInfo{
		Kind:        "checkpoint",
		Version:     meta.Version,
		Model:       meta.Model,
		EntryPoint:  meta.EntryPoint,
		ProjectName: meta.ProjectName,
		Variant:     string(meta.Variant),
		CreatedAt:   meta.CreatedAt,
		Checksum:    meta.Checksum,
		Executions:  meta.Executions,
		Frontier:    meta.Frontier,
	}
}

func traceInfo(tr *trace.Trace) *artifactInfo {
	actions := make([]string, len(tr.Actions))
	for i, a := range tr.Actions {
		actions[i] = string(a)
	}

	return &artifactInfo{
		Kind:       "trace",
		Version:    tr.Version,
		Model:      tr.Model,
		EntryPoint: tr.EntryPoint,
		CreatedAt:  tr.CreatedAt.UTC().Format(time.RFC3339),
		ID:         tr.ID,
		Property:   tr.Violation.Property,
		Detail:     tr.Violation.Detail,
		Actions:    actions,
	}
}

func writeArtifact(w io.Writer, info *artifactInfo, format string) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		err := enc.Encode(info)
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}

		return enc.Close()
	case FormatTable:
		tbl := newTable()
		tbl.AppendRows([]table.Row{
			{"Kind", info.Kind},
			{"Version", info.Version},
			{"Model", info.Model},
			{"Entry point", info.EntryPoint},
			{"Created", info.CreatedAt},
		})

		if info.Kind == "checkpoint" {
			tbl.AppendRows([]table.Row{
				{"Project", info.ProjectName},
				{"Variant", info.Variant},
				{"Executions", info.Executions},
				{"Frontier", info.Frontier},
				{"Checksum", info.Checksum},
			})
		} else {
			tbl.AppendRows([]table.Row{
				{"ID", info.ID},
				{"Property", info.Property},
				{"Detail", info.Detail},
				{"Steps", len(info.Actions)},
			})

			for i, a := range info.Actions {
				tbl.AppendRow(table.Row{fmt.Sprintf("  %d", i+1), a})
			}
		}

		fmt.Fprintln(w, tbl.Render())

		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
