package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/Sumatoshi-tech/boundcheck/pkg/orchestrator"
	"github.com/Sumatoshi-tech/boundcheck/pkg/outcome"
)

const timeRounding = time.Millisecond

func outcomeColor(kind outcome.Kind) color.Attribute {
	switch kind {
	case outcome.Completed:
		return color.FgGreen
	case outcome.ViolationFound:
		return color.FgRed
	default:
		return color.FgYellow
	}
}

func painter(attr color.Attribute, noColor bool) *color.Color {
	c := color.New(attr)
	if noColor {
		c.DisableColor()
	}

	return c
}

// printSummary writes a human readable summary of a session report.
func printSummary(w io.Writer, report *orchestrator.Report, noColor bool) {
	headline := painter(outcomeColor(report.Outcome), noColor)
	note := painter(color.FgCyan, noColor)
	warn := painter(color.FgYellow, noColor)

	headline.Fprintf(w, "%s (exit %d)\n", report.Outcome, report.ExitCode())

	if report.Model != "" {
		fmt.Fprintf(w, "  model:       %s\n", report.Model)
		fmt.Fprintf(w, "  entry point: %s\n", report.EntryPoint)
		fmt.Fprintf(w, "  mode:        %s\n", report.Mode)
	}

	st := report.Stats
	if st.Executions > 0 || st.Steps > 0 {
		fmt.Fprintf(w, "  executions:  %s (%s steps, %s pruned, max depth %d)\n",
			humanize.Comma(int64(st.Executions)), humanize.Comma(int64(st.Steps)),
			humanize.Comma(int64(st.Pruned)), st.MaxDepth)
		fmt.Fprintf(w, "  search time: %s\n", st.SearchTime.Round(timeRounding))
	}

	if report.PeakMemory > 0 {
		fmt.Fprintf(w, "  peak memory: %s\n", humanize.IBytes(report.PeakMemory))
	}

	if report.Violation != nil {
		headline.Fprintf(w, "  violation:   %s\n", report.Violation)
	}

	if report.TracePath != "" {
		note.Fprintf(w, "  trace:       %s\n", report.TracePath)
	}

	if report.CheckpointPath != "" {
		note.Fprintf(w, "  checkpoint:  %s\n", report.CheckpointPath)
	}

	for _, msg := range report.Warnings {
		warn.Fprintf(w, "  warning: %s\n", msg)
	}

	if report.Err != nil {
		warn.Fprintf(w, "  error: %v\n", report.Err)
	}
}
