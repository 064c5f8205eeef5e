package orchestrator

import (
	"github.com/Sumatoshi-tech/boundcheck/pkg/config"
	"github.com/Sumatoshi-tech/boundcheck/pkg/model"
	"github.com/Sumatoshi-tech/boundcheck/pkg/outcome"
	"github.com/Sumatoshi-tech/boundcheck/pkg/search"
	"github.com/Sumatoshi-tech/boundcheck/pkg/trace"
)

// Report is the result of one session.
type Report struct {
	Outcome outcome.Kind

	// Err is the cause for every outcome except Completed and ViolationFound.
	Err error

	Mode        config.Mode
	Model       string
	EntryPoint  string
	ProjectName string

	// Violation, Trace and TracePath are set for ViolationFound.
	Violation *model.Violation
	Trace     *trace.Trace
	TracePath string

	CheckpointPath string
	StatsPath      string
	Stats          search.Stats
	PeakMemory     uint64

	// Warnings lists non-fatal failures such as a checkpoint that could not
	// be written.
	Warnings []string
}

// ExitCode returns the process exit status for the report.
func (r *Report) ExitCode() int {
	return r.Outcome.ExitCode()
}

func (r *Report) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

func (r *Report) fail(err error) *Report {
	r.Outcome = outcome.KindOf(err)
	r.Err = err

	return r
}
