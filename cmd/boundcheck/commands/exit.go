// Package commands implements CLI command handlers for boundcheck.
package commands

import (
	"fmt"

	"github.com/Sumatoshi-tech/boundcheck/pkg/outcome"
)

// ExitStatus is returned by commands that finish with a non-zero exit code.
type ExitStatus struct {
	Code int
	Err  error
}

func (e *ExitStatus) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}

	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitStatus) Unwrap() error {
	return e.Err
}

// exitFor wraps err with the exit code of its outcome kind.
func exitFor(err error) *ExitStatus {
	return &ExitStatus{Code: outcome.KindOf(err).ExitCode(), Err: err}
}
