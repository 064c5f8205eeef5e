// Package model declares the contract between the checker and the programs it
// verifies. A System is a deterministic transition system: the same sequence of
// actions applied to a freshly constructed System always yields the same state.
package model

import (
	"errors"
	"fmt"
)

// Action identifies one enabled transition of a System.
type Action string

// System is a single execution of a modeled program.
type System interface {
	// Enabled returns the actions that may fire in the current state. The order
	// must be deterministic. An empty result ends the execution.
	Enabled() []Action

	// Step fires one enabled action. Returning a *Violation reports a property
	// failure caused by the step; any other error aborts the session.
	Step(a Action) error

	// Check evaluates the property in the current state and returns a
	// *Violation when it does not hold.
	Check() error
}

// Dependence is optionally implemented by a System to let reduction skip
// interleavings of independent actions. Without it every pair is dependent.
// The answer may depend on the current state.
type Dependence interface {
	Dependent(a, b Action) bool
}

// Fingerprinter is optionally implemented by a System whose Dependent answer
// is determined by the fingerprint together with the action pair. Dependence
// answers are cached across executions only for such systems.
type Fingerprinter interface {
	Fingerprint() string
}

// Violation is a property failure observed during an execution.
type Violation struct {
	Property string
	Detail   string
}

// Error implements the error interface.
func (v *Violation) Error() string {
	if v.Detail == "" {
		return fmt.Sprintf("property %q violated", v.Property)
	}

	return fmt.Sprintf("property %q violated: %s", v.Property, v.Detail)
}

// AsViolation reports whether err carries a *Violation.
func AsViolation(err error) (*Violation, bool) {
	var v *Violation
	if errors.As(err, &v) {
		return v, true
	}

	return nil, false
}

// EntryPoint is a named property or test harness checked against a Model.
type EntryPoint struct {
	// Name is the raw registered name; resolution normalizes it.
	Name string

	// Description is shown by the list command.
	Description string

	// New constructs a System in its initial state.
	New func() System
}

// Model is one verifiable program and the entry points it offers.
type Model struct {
	Name        string
	EntryPoints []EntryPoint
}

// EntryPointNames returns the raw entry point names in registration order.
func (m Model) EntryPointNames() []string {
	names := make([]string, 0, len(m.EntryPoints))
	for _, ep := range m.EntryPoints {
		names = append(names, ep.Name)
	}

	return names
}
