// Package registry holds the models available to a verification session and
// resolves operator-supplied entry point names against them.
//
// Models register themselves from init functions; nothing is discovered by
// scanning types at run time.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/Sumatoshi-tech/boundcheck/pkg/model"
	"github.com/Sumatoshi-tech/boundcheck/pkg/outcome"
)

var (
	// ErrNoModels is returned by Discover when nothing has been registered.
	ErrNoModels = outcome.Sentinel(outcome.ConfigurationError, "no program found")

	// ErrUnknownModel is returned by Lookup for an unregistered name.
	ErrUnknownModel = outcome.Sentinel(outcome.ConfigurationError, "unknown model")

	// ErrDuplicateModel is returned when a name is registered twice.
	ErrDuplicateModel = errors.New("model already registered")

	// ErrInvalidModel is returned for a model without a name or with a nil constructor.
	ErrInvalidModel = errors.New("invalid model")
)

// Registry maps model names to models.
type Registry struct {
	mu     sync.RWMutex
	models map[string]model.Model
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{models: make(map[string]model.Model)}
}

// Default is the process-wide registry populated from init functions.
var Default = New()

// Register adds m to the Default registry.
func Register(m model.Model) error {
	return Default.Register(m)
}

// MustRegister adds m to the Default registry and panics on failure.
// Intended for init functions.
func MustRegister(m model.Model) {
	err := Default.Register(m)
	if err != nil {
		panic(err)
	}
}

// Register adds m to the registry.
func (r *Registry) Register(m model.Model) error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidModel)
	}

	for _, ep := range m.EntryPoints {
		if ep.New == nil {
			return fmt.Errorf("%w: %s: entry point %q has no constructor", ErrInvalidModel, m.Name, ep.Name)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.models[m.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateModel, m.Name)
	}

	r.models[m.Name] = m

	return nil
}

// Discover returns every registered model sorted by name.
func (r *Registry) Discover() ([]model.Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.models) == 0 {
		return nil, ErrNoModels
	}

	out := make([]model.Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}

	slices.SortFunc(out, func(a, b model.Model) int { return strings.Compare(a.Name, b.Name) })

	return out, nil
}

// Lookup returns the model registered under name.
func (r *Registry) Lookup(name string) (model.Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[name]
	if !ok {
		return model.Model{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}

	return m, nil
}

// Select picks the model a fresh session checks. An explicit name is looked
// up; otherwise the first model in sorted order is used. The second result
// reports whether other models were passed over.
func (r *Registry) Select(name string) (model.Model, bool, error) {
	if name != "" {
		m, err := r.Lookup(name)

		return m, false, err
	}

	models, err := r.Discover()
	if err != nil {
		return model.Model{}, false, err
	}

	return models[0], len(models) > 1, nil
}
