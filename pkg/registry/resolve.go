package registry

import (
	"fmt"
	"strings"

	"github.com/Sumatoshi-tech/boundcheck/pkg/levenshtein"
	"github.com/Sumatoshi-tech/boundcheck/pkg/model"
	"github.com/Sumatoshi-tech/boundcheck/pkg/outcome"
)

// namespacePrefixes mark the implementation namespace of an entry point name.
var namespacePrefixes = []string{"pimplementation.", "implementation."}

const (
	// executeMarker marks the start of a trailing harness method suffix.
	executeMarker = ".execute"

	// maxSuggestDistance bounds the edit distance of a "did you mean" hint.
	maxSuggestDistance = 3
)

var (
	// ErrEntryPointNotFound means an explicitly requested entry point does not exist.
	ErrEntryPointNotFound = outcome.Sentinel(outcome.ConfigurationError, "entry point not found")

	// ErrAmbiguousDefault means the default name matched zero or several candidates.
	ErrAmbiguousDefault = outcome.Sentinel(outcome.EntryPointAmbiguous, "default entry point is ambiguous")
)

// ResolveError reports an unresolved entry point together with every candidate.
type ResolveError struct {
	Model      string
	Requested  string
	Candidates []string

	// Suggestion is the candidate closest to a misspelled request, if any.
	Suggestion string

	Err error
}

// Error implements the error interface.
func (e *ResolveError) Error() string {
	msg := fmt.Sprintf("%v: %q in model %s, possible options are [%s]",
		e.Err, e.Requested, e.Model, strings.Join(e.Candidates, ", "))
	if e.Suggestion != "" {
		msg += fmt.Sprintf(", did you mean %q?", e.Suggestion)
	}

	return msg
}

// Unwrap exposes the tagged sentinel.
func (e *ResolveError) Unwrap() error {
	return e.Err
}

// NormalizeName canonicalizes an entry point name for comparison.
func NormalizeName(name string) string {
	n := strings.ToLower(name)

	for stripped := true; stripped; {
		stripped = false

		for _, prefix := range namespacePrefixes {
			if rest, ok := strings.CutPrefix(n, prefix); ok {
				n, stripped = rest, true
			}
		}
	}

	// Only a marker after the first byte truncates, so a bare ".execute" survives.
	if len(n) > 1 {
		if idx := strings.Index(n[1:], executeMarker); idx >= 0 {
			n = n[:idx+1]
		}
	}

	return n
}

// Resolve picks the entry point of m that requested names. When requested is
// the default and m has exactly one entry point, that entry point is used even
// if the names differ.
func Resolve(m model.Model, requested, defaultName string) (model.EntryPoint, error) {
	want := NormalizeName(requested)

	for _, ep := range m.EntryPoints {
		if NormalizeName(ep.Name) == want {
			return ep, nil
		}
	}

	isDefault := NormalizeName(defaultName) == want
	if isDefault && len(m.EntryPoints) == 1 {
		return m.EntryPoints[0], nil
	}

	sentinel := ErrEntryPointNotFound
	if isDefault {
		sentinel = ErrAmbiguousDefault
	}

	rerr := &ResolveError{
		Model:      m.Name,
		Requested:  requested,
		Candidates: m.EntryPointNames(),
		Err:        sentinel,
	}

	if !isDefault {
		rerr.Suggestion = suggest(want, m.EntryPoints)
	}

	return model.EntryPoint{}, rerr
}

// suggest returns the entry point whose normalized name is closest to want.
func suggest(want string, eps []model.EntryPoint) string {
	normalized := make([]string, len(eps))
	for i, ep := range eps {
		normalized[i] = NormalizeName(ep.Name)
	}

	best, ok := levenshtein.Closest(want, normalized, maxSuggestDistance)
	if !ok {
		return ""
	}

	for _, ep := range eps {
		if NormalizeName(ep.Name) == best {
			return ep.Name
		}
	}

	return ""
}
