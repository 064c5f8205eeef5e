// Package checkpoint provides versioned persistence of in-progress search state.
package checkpoint

import (
	"time"

	"github.com/Sumatoshi-tech/boundcheck/pkg/model"
)

// Variant names the searcher that produced a checkpoint.
type Variant string

// Resumable searcher variants.
const (
	VariantBounded   Variant = "bounded"
	VariantReduction Variant = "reduction"
)

// Node is one unexplored search prefix. Sleep holds the actions whose
// interleavings were already covered from this prefix (reduction only).
type Node struct {
	Prefix []model.Action
	Sleep  []model.Action
}

// Counters accumulate search statistics across resumptions.
type Counters struct {
	Executions int
	Steps      int
	Pruned     int
	MaxDepth   int
	Violations int
}

// State is the complete resumable state of a searcher together with the
// session parameters it must be resumed with.
type State struct {
	Variant       Variant
	Model         string
	EntryPoint    string
	ProjectName   string
	MaxDepth      int
	MaxExecutions int
	OrderSeed     uint64
	Shuffle       bool

	// Frontier is the DFS stack; the last element is explored next.
	Frontier []Node
	Counters Counters

	// Reported holds IDs of traces already reported to the operator.
	Reported []string

	// SearchTime is the search time accumulated before this checkpoint.
	SearchTime time.Duration
}

// Done reports whether nothing is left to explore.
func (s *State) Done() bool {
	return len(s.Frontier) == 0
}

// Metadata describes a checkpoint without decoding its payload.
type Metadata struct {
	Version     int
	Variant     Variant
	Model       string
	EntryPoint  string
	ProjectName string
	CreatedAt   string
	Checksum    string
	Frontier    int
	Executions  int
}
