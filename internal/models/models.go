// Package models contains the example models bundled with the boundcheck
// binary. Importing the package registers them with registry.Default.
package models

import (
	"github.com/Sumatoshi-tech/boundcheck/pkg/model"
	"github.com/Sumatoshi-tech/boundcheck/pkg/registry"
)

func init() {
	Register(registry.Default)
}

// All returns the bundled models.
func All() []model.Model {
	return []model.Model{LostUpdate(), Mailbox()}
}

// Register adds every bundled model to r.
func Register(r *registry.Registry) {
	for _, m := range All() {
		err := r.Register(m)
		if err != nil {
			panic(err)
		}
	}
}
