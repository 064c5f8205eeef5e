package persist

import (
	"fmt"
	"os"
)

// Persister saves and loads one state type at explicit paths using a Codec.
type Persister[T any] struct {
	codec Codec
}

// NewPersister creates a persister for T using codec.
func NewPersister[T any](codec Codec) *Persister[T] {
	return &Persister[T]{codec: codec}
}

// Extension returns the file extension produced by the codec.
func (p *Persister[T]) Extension() string {
	return p.codec.Extension()
}

// Save atomically replaces the file at path with the encoded state.
func (p *Persister[T]) Save(path string, state *T) error {
	data, err := Marshal(p.codec, state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	return WriteFileAtomic(path, data)
}

// Create writes the encoded state to a new file at path and never overwrites.
func (p *Persister[T]) Create(path string, state *T) error {
	data, err := Marshal(p.codec, state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	return WriteFileExclusive(path, data)
}

// Load decodes the state stored at path.
func (p *Persister[T]) Load(path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var state T

	err = Unmarshal(p.codec, data, &state)
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}

	return &state, nil
}
