package checkpoint

import (
	"context"
	"fmt"
	"path/filepath"
)

// Directory names under the session output folder.
const (
	dirName       = "checkpoints"
	badgerDirName = "badger"
)

// Dir returns the checkpoint directory inside outputFolder.
func Dir(outputFolder string) string {
	return filepath.Join(outputFolder, dirName)
}

// BadgerDir returns the badger database directory inside outputFolder.
func BadgerDir(outputFolder string) string {
	return filepath.Join(Dir(outputFolder), badgerDirName)
}

// Key returns the store key a project's checkpoint is saved under.
func Key(projectName string) string {
	return projectName + Extension
}

// Manager encodes checkpoints and moves them through a Store.
type Manager struct {
	store Store
}

// NewManager creates a manager on top of store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Save encodes state and stores it under key.
func (m *Manager) Save(ctx context.Context, key string, state *State) error {
	data, err := Encode(state)
	if err != nil {
		return err
	}

	err = m.store.Save(ctx, key, data)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	return nil
}

// Load reads and verifies the checkpoint stored under key.
func (m *Manager) Load(ctx context.Context, key string) (*State, error) {
	data, err := m.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	state, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", key, err)
	}

	return state, nil
}

// Metadata reads the header of the checkpoint stored under key.
func (m *Manager) Metadata(ctx context.Context, key string) (*Metadata, error) {
	data, err := m.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	return DecodeMetadata(data)
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
