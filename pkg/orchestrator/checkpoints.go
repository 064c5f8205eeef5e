package orchestrator

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Sumatoshi-tech/boundcheck/pkg/checkpoint"
	"github.com/Sumatoshi-tech/boundcheck/pkg/config"
)

// checkpoints opens the stores a session reads and writes checkpoints with.
// The badger database is opened at most once because it locks its directory.
type checkpoints struct {
	cfg    *config.SessionConfig
	logger *slog.Logger
	badger *checkpoint.Manager
	files  *checkpoint.Manager
	opened []*checkpoint.Manager
}

func newCheckpoints(cfg *config.SessionConfig, logger *slog.Logger) *checkpoints {
	return &checkpoints{cfg: cfg, logger: logger}
}

// source returns the manager and key the resume checkpoint is read from.
// With the file backend the resume path names the file; with badger it is
// the key inside the output folder's database.
func (c *checkpoints) source() (*checkpoint.Manager, string, error) {
	path := c.cfg.ResumeFromCheckpoint

	if c.cfg.CheckpointBackend == config.BackendBadger {
		m, err := c.openBadger()
		if err != nil {
			return nil, "", err
		}

		return m, path, nil
	}

	m := c.track(checkpoint.NewManager(checkpoint.NewFileStore(filepath.Dir(path))))

	return m, filepath.Base(path), nil
}

// target returns the manager, key and display path new checkpoints of
// project are written to.
func (c *checkpoints) target(project string) (*checkpoint.Manager, string, string, error) {
	key := checkpoint.Key(project)

	if c.cfg.CheckpointBackend == config.BackendBadger {
		m, err := c.openBadger()
		if err != nil {
			return nil, "", "", err
		}

		return m, key, filepath.Join(checkpoint.BadgerDir(c.cfg.OutputFolder), key), nil
	}

	store := checkpoint.NewFileStore(checkpoint.Dir(c.cfg.OutputFolder))
	if c.files == nil {
		c.files = c.track(checkpoint.NewManager(store))
	}

	return c.files, key, store.Path(key), nil
}

func (c *checkpoints) openBadger() (*checkpoint.Manager, error) {
	if c.badger != nil {
		return c.badger, nil
	}

	store, err := checkpoint.OpenBadgerStore(checkpoint.BadgerConfig{
		Path:   checkpoint.BadgerDir(c.cfg.OutputFolder),
		Logger: c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open checkpoint database: %w", err)
	}

	c.badger = c.track(checkpoint.NewManager(store))

	return c.badger, nil
}

func (c *checkpoints) track(m *checkpoint.Manager) *checkpoint.Manager {
	c.opened = append(c.opened, m)

	return m
}

// Close releases every opened store.
func (c *checkpoints) Close() error {
	var firstErr error

	for _, m := range c.opened {
		err := m.Close()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	c.opened = nil
	c.badger = nil
	c.files = nil

	return firstErr
}
