package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"

	"github.com/Sumatoshi-tech/boundcheck/pkg/persist"
)

// Store is byte-level checkpoint persistence. Save must be atomic: a later
// Load observes either the previous value or the complete new one.
type Store interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Close() error
}

// FileStore keeps each checkpoint in its own file under Dir.
type FileStore struct {
	Dir string
}

// NewFileStore creates a file store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

// Path returns the file that holds key.
func (s *FileStore) Path(key string) string {
	if filepath.IsAbs(key) {
		return key
	}

	return filepath.Join(s.Dir, key)
}

// Save implements Store.
func (s *FileStore) Save(_ context.Context, key string, data []byte) error {
	return persist.WriteFileAtomic(s.Path(key), data)
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.Path(key))
	}

	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	return data, nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps the database in memory; used by tests.
	InMemory bool

	// Logger receives badger's internal log output. Nil silences it.
	Logger *slog.Logger
}

// BadgerStore keeps checkpoints as values in a badger database.
type BadgerStore struct {
	db *badger.DB
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadgerStore opens or creates a badger-backed store.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	var opts badger.Options

	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("badger store: path is required")
		}

		err := os.MkdirAll(cfg.Path, 0o750)
		if err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}

		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}

	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	return &BadgerStore{db: db}, nil
}

// Save implements Store in a single transaction.
func (s *BadgerStore) Save(_ context.Context, key string, data []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("badger save %s: %w", key, err)
	}

	return nil
}

// Load implements Store.
func (s *BadgerStore) Load(_ context.Context, key string) ([]byte, error) {
	var data []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, getErr := txn.Get([]byte(key))
		if getErr != nil {
			return getErr
		}

		var copyErr error

		data, copyErr = item.ValueCopy(nil)

		return copyErr
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	if err != nil {
		return nil, fmt.Errorf("badger load %s: %w", key, err)
	}

	return data, nil
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("close badger database: %w", err)
	}

	return nil
}
