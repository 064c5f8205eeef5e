package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// File and directory permissions for persisted artifacts.
const (
	dirPerm  = 0o750
	filePerm = 0o600
)

// WriteFileAtomic writes data to path so that readers observe either the old
// content or the complete new content. The data is synced before the rename.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	err := os.MkdirAll(dir, dirPerm)
	if err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmpName := tmp.Name()

	writeErr := writeAndSync(tmp, data)
	if writeErr != nil {
		return errors.Join(writeErr, os.Remove(tmpName))
	}

	err = os.Rename(tmpName, path)
	if err != nil {
		return errors.Join(fmt.Errorf("rename temp file: %w", err), os.Remove(tmpName))
	}

	return nil
}

func writeAndSync(f *os.File, data []byte) error {
	_, err := f.Write(data)
	if err != nil {
		return errors.Join(fmt.Errorf("write temp file: %w", err), f.Close())
	}

	err = f.Sync()
	if err != nil {
		return errors.Join(fmt.Errorf("sync temp file: %w", err), f.Close())
	}

	err = f.Chmod(filePerm)
	if err != nil {
		return errors.Join(fmt.Errorf("chmod temp file: %w", err), f.Close())
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	return nil
}

// WriteFileExclusive creates path and writes data, failing with an error
// wrapping os.ErrExist if the file is already present.
func WriteFileExclusive(path string, data []byte) error {
	err := os.MkdirAll(filepath.Dir(path), dirPerm)
	if err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	return writeAndSync(f, data)
}
