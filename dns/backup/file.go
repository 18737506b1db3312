package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fosrl/newt/logger"
)

// FileStore keeps the record as a JSON file. The file is published with a
// hard link so that only one of several racing writers can create it.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the file at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backup file location
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) HasBackup() (bool, error) {
	_, err := os.Stat(f.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat backup %s: %w", f.path, err)
}

func (f *FileStore) Save(rec Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp backup: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp backup: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp backup: %w", err)
	}

	if err := os.Link(tmpName, f.path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrBackupExists
		}
		return fmt.Errorf("publish backup %s: %w", f.path, err)
	}

	if err := syncDir(dir); err != nil {
		logger.Debug("sync backup directory %s: %v", dir, err)
	}

	logger.Debug("Saved resolver backup to %s", f.path)
	return nil
}

func (f *FileStore) Load() (Record, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, ErrNoBackup
		}
		return Record{}, fmt.Errorf("read backup %s: %w", f.path, err)
	}
	return decodeRecord(data)
}

func (f *FileStore) Clear() error {
	if err := os.Remove(f.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("remove backup %s: %w", f.path, err)
	}

	if err := syncDir(filepath.Dir(f.path)); err != nil {
		logger.Debug("sync backup directory: %v", err)
	}

	logger.Debug("Cleared resolver backup %s", f.path)
	return nil
}
