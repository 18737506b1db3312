package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fosrl/newt/logger"
	"go.etcd.io/bbolt"
)

var (
	bucketName = []byte("backup")
	recordKey  = []byte("record")
)

const defaultBoltTimeout = 2 * time.Second

// BoltStore keeps the record in a bbolt database. The database is opened
// for each operation so the file lock is never held between invocations.
type BoltStore struct {
	path    string
	timeout time.Duration
}

// NewBoltStore returns a store backed by the bbolt database at path
func NewBoltStore(path string) *BoltStore {
	return &BoltStore{path: path, timeout: defaultBoltTimeout}
}

func (b *BoltStore) exists() (bool, error) {
	_, err := os.Stat(b.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat backup database %s: %w", b.path, err)
}

func (b *BoltStore) open() (*bbolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	db, err := bbolt.Open(b.path, 0o600, &bbolt.Options{Timeout: b.timeout})
	if err != nil {
		return nil, fmt.Errorf("open backup database %s: %w", b.path, err)
	}
	return db, nil
}

// view runs fn against the record, or reports found=false when the
// database or the record does not exist
func (b *BoltStore) view(fn func(data []byte) error) (found bool, err error) {
	ok, err := b.exists()
	if err != nil || !ok {
		return false, err
	}

	db, err := b.open()
	if err != nil {
		return false, err
	}
	defer db.Close()

	err = db.View(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(bucketName)
		if bk == nil {
			return nil
		}
		v := bk.Get(recordKey)
		if v == nil {
			return nil
		}
		found = true
		if fn == nil {
			return nil
		}
		data := make([]byte, len(v))
		copy(data, v)
		return fn(data)
	})
	return found, err
}

func (b *BoltStore) HasBackup() (bool, error) {
	return b.view(nil)
}

func (b *BoltStore) Save(rec Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	db, err := b.open()
	if err != nil {
		return err
	}
	defer db.Close()

	err = db.Update(func(tx *bbolt.Tx) error {
		bk, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		if bk.Get(recordKey) != nil {
			return ErrBackupExists
		}
		return bk.Put(recordKey, data)
	})
	if err != nil {
		if errors.Is(err, ErrBackupExists) {
			return err
		}
		return fmt.Errorf("store backup record: %w", err)
	}

	logger.Debug("Saved resolver backup to %s", b.path)
	return nil
}

func (b *BoltStore) Load() (Record, error) {
	var rec Record
	found, err := b.view(func(data []byte) error {
		var err error
		rec, err = decodeRecord(data)
		return err
	})
	if err != nil {
		return Record{}, err
	}
	if !found {
		return Record{}, ErrNoBackup
	}
	return rec, nil
}

func (b *BoltStore) Clear() error {
	ok, err := b.exists()
	if err != nil || !ok {
		return err
	}

	db, err := b.open()
	if err != nil {
		return err
	}
	defer db.Close()

	err = db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(bucketName)
		if bk == nil {
			return nil
		}
		return bk.Delete(recordKey)
	})
	if err != nil {
		return fmt.Errorf("delete backup record: %w", err)
	}

	logger.Debug("Cleared resolver backup in %s", b.path)
	return nil
}
