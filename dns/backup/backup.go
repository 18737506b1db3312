// Package backup persists the single pre-subversion resolver snapshot.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fosrl/dnsutility/dns/platform"
	"github.com/google/uuid"
)

// RecordVersion is the current on-disk record format
const RecordVersion = 1

var (
	// ErrNoBackup is returned by Load when no snapshot is stored
	ErrNoBackup = errors.New("no backup of the original resolver configuration exists")

	// ErrBackupExists is returned by Save when a snapshot is already stored
	ErrBackupExists = errors.New("a backup of the original resolver configuration already exists")
)

// Record is the snapshot of the resolver configuration taken right before
// the host was subverted
type Record struct {
	Version   int                      `json:"version"`
	ID        string                   `json:"id"`
	Interface platform.ActiveInterface `json:"interface"`
	Adapter   string                   `json:"adapter"`
	Servers   platform.ResolverConfig  `json:"servers"`
	CreatedAt time.Time                `json:"createdAt"`
}

// NewRecord builds a record for servers read from iface by adapter
func NewRecord(adapter string, iface platform.ActiveInterface, servers platform.ResolverConfig) Record {
	return Record{
		Version:   RecordVersion,
		ID:        uuid.NewString(),
		Interface: iface,
		Adapter:   adapter,
		Servers:   servers.Clone(),
		CreatedAt: time.Now().UTC(),
	}
}

// Store holds at most one Record. Presence of the record, not its
// contents, tells whether a backup exists: a record with no servers is a
// valid backup of an empty configuration.
type Store interface {
	HasBackup() (bool, error)

	// Save stores rec, failing with ErrBackupExists if a record is already
	// present. The record is durable once Save returns.
	Save(rec Record) error

	// Load returns the stored record or ErrNoBackup
	Load() (Record, error)

	// Clear removes the stored record. Clearing an empty store succeeds.
	Clear() error
}

// Store kinds accepted by Open
const (
	KindFile = "file"
	KindBolt = "bolt"
)

// Open returns the store of the given kind rooted at path
func Open(kind, path string) (Store, error) {
	if path == "" {
		return nil, errors.New("backup path is empty")
	}

	switch kind {
	case KindFile, "":
		return NewFileStore(path), nil
	case KindBolt:
		return NewBoltStore(path), nil
	default:
		return nil, fmt.Errorf("unknown backup store %q", kind)
	}
}

func encodeRecord(rec Record) ([]byte, error) {
	if rec.Version == 0 {
		rec.Version = RecordVersion
	}
	if rec.Servers == nil {
		rec.Servers = platform.ResolverConfig{}
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode backup record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode backup record: %w", err)
	}
	if rec.Version > RecordVersion {
		return Record{}, fmt.Errorf("backup record version %d is newer than supported version %d", rec.Version, RecordVersion)
	}
	if rec.Servers == nil {
		rec.Servers = platform.ResolverConfig{}
	}
	return rec, nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
