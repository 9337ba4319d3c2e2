// file: internal/database/snapshot.go
// version: 1.0.0
// guid: 4d6f8a0c-2e1b-4c3d-8f5a-7b9c1d3e5f60

package database

import (
	"errors"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble/v2"
)

// ErrSnapshotUnsupported is returned by Snapshot for stores that keep no
// on-disk state.
var ErrSnapshotUnsupported = errors.New("store does not support snapshots")

// Snapshotter is implemented by stores that can write a consistent copy of
// themselves while open. dest must not exist yet.
type Snapshotter interface {
	Snapshot(dest string) error
}

// Snapshot writes a checkpoint of the database to the directory dest.
func (p *PebbleStore) Snapshot(dest string) error {
	if _, err := os.Lstat(dest); err == nil {
		return fmt.Errorf("snapshot destination %s already exists", dest)
	}
	if err := p.db.Checkpoint(dest, pebble.WithFlushedWAL()); err != nil {
		return fmt.Errorf("failed to checkpoint PebbleDB: %w", err)
	}
	return nil
}

// Snapshot writes a compacted copy of the database to the file dest.
func (s *SQLiteStore) Snapshot(dest string) error {
	if _, err := os.Lstat(dest); err == nil {
		return fmt.Errorf("snapshot destination %s already exists", dest)
	}
	if _, err := s.db.Exec(`VACUUM INTO ?`, dest); err != nil {
		return fmt.Errorf("failed to snapshot SQLite database: %w", err)
	}
	return nil
}

// Snapshot always fails; the mock store lives in memory.
func (m *MockStore) Snapshot(string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Snapshot"); err != nil {
		return err
	}
	return ErrSnapshotUnsupported
}
