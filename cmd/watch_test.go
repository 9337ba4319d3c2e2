// file: cmd/watch_test.go
// version: 1.0.0
// guid: 0b2d4f6a-8c1e-4a3b-9d5f-7e9a1c3e5b7d

package cmd

import (
	"testing"
	"time"

	"github.com/jdfalk/catalog-watcher/internal/config"
	"github.com/jdfalk/catalog-watcher/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// plainStore hides every method beyond database.Store.
type plainStore struct{ database.Store }

func TestScheduledSnapshotter(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		snap, err := scheduledSnapshotter(config.Config{}, plainStore{database.NewMockStore()})
		require.NoError(t, err)
		assert.Nil(t, snap)
	})

	t.Run("enabled", func(t *testing.T) {
		store := database.NewMockStore()
		snap, err := scheduledSnapshotter(config.Config{BackupInterval: time.Hour}, store)
		require.NoError(t, err)
		assert.Same(t, store, snap)
	})

	t.Run("store without snapshots", func(t *testing.T) {
		_, err := scheduledSnapshotter(config.Config{BackupInterval: time.Hour}, plainStore{database.NewMockStore()})
		assert.ErrorIs(t, err, database.ErrSnapshotUnsupported)
	})
}
