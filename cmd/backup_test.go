// file: cmd/backup_test.go
// version: 1.0.0
// guid: 2d4f6a8c-0e1b-4c3d-8f5a-7b9c1d3e5f0a

package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jdfalk/catalog-watcher/internal/backup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backupSetup(t *testing.T) (cfgPath, backupDir, dbPath, library string) {
	t.Helper()
	backupDir = filepath.Join(t.TempDir(), "backups")
	dbPath = filepath.Join(t.TempDir(), "catalog.pebble")
	library = t.TempDir()
	cfgPath = writeConfig(t, "backup_dir: "+backupDir+"\nbackup_max: 3\n")
	return cfgPath, backupDir, dbPath, library
}

func TestBackupCreateListVerifyRestore(t *testing.T) {
	cfgPath, backupDir, dbPath, library := backupSetup(t)
	touch(t, filepath.Join(library, "Heat (1995).mkv"))
	_, err := run(t, "--config", cfgPath, "--library", "movie="+library, "--db", dbPath, "scan")
	require.NoError(t, err)

	out, err := run(t, "--config", cfgPath, "--db", dbPath, "backup", "create")
	require.NoError(t, err)
	assert.Contains(t, out, "Created "+backupDir)

	backups, err := backup.List(backupDir)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	archive := backups[0].Path

	out, err = run(t, "--config", cfgPath, "--db", dbPath, "backup", "list")
	require.NoError(t, err)
	assert.Contains(t, out, backups[0].Filename)
	assert.Contains(t, out, "pebble")

	out, err = run(t, "--config", cfgPath, "--db", dbPath, "backup", "verify", archive)
	require.NoError(t, err)
	assert.Contains(t, out, "OK")

	target := filepath.Join(t.TempDir(), "restored.pebble")
	out, err = run(t, "--config", cfgPath, "--db", dbPath, "backup", "restore", archive, "--target", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Restored")

	works, files := countCatalog(t, target)
	assert.Equal(t, 1, works)
	assert.Equal(t, 1, files)
}

func TestBackupListEmpty(t *testing.T) {
	cfgPath, backupDir, dbPath, _ := backupSetup(t)

	out, err := run(t, "--config", cfgPath, "--db", dbPath, "backup", "list")

	require.NoError(t, err)
	assert.Contains(t, out, "No backups in "+backupDir)
}

func TestBackupVerifyDetectsTampering(t *testing.T) {
	cfgPath, backupDir, dbPath, _ := backupSetup(t)
	_, err := run(t, "--config", cfgPath, "--db", dbPath, "backup", "create")
	require.NoError(t, err)
	backups, err := backup.List(backupDir)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	require.NoError(t, os.WriteFile(backups[0].Path, []byte("garbage"), 0o644))

	_, err = run(t, "--config", cfgPath, "--db", dbPath, "backup", "verify", backups[0].Path)
	assert.ErrorIs(t, err, backup.ErrChecksumMismatch)

	_, err = run(t, "--config", cfgPath, "--db", dbPath, "backup", "restore", backups[0].Path,
		"--target", filepath.Join(t.TempDir(), "restored.pebble"))
	assert.ErrorIs(t, err, backup.ErrChecksumMismatch)
}

func TestBackupRestoreDefaultsToDatabasePath(t *testing.T) {
	cfgPath, backupDir, dbPath, _ := backupSetup(t)
	_, err := run(t, "--config", cfgPath, "--db", dbPath, "backup", "create")
	require.NoError(t, err)
	backups, err := backup.List(backupDir)
	require.NoError(t, err)
	require.Len(t, backups, 1)

	_, err = run(t, "--config", cfgPath, "--db", dbPath, "backup", "restore", backups[0].Path)
	require.Error(t, err, "the live database is never overwritten")
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, os.RemoveAll(dbPath))
	_, err = run(t, "--config", cfgPath, "--db", dbPath, "backup", "restore", backups[0].Path)
	require.NoError(t, err)
	assert.DirExists(t, dbPath)
}
