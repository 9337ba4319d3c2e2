// file: cmd/root_test.go
// version: 2.0.0
// guid: 7eae8d0c-7fda-4f45-8f73-5d1e0c7c9f1a

package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jdfalk/catalog-watcher/internal/config"
	"github.com/jdfalk/catalog-watcher/internal/database"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetCommandState clears flag values, viper state and contexts left over
// from a previous Execute of the shared command tree.
func resetCommandState(t *testing.T, ctx context.Context) {
	t.Helper()
	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				require.NoError(t, sv.Replace(nil))
			} else {
				require.NoError(t, f.Value.Set(f.DefValue))
			}
			f.Changed = false
		})
	}
	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		reset(c.Flags())
		reset(c.PersistentFlags())
		c.SetContext(ctx)
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(rootCmd)

	viper.Reset()
	bindFlags(rootCmd.PersistentFlags())
	cfgFile = ""
}

// prepare resets the command tree and wires its output to buffers.
func prepare(t *testing.T, ctx context.Context, stdin string, args ...string) (stdout, stderr *bytes.Buffer) {
	t.Helper()
	origConfig := config.AppConfig
	t.Cleanup(func() {
		config.AppConfig = origConfig
		database.CloseStore()
	})
	t.Setenv("HOME", t.TempDir())

	resetCommandState(t, ctx)
	stdout, stderr = &bytes.Buffer{}, &bytes.Buffer{}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	return stdout, stderr
}

// execute runs the CLI with args and returns stdout, stderr and the error.
func execute(t *testing.T, ctx context.Context, stdin string, args ...string) (string, string, error) {
	t.Helper()
	stdout, stderr := prepare(t, ctx, stdin, args...)
	err := rootCmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := execute(t, context.Background(), "", args...)
	return out, err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("media"), 0o644))
}

func countCatalog(t *testing.T, dbPath string) (works, files int) {
	t.Helper()
	store, err := database.OpenStore("pebble", dbPath, false)
	require.NoError(t, err)
	defer store.Close()
	works, err = store.CountWorks()
	require.NoError(t, err)
	files, err = store.CountFiles()
	require.NoError(t, err)
	return works, files
}

func TestInitConfigCreatesDatabaseDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "db", "catalog.pebble")

	_, err := run(t, "--db", dbPath, "config", "show")

	require.NoError(t, err)
	assert.DirExists(t, filepath.Dir(dbPath))
	assert.Equal(t, dbPath, config.AppConfig.DatabasePath)
}

func TestMissingExplicitConfigFails(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "config", "show")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestConfigFileAndFlagsMerge(t *testing.T) {
	movies := t.TempDir()
	books := t.TempDir()
	cfg := writeConfig(t, `
libraries:
  - name: Films
    path: `+movies+`
    media_type: movie
debounce: 250ms
status_addr: ":9090"
`)

	out, err := run(t, "--config", cfg, "--library", "audiobook="+books, "--db", filepath.Join(t.TempDir(), "c.pebble"), "config", "show")

	require.NoError(t, err)
	require.Len(t, config.AppConfig.Libraries, 2)
	assert.Equal(t, "Films", config.AppConfig.Libraries[0].Name)
	assert.Equal(t, books, config.AppConfig.Libraries[1].Path)
	assert.Equal(t, 250*time.Millisecond, config.AppConfig.Debounce)
	assert.Equal(t, ":9090", config.AppConfig.StatusAddr)
	assert.Contains(t, out, "media_type: audiobook")
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("CATALOG_WATCHER_LOG_LEVEL", "debug")

	out, err := run(t, "--db", filepath.Join(t.TempDir(), "c.pebble"), "config", "show")

	require.NoError(t, err)
	assert.Contains(t, out, "log_level: debug")
}

func TestConfigShowMasksPasswordHash(t *testing.T) {
	cfg := writeConfig(t, `
status_username: ops
status_password_hash: "$2a$10$abcdefghijklmnopqrstuv"
`)

	out, err := run(t, "--config", cfg, "--db", filepath.Join(t.TempDir(), "c.pebble"), "config", "show")

	require.NoError(t, err)
	assert.Contains(t, out, "status_username: ops")
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, "abcdefghijklmnopqrstuv")
}

func TestCommandsRequireLibraries(t *testing.T) {
	for _, command := range []string{"watch", "scan", "prune"} {
		t.Run(command, func(t *testing.T) {
			_, err := run(t, "--db", filepath.Join(t.TempDir(), "c.pebble"), command)
			assert.ErrorIs(t, err, config.ErrNoLibraries)
		})
	}
}

func TestSQLiteRequiresOptIn(t *testing.T) {
	_, err := run(t,
		"--library", "movie="+t.TempDir(),
		"--db-type", "sqlite",
		"--db", filepath.Join(t.TempDir(), "c.db"),
		"scan")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "--enable-sqlite3-i-know-the-risks")
}

func TestScanThenPrune(t *testing.T) {
	library := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "catalog.pebble")
	touch(t, filepath.Join(library, "Heat (1995).mkv"))
	touch(t, filepath.Join(library, "Alien (1979)", "Alien (1979).mp4"))
	touch(t, filepath.Join(library, "notes.txt"))

	out, err := run(t, "--library", "movie="+library, "--db", dbPath, "scan")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 2 files: 2 mounted, 0 unchanged, 0 failed")

	works, files := countCatalog(t, dbPath)
	assert.Equal(t, 2, works)
	assert.Equal(t, 2, files)

	out, err = run(t, "--library", "movie="+library, "--db", dbPath, "scan")
	require.NoError(t, err)
	assert.Contains(t, out, "0 mounted, 2 unchanged")

	require.NoError(t, os.Remove(filepath.Join(library, "Heat (1995).mkv")))

	out, err = run(t, "--library", "movie="+library, "--db", dbPath, "prune")
	require.NoError(t, err)
	assert.Contains(t, out, "checked 2 files, removed 1 files and 1 works, 0 failed")

	works, files = countCatalog(t, dbPath)
	assert.Equal(t, 1, works)
	assert.Equal(t, 1, files)
}

func TestWatchFailsForMissingLibraryRoot(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone")

	_, err := run(t, "--library", "movie="+missing, "--db", filepath.Join(t.TempDir(), "c.pebble"), "watch")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to watch library")
	assert.Contains(t, err.Error(), missing)
}

func TestWatchMountsNewFilesUntilCancelled(t *testing.T) {
	library := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "catalog.pebble")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	prepare(t, ctx, "",
		"--library", "movie="+library,
		"--db", dbPath,
		"--debounce", "50ms",
		"watch")
	done := make(chan error, 1)
	go func() { done <- rootCmd.ExecuteContext(ctx) }()

	// The store is locked while the daemon runs, so progress is timed, not polled.
	time.Sleep(500 * time.Millisecond)
	touch(t, filepath.Join(library, "Heat (1995).mkv"))
	time.Sleep(time.Second)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}

	works, files := countCatalog(t, dbPath)
	assert.Equal(t, 1, works)
	assert.Equal(t, 1, files)
}
