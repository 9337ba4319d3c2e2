// file: internal/backup/backup.go
// version: 2.0.0
// guid: 8f9e0a1b-2c3d-4e5f-6a7b-8c9d0e1f2a3b

// Package backup archives consistent snapshots of the catalog database and
// restores them.
//
// An archive is a gzipped tar holding one top-level entry named "catalog":
// a directory for PebbleDB, a single file for SQLite. Each archive has a
// sha256sum-style sidecar file next to it.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jdfalk/catalog-watcher/internal/database"
	"github.com/jdfalk/catalog-watcher/internal/logging"
	"github.com/jdfalk/catalog-watcher/internal/metrics"
)

const (
	archiveRoot     = "catalog"
	archiveSuffix   = ".tar.gz"
	checksumSuffix  = ".sha256"
	timestampLayout = "20060102_150405.000"
)

var (
	// ErrChecksumMismatch is returned by Verify when an archive's contents
	// do not match its recorded checksum.
	ErrChecksumMismatch = errors.New("backup checksum mismatch")
	// ErrNoChecksum is returned by Verify when an archive has no sidecar.
	ErrNoChecksum = errors.New("backup has no checksum file")
	// ErrInvalidArchive is returned by Restore for entries outside the
	// catalog root.
	ErrInvalidArchive = errors.New("invalid backup archive")
)

// Info describes one backup archive.
type Info struct {
	Filename     string    `json:"filename"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	Checksum     string    `json:"checksum"`
	DatabaseType string    `json:"database_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// Config holds backup configuration
type Config struct {
	Dir string
	// MaxBackups is how many archives to keep; older ones are deleted after
	// each successful backup. Zero keeps everything.
	MaxBackups       int
	CompressionLevel int
	Logger           *slog.Logger
}

// DefaultConfig returns default backup configuration
func DefaultConfig() Config {
	return Config{
		Dir:              "backups",
		MaxBackups:       10,
		CompressionLevel: gzip.BestCompression,
	}
}

// Create snapshots store and writes the snapshot as a new archive in
// cfg.Dir. dbType is recorded in the archive name.
func Create(store database.Snapshotter, dbType string, cfg Config) (*Info, error) {
	info, err := create(store, dbType, cfg)
	metrics.IncBackup(err == nil)
	if err != nil {
		return nil, err
	}

	if err := prune(cfg.Dir, cfg.MaxBackups); err != nil {
		logging.OrDefault(cfg.Logger).Warn("failed to clean up old backups", "dir", cfg.Dir, "error", err)
	}
	return info, nil
}

func create(store database.Snapshotter, dbType string, cfg Config) (*Info, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	staging, err := os.MkdirTemp(cfg.Dir, ".snapshot-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	snapshot := filepath.Join(staging, archiveRoot)
	if err := store.Snapshot(snapshot); err != nil {
		return nil, err
	}

	now := time.Now()
	filename := fmt.Sprintf("catalog_%s_%s%s", dbType, now.Format(timestampLayout), archiveSuffix)
	path := filepath.Join(cfg.Dir, filename)
	partial := path + ".partial"

	checksum, err := writeArchive(partial, snapshot, cfg.CompressionLevel)
	if err != nil {
		os.Remove(partial)
		return nil, err
	}
	if err := os.Rename(partial, path); err != nil {
		os.Remove(partial)
		return nil, fmt.Errorf("failed to finalize backup: %w", err)
	}
	sidecar := fmt.Sprintf("%s  %s\n", checksum, filename)
	if err := os.WriteFile(path+checksumSuffix, []byte(sidecar), 0644); err != nil {
		return nil, fmt.Errorf("failed to write checksum: %w", err)
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat backup file: %w", err)
	}

	logging.OrDefault(cfg.Logger).Info("catalog backup created", "path", path, "size", stat.Size())
	return &Info{
		Filename:     filename,
		Path:         path,
		Size:         stat.Size(),
		Checksum:     checksum,
		DatabaseType: dbType,
		CreatedAt:    now,
	}, nil
}

// writeArchive tars and gzips src into path, returning the sha256 of the
// archive bytes.
func writeArchive(path, src string, level int) (string, error) {
	if level == 0 {
		level = gzip.DefaultCompression
	}
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}
	defer file.Close()

	hash := sha256.New()
	gzipWriter, err := gzip.NewWriterLevel(io.MultiWriter(file, hash), level)
	if err != nil {
		return "", fmt.Errorf("failed to create gzip writer: %w", err)
	}
	tarWriter := tar.NewWriter(gzipWriter)

	if err := addToArchive(tarWriter, src); err != nil {
		return "", fmt.Errorf("failed to add files to archive: %w", err)
	}

	// Close writers to ensure all data is flushed
	if err := tarWriter.Close(); err != nil {
		return "", fmt.Errorf("failed to close tar writer: %w", err)
	}
	if err := gzipWriter.Close(); err != nil {
		return "", fmt.Errorf("failed to close gzip writer: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close backup file: %w", err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// addToArchive writes src and everything below it under archiveRoot.
func addToArchive(tarWriter *tar.Writer, src string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if !fi.IsDir() && !fi.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(fi, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(filepath.Join(archiveRoot, rel))
		if fi.IsDir() {
			header.Name += "/"
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tarWriter, f)
		return err
	})
}

// List returns the archives in dir, oldest first. A missing dir has none.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "catalog_") || !strings.HasSuffix(name, archiveSuffix) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}

		path := filepath.Join(dir, name)
		checksum, _ := readChecksum(path)
		dbType, created := parseName(name)
		if created.IsZero() {
			created = fi.ModTime()
		}
		backups = append(backups, Info{
			Filename:     name,
			Path:         path,
			Size:         fi.Size(),
			Checksum:     checksum,
			DatabaseType: dbType,
			CreatedAt:    created,
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.Before(backups[j].CreatedAt)
	})
	return backups, nil
}

// parseName extracts the database type and timestamp from an archive name
// of the form catalog_<type>_<timestamp>.tar.gz.
func parseName(name string) (string, time.Time) {
	stem := strings.TrimSuffix(strings.TrimPrefix(name, "catalog_"), archiveSuffix)
	dbType, stamp, ok := strings.Cut(stem, "_")
	if !ok {
		return "unknown", time.Time{}
	}
	created, err := time.ParseInLocation(timestampLayout, stamp, time.Local)
	if err != nil {
		return dbType, time.Time{}
	}
	return dbType, created
}

func readChecksum(archive string) (string, error) {
	data, err := os.ReadFile(archive + checksumSuffix)
	if err != nil {
		return "", err
	}
	sum, _, _ := strings.Cut(strings.TrimSpace(string(data)), " ")
	return sum, nil
}

// Verify checks archive against its checksum sidecar.
func Verify(archive string) error {
	want, err := readChecksum(archive)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", archive, ErrNoChecksum)
		}
		return err
	}
	got, err := fileChecksum(archive)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%s: %w", archive, ErrChecksumMismatch)
	}
	return nil
}

func fileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// Delete removes an archive and its checksum sidecar.
func Delete(archive string) error {
	if err := os.Remove(archive); err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
	}
	if err := os.Remove(archive + checksumSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete backup checksum: %w", err)
	}
	return nil
}

// prune deletes the oldest archives so that at most keep remain.
func prune(dir string, keep int) error {
	if keep <= 0 {
		return nil
	}
	backups, err := List(dir)
	if err != nil {
		return err
	}
	var errs []error
	for len(backups) > keep {
		if err := Delete(backups[0].Path); err != nil {
			errs = append(errs, err)
		}
		backups = backups[1:]
	}
	return errors.Join(errs...)
}
