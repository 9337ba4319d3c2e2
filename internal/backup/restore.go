// file: internal/backup/restore.go
// version: 1.0.0
// guid: 6a8c0e2f-4b1d-4e3a-9c5f-8d0e2a4c6b7e

package backup

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Restore unpacks archive into target, which must not exist. With verify
// set the archive is checked against its sidecar first. Nothing is left at
// target when Restore fails.
func Restore(archive, target string, verify bool) error {
	if verify {
		if err := Verify(archive); err != nil {
			return err
		}
	}
	if _, err := os.Lstat(target); err == nil {
		return fmt.Errorf("restore target %s already exists", target)
	}
	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("failed to create restore directory: %w", err)
	}

	staging, err := os.MkdirTemp(parent, ".restore-*")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := extract(archive, staging); err != nil {
		return err
	}
	restored := filepath.Join(staging, archiveRoot)
	if _, err := os.Lstat(restored); err != nil {
		return fmt.Errorf("%w: no %s entry", ErrInvalidArchive, archiveRoot)
	}
	if err := os.Rename(restored, target); err != nil {
		return fmt.Errorf("failed to move restored database into place: %w", err)
	}
	return nil
}

func extract(archive, dest string) error {
	file, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer file.Close()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read backup: %w", err)
		}

		name, err := entryName(header.Name)
		if err != nil {
			return err
		}
		out := filepath.Join(dest, filepath.FromSlash(name))

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(out, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(out, tarReader, header.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unsupported entry %s", ErrInvalidArchive, header.Name)
		}
	}
}

// entryName cleans an archive entry name and rejects anything outside the
// catalog root.
func entryName(raw string) (string, error) {
	name := path.Clean(strings.TrimSuffix(raw, "/"))
	if name != archiveRoot && !strings.HasPrefix(name, archiveRoot+"/") {
		return "", fmt.Errorf("%w: unexpected entry %s", ErrInvalidArchive, raw)
	}
	return name, nil
}

func writeEntry(out string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0644
	}
	f, err := os.OpenFile(out, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
