// file: internal/database/store.go
// version: 3.0.0
// guid: 8a9b0c1d-2e3f-4a5b-6c7d-8e9f0a1b2c3d

package database

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"
)

// ErrNotFound is wrapped by mutations addressed at a record that does not exist.
// Lookups report a miss as (nil, nil) instead.
var ErrNotFound = errors.New("not found")

// ErrPathTracked is wrapped when a file record would take a path another
// record already holds.
var ErrPathTracked = errors.New("media file already tracked")

// Store defines the catalog operations the daemon, scanner and status server use.
// This abstraction allows us to support both PebbleDB (default) and SQLite3 (opt-in)
type Store interface {
	// Lifecycle
	Close() error

	// Works (logical titles)
	GetAllWorks() ([]Work, error)
	GetWorkByID(id string) (*Work, error)       // nil, nil when missing
	GetWorksByTitle(title string) ([]Work, error) // case-insensitive exact title
	CreateWork(work *Work) (*Work, error)       // Generates ULID if empty
	DeleteWork(id string) error                 // ErrNotFound when missing
	CountWorks() (int, error)

	// Media files (physical files realizing a work)
	GetAllFiles(limit, offset int) ([]MediaFile, error)
	GetFileByID(id string) (*MediaFile, error)     // nil, nil when missing
	GetFileByPath(path string) (*MediaFile, error) // exact match; nil, nil when missing
	GetFilesByWorkID(workID string) ([]MediaFile, error)
	CreateFile(file *MediaFile) (*MediaFile, error) // Generates ULID if empty
	UpdateFile(id string, update *FileUpdate) error // ErrNotFound when missing
	DeleteFile(id string) error                     // ErrNotFound when missing
	CountFiles() (int, error)
}

// Work represents a logical title that one or more media files realize.
// A work with no files is a ghost and is purged by the reconciler.
type Work struct {
	ID        string     `json:"id"` // ULID format
	Title     string     `json:"title"`
	Year      *int       `json:"year,omitempty"`
	MediaType string     `json:"media_type"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// MediaFile represents one physical file on disk belonging to exactly one work.
// Path is the join key between filesystem events and catalog rows.
type MediaFile struct {
	ID        string     `json:"id"` // ULID format
	WorkID    string     `json:"work_id"`
	Path      string     `json:"path"`
	Format    string     `json:"format,omitempty"`
	Size      int64      `json:"size"`
	Season    *int       `json:"season,omitempty"`
	Episode   *int       `json:"episode,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// FileUpdate is a partial update of a media file. Nil fields are left untouched.
type FileUpdate struct {
	Path   *string
	WorkID *string
	Size   *int64
}

// apply writes the non-nil fields of u onto f.
func (u *FileUpdate) apply(f *MediaFile) {
	if u == nil {
		return
	}
	if u.Path != nil {
		f.Path = *u.Path
	}
	if u.WorkID != nil {
		f.WorkID = *u.WorkID
	}
	if u.Size != nil {
		f.Size = *u.Size
	}
}

// Global store instance
var GlobalStore Store

// InitializeStore initializes the database store based on configuration
func InitializeStore(dbType, path string, enableSQLite bool) error {
	store, err := OpenStore(dbType, path, enableSQLite)
	if err != nil {
		return err
	}
	GlobalStore = store
	return nil
}

// OpenStore opens the store selected by dbType without touching GlobalStore.
func OpenStore(dbType, path string, enableSQLite bool) (Store, error) {
	switch dbType {
	case "sqlite", "sqlite3":
		if !enableSQLite {
			return nil, fmt.Errorf("SQLite3 is not enabled. To use SQLite3, you must explicitly enable it with --enable-sqlite3-i-know-the-risks or set 'enable_sqlite3_i_know_the_risks: true' in your config file. PebbleDB is the recommended database for production use")
		}
		store, err := NewSQLiteStore(path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		return store, nil
	case "pebble", "":
		// PebbleDB is the default
		store, err := NewPebbleStore(path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PebbleDB store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s (supported: pebble, sqlite)", dbType)
	}
}

// CloseStore closes the global store
func CloseStore() error {
	if GlobalStore == nil {
		return nil
	}
	err := GlobalStore.Close()
	GlobalStore = nil
	return err
}

func newULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// titleKey is the case-insensitive form used by GetWorksByTitle.
func titleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}
