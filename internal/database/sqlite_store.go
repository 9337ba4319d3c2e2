// file: internal/database/sqlite_store.go
// version: 2.0.0
// guid: 8b9c0d1e-2f3a-4b5c-6d7e-8f9a0b1c2d3e

package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const workSelectColumns = `id, title, year, media_type, created_at, updated_at`

const fileSelectColumns = `
	id, work_id, path, format, size, season, episode, created_at, updated_at
`

func scanWork(scanner rowScanner, work *Work) error {
	return scanner.Scan(
		&work.ID, &work.Title, &work.Year, &work.MediaType,
		&work.CreatedAt, &work.UpdatedAt,
	)
}

func scanFile(scanner rowScanner, file *MediaFile) error {
	return scanner.Scan(
		&file.ID, &file.WorkID, &file.Path, &file.Format, &file.Size,
		&file.Season, &file.Episode, &file.CreatedAt, &file.UpdatedAt,
	)
}

// SQLiteStore implements the Store interface using SQLite3
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	store := &SQLiteStore{db: db}

	// Create tables
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

// createTables creates all required tables
func (s *SQLiteStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS works (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		title_key TEXT NOT NULL,
		year INTEGER,
		media_type TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_works_title_key ON works(title_key);

	CREATE TABLE IF NOT EXISTS media_files (
		id TEXT PRIMARY KEY,
		work_id TEXT NOT NULL,
		path TEXT NOT NULL UNIQUE,
		format TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL DEFAULT 0,
		season INTEGER,
		episode INTEGER,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_media_files_work ON media_files(work_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Work operations

func (s *SQLiteStore) queryWorks(query string, args ...any) ([]Work, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var works []Work
	for rows.Next() {
		var work Work
		if err := scanWork(rows, &work); err != nil {
			return nil, err
		}
		works = append(works, work)
	}
	return works, rows.Err()
}

func (s *SQLiteStore) GetAllWorks() ([]Work, error) {
	return s.queryWorks(fmt.Sprintf(`SELECT %s FROM works ORDER BY id`, workSelectColumns))
}

func (s *SQLiteStore) GetWorkByID(id string) (*Work, error) {
	var work Work
	query := fmt.Sprintf(`SELECT %s FROM works WHERE id = ?`, workSelectColumns)
	err := scanWork(s.db.QueryRow(query, id), &work)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &work, nil
}

func (s *SQLiteStore) GetWorksByTitle(title string) ([]Work, error) {
	query := fmt.Sprintf(`SELECT %s FROM works WHERE title_key = ? ORDER BY id`, workSelectColumns)
	return s.queryWorks(query, titleKey(title))
}

func (s *SQLiteStore) CreateWork(work *Work) (*Work, error) {
	if work.ID == "" {
		id, err := newULID()
		if err != nil {
			return nil, err
		}
		work.ID = id
	}
	if work.CreatedAt.IsZero() {
		work.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO works (id, title, title_key, year, media_type, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		work.ID, work.Title, titleKey(work.Title), work.Year, work.MediaType, work.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return work, nil
}

func (s *SQLiteStore) DeleteWork(id string) error {
	result, err := s.db.Exec("DELETE FROM works WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireAffected(result, "work", id)
}

func (s *SQLiteStore) CountWorks() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM works").Scan(&count)
	return count, err
}

// MediaFile operations

func (s *SQLiteStore) queryFiles(query string, args ...any) ([]MediaFile, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []MediaFile
	for rows.Next() {
		var file MediaFile
		if err := scanFile(rows, &file); err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (s *SQLiteStore) GetAllFiles(limit, offset int) ([]MediaFile, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM media_files ORDER BY path LIMIT ? OFFSET ?`, fileSelectColumns)
	files, err := s.queryFiles(query, limit, offset)
	if err != nil {
		return nil, err
	}
	if files == nil {
		files = []MediaFile{}
	}
	return files, nil
}

func (s *SQLiteStore) getFile(column, value string) (*MediaFile, error) {
	var file MediaFile
	query := fmt.Sprintf(`SELECT %s FROM media_files WHERE %s = ?`, fileSelectColumns, column)
	err := scanFile(s.db.QueryRow(query, value), &file)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (s *SQLiteStore) GetFileByID(id string) (*MediaFile, error) {
	return s.getFile("id", id)
}

func (s *SQLiteStore) GetFileByPath(path string) (*MediaFile, error) {
	return s.getFile("path", path)
}

func (s *SQLiteStore) GetFilesByWorkID(workID string) ([]MediaFile, error) {
	query := fmt.Sprintf(`SELECT %s FROM media_files WHERE work_id = ? ORDER BY id`, fileSelectColumns)
	files, err := s.queryFiles(query, workID)
	if err != nil {
		return nil, err
	}
	if files == nil {
		files = []MediaFile{}
	}
	return files, nil
}

func (s *SQLiteStore) CreateFile(file *MediaFile) (*MediaFile, error) {
	if file.Path == "" {
		return nil, fmt.Errorf("media file path is required")
	}
	if file.WorkID == "" {
		return nil, fmt.Errorf("media file %s has no work", file.Path)
	}
	if file.ID == "" {
		id, err := newULID()
		if err != nil {
			return nil, err
		}
		file.ID = id
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO media_files (id, work_id, path, format, size, season, episode, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		file.ID, file.WorkID, file.Path, file.Format, file.Size,
		file.Season, file.Episode, file.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w at %s", ErrPathTracked, file.Path)
		}
		return nil, err
	}
	return file, nil
}

func (s *SQLiteStore) UpdateFile(id string, update *FileUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now()}
	if update != nil {
		if update.Path != nil {
			sets = append(sets, "path = ?")
			args = append(args, *update.Path)
		}
		if update.WorkID != nil {
			sets = append(sets, "work_id = ?")
			args = append(args, *update.WorkID)
		}
		if update.Size != nil {
			sets = append(sets, "size = ?")
			args = append(args, *update.Size)
		}
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE media_files SET %s WHERE id = ?`, strings.Join(sets, ", "))
	result, err := s.db.Exec(query, args...)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") && update.Path != nil {
			return fmt.Errorf("%w at %s", ErrPathTracked, *update.Path)
		}
		return err
	}
	return requireAffected(result, "media file", id)
}

func (s *SQLiteStore) DeleteFile(id string) error {
	result, err := s.db.Exec("DELETE FROM media_files WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireAffected(result, "media file", id)
}

func (s *SQLiteStore) CountFiles() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM media_files").Scan(&count)
	return count, err
}

func requireAffected(result sql.Result, kind, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return notFound(kind, id)
	}
	return nil
}
