// file: internal/database/pebble_store.go
// version: 2.0.0
// guid: 0c1d2e3f-4a5b-6c7d-8e9f-0a1b2c3d4e5f

package database

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/pebble/v2"
)

// PebbleStore implements the Store interface using PebbleDB (LSM key-value store)
//
// Key Schema:
// - work:<id>                          -> Work JSON
// - index:work:title:<title>:<id>      -> work_id (case-folded title lookups)
// - file:<id>                          -> MediaFile JSON
// - index:file:path:<path>             -> file_id (unique path lookups)
// - index:file:work:<work_id>:<id>     -> file_id (files of a work)
type PebbleStore struct {
	db *pebble.DB
	// mu serializes read-modify-write mutations so index checks stay valid
	// until the batch commits.
	mu sync.Mutex
}

const (
	workPrefix      = "work:"
	filePrefix      = "file:"
	titleIndexFmt   = "index:work:title:%s:"
	pathIndexFmt    = "index:file:path:%s"
	workFileIdxFmt  = "index:file:work:%s:"
	workFileIdxFull = "index:file:work:%s:%s"
)

// NewPebbleStore creates a new PebbleDB store
func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open PebbleDB: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

// Close closes the database
func (p *PebbleStore) Close() error {
	return p.db.Close()
}

// prefixBounds returns iterator bounds covering every key starting with prefix.
func prefixBounds(prefix string) *pebble.IterOptions {
	lower := []byte(prefix)
	upper := make([]byte, len(lower), len(lower)+1)
	copy(upper, lower)
	upper = append(upper, 0xFF)
	return &pebble.IterOptions{LowerBound: lower, UpperBound: upper}
}

// getJSON loads key into v. It reports false when the key is absent.
func (p *PebbleStore) getJSON(key string, v any) (bool, error) {
	value, closer, err := p.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer closer.Close()
	if err := json.Unmarshal(value, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// getString loads a raw index value. It reports "" when the key is absent.
func (p *PebbleStore) getString(key string) (string, error) {
	value, closer, err := p.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer closer.Close()
	return string(value), nil
}

// indexValues returns the values of every key under prefix in key order.
func (p *PebbleStore) indexValues(prefix string) ([]string, error) {
	iter, err := p.db.NewIter(prefixBounds(prefix))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var ids []string
	for iter.First(); iter.Valid(); iter.Next() {
		ids = append(ids, string(iter.Value()))
	}
	return ids, iter.Error()
}

// Work operations

func (p *PebbleStore) GetAllWorks() ([]Work, error) {
	iter, err := p.db.NewIter(prefixBounds(workPrefix))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var works []Work
	for iter.First(); iter.Valid(); iter.Next() {
		var work Work
		if err := json.Unmarshal(iter.Value(), &work); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", iter.Key(), err)
		}
		works = append(works, work)
	}
	return works, iter.Error()
}

func (p *PebbleStore) GetWorkByID(id string) (*Work, error) {
	var work Work
	ok, err := p.getJSON(workPrefix+id, &work)
	if err != nil || !ok {
		return nil, err
	}
	return &work, nil
}

func (p *PebbleStore) GetWorksByTitle(title string) ([]Work, error) {
	ids, err := p.indexValues(fmt.Sprintf(titleIndexFmt, titleKey(title)))
	if err != nil {
		return nil, err
	}
	works := make([]Work, 0, len(ids))
	for _, id := range ids {
		work, err := p.GetWorkByID(id)
		if err != nil {
			return nil, err
		}
		if work != nil {
			works = append(works, *work)
		}
	}
	return works, nil
}

func (p *PebbleStore) CreateWork(work *Work) (*Work, error) {
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

	data, err := json.Marshal(work)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	batch := p.db.NewBatch()
	defer batch.Close()
	if err := batch.Set([]byte(workPrefix+work.ID), data, nil); err != nil {
		return nil, err
	}
	titleIdx := fmt.Sprintf(titleIndexFmt, titleKey(work.Title)) + work.ID
	if err := batch.Set([]byte(titleIdx), []byte(work.ID), nil); err != nil {
		return nil, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return nil, err
	}
	return work, nil
}

func (p *PebbleStore) DeleteWork(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	work, err := p.GetWorkByID(id)
	if err != nil {
		return err
	}
	if work == nil {
		return notFound("work", id)
	}

	batch := p.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete([]byte(workPrefix+id), nil); err != nil {
		return err
	}
	titleIdx := fmt.Sprintf(titleIndexFmt, titleKey(work.Title)) + id
	if err := batch.Delete([]byte(titleIdx), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (p *PebbleStore) CountWorks() (int, error) {
	works, err := p.GetAllWorks()
	if err != nil {
		return 0, err
	}
	return len(works), nil
}

// MediaFile operations

func (p *PebbleStore) GetAllFiles(limit, offset int) ([]MediaFile, error) {
	iter, err := p.db.NewIter(prefixBounds(filePrefix))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var files []MediaFile
	for iter.First(); iter.Valid(); iter.Next() {
		var file MediaFile
		if err := json.Unmarshal(iter.Value(), &file); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", iter.Key(), err)
		}
		files = append(files, file)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	// Paths read better than ULIDs in listings.
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return paginate(files, limit, offset), nil
}

func (p *PebbleStore) GetFileByID(id string) (*MediaFile, error) {
	var file MediaFile
	ok, err := p.getJSON(filePrefix+id, &file)
	if err != nil || !ok {
		return nil, err
	}
	return &file, nil
}

func (p *PebbleStore) GetFileByPath(path string) (*MediaFile, error) {
	id, err := p.getString(fmt.Sprintf(pathIndexFmt, path))
	if err != nil || id == "" {
		return nil, err
	}
	return p.GetFileByID(id)
}

func (p *PebbleStore) GetFilesByWorkID(workID string) ([]MediaFile, error) {
	ids, err := p.indexValues(fmt.Sprintf(workFileIdxFmt, workID))
	if err != nil {
		return nil, err
	}
	files := make([]MediaFile, 0, len(ids))
	for _, id := range ids {
		file, err := p.GetFileByID(id)
		if err != nil {
			return nil, err
		}
		if file != nil {
			files = append(files, *file)
		}
	}
	return files, nil
}

func (p *PebbleStore) CreateFile(file *MediaFile) (*MediaFile, error) {
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

	p.mu.Lock()
	defer p.mu.Unlock()

	existing, err := p.getString(fmt.Sprintf(pathIndexFmt, file.Path))
	if err != nil {
		return nil, err
	}
	if existing != "" {
		return nil, fmt.Errorf("%w at %s", ErrPathTracked, file.Path)
	}

	batch := p.db.NewBatch()
	defer batch.Close()
	if err := p.writeFile(batch, file); err != nil {
		return nil, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return nil, err
	}
	return file, nil
}

// writeFile stages the record and both indexes of file.
func (p *PebbleStore) writeFile(batch *pebble.Batch, file *MediaFile) error {
	data, err := json.Marshal(file)
	if err != nil {
		return err
	}
	if err := batch.Set([]byte(filePrefix+file.ID), data, nil); err != nil {
		return err
	}
	if err := batch.Set([]byte(fmt.Sprintf(pathIndexFmt, file.Path)), []byte(file.ID), nil); err != nil {
		return err
	}
	return batch.Set([]byte(fmt.Sprintf(workFileIdxFull, file.WorkID, file.ID)), []byte(file.ID), nil)
}

// unindexFile stages removal of both indexes of file.
func (p *PebbleStore) unindexFile(batch *pebble.Batch, file *MediaFile) error {
	if err := batch.Delete([]byte(fmt.Sprintf(pathIndexFmt, file.Path)), nil); err != nil {
		return err
	}
	return batch.Delete([]byte(fmt.Sprintf(workFileIdxFull, file.WorkID, file.ID)), nil)
}

func (p *PebbleStore) UpdateFile(id string, update *FileUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	file, err := p.GetFileByID(id)
	if err != nil {
		return err
	}
	if file == nil {
		return notFound("media file", id)
	}

	if update != nil && update.Path != nil && *update.Path != file.Path {
		owner, err := p.getString(fmt.Sprintf(pathIndexFmt, *update.Path))
		if err != nil {
			return err
		}
		if owner != "" && owner != id {
			return fmt.Errorf("%w at %s", ErrPathTracked, *update.Path)
		}
	}

	batch := p.db.NewBatch()
	defer batch.Close()
	if err := p.unindexFile(batch, file); err != nil {
		return err
	}
	update.apply(file)
	now := time.Now()
	file.UpdatedAt = &now
	if err := p.writeFile(batch, file); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (p *PebbleStore) DeleteFile(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	file, err := p.GetFileByID(id)
	if err != nil {
		return err
	}
	if file == nil {
		return notFound("media file", id)
	}

	batch := p.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete([]byte(filePrefix+id), nil); err != nil {
		return err
	}
	if err := p.unindexFile(batch, file); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (p *PebbleStore) CountFiles() (int, error) {
	iter, err := p.db.NewIter(prefixBounds(filePrefix))
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	count := 0
	for iter.First(); iter.Valid(); iter.Next() {
		count++
	}
	return count, iter.Error()
}

// paginate applies limit and offset to items. A limit <= 0 means no limit.
func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
