// file: internal/database/mock_store.go
// version: 2.0.0
// guid: b2c3d4e5-f6a7-8b9c-0d1e-2f3a4b5c6d7e

package database

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store for tests.
//
// ErrorOnNext injects a one-shot error: the next call of the named method
// returns it and clears the entry. Calls records every method invocation in order.
type MockStore struct {
	mu sync.Mutex

	Works map[string]*Work
	Files map[string]*MediaFile

	ErrorOnNext map[string]error
	Calls       []string

	nextID int
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		Works:       make(map[string]*Work),
		Files:       make(map[string]*MediaFile),
		ErrorOnNext: make(map[string]error),
	}
}

// enter records the call and returns any injected error. Caller holds mu.
func (m *MockStore) enter(method string) error {
	m.Calls = append(m.Calls, method)
	if err, ok := m.ErrorOnNext[method]; ok {
		delete(m.ErrorOnNext, method)
		return err
	}
	return nil
}

// Called returns how many times method was invoked.
func (m *MockStore) Called(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c == method {
			n++
		}
	}
	return n
}

// id returns sortable deterministic ids so ordering matches creation order.
func (m *MockStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%06d", prefix, m.nextID)
}

func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enter("Close")
}

func (m *MockStore) GetAllWorks() ([]Work, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetAllWorks"); err != nil {
		return nil, err
	}
	works := make([]Work, 0, len(m.Works))
	for _, w := range m.Works {
		works = append(works, *w)
	}
	sort.Slice(works, func(i, j int) bool { return works[i].ID < works[j].ID })
	return works, nil
}

func (m *MockStore) GetWorkByID(id string) (*Work, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetWorkByID"); err != nil {
		return nil, err
	}
	w, ok := m.Works[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (m *MockStore) GetWorksByTitle(title string) ([]Work, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetWorksByTitle"); err != nil {
		return nil, err
	}
	var works []Work
	for _, w := range m.Works {
		if titleKey(w.Title) == titleKey(title) {
			works = append(works, *w)
		}
	}
	sort.Slice(works, func(i, j int) bool { return works[i].ID < works[j].ID })
	return works, nil
}

func (m *MockStore) CreateWork(work *Work) (*Work, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateWork"); err != nil {
		return nil, err
	}
	if work.ID == "" {
		work.ID = m.id("work")
	}
	if work.CreatedAt.IsZero() {
		work.CreatedAt = time.Now()
	}
	cp := *work
	m.Works[work.ID] = &cp
	return work, nil
}

func (m *MockStore) DeleteWork(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteWork"); err != nil {
		return err
	}
	if _, ok := m.Works[id]; !ok {
		return notFound("work", id)
	}
	delete(m.Works, id)
	return nil
}

func (m *MockStore) CountWorks() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CountWorks"); err != nil {
		return 0, err
	}
	return len(m.Works), nil
}

func (m *MockStore) GetAllFiles(limit, offset int) ([]MediaFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetAllFiles"); err != nil {
		return nil, err
	}
	files := make([]MediaFile, 0, len(m.Files))
	for _, f := range m.Files {
		files = append(files, *f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return paginate(files, limit, offset), nil
}

func (m *MockStore) GetFileByID(id string) (*MediaFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetFileByID"); err != nil {
		return nil, err
	}
	f, ok := m.Files[id]
	if !ok {
		return nil, nil
	}
	cp := *f
	return &cp, nil
}

func (m *MockStore) GetFileByPath(path string) (*MediaFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetFileByPath"); err != nil {
		return nil, err
	}
	if f := m.fileAt(path); f != nil {
		cp := *f
		return &cp, nil
	}
	return nil, nil
}

// fileAt finds the file tracked at path. Caller holds mu.
func (m *MockStore) fileAt(path string) *MediaFile {
	for _, f := range m.Files {
		if f.Path == path {
			return f
		}
	}
	return nil
}

func (m *MockStore) GetFilesByWorkID(workID string) ([]MediaFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetFilesByWorkID"); err != nil {
		return nil, err
	}
	files := []MediaFile{}
	for _, f := range m.Files {
		if f.WorkID == workID {
			files = append(files, *f)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ID < files[j].ID })
	return files, nil
}

func (m *MockStore) CreateFile(file *MediaFile) (*MediaFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateFile"); err != nil {
		return nil, err
	}
	if file.Path == "" {
		return nil, fmt.Errorf("media file path is required")
	}
	if file.WorkID == "" {
		return nil, fmt.Errorf("media file %s has no work", file.Path)
	}
	if m.fileAt(file.Path) != nil {
		return nil, fmt.Errorf("%w at %s", ErrPathTracked, file.Path)
	}
	if file.ID == "" {
		file.ID = m.id("file")
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now()
	}
	cp := *file
	m.Files[file.ID] = &cp
	return file, nil
}

func (m *MockStore) UpdateFile(id string, update *FileUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateFile"); err != nil {
		return err
	}
	f, ok := m.Files[id]
	if !ok {
		return notFound("media file", id)
	}
	if update != nil && update.Path != nil {
		if other := m.fileAt(*update.Path); other != nil && other.ID != id {
			return fmt.Errorf("%w at %s", ErrPathTracked, *update.Path)
		}
	}
	update.apply(f)
	now := time.Now()
	f.UpdatedAt = &now
	return nil
}

func (m *MockStore) DeleteFile(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteFile"); err != nil {
		return err
	}
	if _, ok := m.Files[id]; !ok {
		return notFound("media file", id)
	}
	delete(m.Files, id)
	return nil
}

func (m *MockStore) CountFiles() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CountFiles"); err != nil {
		return 0, err
	}
	return len(m.Files), nil
}

var _ Store = (*MockStore)(nil)
