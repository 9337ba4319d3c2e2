// file: internal/reconciler/reconciler_test.go
// version: 1.0.0
// guid: 4b6d8f0a-2c1e-4d3f-a5b7-9c8d0e1f2a3b

package reconciler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jdfalk/catalog-watcher/internal/config"
	"github.com/jdfalk/catalog-watcher/internal/database"
	"github.com/jdfalk/catalog-watcher/internal/mediatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockIngestor struct {
	mock.Mock
}

func (m *mockIngestor) Mount(ctx context.Context, path string) error {
	return m.Called(ctx, path).Error(0)
}

func (m *mockIngestor) Scan(ctx context.Context, path string) {
	m.Called(ctx, path)
}

func (m *mockIngestor) FixOrphans(ctx context.Context) {
	m.Called(ctx)
}

// methods returns the ingestor methods invoked, in order.
func (m *mockIngestor) methods() []string {
	var out []string
	for _, c := range m.Calls {
		out = append(out, c.Method)
	}
	return out
}

type fixture struct {
	root     string
	store    *database.MockStore
	ingestor *mockIngestor
	logs     *bytes.Buffer
	r        *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f := &fixture{
		root:     root,
		store:    database.NewMockStore(),
		ingestor: &mockIngestor{},
		logs:     logs,
	}
	lib := config.Library{Name: "Movies", Path: root, MediaType: mediatypes.Movie}
	f.r = New(logger, f.store, f.ingestor, lib)
	return f
}

// track records a work owning one file per path.
func (f *fixture) track(t *testing.T, title string, paths ...string) (*database.Work, []*database.MediaFile) {
	t.Helper()
	work, err := f.store.CreateWork(&database.Work{Title: title, MediaType: string(mediatypes.Movie)})
	require.NoError(t, err)
	var files []*database.MediaFile
	for _, p := range paths {
		file, err := f.store.CreateFile(&database.MediaFile{WorkID: work.ID, Path: p, Format: "mkv", Size: 7})
		require.NoError(t, err)
		files = append(files, file)
	}
	f.store.Calls = nil
	return work, files
}

func (f *fixture) mutations() []string {
	var out []string
	for _, c := range f.store.Calls {
		switch c {
		case "DeleteFile", "DeleteWork", "UpdateFile", "CreateFile", "CreateWork":
			out = append(out, c)
		}
	}
	return out
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("media"), 0o644))
}

// Create

func TestHandleCreateSupportedFileMountsThenFixesOrphans(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.root, "Foo.mkv")
	writeFile(t, path)
	f.ingestor.On("Mount", mock.Anything, path).Return(nil).Once()
	f.ingestor.On("FixOrphans", mock.Anything).Once()

	f.r.HandleCreate(context.Background(), path)

	f.ingestor.AssertExpectations(t)
	f.ingestor.AssertNotCalled(t, "Scan", mock.Anything, mock.Anything)
	assert.Equal(t, []string{"Mount", "FixOrphans"}, f.ingestor.methods())
}

func TestHandleCreateMatchesExtensionCaseInsensitively(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.root, "Foo.MKV")
	writeFile(t, path)
	f.ingestor.On("Mount", mock.Anything, path).Return(nil).Once()
	f.ingestor.On("FixOrphans", mock.Anything).Once()

	f.r.HandleCreate(context.Background(), path)

	f.ingestor.AssertExpectations(t)
}

func TestHandleCreateMountFailureSkipsOrphanFix(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.root, "Broken.mkv")
	writeFile(t, path)
	f.ingestor.On("Mount", mock.Anything, path).Return(errors.New("probe failed")).Once()

	f.r.HandleCreate(context.Background(), path)

	f.ingestor.AssertExpectations(t)
	f.ingestor.AssertNotCalled(t, "FixOrphans", mock.Anything)
	assert.Contains(t, f.logs.String(), "level=WARN")
	assert.Contains(t, f.logs.String(), "probe failed")
}

func TestHandleCreateUnsupportedFileOnlyFixesOrphans(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.root, "poster.jpg")
	writeFile(t, path)
	f.ingestor.On("FixOrphans", mock.Anything).Once()

	f.r.HandleCreate(context.Background(), path)

	f.ingestor.AssertExpectations(t)
	assert.Equal(t, []string{"FixOrphans"}, f.ingestor.methods())
}

func TestHandleCreateDirectoryScansThenFixesOrphans(t *testing.T) {
	f := newFixture(t)
	dir := filepath.Join(f.root, "Heat (1995).mkv") // a directory, despite the name
	require.NoError(t, os.Mkdir(dir, 0o755))
	f.ingestor.On("Scan", mock.Anything, dir).Once()
	f.ingestor.On("FixOrphans", mock.Anything).Once()

	f.r.HandleCreate(context.Background(), dir)

	f.ingestor.AssertExpectations(t)
	f.ingestor.AssertNotCalled(t, "Mount", mock.Anything, mock.Anything)
	assert.Equal(t, []string{"Scan", "FixOrphans"}, f.ingestor.methods())
}

func TestHandleCreateVanishedPathOnlyFixesOrphans(t *testing.T) {
	f := newFixture(t)
	f.ingestor.On("FixOrphans", mock.Anything).Once()

	f.r.HandleCreate(context.Background(), filepath.Join(f.root, "gone.mkv"))

	assert.Equal(t, []string{"FixOrphans"}, f.ingestor.methods())
}

func TestHandleCreateUsesLibraryMediaType(t *testing.T) {
	f := newFixture(t)
	f.r = New(nil, f.store, f.ingestor, config.Library{Path: f.root, MediaType: mediatypes.Audiobook})
	video := filepath.Join(f.root, "Foo.mkv")
	audio := filepath.Join(f.root, "Dune.m4b")
	writeFile(t, video)
	writeFile(t, audio)
	f.ingestor.On("Mount", mock.Anything, audio).Return(nil).Once()
	f.ingestor.On("FixOrphans", mock.Anything).Twice()

	f.r.HandleCreate(context.Background(), video)
	f.r.HandleCreate(context.Background(), audio)

	f.ingestor.AssertExpectations(t)
	f.ingestor.AssertNotCalled(t, "Mount", mock.Anything, video)
}

// Remove

func TestHandleRemoveKeepsWorkWithRemainingFiles(t *testing.T) {
	f := newFixture(t)
	foo := filepath.Join(f.root, "Foo.mkv")
	other := filepath.Join(f.root, "Foo.part2.mkv")
	work, files := f.track(t, "Foo", foo, other)

	f.r.HandleRemove(context.Background(), foo)

	gone, err := f.store.GetFileByPath(foo)
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := f.store.GetWorkByID(work.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept)
	remaining, err := f.store.GetFilesByWorkID(work.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, files[1].ID, remaining[0].ID)
	assert.Equal(t, []string{"DeleteFile"}, f.mutations())
}

func TestHandleRemovePurgesGhostWork(t *testing.T) {
	f := newFixture(t)
	bar := filepath.Join(f.root, "Bar.mkv")
	work, _ := f.track(t, "Bar", bar)

	f.r.HandleRemove(context.Background(), bar)

	gone, err := f.store.GetWorkByID(work.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.Empty(t, f.store.Files)
	assert.Equal(t, []string{"DeleteFile", "DeleteWork"}, f.mutations())
}

func TestHandleRemoveUntrackedIsNoop(t *testing.T) {
	f := newFixture(t)
	f.track(t, "Foo", filepath.Join(f.root, "Foo.mkv"))

	f.r.HandleRemove(context.Background(), filepath.Join(f.root, "never-seen.mkv"))

	assert.Empty(t, f.mutations())
	assert.Len(t, f.store.Files, 1)
	assert.NotContains(t, f.logs.String(), "level=ERROR")
}

func TestHandleRemoveTwiceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	bar := filepath.Join(f.root, "Bar.mkv")
	f.track(t, "Bar", bar)

	f.r.HandleRemove(context.Background(), bar)
	f.r.HandleRemove(context.Background(), bar)

	assert.Equal(t, []string{"DeleteFile", "DeleteWork"}, f.mutations())
	assert.NotContains(t, f.logs.String(), "level=ERROR")
}

func TestHandleRemoveDeleteFailureSkipsWorkCleanup(t *testing.T) {
	f := newFixture(t)
	bar := filepath.Join(f.root, "Bar.mkv")
	work, _ := f.track(t, "Bar", bar)
	f.store.ErrorOnNext["DeleteFile"] = errors.New("disk full")

	f.r.HandleRemove(context.Background(), bar)

	assert.Equal(t, 0, f.store.Called("GetFilesByWorkID"))
	assert.Equal(t, 0, f.store.Called("DeleteWork"))
	kept, err := f.store.GetWorkByID(work.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept)
	assert.Contains(t, f.logs.String(), "level=ERROR")
	assert.Contains(t, f.logs.String(), "disk full")
}

func TestHandleRemoveWorkLookupFailureStillDeletesFile(t *testing.T) {
	f := newFixture(t)
	bar := filepath.Join(f.root, "Bar.mkv")
	work, _ := f.track(t, "Bar", bar)
	f.store.ErrorOnNext["GetWorkByID"] = errors.New("timeout")

	f.r.HandleRemove(context.Background(), bar)

	assert.Empty(t, f.store.Files)
	assert.Equal(t, 0, f.store.Called("DeleteWork"))
	assert.Contains(t, f.store.Works, work.ID)
}

func TestHandleRemoveMissingWorkSkipsCleanup(t *testing.T) {
	f := newFixture(t)
	bar := filepath.Join(f.root, "Bar.mkv")
	work, _ := f.track(t, "Bar", bar)
	delete(f.store.Works, work.ID)

	f.r.HandleRemove(context.Background(), bar)

	assert.Empty(t, f.store.Files)
	assert.Equal(t, 0, f.store.Called("GetFilesByWorkID"))
	assert.Equal(t, 0, f.store.Called("DeleteWork"))
}

func TestHandleRemoveWorkDeleteFailureKeepsFileDeletion(t *testing.T) {
	f := newFixture(t)
	bar := filepath.Join(f.root, "Bar.mkv")
	f.track(t, "Bar", bar)
	f.store.ErrorOnNext["DeleteWork"] = errors.New("locked")

	f.r.HandleRemove(context.Background(), bar)

	assert.Empty(t, f.store.Files)
	assert.Len(t, f.store.Works, 1)
	assert.Contains(t, f.logs.String(), "failed to delete ghost work")
}

func TestHandleRemoveListFailureSkipsGhostCheck(t *testing.T) {
	f := newFixture(t)
	bar := filepath.Join(f.root, "Bar.mkv")
	f.track(t, "Bar", bar)
	f.store.ErrorOnNext["GetFilesByWorkID"] = errors.New("io")

	f.r.HandleRemove(context.Background(), bar)

	assert.Empty(t, f.store.Files)
	assert.Len(t, f.store.Works, 1)
	assert.Equal(t, 0, f.store.Called("DeleteWork"))
}

func TestHandleRemoveLookupFailureIsNoop(t *testing.T) {
	f := newFixture(t)
	bar := filepath.Join(f.root, "Bar.mkv")
	f.track(t, "Bar", bar)
	f.store.ErrorOnNext["GetFileByPath"] = errors.New("io")

	f.r.HandleRemove(context.Background(), bar)

	assert.Empty(t, f.mutations())
	assert.Len(t, f.store.Files, 1)
}

func TestHandleRemoveUnrepresentablePathIsNoop(t *testing.T) {
	f := newFixture(t)
	f.track(t, "Bar", filepath.Join(f.root, "Bar.mkv"))

	f.r.HandleRemove(context.Background(), filepath.Join(f.root, "bad\xff.mkv"))

	assert.Empty(t, f.store.Calls)
}

// Rename

func TestHandleRenameUpdatesOnlyPath(t *testing.T) {
	f := newFixture(t)
	from := filepath.Join(f.root, "Foo.mkv")
	to := filepath.Join(f.root, "Foo (2020).mkv")
	work, files := f.track(t, "Foo", from)
	before := *files[0]

	f.r.HandleRename(context.Background(), from, to)

	got, err := f.store.GetFileByPath(to)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, before.ID, got.ID)
	assert.Equal(t, work.ID, got.WorkID)
	assert.Equal(t, before.Format, got.Format)
	assert.Equal(t, before.Size, got.Size)

	old, err := f.store.GetFileByPath(from)
	require.NoError(t, err)
	assert.Nil(t, old)
	assert.Equal(t, []string{"UpdateFile"}, f.mutations())
	assert.Len(t, f.store.Works, 1)
}

func TestHandleRenameUntrackedIsNoop(t *testing.T) {
	f := newFixture(t)
	f.track(t, "Foo", filepath.Join(f.root, "Foo.mkv"))

	f.r.HandleRename(context.Background(),
		filepath.Join(f.root, "untracked.mkv"), filepath.Join(f.root, "renamed.mkv"))

	assert.Empty(t, f.mutations())
	assert.NotContains(t, f.logs.String(), "level=ERROR")
}

func TestHandleRenameUnrepresentableTargetIsLoggedFailure(t *testing.T) {
	f := newFixture(t)
	from := filepath.Join(f.root, "Foo.mkv")
	_, files := f.track(t, "Foo", from)

	assert.NotPanics(t, func() {
		f.r.HandleRename(context.Background(), from, filepath.Join(f.root, "Foo\xfe.mkv"))
	})

	assert.Empty(t, f.mutations())
	got, err := f.store.GetFileByID(files[0].ID)
	require.NoError(t, err)
	assert.Equal(t, from, got.Path)
	assert.Contains(t, f.logs.String(), "level=ERROR")
	assert.Contains(t, f.logs.String(), ErrUnrepresentablePath.Error())
}

func TestHandleRenameUnrepresentableOriginIsNoop(t *testing.T) {
	f := newFixture(t)
	f.track(t, "Foo", filepath.Join(f.root, "Foo.mkv"))

	f.r.HandleRename(context.Background(), filepath.Join(f.root, "\xff.mkv"), filepath.Join(f.root, "ok.mkv"))

	assert.Empty(t, f.store.Calls)
}

func TestHandleRenameStoreFailureIsNotRetried(t *testing.T) {
	f := newFixture(t)
	from := filepath.Join(f.root, "Foo.mkv")
	f.track(t, "Foo", from)
	f.store.ErrorOnNext["UpdateFile"] = errors.New("readonly")

	f.r.HandleRename(context.Background(), from, filepath.Join(f.root, "Bar.mkv"))

	assert.Equal(t, 1, f.store.Called("UpdateFile"))
	got, err := f.store.GetFileByPath(from)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Contains(t, f.logs.String(), "readonly")
}

func TestHandleRenameOntoTrackedPathFails(t *testing.T) {
	f := newFixture(t)
	a := filepath.Join(f.root, "A.mkv")
	b := filepath.Join(f.root, "B.mkv")
	f.track(t, "A", a)
	f.track(t, "B", b)

	f.r.HandleRename(context.Background(), a, b)

	assert.Len(t, f.store.Files, 2)
	got, err := f.store.GetFileByPath(a)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Contains(t, f.logs.String(), "run prune to drop the stale record")
	assert.NotContains(t, f.logs.String(), "failed to update media file path")
}
