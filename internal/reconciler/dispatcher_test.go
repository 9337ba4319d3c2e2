// file: internal/reconciler/dispatcher_test.go
// version: 1.0.0
// guid: 1f3a5c7e-9b0d-4e2f-8a4c-6d8e0f1a2b3c

package reconciler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jdfalk/catalog-watcher/internal/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeSource hands out channels the test controls.
type fakeSource struct {
	notes   chan watcher.Notification
	errs    chan error
	err     error
	gotRoot string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		notes: make(chan watcher.Notification),
		errs:  make(chan error),
	}
}

func (s *fakeSource) Watch(_ context.Context, root string) (<-chan watcher.Notification, <-chan error, error) {
	s.gotRoot = root
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.notes, s.errs, nil
}

func runDaemon(t *testing.T, ctx context.Context, d *Daemon) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
		return nil
	}
}

func TestDaemonAppliesNotificationsInOrder(t *testing.T) {
	f := newFixture(t)
	a := filepath.Join(f.root, "A.mkv")
	b := filepath.Join(f.root, "B.mkv")
	c := filepath.Join(f.root, "C.mkv")
	f.track(t, "A", a)
	f.track(t, "B", b)

	src := newFakeSource()
	d := NewDaemon(src, f.r, nil)
	done := runDaemon(t, context.Background(), d)

	// Removing c before the rename lands would be a no-op and leave b behind.
	src.notes <- watcher.RemoveOf(a)
	src.notes <- watcher.RenameOf(b, c)
	src.notes <- watcher.RemoveOf(c)
	close(src.notes)

	require.NoError(t, waitDone(t, done))
	assert.Equal(t, f.root, src.gotRoot)
	assert.Empty(t, f.store.Files)
	assert.Empty(t, f.store.Works)
	assert.Equal(t,
		[]string{"DeleteFile", "DeleteWork", "UpdateFile", "DeleteFile", "DeleteWork"},
		f.mutations())
}

func TestDaemonRoutesCreate(t *testing.T) {
	f := newFixture(t)
	f.ingestor.On("FixOrphans", mock.Anything).Once()

	src := newFakeSource()
	done := runDaemon(t, context.Background(), NewDaemon(src, f.r, nil))

	src.notes <- watcher.CreateOf(filepath.Join(f.root, "gone.mkv"))
	close(src.notes)

	require.NoError(t, waitDone(t, done))
	f.ingestor.AssertExpectations(t)
}

func TestDaemonIgnoresOtherNotifications(t *testing.T) {
	f := newFixture(t)
	a := filepath.Join(f.root, "A.mkv")
	f.track(t, "A", a)

	src := newFakeSource()
	done := runDaemon(t, context.Background(), NewDaemon(src, f.r, nil))

	src.notes <- watcher.OtherOf(a, "WRITE")
	close(src.notes)

	require.NoError(t, waitDone(t, done))
	assert.Empty(t, f.store.Calls)
	assert.Empty(t, f.ingestor.Calls)
}

func TestDaemonContinuesAfterStreamErrors(t *testing.T) {
	f := newFixture(t)
	a := filepath.Join(f.root, "A.mkv")
	f.track(t, "A", a)

	src := newFakeSource()
	done := runDaemon(t, context.Background(), NewDaemon(src, f.r, nil))

	src.errs <- errors.New("queue overflow")
	src.notes <- watcher.ErrorOf(errors.New("inotify gone"))
	src.notes <- watcher.RemoveOf(a)
	close(src.notes)

	require.NoError(t, waitDone(t, done))
	assert.Empty(t, f.store.Files)
}

func TestDaemonKeepsRunningWhenErrorStreamCloses(t *testing.T) {
	f := newFixture(t)
	a := filepath.Join(f.root, "A.mkv")
	f.track(t, "A", a)

	src := newFakeSource()
	done := runDaemon(t, context.Background(), NewDaemon(src, f.r, nil))

	close(src.errs)
	src.notes <- watcher.RemoveOf(a)
	close(src.notes)

	require.NoError(t, waitDone(t, done))
	assert.Empty(t, f.store.Files)
}

func TestDaemonStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	src := newFakeSource()
	ctx, cancel := context.WithCancel(context.Background())
	done := runDaemon(t, ctx, NewDaemon(src, f.r, nil))

	cancel()

	require.NoError(t, waitDone(t, done))
}

func TestDaemonReturnsWatchSetupFailure(t *testing.T) {
	f := newFixture(t)
	src := newFakeSource()
	src.err = watcher.ErrNotDirectory

	err := NewDaemon(src, f.r, nil).Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, watcher.ErrNotDirectory)
	assert.Contains(t, err.Error(), f.root)
}

func TestDaemonWithRealWatcher(t *testing.T) {
	f := newFixture(t)
	a := filepath.Join(f.root, "A.mkv")
	writeFile(t, a)
	f.track(t, "A", a)

	w, err := watcher.New(watcher.Options{Debounce: 50 * time.Millisecond})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := runDaemon(t, ctx, NewDaemon(w, f.r, nil))

	// Give the watch a moment to be established.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.Remove(a))

	assert.Eventually(t, func() bool {
		return f.store.Called("DeleteWork") == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, waitDone(t, done))
}
