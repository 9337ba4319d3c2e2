// file: internal/metrics/metrics_test.go
// version: 2.0.0
// guid: 7a8b9c0d-1e2f-3a4b-5c6d-7e8f9a0b1c2d

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	Register()
	Register()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["catalog_watcher_libraries_watched"])
	assert.True(t, names["catalog_watcher_works"])
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(notificationsTotal.WithLabelValues("movies", "create"))
	IncNotification("movies", "create")
	IncNotification("movies", "create")
	assert.Equal(t, before+2, testutil.ToFloat64(notificationsTotal.WithLabelValues("movies", "create")))

	before = testutil.ToFloat64(mutationsTotal.WithLabelValues("movies", OpDeleteFile))
	IncMutation("movies", OpDeleteFile)
	assert.Equal(t, before+1, testutil.ToFloat64(mutationsTotal.WithLabelValues("movies", OpDeleteFile)))

	before = testutil.ToFloat64(failuresTotal.WithLabelValues("movies", OpMount))
	IncFailure("movies", OpMount)
	assert.Equal(t, before+1, testutil.ToFloat64(failuresTotal.WithLabelValues("movies", OpMount)))

	before = testutil.ToFloat64(ghostWorksTotal.WithLabelValues("movies"))
	IncGhostWork("movies")
	assert.Equal(t, before+1, testutil.ToFloat64(ghostWorksTotal.WithLabelValues("movies")))

	success := testutil.ToFloat64(backupsTotal.WithLabelValues("success"))
	failure := testutil.ToFloat64(backupsTotal.WithLabelValues("failure"))
	IncBackup(true)
	IncBackup(false)
	IncBackup(false)
	assert.Equal(t, success+1, testutil.ToFloat64(backupsTotal.WithLabelValues("success")))
	assert.Equal(t, failure+2, testutil.ToFloat64(backupsTotal.WithLabelValues("failure")))

	before = testutil.ToFloat64(renameCollisionsTotal.WithLabelValues("movies"))
	IncRenameCollision("movies")
	assert.Equal(t, before+1, testutil.ToFloat64(renameCollisionsTotal.WithLabelValues("movies")))

	before = testutil.ToFloat64(watchErrorsTotal.WithLabelValues("movies"))
	IncWatchError("movies")
	assert.Equal(t, before+1, testutil.ToFloat64(watchErrorsTotal.WithLabelValues("movies")))
}

func TestGauges(t *testing.T) {
	SetWorks(12)
	SetFiles(30)
	SetLibraries(2)
	AddLibraries(1)
	AddLibraries(-1)

	assert.Equal(t, 12.0, testutil.ToFloat64(worksGauge))
	assert.Equal(t, 30.0, testutil.ToFloat64(filesGauge))
	assert.Equal(t, 2.0, testutil.ToFloat64(librariesGauge))
}

func TestObserveHandlerDuration(t *testing.T) {
	ObserveHandlerDuration("remove", 5*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(handlerDuration, "catalog_watcher_handler_duration_seconds"))
}
