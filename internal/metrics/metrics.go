// file: internal/metrics/metrics.go
// version: 2.1.0
// guid: 9f8e7d6c-5b4a-3210-9fed-cba876543210

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "catalog_watcher"

var (
	registerOnce sync.Once

	notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Total number of filesystem notifications received by library and kind",
	}, []string{"library", "kind"})
	watchErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "watch_errors_total",
		Help:      "Total number of watch stream errors by library",
	}, []string{"library"})
	mutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "catalog_mutations_total",
		Help:      "Total number of catalog mutations applied by library and operation",
	}, []string{"library", "op"})
	failuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "handler_failures_total",
		Help:      "Total number of failed handler steps by library and operation",
	}, []string{"library", "op"})
	ghostWorksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ghost_works_purged_total",
		Help:      "Total number of works deleted because their last file went away",
	}, []string{"library"})
	renameCollisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rename_collisions_total",
		Help:      "Total number of renames onto an already tracked path; each leaves a stale record until prune",
	}, []string{"library"})
	backupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backups_total",
		Help:      "Total number of catalog backups attempted by result",
	}, []string{"result"})
	handlerDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "handler_duration_seconds",
		Help:      "Histogram of notification handling durations in seconds by kind",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10), // ~1ms up to ~4s
	}, []string{"kind"})

	worksGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "works",
		Help:      "Current number of works in the catalog",
	})
	filesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "media_files",
		Help:      "Current number of media files in the catalog",
	})
	librariesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "libraries_watched",
		Help:      "Number of library roots currently being watched",
	})
)

// Register initializes metrics with the global Prometheus registry (idempotent)
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(notificationsTotal, watchErrorsTotal, mutationsTotal, failuresTotal,
			ghostWorksTotal, renameCollisionsTotal, backupsTotal, handlerDuration, worksGauge, filesGauge, librariesGauge)
	})
}

// Mutation operations recorded by IncMutation and IncFailure.
const (
	OpMount      = "mount"
	OpScan       = "scan"
	OpFixOrphans = "fix_orphans"
	OpDeleteFile = "delete_file"
	OpDeleteWork = "delete_work"
	OpUpdateFile = "update_file"
	OpLookup     = "lookup"
)

// Event helpers
func IncNotification(library, kind string) { notificationsTotal.WithLabelValues(library, kind).Inc() }
func IncWatchError(library string)         { watchErrorsTotal.WithLabelValues(library).Inc() }
func IncMutation(library, op string)       { mutationsTotal.WithLabelValues(library, op).Inc() }
func IncFailure(library, op string)        { failuresTotal.WithLabelValues(library, op).Inc() }
func IncGhostWork(library string)          { ghostWorksTotal.WithLabelValues(library).Inc() }
func IncRenameCollision(library string)    { renameCollisionsTotal.WithLabelValues(library).Inc() }

// IncBackup counts a backup attempt; ok reports whether it succeeded.
func IncBackup(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	backupsTotal.WithLabelValues(result).Inc()
}
func ObserveHandlerDuration(kind string, d time.Duration) {
	handlerDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// Gauges
func SetWorks(n int)     { worksGauge.Set(float64(n)) }
func SetFiles(n int)     { filesGauge.Set(float64(n)) }
func SetLibraries(n int) { librariesGauge.Set(float64(n)) }
func AddLibraries(n int) { librariesGauge.Add(float64(n)) }
