// Package metrics exposes Prometheus instrumentation for sync and backfill runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sheetsync_sync_rows_total",
		Help: "Rows written by sync runs, by classification",
	}, []string{"result"})

	syncCommits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sheetsync_sync_commits_total",
		Help: "Write batches committed by sync runs",
	})

	syncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sheetsync_sync_runs_total",
		Help: "Sync runs by outcome",
	}, []string{"status"})

	syncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sheetsync_sync_duration_seconds",
		Help:    "Wall time of sync runs",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	backfillDocs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sheetsync_backfill_documents_total",
		Help: "Documents visited and re-tokenized by backfill runs",
	}, []string{"result"})

	activeSyncs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sheetsync_active_syncs",
		Help: "Sync runs currently holding a limiter slot",
	})
)

// BatchCommitted records one committed write batch.
func BatchCommitted(created, updated int) {
	syncCommits.Inc()
	syncRows.WithLabelValues("created").Add(float64(created))
	syncRows.WithLabelValues("updated").Add(float64(updated))
}

// SyncFinished records the outcome and duration of a sync run.
func SyncFinished(seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	syncRuns.WithLabelValues(status).Inc()
	syncDuration.Observe(seconds)
}

// BackfillPage records the documents visited and updated in one backfill page.
func BackfillPage(processed, updated int) {
	backfillDocs.WithLabelValues("processed").Add(float64(processed))
	backfillDocs.WithLabelValues("updated").Add(float64(updated))
}

// SetActiveSyncs publishes the number of running syncs.
func SetActiveSyncs(n int) {
	activeSyncs.Set(float64(n))
}
