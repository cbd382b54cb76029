// Package metrics exposes Prometheus collectors for sync runs.
//
// Collectors register with the default registry on import and are served by
// the ops server at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"thumbnail_watcher/internal/domain"
)

// Run statuses used as the status label of SyncRuns.
const (
	StatusOK                = "ok"
	StatusRateLimited       = "rate_limited"
	StatusNotFound          = "not_found"
	StatusPersistenceFailed = "persistence_failed"
	StatusFailed            = "failed"
)

var (
	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thumbnail_watcher_sync_runs_total",
		Help: "Sync runs by channel and final status",
	}, []string{"channel", "status"})

	SyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "thumbnail_watcher_sync_duration_seconds",
		Help:    "Duration of sync runs",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
	}, []string{"channel"})

	VideosFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thumbnail_watcher_videos_fetched_total",
		Help: "Videos returned by the remote catalog",
	}, []string{"channel"})

	VideosClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thumbnail_watcher_videos_classified_total",
		Help: "Diff results by classification",
	}, []string{"channel", "classification"})

	VideosSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thumbnail_watcher_videos_skipped_total",
		Help: "Videos skipped as malformed or with failed thumbnail downloads",
	}, []string{"channel"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thumbnail_watcher_notifications_total",
		Help: "Notification dispatch attempts by result",
	}, []string{"channel", "result"})

	LastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "thumbnail_watcher_last_success_timestamp_seconds",
		Help: "Unix time of the last successful sync run",
	}, []string{"channel"})
)

// ObserveRun records the outcome of one sync run.
func ObserveRun(stats *domain.SyncStats, status string) {
	ch := stats.ChannelID

	SyncRuns.WithLabelValues(ch, status).Inc()
	SyncDuration.WithLabelValues(ch).Observe(stats.Duration.Seconds())
	VideosFetched.WithLabelValues(ch).Add(float64(stats.Fetched))
	VideosSkipped.WithLabelValues(ch).Add(float64(stats.Skipped))
	VideosClassified.WithLabelValues(ch, domain.New.String()).Add(float64(stats.New))
	VideosClassified.WithLabelValues(ch, domain.Changed.String()).Add(float64(stats.Changed))
	VideosClassified.WithLabelValues(ch, domain.Unchanged.String()).Add(float64(stats.Unchanged))
	Notifications.WithLabelValues(ch, "sent").Add(float64(stats.Notified))
	Notifications.WithLabelValues(ch, "failed").Add(float64(stats.NotifyFailed))

	if status == StatusOK {
		LastSuccess.WithLabelValues(ch).Set(float64(time.Now().Unix()))
	}
}
