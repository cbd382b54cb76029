package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"thumbnail_watcher/internal/domain"
	"thumbnail_watcher/internal/metrics"
)

const (
	otelScope = "thumbnail_watcher/service"
	spanRun   = "sync.run"

	// DefaultNotifyTimeout bounds the notification stage when none is configured.
	DefaultNotifyTimeout = 10 * time.Minute
)

// SyncService runs the fetch, diff, reconcile and notify pipeline for one
// channel at a time.
type SyncService struct {
	source     CatalogSource
	videos     VideoStore
	differ     Differ
	reconciler *Reconciler
	notifier   Notifier
	logger     *slog.Logger
	tracer     trace.Tracer

	notifyTimeout time.Duration
	locks         runLocks
	newRunID      func() string
}

func NewSyncService(
	source CatalogSource,
	videos VideoStore,
	syncState SyncStateStore,
	txManager TransactionManager,
	differ Differ,
	notifier Notifier,
	notifyTimeout time.Duration,
	logger *slog.Logger,
) *SyncService {
	if notifyTimeout <= 0 {
		notifyTimeout = DefaultNotifyTimeout
	}
	return &SyncService{
		source:        source,
		videos:        videos,
		differ:        differ,
		reconciler:    NewReconciler(videos, syncState, txManager),
		notifier:      notifier,
		logger:        logger,
		tracer:        otel.Tracer(otelScope),
		notifyTimeout: notifyTimeout,
		newRunID:      uuid.NewString,
	}
}

// RunSync reconciles the stored snapshot of channelID with the live catalog
// and notifies about changed thumbnails. Runs for the same channel never
// overlap: a call made while one is in flight waits for it to finish, bounded
// by its own ctx, and then performs its own run.
//
// Rate limiting (domain.ErrRateLimited) and a missing channel
// (domain.ErrNotFound) end the run before anything is written. A failed write
// (domain.ErrPersistence) ends it before any notification is sent.
func (s *SyncService) RunSync(ctx context.Context, channelID string) (*domain.SyncStats, error) {
	release, err := s.locks.acquire(ctx, channelID, s.logger)
	if err != nil {
		return nil, fmt.Errorf("wait for in-flight sync: %w", err)
	}
	defer release()

	return s.run(ctx, channelID)
}

func (s *SyncService) run(ctx context.Context, channelID string) (stats *domain.SyncStats, err error) {
	startTime := time.Now()
	runID := s.newRunID()
	logger := s.logger.With("channel_id", channelID, "run_id", runID)

	ctx, span := s.tracer.Start(ctx, spanRun, trace.WithAttributes(
		attribute.String("channel.id", channelID),
		attribute.String("run.id", runID),
	))
	defer span.End()

	stats = &domain.SyncStats{RunID: runID, ChannelID: channelID}
	status := metrics.StatusFailed

	defer func() {
		stats.Duration = time.Since(startTime)
		metrics.ObserveRun(stats, status)

		span.SetAttributes(
			attribute.String("sync.status", status),
			attribute.Int("sync.fetched", stats.Fetched),
			attribute.Int("sync.skipped", stats.Skipped),
			attribute.Int("sync.changed", stats.Changed),
			attribute.Int("sync.notified", stats.Notified),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		}
	}()

	logger.Info("starting sync")

	videos, err := s.source.FetchAllItems(ctx, channelID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRateLimited):
			status = metrics.StatusRateLimited
			logger.Warn("sync aborted by rate limit, retrying on next schedule", "error", err)
		case errors.Is(err, domain.ErrNotFound):
			status = metrics.StatusNotFound
			logger.Error("channel not found", "error", err)
		default:
			logger.Error("fetch failed", "error", err)
		}
		return stats, fmt.Errorf("fetch videos: %w", err)
	}

	stats.Fetched = len(videos)
	logger.Info("fetched videos from source", "count", len(videos))

	existing, err := s.videos.FindByChannel(ctx, channelID)
	if err != nil {
		status = metrics.StatusPersistenceFailed
		return stats, fmt.Errorf("load snapshot: %w: %w", domain.ErrPersistence, err)
	}

	previous := make(map[string]domain.StoredVideo, len(existing))
	for _, v := range existing {
		previous[v.ID] = v
	}

	diff, err := s.differ.Diff(ctx, previous, videos)
	if err != nil {
		return stats, fmt.Errorf("diff: %w", err)
	}

	stats.Skipped = len(diff.Skipped)
	stats.New = diff.Count(domain.New)
	stats.Changed = diff.Count(domain.Changed)
	stats.Unchanged = diff.Count(domain.Unchanged)

	if err := s.reconciler.Reconcile(ctx, channelID, runID, diff.Results); err != nil {
		status = metrics.StatusPersistenceFailed
		logger.Error("reconciliation failed, no notifications sent", "error", err)
		return stats, fmt.Errorf("reconcile: %w", err)
	}

	// The snapshot is committed; from here the run deadline must not drop
	// notifications, or the changes they announce would never be reported.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	report := s.notifier.Notify(notifyCtx, diff.Results)
	cancel()
	stats.Notified = report.Sent
	stats.NotifyFailed = report.Failed
	status = metrics.StatusOK

	logger.Info("sync completed",
		"fetched", stats.Fetched,
		"skipped", stats.Skipped,
		"new", stats.New,
		"changed", stats.Changed,
		"unchanged", stats.Unchanged,
		"notified", stats.Notified,
		"notify_failed", stats.NotifyFailed,
		"duration", time.Since(startTime),
	)

	return stats, nil
}

// runLocks serializes runs per channel. Unlike a mutex, waiting for a slot
// gives up when the waiter's context ends.
type runLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func (l *runLocks) acquire(ctx context.Context, channelID string, logger *slog.Logger) (func(), error) {
	l.mu.Lock()
	if l.slots == nil {
		l.slots = make(map[string]chan struct{})
	}
	slot, ok := l.slots[channelID]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[channelID] = slot
	}
	l.mu.Unlock()

	release := func() { <-slot }

	select {
	case slot <- struct{}{}:
		return release, nil
	default:
	}

	logger.Debug("waiting for in-flight sync", "channel_id", channelID)
	select {
	case slot <- struct{}{}:
		return release, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
