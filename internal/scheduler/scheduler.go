package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"thumbnail_watcher/internal/domain"
)

// Syncer defines the interface for sync operations.
type Syncer interface {
	RunSync(ctx context.Context, channelID string) (*domain.SyncStats, error)
}

type Scheduler struct {
	syncer     Syncer
	channels   []string
	interval   time.Duration
	runTimeout time.Duration
	logger     *slog.Logger
}

func NewScheduler(syncer Syncer, channels []string, interval, runTimeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:     syncer,
		channels:   channels,
		interval:   interval,
		runTimeout: runTimeout,
		logger:     logger,
	}
}

// Start runs every channel once immediately and then on each tick until ctx
// is cancelled. Rounds never overlap.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"interval", s.interval,
		"run_timeout", s.runTimeout,
		"channels", len(s.channels),
	)

	s.runAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Scheduler) runAll(ctx context.Context) {
	for _, channelID := range s.channels {
		if ctx.Err() != nil {
			return
		}
		s.runSync(ctx, channelID)
	}
}

func (s *Scheduler) runSync(ctx context.Context, channelID string) {
	syncCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	_, err := s.syncer.RunSync(syncCtx, channelID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrRateLimited):
		// Logged by the service; the next tick retries.
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		s.logger.Error("sync timed out", "channel_id", channelID, "timeout", s.runTimeout, "error", err)
	default:
		s.logger.Error("sync failed", "channel_id", channelID, "error", err)
	}
}
