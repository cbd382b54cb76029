package service

import (
	"context"
	"fmt"
	"time"

	"thumbnail_watcher/internal/domain"
)

// Reconciler writes a run's diff results and the channel's sync state in a
// single transaction. Videos missing from the live fetch are left untouched.
type Reconciler struct {
	videos    VideoStore
	syncState SyncStateStore
	txManager TransactionManager
	now       func() time.Time
}

func NewReconciler(videos VideoStore, syncState SyncStateStore, txManager TransactionManager) *Reconciler {
	return &Reconciler{
		videos:    videos,
		syncState: syncState,
		txManager: txManager,
		now:       time.Now,
	}
}

// Reconcile upserts one record per result. On failure nothing is committed
// and the returned error wraps domain.ErrPersistence.
func (r *Reconciler) Reconcile(ctx context.Context, channelID, runID string, results []domain.DiffResult) error {
	now := r.now().UTC()

	snapshot := make([]domain.StoredVideo, 0, len(results))
	var created, changed int64
	for _, res := range results {
		snapshot = append(snapshot, res.Snapshot(now))
		switch res.Classification {
		case domain.New:
			created++
		case domain.Changed:
			changed++
		}
	}

	err := r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := r.videos.UpsertBatch(txCtx, snapshot); err != nil {
			return fmt.Errorf("upsert videos: %w", err)
		}

		state, err := r.syncState.Get(txCtx, channelID)
		if err != nil {
			return fmt.Errorf("get sync state: %w", err)
		}

		state.ChannelID = channelID
		state.LastSyncedAt = now
		state.LastRunID = runID
		state.TotalNew += created
		state.TotalChanged += changed
		state.TrackedVideos += created

		if err := r.syncState.Update(txCtx, state); err != nil {
			return fmt.Errorf("update sync state: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	return nil
}
