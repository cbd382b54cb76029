package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"thumbnail_watcher/internal/domain"
)

type SyncStateStore struct {
	db *sqlx.DB
}

func NewSyncStateStore(db *sqlx.DB) *SyncStateStore {
	return &SyncStateStore{db: db}
}

func (s *SyncStateStore) Get(ctx context.Context, channelID string) (*domain.SyncState, error) {
	exec := GetExecutor(ctx, s.db)
	query := exec.Rebind(`
		SELECT channel_id, last_synced_at, last_run_id, total_new, total_changed, tracked_videos
		FROM sync_state
		WHERE channel_id = ?`)

	var state domain.SyncState
	err := sqlx.GetContext(ctx, exec, &state, query, channelID)
	if errors.Is(err, sql.ErrNoRows) {
		// Return empty state for channels never synced
		return &domain.SyncState{ChannelID: channelID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *SyncStateStore) Update(ctx context.Context, state *domain.SyncState) error {
	exec := GetExecutor(ctx, s.db)
	query := exec.Rebind(`
		INSERT INTO sync_state (channel_id, last_synced_at, last_run_id, total_new, total_changed, tracked_videos)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (channel_id) DO UPDATE SET
			last_synced_at = EXCLUDED.last_synced_at,
			last_run_id = EXCLUDED.last_run_id,
			total_new = EXCLUDED.total_new,
			total_changed = EXCLUDED.total_changed,
			tracked_videos = EXCLUDED.tracked_videos`)

	_, err := exec.ExecContext(ctx, query,
		state.ChannelID,
		state.LastSyncedAt,
		state.LastRunID,
		state.TotalNew,
		state.TotalChanged,
		state.TrackedVideos,
	)
	return err
}
