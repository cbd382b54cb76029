package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"thumbnail_watcher/internal/domain"
)

type VideoStore struct {
	db *sqlx.DB
	tx *TransactionManager
}

func NewVideoStore(db *sqlx.DB) *VideoStore {
	return &VideoStore{db: db, tx: NewTransactionManager(db)}
}

func (s *VideoStore) FindByChannel(ctx context.Context, channelID string) ([]domain.StoredVideo, error) {
	exec := GetExecutor(ctx, s.db)
	query := exec.Rebind(`
		SELECT id, channel_id, title, thumbnail_fingerprint, url, updated_at
		FROM videos
		WHERE channel_id = ?
		ORDER BY id`)

	var videos []domain.StoredVideo
	if err := sqlx.SelectContext(ctx, exec, &videos, query, channelID); err != nil {
		return nil, err
	}
	return videos, nil
}

// UpsertBatch writes all videos in one transaction: the caller's if ctx
// carries one, otherwise its own. channel_id is kept from the first insert.
func (s *VideoStore) UpsertBatch(ctx context.Context, videos []domain.StoredVideo) error {
	if len(videos) == 0 {
		return nil
	}

	return s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := GetExecutor(txCtx, s.db)
		query := exec.Rebind(`
			INSERT INTO videos (id, channel_id, title, thumbnail_fingerprint, url, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				thumbnail_fingerprint = EXCLUDED.thumbnail_fingerprint,
				url = EXCLUDED.url,
				updated_at = EXCLUDED.updated_at`)

		for _, v := range videos {
			_, err := exec.ExecContext(txCtx, query,
				v.ID,
				v.ChannelID,
				v.Title,
				v.ThumbnailFingerprint,
				v.URL,
				v.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("upsert video %q: %w", v.ID, err)
			}
		}
		return nil
	})
}

func (s *VideoStore) CountByChannel(ctx context.Context, channelID string) (int64, error) {
	exec := GetExecutor(ctx, s.db)

	var count int64
	err := sqlx.GetContext(ctx, exec, &count, exec.Rebind("SELECT COUNT(*) FROM videos WHERE channel_id = ?"), channelID)
	return count, err
}
