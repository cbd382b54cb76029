package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"thumbnail_watcher/internal/domain"
	"thumbnail_watcher/internal/notifier"
)

type CatalogSource interface {
	FetchAllItems(ctx context.Context, channelID string) ([]domain.Video, error)
}

type VideoStore interface {
	FindByChannel(ctx context.Context, channelID string) ([]domain.StoredVideo, error)
	UpsertBatch(ctx context.Context, videos []domain.StoredVideo) error
}

type SyncStateStore interface {
	Get(ctx context.Context, channelID string) (*domain.SyncState, error)
	Update(ctx context.Context, state *domain.SyncState) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Differ interface {
	Diff(ctx context.Context, previous map[string]domain.StoredVideo, live []domain.Video) (*domain.Diff, error)
}

type Notifier interface {
	Notify(ctx context.Context, results []domain.DiffResult) notifier.Report
}
