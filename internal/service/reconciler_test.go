package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"thumbnail_watcher/internal/domain"
	"thumbnail_watcher/internal/service/mocks"
)

func newTestReconciler(t *testing.T) (*Reconciler, *mocks.MockVideoStore, *mocks.MockSyncStateStore, *mocks.MockTransactionManager) {
	ctrl := gomock.NewController(t)
	videos := mocks.NewMockVideoStore(ctrl)
	states := mocks.NewMockSyncStateStore(ctrl)
	tx := mocks.NewMockTransactionManager(ctrl)

	r := NewReconciler(videos, states, tx)
	r.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return r, videos, states, tx
}

func passthrough(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func TestReconcile_WritesSnapshotAndState(t *testing.T) {
	r, videos, states, tx := newTestReconciler(t)
	results := []domain.DiffResult{
		{Classification: domain.New, Video: liveVideo("v3"), Fingerprint: "h3"},
		{Classification: domain.Changed, Video: liveVideo("v1"), Fingerprint: "h1b"},
		{Classification: domain.Unchanged, Video: liveVideo("v2"), Fingerprint: "h2"},
	}

	tx.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(passthrough)
	videos.EXPECT().UpsertBatch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, got []domain.StoredVideo) error {
			require.Len(t, got, 3)
			assert.Equal(t, "v3", got[0].ID)
			assert.Equal(t, "h1b", got[1].ThumbnailFingerprint)
			assert.Equal(t, "https://www.youtube.com/watch?v=v2", got[2].URL)
			for _, v := range got {
				assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), v.UpdatedAt)
			}
			return nil
		},
	)
	states.EXPECT().Get(gomock.Any(), "chan-1").Return(&domain.SyncState{
		ChannelID:     "chan-1",
		LastRunID:     "run-0",
		TotalNew:      2,
		TotalChanged:  5,
		TrackedVideos: 2,
	}, nil)
	states.EXPECT().Update(gomock.Any(), &domain.SyncState{
		ChannelID:     "chan-1",
		LastSyncedAt:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		LastRunID:     "run-1",
		TotalNew:      3,
		TotalChanged:  6,
		TrackedVideos: 3,
	}).Return(nil)

	require.NoError(t, r.Reconcile(context.Background(), "chan-1", "run-1", results))
}

func TestReconcile_EmptyResultsStillRecordsRun(t *testing.T) {
	r, videos, states, tx := newTestReconciler(t)

	tx.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(passthrough)
	videos.EXPECT().UpsertBatch(gomock.Any(), gomock.Len(0)).Return(nil)
	states.EXPECT().Get(gomock.Any(), "chan-1").Return(&domain.SyncState{ChannelID: "chan-1"}, nil)
	states.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, s *domain.SyncState) error {
			assert.Equal(t, "run-1", s.LastRunID)
			return nil
		},
	)

	assert.NoError(t, r.Reconcile(context.Background(), "chan-1", "run-1", nil))
}

func TestReconcile_UpsertFailure(t *testing.T) {
	r, videos, _, tx := newTestReconciler(t)
	cause := errors.New("constraint violation")

	tx.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(passthrough)
	videos.EXPECT().UpsertBatch(gomock.Any(), gomock.Any()).Return(cause)

	err := r.Reconcile(context.Background(), "chan-1", "run-1", []domain.DiffResult{
		{Classification: domain.New, Video: liveVideo("v1"), Fingerprint: "h"},
	})

	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.ErrorIs(t, err, cause)
}

func TestReconcile_StateUpdateFailure(t *testing.T) {
	r, videos, states, tx := newTestReconciler(t)

	tx.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(passthrough)
	videos.EXPECT().UpsertBatch(gomock.Any(), gomock.Any()).Return(nil)
	states.EXPECT().Get(gomock.Any(), "chan-1").Return(&domain.SyncState{ChannelID: "chan-1"}, nil)
	states.EXPECT().Update(gomock.Any(), gomock.Any()).Return(errors.New("locked"))

	err := r.Reconcile(context.Background(), "chan-1", "run-1", nil)

	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Contains(t, err.Error(), "update sync state")
}
