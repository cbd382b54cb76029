//go:build integration

package database

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"thumbnail_watcher/internal/domain"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	// Open applies the embedded migrations.
	db, err := Open(s.ctx, DriverPostgres, connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM videos")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM sync_state")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) TestMigrate_ReappliesCleanly() {
	s.NoError(Migrate(s.ctx, s.db))

	var column string
	err := s.db.GetContext(s.ctx, &column,
		"SELECT data_type FROM information_schema.columns WHERE table_name = 'videos' AND column_name = 'updated_at'")
	s.Require().NoError(err)
	s.Equal("timestamp with time zone", column)
}

func (s *PostgresIntegrationSuite) TestVideoStore_UpsertAndFind() {
	store := NewVideoStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	err := store.UpsertBatch(s.ctx, []domain.StoredVideo{
		stored("v1", "chan-1", "abc", now),
		stored("v2", "chan-1", "def", now),
	})
	s.Require().NoError(err)

	err = store.UpsertBatch(s.ctx, []domain.StoredVideo{stored("v1", "chan-1", "xyz", now.Add(time.Minute))})
	s.Require().NoError(err)

	videos, err := store.FindByChannel(s.ctx, "chan-1")
	s.Require().NoError(err)
	s.Require().Len(videos, 2)
	s.Equal("xyz", videos[0].ThumbnailFingerprint)
	s.WithinDuration(now.Add(time.Minute), videos[0].UpdatedAt, time.Millisecond)
	s.Equal("def", videos[1].ThumbnailFingerprint)
}

func (s *PostgresIntegrationSuite) TestVideoStore_UpsertBatch_Rollback() {
	store := NewVideoStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	err := store.UpsertBatch(s.ctx, []domain.StoredVideo{
		stored("v1", "chan-1", "abc", now),
		stored("", "chan-1", "broken", now),
	})
	s.Error(err)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM videos")
	s.NoError(err)
	s.Equal(0, count)
}

func (s *PostgresIntegrationSuite) TestTransaction_Rollback() {
	tm := NewTransactionManager(s.db)
	videos := NewVideoStore(s.db)
	states := NewSyncStateStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if err := videos.UpsertBatch(ctx, []domain.StoredVideo{stored("v9", "chan-1", "h", now)}); err != nil {
			return err
		}
		if err := states.Update(ctx, &domain.SyncState{ChannelID: "chan-1", LastSyncedAt: now}); err != nil {
			return err
		}
		return context.Canceled
	})
	s.Error(err)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM videos WHERE id = $1", "v9")
	s.NoError(err)
	s.Equal(0, count)

	state, err := states.Get(s.ctx, "chan-1")
	s.NoError(err)
	s.True(state.LastSyncedAt.IsZero())
}

func (s *PostgresIntegrationSuite) TestSyncStateStore_UpdateExisting() {
	store := NewSyncStateStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	state := &domain.SyncState{ChannelID: "chan-1", LastSyncedAt: now, LastRunID: "a", TotalNew: 1}
	s.Require().NoError(store.Update(s.ctx, state))

	state.LastRunID = "b"
	state.TotalChanged = 4
	s.Require().NoError(store.Update(s.ctx, state))

	retrieved, err := store.Get(s.ctx, "chan-1")
	s.NoError(err)
	s.Equal("b", retrieved.LastRunID)
	s.Equal(int64(4), retrieved.TotalChanged)
}
