package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/suite"

	"thumbnail_watcher/internal/differ"
	"thumbnail_watcher/internal/domain"
	"thumbnail_watcher/internal/notifier"
	"thumbnail_watcher/internal/storage/database"
)

type stubSource struct {
	videos []domain.Video
	err    error
}

func (s *stubSource) FetchAllItems(context.Context, string) ([]domain.Video, error) {
	return s.videos, s.err
}

// stubImages serves fingerprints keyed by thumbnail URL.
type stubImages struct {
	mu     sync.Mutex
	hashes map[string]string
	failed map[string]bool
}

func (s *stubImages) Fingerprint(_ context.Context, url string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed[url] {
		return "", fmt.Errorf("%w: %s: 503", domain.ErrFetch, url)
	}
	return s.hashes[url], nil
}

type recordingTransport struct {
	mu    sync.Mutex
	sent  []domain.Notification
	fail  bool
	delay time.Duration
}

func (t *recordingTransport) Send(ctx context.Context, n domain.Notification) error {
	if t.delay > 0 {
		select {
		case <-time.After(t.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail {
		return errors.New("webhook unavailable")
	}
	t.sent = append(t.sent, n)
	return nil
}

type PipelineSuite struct {
	suite.Suite
	ctx context.Context
	db  *sqlx.DB

	source        *stubSource
	images        *stubImages
	transport     *recordingTransport
	videos        *database.VideoStore
	states        *database.SyncStateStore
	notifyTimeout time.Duration
	logger        *slog.Logger
}

func (s *PipelineSuite) SetupTest() {
	s.ctx = context.Background()

	db, err := database.Open(s.ctx, database.DriverSQLite, filepath.Join(s.T().TempDir(), "pipeline.db"))
	s.Require().NoError(err)
	s.db = db

	s.source = &stubSource{}
	s.images = &stubImages{hashes: map[string]string{}, failed: map[string]bool{}}
	s.transport = &recordingTransport{}
	s.videos = database.NewVideoStore(db)
	s.states = database.NewSyncStateStore(db)
	s.notifyTimeout = time.Minute
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *PipelineSuite) TearDownTest() {
	if s.db != nil {
		s.db.Close()
	}
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) service(notifyNew bool) *SyncService {
	return NewSyncService(
		s.source,
		s.videos,
		s.states,
		database.NewTransactionManager(s.db),
		differ.New(s.images, 3, s.logger),
		notifier.New(s.transport, notifyNew, s.logger),
		s.notifyTimeout,
		s.logger,
	)
}

func (s *PipelineSuite) setLive(ids ...string) {
	s.source.videos = nil
	for _, id := range ids {
		s.source.videos = append(s.source.videos, liveVideo(id))
	}
}

func (s *PipelineSuite) setImage(id, hash string) {
	s.images.hashes["https://img/"+id] = hash
}

func (s *PipelineSuite) fingerprints() map[string]string {
	stored, err := s.videos.FindByChannel(s.ctx, "chan-1")
	s.Require().NoError(err)
	out := make(map[string]string, len(stored))
	for _, v := range stored {
		out[v.ID] = v.ThumbnailFingerprint
	}
	return out
}

func (s *PipelineSuite) TestFirstRunStoresEverythingSilently() {
	s.setLive("v1", "v2", "v3")
	s.setImage("v1", "h1")
	s.setImage("v2", "h2")
	s.setImage("v3", "h3")

	stats, err := s.service(false).RunSync(s.ctx, "chan-1")

	s.Require().NoError(err)
	s.Equal(3, stats.New)
	s.Empty(s.transport.sent)
	s.Equal(map[string]string{"v1": "h1", "v2": "h2", "v3": "h3"}, s.fingerprints())

	state, err := s.states.Get(s.ctx, "chan-1")
	s.Require().NoError(err)
	s.Equal(stats.RunID, state.LastRunID)
	s.Equal(int64(3), state.TrackedVideos)
}

func (s *PipelineSuite) TestChangedThumbnailNotifiedOnce() {
	s.setLive("v1", "v2")
	s.setImage("v1", "abc")
	s.setImage("v2", "def")
	_, err := s.service(false).RunSync(s.ctx, "chan-1")
	s.Require().NoError(err)

	s.setImage("v1", "xyz")
	stats, err := s.service(false).RunSync(s.ctx, "chan-1")

	s.Require().NoError(err)
	s.Equal(1, stats.Changed)
	s.Equal(1, stats.Unchanged)
	s.Require().Len(s.transport.sent, 1)
	s.Equal("v1", s.transport.sent[0].VideoID)
	s.Equal("xyz", s.fingerprints()["v1"])

	// A third run with the same images is quiet.
	stats, err = s.service(false).RunSync(s.ctx, "chan-1")
	s.Require().NoError(err)
	s.Equal(0, stats.Changed)
	s.Len(s.transport.sent, 1)
}

func (s *PipelineSuite) TestRateLimitedRunLeavesSnapshot() {
	s.setLive("v1")
	s.setImage("v1", "abc")
	_, err := s.service(false).RunSync(s.ctx, "chan-1")
	s.Require().NoError(err)
	before, err := s.states.Get(s.ctx, "chan-1")
	s.Require().NoError(err)

	s.source.err = fmt.Errorf("list page 1: %w", domain.ErrRateLimited)
	s.setImage("v1", "changed")
	_, err = s.service(false).RunSync(s.ctx, "chan-1")

	s.ErrorIs(err, domain.ErrRateLimited)
	s.Equal("abc", s.fingerprints()["v1"])
	s.Empty(s.transport.sent)
	after, err := s.states.Get(s.ctx, "chan-1")
	s.Require().NoError(err)
	s.Equal(before.LastRunID, after.LastRunID)
}

func (s *PipelineSuite) TestMissingThumbnailSkipsOnlyThatVideo() {
	s.setLive("v1", "v2")
	s.source.videos[1].ThumbnailURL = ""
	s.setImage("v1", "h1")

	stats, err := s.service(false).RunSync(s.ctx, "chan-1")

	s.Require().NoError(err)
	s.Equal(1, stats.Skipped)
	s.Equal(map[string]string{"v1": "h1"}, s.fingerprints())
}

func (s *PipelineSuite) TestVanishedVideoIsKept() {
	s.setLive("v1", "v2")
	s.setImage("v1", "h1")
	s.setImage("v2", "h2")
	_, err := s.service(false).RunSync(s.ctx, "chan-1")
	s.Require().NoError(err)

	s.setLive("v1")
	_, err = s.service(false).RunSync(s.ctx, "chan-1")

	s.Require().NoError(err)
	s.Equal(map[string]string{"v1": "h1", "v2": "h2"}, s.fingerprints())
	count, err := s.videos.CountByChannel(s.ctx, "chan-1")
	s.NoError(err)
	s.Equal(int64(2), count)
}

func (s *PipelineSuite) TestFetchFailureKeepsStoredFingerprint() {
	s.setLive("v1")
	s.setImage("v1", "abc")
	_, err := s.service(false).RunSync(s.ctx, "chan-1")
	s.Require().NoError(err)

	s.images.failed["https://img/v1"] = true
	stats, err := s.service(false).RunSync(s.ctx, "chan-1")

	s.Require().NoError(err)
	s.Equal(1, stats.Skipped)
	s.Equal("abc", s.fingerprints()["v1"])
	s.Empty(s.transport.sent)
}

func (s *PipelineSuite) TestNotifyNewWhenEnabled() {
	s.setLive("v1")
	s.setImage("v1", "h1")

	stats, err := s.service(true).RunSync(s.ctx, "chan-1")

	s.Require().NoError(err)
	s.Equal(1, stats.Notified)
	s.Require().Len(s.transport.sent, 1)
	s.Equal("Video v1 - New Video", s.transport.sent[0].Title)
}

func (s *PipelineSuite) TestDispatchFailureStillCommits() {
	s.setLive("v1")
	s.setImage("v1", "abc")
	_, err := s.service(false).RunSync(s.ctx, "chan-1")
	s.Require().NoError(err)

	s.transport.fail = true
	s.setImage("v1", "xyz")
	stats, err := s.service(false).RunSync(s.ctx, "chan-1")

	s.Require().NoError(err)
	s.Equal(1, stats.NotifyFailed)
	s.Equal("xyz", s.fingerprints()["v1"])
}

func (s *PipelineSuite) changeAllThumbnails(ids ...string) {
	s.setLive(ids...)
	for _, id := range ids {
		s.setImage(id, "old-"+id)
	}
	_, err := s.service(false).RunSync(s.ctx, "chan-1")
	s.Require().NoError(err)

	for _, id := range ids {
		s.setImage(id, "new-"+id)
	}
}

func (s *PipelineSuite) TestRunDeadlineDoesNotDropCommittedNotifications() {
	s.changeAllThumbnails("v1", "v2", "v3", "v4", "v5")
	s.transport.delay = 100 * time.Millisecond

	ctx, cancel := context.WithTimeout(s.ctx, 250*time.Millisecond)
	defer cancel()
	stats, err := s.service(false).RunSync(ctx, "chan-1")

	s.Require().NoError(err)
	s.Equal(5, stats.Changed)
	s.Equal(5, stats.Notified)
	s.Equal(0, stats.NotifyFailed)
	s.Len(s.transport.sent, 5)

	stats, err = s.service(false).RunSync(s.ctx, "chan-1")
	s.Require().NoError(err)
	s.Equal(0, stats.Changed)
}

func (s *PipelineSuite) TestNotifyTimeoutBoundsDispatch() {
	s.changeAllThumbnails("v1", "v2", "v3")
	s.transport.delay = 100 * time.Millisecond
	s.notifyTimeout = 150 * time.Millisecond

	stats, err := s.service(false).RunSync(s.ctx, "chan-1")

	s.Require().NoError(err)
	s.Equal(3, stats.Changed)
	s.Equal(1, stats.Notified)
	s.Equal(2, stats.NotifyFailed)
}
