package domain

import "time"

const watchURLPrefix = "https://www.youtube.com/watch?v="

// Video is a catalog item as returned by the remote API on one sync run.
type Video struct {
	ID           string
	ChannelID    string
	Title        string
	ThumbnailURL string // highest available resolution
	ViewCount    int64
	FetchedAt    time.Time
}

// URL returns the canonical watch URL of the video.
func (v Video) URL() string {
	return WatchURL(v.ID)
}

// WatchURL builds the canonical watch URL for a video id.
func WatchURL(id string) string {
	return watchURLPrefix + id
}

// StoredVideo is the locally persisted snapshot of a video.
type StoredVideo struct {
	ID                   string    `db:"id"`
	ChannelID            string    `db:"channel_id"`
	Title                string    `db:"title"`
	ThumbnailFingerprint string    `db:"thumbnail_fingerprint"`
	URL                  string    `db:"url"`
	UpdatedAt            time.Time `db:"updated_at"`
}

type SyncState struct {
	ChannelID     string    `db:"channel_id"`
	LastSyncedAt  time.Time `db:"last_synced_at"`
	LastRunID     string    `db:"last_run_id"`
	TotalNew      int64     `db:"total_new"`
	TotalChanged  int64     `db:"total_changed"`
	TrackedVideos int64     `db:"tracked_videos"`
}
