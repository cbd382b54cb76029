package domain

import "time"

// SyncStats holds statistics about a sync run.
type SyncStats struct {
	RunID        string
	ChannelID    string
	Fetched      int
	Skipped      int
	New          int
	Changed      int
	Unchanged    int
	Notified     int
	NotifyFailed int
	Duration     time.Duration
}
