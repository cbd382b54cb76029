package domain

import "time"

type Classification int

const (
	New Classification = iota + 1
	Changed
	Unchanged
)

func (c Classification) String() string {
	switch c {
	case New:
		return "new"
	case Changed:
		return "changed"
	case Unchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// DiffResult classifies one live video against the previous snapshot.
type DiffResult struct {
	Classification Classification
	Video          Video
	Fingerprint    string
}

// Snapshot converts the result into the record that replaces the stored one.
func (r DiffResult) Snapshot(now time.Time) StoredVideo {
	return StoredVideo{
		ID:                   r.Video.ID,
		ChannelID:            r.Video.ChannelID,
		Title:                r.Video.Title,
		ThumbnailFingerprint: r.Fingerprint,
		URL:                  r.Video.URL(),
		UpdatedAt:            now,
	}
}

// Skip records a live video that produced no DiffResult.
type Skip struct {
	VideoID string
	Reason  error
}

// Diff is the outcome of comparing one live fetch with the snapshot.
// Results preserve the order of the live fetch.
type Diff struct {
	Results []DiffResult
	Skipped []Skip
}

func (d *Diff) Count(c Classification) int {
	n := 0
	for _, r := range d.Results {
		if r.Classification == c {
			n++
		}
	}
	return n
}
