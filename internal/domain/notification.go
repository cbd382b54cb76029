package domain

import "time"

// Notification is a formatted message about one detected thumbnail change.
type Notification struct {
	Kind        Classification `json:"-"`
	Action      string         `json:"action"` // "new" or "changed"
	VideoID     string         `json:"video_id"`
	ChannelID   string         `json:"channel_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	ViewCount   int64          `json:"view_count"`
	ImageURL    string         `json:"image_url"`
	VideoURL    string         `json:"video_url"`
	DetectedAt  time.Time      `json:"detected_at"`
}
