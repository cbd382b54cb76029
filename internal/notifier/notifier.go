// Package notifier turns classified diff results into notifications and
// dispatches them one by one through a Transport.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"thumbnail_watcher/internal/domain"
)

// Transport delivers one formatted notification.
type Transport interface {
	Send(ctx context.Context, n domain.Notification) error
}

// Report counts the outcome of one Notify call.
type Report struct {
	Sent   int
	Failed int
}

type Notifier struct {
	transport Transport
	notifyNew bool
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Notifier. Changed videos are always announced; new videos
// only when notifyNew is set.
func New(transport Transport, notifyNew bool, logger *slog.Logger) *Notifier {
	return &Notifier{
		transport: transport,
		notifyNew: notifyNew,
		logger:    logger.With("component", "notifier"),
		now:       time.Now,
	}
}

// Notify sends one notification per eligible result, in order. A failed send
// is logged and counted; it does not stop the remaining sends.
func (n *Notifier) Notify(ctx context.Context, results []domain.DiffResult) Report {
	var report Report
	detectedAt := n.now().UTC()

	for _, r := range results {
		if !n.eligible(r) {
			continue
		}

		msg := Format(r, detectedAt)
		if err := n.transport.Send(ctx, msg); err != nil {
			report.Failed++
			n.logger.Error("failed to send notification",
				"video_id", r.Video.ID,
				"classification", r.Classification.String(),
				"error", fmt.Errorf("%w: %w", domain.ErrDispatch, err),
			)
			continue
		}

		report.Sent++
		n.logger.Debug("sent notification",
			"video_id", r.Video.ID,
			"classification", r.Classification.String(),
		)
	}

	return report
}

func (n *Notifier) eligible(r domain.DiffResult) bool {
	switch r.Classification {
	case domain.Changed:
		return true
	case domain.New:
		return n.notifyNew
	default:
		return false
	}
}

// Format builds the notification for a changed or new video.
func Format(r domain.DiffResult, detectedAt time.Time) domain.Notification {
	heading, label := "New Thumbnail", "Changed At"
	if r.Classification == domain.New {
		heading, label = "New Video", "Detected At"
	}

	return domain.Notification{
		Kind:        r.Classification,
		Action:      r.Classification.String(),
		VideoID:     r.Video.ID,
		ChannelID:   r.Video.ChannelID,
		Title:       fmt.Sprintf("%s - %s", r.Video.Title, heading),
		Description: fmt.Sprintf("**View Count**: %d\n\n**%s**: %s", r.Video.ViewCount, label, detectedAt.Format(time.RFC1123)),
		ViewCount:   r.Video.ViewCount,
		ImageURL:    r.Video.ThumbnailURL,
		VideoURL:    r.Video.URL(),
		DetectedAt:  detectedAt,
	}
}
