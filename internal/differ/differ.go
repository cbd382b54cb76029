// Package differ classifies live videos against the stored snapshot.
package differ

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"thumbnail_watcher/internal/domain"
)

// DefaultConcurrency bounds parallel thumbnail downloads when none is configured.
const DefaultConcurrency = 4

type Fingerprinter interface {
	Fingerprint(ctx context.Context, url string) (string, error)
}

// Differ compares thumbnail fingerprints; titles and view counts never
// affect the classification.
type Differ struct {
	fingerprinter Fingerprinter
	concurrency   int
	logger        *slog.Logger
}

func New(fp Fingerprinter, concurrency int, logger *slog.Logger) *Differ {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Differ{
		fingerprinter: fp,
		concurrency:   concurrency,
		logger:        logger.With("component", "differ"),
	}
}

type outcome struct {
	result *domain.DiffResult
	skip   *domain.Skip
}

// Diff fingerprints every live video and classifies it against previous.
// Results keep the order of live. Malformed videos and failed downloads are
// skipped; an error is returned only when ctx ends before all downloads finish.
func (d *Differ) Diff(ctx context.Context, previous map[string]domain.StoredVideo, live []domain.Video) (*domain.Diff, error) {
	outcomes := make([]outcome, len(live))

	var g errgroup.Group
	g.SetLimit(d.concurrency)

	for i := range live {
		v := live[i]
		if err := validate(v); err != nil {
			d.logger.Warn("skipping malformed video", "video_id", v.ID, "error", err)
			outcomes[i].skip = &domain.Skip{VideoID: v.ID, Reason: err}
			continue
		}

		g.Go(func() error {
			outcomes[i] = d.classify(ctx, previous, v)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("diff interrupted: %w", err)
	}

	diff := &domain.Diff{}
	for _, o := range outcomes {
		switch {
		case o.result != nil:
			diff.Results = append(diff.Results, *o.result)
		case o.skip != nil:
			diff.Skipped = append(diff.Skipped, *o.skip)
		}
	}
	return diff, nil
}

func (d *Differ) classify(ctx context.Context, previous map[string]domain.StoredVideo, v domain.Video) outcome {
	fp, err := d.fingerprinter.Fingerprint(ctx, v.ThumbnailURL)
	if err != nil {
		d.logger.Warn("skipping video, thumbnail fetch failed",
			"video_id", v.ID,
			"thumbnail_url", v.ThumbnailURL,
			"error", err,
		)
		return outcome{skip: &domain.Skip{VideoID: v.ID, Reason: err}}
	}

	class := domain.New
	if stored, ok := previous[v.ID]; ok {
		// An empty stored fingerprint never matches, so backfilled records
		// report as changed once.
		class = domain.Unchanged
		if stored.ThumbnailFingerprint != fp {
			class = domain.Changed
		}
	}

	return outcome{result: &domain.DiffResult{
		Classification: class,
		Video:          v,
		Fingerprint:    fp,
	}}
}

func validate(v domain.Video) error {
	switch {
	case v.ID == "":
		return fmt.Errorf("%w: missing id", domain.ErrMalformedItem)
	case v.ThumbnailURL == "":
		return fmt.Errorf("%w: missing thumbnail", domain.ErrMalformedItem)
	}
	return nil
}
