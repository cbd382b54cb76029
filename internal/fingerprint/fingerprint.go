// Package fingerprint derives content fingerprints for thumbnail images.
//
// A fingerprint depends only on the downloaded bytes; response headers,
// redirects and timing never contribute to it.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"thumbnail_watcher/internal/domain"
)

// Sum returns the hex encoded SHA-256 digest of data.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Config holds thumbnail download configuration.
type Config struct {
	Timeout  time.Duration
	MaxBytes int64
	// ConsecutiveFailures opens the breaker after that many failed downloads in a row.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// Fingerprinter downloads images and fingerprints their bytes. It is safe
// for concurrent use.
type Fingerprinter struct {
	httpClient *http.Client
	maxBytes   int64
	cb         *gobreaker.CircuitBreaker[[]byte]
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Fingerprinter {
	logger = logger.With("component", "fingerprint")

	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "thumbnail-host",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// Cancellation says nothing about the image host.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &Fingerprinter{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxBytes: cfg.MaxBytes,
		cb:       cb,
		logger:   logger,
	}
}

// Fingerprint downloads the image at url and returns Sum of its bytes.
// Every failure wraps domain.ErrFetch.
func (f *Fingerprinter) Fingerprint(ctx context.Context, url string) (string, error) {
	data, err := f.cb.Execute(func() ([]byte, error) {
		return f.download(ctx, url)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrFetch, url, err)
	}
	return Sum(data), nil
}

func (f *Fingerprinter) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "ThumbnailWatcher/1.0")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("image larger than %d bytes", f.maxBytes)
	}

	return data, nil
}
