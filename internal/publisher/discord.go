package publisher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"thumbnail_watcher/internal/domain"
)

// embedColor is the sidebar color of notification embeds.
const embedColor = 0xFF0000

type DiscordConfig struct {
	WebhookURL string
	// Mention is prepended as message content, e.g. "@everyone".
	Mention           string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Discord posts notifications to a channel webhook as embeds.
type Discord struct {
	httpClient *http.Client
	webhookURL string
	mention    string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

func NewDiscord(cfg DiscordConfig, logger *slog.Logger) *Discord {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Discord{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		webhookURL: cfg.WebhookURL,
		mention:    cfg.Mention,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger.With("transport", "discord"),
	}
}

type webhookPayload struct {
	Content         string           `json:"content,omitempty"`
	Embeds          []embed          `json:"embeds"`
	AllowedMentions *allowedMentions `json:"allowed_mentions,omitempty"`
}

type allowedMentions struct {
	Parse []string `json:"parse"`
}

type embed struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	URL         string      `json:"url,omitempty"`
	Color       int         `json:"color"`
	Timestamp   string      `json:"timestamp"`
	Image       *embedImage `json:"image,omitempty"`
}

type embedImage struct {
	URL string `json:"url"`
}

func (d *Discord) payload(n domain.Notification) webhookPayload {
	p := webhookPayload{
		Content: d.mention,
		Embeds: []embed{{
			Title:       n.Title,
			Description: n.Description,
			URL:         n.VideoURL,
			Color:       embedColor,
			Timestamp:   n.DetectedAt.UTC().Format(time.RFC3339),
			Image:       &embedImage{URL: n.ImageURL},
		}},
	}
	if d.mention != "" {
		p.AllowedMentions = &allowedMentions{Parse: []string{"everyone", "roles", "users"}}
	}
	return p
}

// Send posts one embed. Any non-2xx answer is an error.
func (d *Discord) Send(ctx context.Context, n domain.Notification) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for rate limiter: %w", err)
	}

	body, err := json.Marshal(d.payload(n))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ThumbnailWatcher/1.0")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	d.logger.Debug("posted notification", "video_id", n.VideoID)
	return nil
}

func (d *Discord) Close() error {
	d.httpClient.CloseIdleConnections()
	return nil
}
