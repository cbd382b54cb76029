package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"thumbnail_watcher/internal/domain"
)

// MaxPageSize is the largest page the Data API serves.
const MaxPageSize = 50

// Config holds YouTube Data API client configuration.
type Config struct {
	BaseURL           string
	APIKey            string
	PageSize          int
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client lists a channel's videos through the YouTube Data API v3.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	pageSize   int
	limiter    *rate.Limiter
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a new YouTube client.
func New(cfg Config, logger *slog.Logger) *Client {
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		pageSize: pageSize,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger.With("component", "youtube"),
		now:      time.Now,
	}
}

// FetchAllItems returns every video of the channel in listing order.
//
// A quota rejection on any call aborts the fetch with domain.ErrRateLimited and
// no videos; a partial catalog is never returned. A channel that does not
// exist yields domain.ErrNotFound.
func (c *Client) FetchAllItems(ctx context.Context, channelID string) ([]domain.Video, error) {
	logger := c.logger.With("channel_id", channelID)

	title, err := c.lookupChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			logger.Warn("rate limited while fetching channel", "error", err)
		}
		return nil, fmt.Errorf("lookup channel: %w", err)
	}
	logger.Info("fetched channel", "title", title)

	var (
		videos    []domain.Video
		seen      = make(map[string]struct{})
		pageToken string
		tokens    = make(map[string]struct{})
	)

	for page := 0; ; page++ {
		resp, err := c.searchPage(ctx, channelID, pageToken)
		if err != nil {
			if errors.Is(err, domain.ErrRateLimited) {
				logger.Warn("rate limited while fetching videos", "page", page, "discarded", len(videos))
			}
			return nil, fmt.Errorf("list page %d: %w", page, err)
		}

		ids := make([]string, 0, len(resp.Items))
		for _, item := range resp.Items {
			if item.ID == nil || item.ID.VideoID == "" {
				continue
			}
			if _, dup := seen[item.ID.VideoID]; dup {
				continue
			}
			seen[item.ID.VideoID] = struct{}{}
			ids = append(ids, item.ID.VideoID)
		}

		if len(ids) > 0 {
			details, err := c.videoDetails(ctx, ids)
			if err != nil {
				if errors.Is(err, domain.ErrRateLimited) {
					logger.Warn("rate limited while fetching video details", "page", page, "discarded", len(videos))
				}
				return nil, fmt.Errorf("lookup details page %d: %w", page, err)
			}
			videos = append(videos, c.transform(channelID, ids, details)...)
		}

		logger.Debug("fetched page",
			"page", page,
			"videos", len(ids),
			"total", len(videos),
		)

		if resp.NextPageToken == "" {
			break
		}
		if _, repeated := tokens[resp.NextPageToken]; repeated {
			return nil, fmt.Errorf("list page %d: page token %q repeated", page, resp.NextPageToken)
		}
		tokens[resp.NextPageToken] = struct{}{}
		pageToken = resp.NextPageToken
	}

	return videos, nil
}

func (c *Client) lookupChannel(ctx context.Context, channelID string) (string, error) {
	params := url.Values{}
	params.Set("part", "id,snippet")
	params.Set("id", channelID)

	var resp ChannelListResponse
	if err := c.getJSON(ctx, "channels", params, &resp); err != nil {
		return "", err
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("%w: %s", domain.ErrNotFound, channelID)
	}

	ch := resp.Items[0]
	if ch.Snippet != nil && ch.Snippet.Title != "" {
		return ch.Snippet.Title, nil
	}
	return ch.ID, nil
}

func (c *Client) searchPage(ctx context.Context, channelID, pageToken string) (*SearchListResponse, error) {
	params := url.Values{}
	params.Set("part", "id")
	params.Set("channelId", channelID)
	params.Set("type", "video")
	params.Set("maxResults", strconv.Itoa(c.pageSize))
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var resp SearchListResponse
	if err := c.getJSON(ctx, "search", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) videoDetails(ctx context.Context, ids []string) (map[string]APIVideo, error) {
	params := url.Values{}
	params.Set("part", "snippet,statistics")
	// The id list bounds the response; the API rejects maxResults alongside id.
	params.Set("id", strings.Join(ids, ","))

	var resp VideoListResponse
	if err := c.getJSON(ctx, "videos", params, &resp); err != nil {
		return nil, err
	}

	details := make(map[string]APIVideo, len(resp.Items))
	for _, v := range resp.Items {
		details[v.ID] = v
	}
	return details, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for rate limiter: %w", err)
	}

	params.Set("key", c.apiKey)
	reqURL := c.baseURL + "/" + endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "ThumbnailWatcher/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s %s", domain.ErrRateLimited, endpoint, errorReason(resp.Body))
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, endpoint, errorReason(resp.Body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}

	return nil
}

func errorReason(body io.Reader) string {
	var apiErr ErrorResponse
	if err := json.NewDecoder(io.LimitReader(body, 64<<10)).Decode(&apiErr); err != nil {
		return "no error body"
	}
	if len(apiErr.Error.Errors) > 0 && apiErr.Error.Errors[0].Reason != "" {
		return apiErr.Error.Errors[0].Reason
	}
	return apiErr.Error.Message
}

// transform keeps the order of ids and stamps every video with the listed
// channel. Ids the detail lookup did not return are dropped; videos without a
// thumbnail are kept and left to the differ.
func (c *Client) transform(channelID string, ids []string, details map[string]APIVideo) []domain.Video {
	fetchedAt := c.now()
	videos := make([]domain.Video, 0, len(ids))

	for _, id := range ids {
		v, ok := details[id]
		if !ok {
			c.logger.Warn("video missing from detail lookup", "video_id", id)
			continue
		}

		video := domain.Video{
			ID:        v.ID,
			ChannelID: channelID,
			FetchedAt: fetchedAt,
		}
		if v.Snippet != nil {
			video.Title = v.Snippet.Title
			video.ThumbnailURL = v.Snippet.Thumbnails.Best()
		}
		if v.Statistics != nil && v.Statistics.ViewCount != "" {
			count, err := strconv.ParseInt(v.Statistics.ViewCount, 10, 64)
			if err != nil {
				c.logger.Warn("failed to parse view count",
					"video_id", id,
					"view_count", v.Statistics.ViewCount,
				)
			}
			video.ViewCount = count
		}

		videos = append(videos, video)
	}

	return videos
}
