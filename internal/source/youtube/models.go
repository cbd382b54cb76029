package youtube

// ChannelListResponse is the channels.list payload.
type ChannelListResponse struct {
	Items []Channel `json:"items"`
}

type Channel struct {
	ID      string          `json:"id"`
	Snippet *ChannelSnippet `json:"snippet"`
}

type ChannelSnippet struct {
	Title string `json:"title"`
}

// SearchListResponse is one page of search.list.
type SearchListResponse struct {
	NextPageToken string         `json:"nextPageToken"`
	Items         []SearchResult `json:"items"`
}

type SearchResult struct {
	ID *ResourceID `json:"id"`
}

type ResourceID struct {
	Kind    string `json:"kind"`
	VideoID string `json:"videoId"`
}

// VideoListResponse is the videos.list payload.
type VideoListResponse struct {
	Items []APIVideo `json:"items"`
}

type APIVideo struct {
	ID         string           `json:"id"`
	Snippet    *VideoSnippet    `json:"snippet"`
	Statistics *VideoStatistics `json:"statistics"`
}

type VideoSnippet struct {
	ChannelID  string     `json:"channelId"`
	Title      string     `json:"title"`
	Thumbnails Thumbnails `json:"thumbnails"`
}

type Thumbnails struct {
	Default  *Thumbnail `json:"default"`
	Medium   *Thumbnail `json:"medium"`
	High     *Thumbnail `json:"high"`
	Standard *Thumbnail `json:"standard"`
	Maxres   *Thumbnail `json:"maxres"`
}

type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Best returns the URL of the highest resolution thumbnail available.
func (t Thumbnails) Best() string {
	for _, th := range []*Thumbnail{t.Maxres, t.Standard, t.High, t.Medium, t.Default} {
		if th != nil && th.URL != "" {
			return th.URL
		}
	}
	return ""
}

type VideoStatistics struct {
	// The API encodes counters as strings.
	ViewCount string `json:"viewCount"`
}

// ErrorResponse is the error envelope returned with non-2xx statuses.
type ErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}
