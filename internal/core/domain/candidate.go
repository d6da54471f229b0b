package domain

import "strings"

// Candidate is raw, not-yet-persisted video metadata produced by a
// discovery or channel-scan collaborator.
type Candidate struct {
	Platform    Platform `json:"platform"`
	VideoKey    string   `json:"videoId"`
	Title       string   `json:"title"`
	ViewsText   string   `json:"viewsText"` // raw text, e.g. "1.2M views"
	Views       int64    `json:"views"`     // parsed count; wins over ViewsText when set
	URL         string   `json:"url"`
	Topic       string   `json:"topic"`
	ChannelName string   `json:"channelName"`
	ChannelKey  string   `json:"channelId"`
	Followers   int64    `json:"followers"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
}

// Valid reports whether the candidate carries the fields required for
// ingestion. Invalid candidates are skipped, never surfaced as errors.
func (c *Candidate) Valid() bool {
	return c.VideoKey != "" && c.URL != "" && c.Platform != ""
}

// ViewCount returns the parsed view count, falling back to ViewsText.
func (c *Candidate) ViewCount() int64 {
	if c.Views > 0 {
		return c.Views
	}
	return ParseViews(c.ViewsText)
}

// ChannelSlug returns the channel key, deriving one from the display name
// when the scraper could not resolve a real id.
func (c *Candidate) ChannelSlug() string {
	if c.ChannelKey != "" {
		return c.ChannelKey
	}
	return strings.Join(strings.Fields(strings.ToLower(c.ChannelName)), "-")
}
