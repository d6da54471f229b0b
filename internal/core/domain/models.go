package domain

import (
	"sort"
	"time"
)

// Platform identifies the origin site of a channel or video.
type Platform string

const (
	PlatformYouTube  Platform = "youtube"
	PlatformFacebook Platform = "facebook"
)

// DownloadStatus tracks a video through the download lifecycle.
// Valid transitions: pending -> downloading -> {done, failed};
// failed -> pending only happens through an explicit operator re-download.
type DownloadStatus string

const (
	StatusPending     DownloadStatus = "pending"
	StatusDownloading DownloadStatus = "downloading"
	StatusDone        DownloadStatus = "done"
	StatusFailed      DownloadStatus = "failed"
)

// IsTerminal reports whether no automatic transition will change the status.
func (s DownloadStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Queue priority tiers. Lower value is served sooner.
const (
	PriorityHigh   = 1
	PriorityNormal = 5
)

// MaxDownloadAttempts is the total number of tries a job gets before its
// video is marked failed for good.
const MaxDownloadAttempts = 3

// DefaultTopic is used for videos whose candidate carried no topic.
const DefaultTopic = "misc"

// Settings is the single durable configuration row (key "default").
// It is read fresh on every dispatch tick and every admission decision,
// so edits take effect without a restart.
type Settings struct {
	ID                    uint          `gorm:"primaryKey" json:"-"`
	Key                   string        `gorm:"uniqueIndex;size:32" json:"-"`
	MaxConcurrentDownload int           `json:"maxConcurrentDownload"`
	MinViewsFilter        int64         `json:"minViewsFilter"`
	MinChannelFollowers   int64         `json:"minChannelFollowers"`
	MinChannelTotalVideos int           `json:"minChannelTotalVideos"`
	HighPriorityViews     int64         `json:"highPriorityViews"`
	DiscoverCron          string        `gorm:"size:64" json:"discoverCron"`
	ScanCron              string        `gorm:"size:64" json:"scanCron"`
	Keywords              TopicKeywords `gorm:"serializer:json" json:"keywords"`
	ProxyList             []string      `gorm:"serializer:json" json:"proxyList"`
	IsEnabled             bool          `json:"isEnabled"`
	UpdatedAt             time.Time     `json:"updatedAt"`
}

// TopicKeywords maps a topic slug to the search keywords used for it.
type TopicKeywords map[string][]string

func (Settings) TableName() string { return "trend_settings" }

// DefaultSettings returns the row created on first access.
func DefaultSettings() *Settings {
	return &Settings{
		Key:                   "default",
		MaxConcurrentDownload: 3,
		MinViewsFilter:        100_000,
		HighPriorityViews:     1_000_000,
		DiscoverCron:          "0 7 * * *",
		ScanCron:              "30 8 * * *",
		Keywords: TopicKeywords{
			"hai":   {"hai huoc", "funny"},
			"dance": {"dance", "nhay"},
			"food":  {"food", "an ngon"},
		},
		IsEnabled: true,
	}
}

// Proxy returns the first configured proxy URL, or "".
func (s *Settings) Proxy() string {
	if len(s.ProxyList) == 0 {
		return ""
	}
	return s.ProxyList[0]
}

// Topics returns the configured topic slugs in stable order.
func (s *Settings) Topics() []string {
	topics := make([]string, 0, len(s.Keywords))
	for t := range s.Keywords {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// PriorityForViews maps a view count to a queue priority tier.
func (s *Settings) PriorityForViews(views int64) int {
	if views > s.HighPriorityViews {
		return PriorityHigh
	}
	return PriorityNormal
}

// ChannelRecord is a discovered channel, scanned periodically for new videos.
// Unique on (platform, channel_key).
type ChannelRecord struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Platform    Platform   `gorm:"size:20;uniqueIndex:idx_channels_platform_key,priority:1" json:"platform"`
	ChannelKey  string     `gorm:"size:255;uniqueIndex:idx_channels_platform_key,priority:2" json:"channelId"`
	Name        string     `gorm:"size:255" json:"name"`
	Topics      []string   `gorm:"serializer:json" json:"topics"`
	Followers   int64      `json:"followers"`
	Priority    int        `json:"priority"` // 1 highest .. 10 lowest
	TotalVideos int        `json:"totalVideos"`
	LastScanned *time.Time `json:"lastScanned"`
	IsActive    bool       `json:"isActive"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (ChannelRecord) TableName() string { return "trend_channels" }

// HasTopic reports whether the channel's topic set contains t.
func (c *ChannelRecord) HasTopic(t string) bool {
	for _, existing := range c.Topics {
		if existing == t {
			return true
		}
	}
	return false
}

// PrimaryTopic returns the first topic in the set, or DefaultTopic.
func (c *ChannelRecord) PrimaryTopic() string {
	if len(c.Topics) == 0 {
		return DefaultTopic
	}
	return c.Topics[0]
}

// VideoRecord is the system of record for a discovered video.
// (platform, video_key) uniqueness is the dedup anchor.
type VideoRecord struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Platform       Platform       `gorm:"size:20;uniqueIndex:idx_videos_platform_key,priority:1" json:"platform"`
	VideoKey       string         `gorm:"size:255;uniqueIndex:idx_videos_platform_key,priority:2" json:"videoId"`
	Title          string         `gorm:"size:512" json:"title"`
	Views          int64          `json:"views"`
	URL            string         `gorm:"size:1024" json:"url"`
	Topic          string         `gorm:"size:64;index" json:"topic"`
	Thumbnail      string         `gorm:"size:1024" json:"thumbnail"`
	OwnerChannelID uint           `gorm:"index" json:"channelRef"`
	DiscoveredAt   time.Time      `gorm:"index" json:"discoveredAt"`
	DownloadStatus DownloadStatus `gorm:"size:20;index" json:"downloadStatus"`
	LocalPath      string         `gorm:"size:1024" json:"localPath"`
	FailReason     string         `gorm:"type:text" json:"failReason"`
	DownloadedAt   *time.Time     `json:"downloadedAt"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

func (VideoRecord) TableName() string { return "trend_videos" }

// JobType classifies a job log entry.
type JobType string

const (
	JobTypeDiscover    JobType = "discover"
	JobTypeScanChannel JobType = "scan-channel"
	JobTypeDownload    JobType = "download"
)

// JobOutcome is the recorded result of a sweep or a download attempt.
type JobOutcome string

const (
	OutcomeSuccess JobOutcome = "success"
	OutcomeFailed  JobOutcome = "failed"
	OutcomePartial JobOutcome = "partial"
)

// JobLogEntry is one line of the append-only audit trail. The engine writes
// it and never reads it back.
type JobLogEntry struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	JobType         JobType    `gorm:"size:20;index" json:"jobType"`
	Status          JobOutcome `gorm:"size:20;index" json:"status"`
	Platform        Platform   `gorm:"size:20" json:"platform,omitempty"`
	Topic           string     `gorm:"size:64" json:"topic,omitempty"`
	ItemsFound      int        `json:"itemsFound"`
	ItemsDownloaded int        `json:"itemsDownloaded"`
	DurationMS      int64      `json:"duration"`
	Error           string     `gorm:"type:text" json:"error,omitempty"`
	RanAt           time.Time  `gorm:"index" json:"ranAt"`
}

func (JobLogEntry) TableName() string { return "trend_job_logs" }

// DownloadJob is a queue-only work item. It is never persisted; pending
// VideoRecords are recovered into fresh jobs by the reconciliation pass.
type DownloadJob struct {
	ID         string
	VideoID    uint // VideoRecord primary key
	Priority   int
	Attempts   int
	EnqueuedAt time.Time
}
