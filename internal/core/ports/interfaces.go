package ports

import (
	"context"
	"time"

	"trendharvest/internal/core/domain"
)

// SettingsStore is the durable configuration row. Get lazily creates the
// default row, so callers never see a missing-settings error.
type SettingsStore interface {
	Get(ctx context.Context) (*domain.Settings, error)

	// Update persists the given settings under the "default" key and
	// returns the stored row.
	Update(ctx context.Context, s *domain.Settings) (*domain.Settings, error)
}

// ChannelUpsert carries the channel fields a candidate can refresh.
type ChannelUpsert struct {
	Platform   domain.Platform
	ChannelKey string
	Name       string
	Topic      string
	Followers  int64
}

// ChannelQuery filters channel listings for the ops API.
type ChannelQuery struct {
	Search string
	Page   int
	Limit  int
}

// ChannelStore persists ChannelRecords.
type ChannelStore interface {
	// Upsert creates or refreshes the record keyed (platform, channelKey),
	// adding Topic to the topic set and marking the channel active.
	Upsert(ctx context.Context, c ChannelUpsert) (*domain.ChannelRecord, error)

	// Get returns one channel by primary key.
	Get(ctx context.Context, id uint) (*domain.ChannelRecord, error)

	// IncTotalVideos bumps the per-channel discovered-video counter.
	IncTotalVideos(ctx context.Context, id uint) error

	// ListActive returns active channels ordered by priority descending.
	ListActive(ctx context.Context, limit int) ([]domain.ChannelRecord, error)

	// SetLastScanned stamps the channel after a scan pass.
	SetLastScanned(ctx context.Context, id uint, at time.Time) error

	// Search pages through channels for the ops API. Returns the page and
	// the total match count.
	Search(ctx context.Context, q ChannelQuery) ([]domain.ChannelRecord, int64, error)
}

// VideoUpsert carries the video fields a candidate can refresh.
type VideoUpsert struct {
	Platform       domain.Platform
	VideoKey       string
	Title          string
	Views          int64
	URL            string
	Topic          string
	Thumbnail      string
	OwnerChannelID uint
}

// VideoQuery filters video listings for the ops API.
type VideoQuery struct {
	Platform domain.Platform
	Topic    string
	Status   domain.DownloadStatus
	MinViews int64
	From     time.Time
	To       time.Time
	Page     int
	Limit    int
}

// VideoStore persists VideoRecords and owns the downloadStatus transitions.
type VideoStore interface {
	// Upsert creates the record with status pending, or refreshes mutable
	// metadata on an existing one. It never changes the status of an
	// existing record. created is true on first insert; changed is true
	// when an existing record's metadata actually differed.
	Upsert(ctx context.Context, v VideoUpsert) (rec *domain.VideoRecord, created bool, changed bool, err error)

	Get(ctx context.Context, id uint) (*domain.VideoRecord, error)

	MarkDownloading(ctx context.Context, id uint) error

	// MarkDone records the local path and download timestamp and clears
	// any previous fail reason.
	MarkDone(ctx context.Context, id uint, localPath string, at time.Time) error

	// MarkPending returns a failed attempt to pending for retry, storing
	// the fail reason. An empty reason clears it (operator re-download).
	MarkPending(ctx context.Context, id uint, failReason string) error

	// MarkFailed is the terminal failure transition.
	MarkFailed(ctx context.Context, id uint, failReason string) error

	// ListPending returns records with status pending, oldest first. Used
	// by the startup reconciliation pass.
	ListPending(ctx context.Context, limit int) ([]domain.VideoRecord, error)

	// Search pages through videos for the ops API.
	Search(ctx context.Context, q VideoQuery) ([]domain.VideoRecord, int64, error)

	// StatusCounts returns the number of videos per download status.
	StatusCounts(ctx context.Context) (map[domain.DownloadStatus]int64, error)

	// Recent returns the newest discoveries for the stats overview.
	Recent(ctx context.Context, limit int) ([]domain.VideoRecord, error)
}

// LogQuery filters job log listings for the ops API.
type LogQuery struct {
	JobType domain.JobType
	Status  domain.JobOutcome
	Limit   int
}

// JobLog is the append-only audit sink. Record is fire-and-forget: a
// failed write must never fail the operation that produced the entry.
type JobLog interface {
	Record(ctx context.Context, e domain.JobLogEntry)

	// Recent reads entries back for external reporting only.
	Recent(ctx context.Context, q LogQuery) ([]domain.JobLogEntry, error)
}

// DownloadRequest describes one external-downloader invocation.
type DownloadRequest struct {
	URL        string
	OutputPath string
	Proxy      string
}

// Executor invokes the external download tool. A nil error means the tool
// exited zero; any other outcome returns an error carrying the tool's
// stderr as the diagnostic payload.
type Executor interface {
	Run(ctx context.Context, req DownloadRequest) error
}

// Enqueuer admits download work into the priority queue. Implemented by
// the queue; consumed by the gateway and the ops API.
type Enqueuer interface {
	// Enqueue is idempotent per video: a video with a live job keeps its
	// existing job (priority unchanged) and the existing job id comes back.
	Enqueue(videoID uint, priority int) string
}

// CandidateSource produces discovery candidates for one topic. The scraping
// mechanism behind it is not part of this engine.
type CandidateSource interface {
	Discover(ctx context.Context, topic string, keywords []string) ([]domain.Candidate, error)
}

// ChannelFeed produces candidates from one channel's recent uploads.
type ChannelFeed interface {
	FetchChannel(ctx context.Context, ch domain.ChannelRecord) ([]domain.Candidate, error)
}
