package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"trendharvest/internal/core/domain"
	"trendharvest/internal/core/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSettings serves a mutable in-memory Settings row.
type fakeSettings struct {
	mu  sync.Mutex
	s   domain.Settings
	err error
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{s: *domain.DefaultSettings()}
}

func (f *fakeSettings) Get(context.Context) (*domain.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := f.s
	return &s, nil
}

func (f *fakeSettings) Update(_ context.Context, s *domain.Settings) (*domain.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s = *s
	out := f.s
	return &out, nil
}

func (f *fakeSettings) set(mut func(*domain.Settings)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mut(&f.s)
}

// fakeVideos is an in-memory ports.VideoStore.
type fakeVideos struct {
	mu     sync.Mutex
	nextID uint
	recs   map[uint]*domain.VideoRecord

	upsertChanged bool // next upsert of an existing record reports changed
}

func newFakeVideos() *fakeVideos {
	return &fakeVideos{nextID: 1, recs: make(map[uint]*domain.VideoRecord)}
}

func (f *fakeVideos) add(rec domain.VideoRecord) *domain.VideoRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.ID == 0 {
		rec.ID = f.nextID
		f.nextID++
	} else if rec.ID >= f.nextID {
		f.nextID = rec.ID + 1
	}
	if rec.DownloadStatus == "" {
		rec.DownloadStatus = domain.StatusPending
	}
	f.recs[rec.ID] = &rec
	return &rec
}

func (f *fakeVideos) Upsert(_ context.Context, v ports.VideoUpsert) (*domain.VideoRecord, bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.recs {
		if rec.Platform == v.Platform && rec.VideoKey == v.VideoKey {
			changed := f.upsertChanged
			if v.Views > 0 && v.Views != rec.Views {
				rec.Views = v.Views
				changed = true
			}
			out := *rec
			return &out, false, changed, nil
		}
	}
	rec := &domain.VideoRecord{
		ID:             f.nextID,
		Platform:       v.Platform,
		VideoKey:       v.VideoKey,
		Title:          v.Title,
		Views:          v.Views,
		URL:            v.URL,
		Topic:          v.Topic,
		Thumbnail:      v.Thumbnail,
		OwnerChannelID: v.OwnerChannelID,
		DiscoveredAt:   time.Now().UTC(),
		DownloadStatus: domain.StatusPending,
	}
	f.nextID++
	f.recs[rec.ID] = rec
	out := *rec
	return &out, true, false, nil
}

func (f *fakeVideos) Get(_ context.Context, id uint) (*domain.VideoRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[id]
	if !ok {
		return nil, fmt.Errorf("video %d not found", id)
	}
	out := *rec
	return &out, nil
}

func (f *fakeVideos) MarkDownloading(_ context.Context, id uint) error {
	return f.setStatus(id, domain.StatusDownloading, nil)
}

func (f *fakeVideos) MarkDone(_ context.Context, id uint, localPath string, at time.Time) error {
	return f.setStatus(id, domain.StatusDone, func(rec *domain.VideoRecord) {
		rec.LocalPath = localPath
		rec.DownloadedAt = &at
		rec.FailReason = ""
	})
}

func (f *fakeVideos) MarkPending(_ context.Context, id uint, failReason string) error {
	return f.setStatus(id, domain.StatusPending, func(rec *domain.VideoRecord) {
		rec.FailReason = failReason
	})
}

func (f *fakeVideos) MarkFailed(_ context.Context, id uint, failReason string) error {
	return f.setStatus(id, domain.StatusFailed, func(rec *domain.VideoRecord) {
		rec.FailReason = failReason
	})
}

func (f *fakeVideos) setStatus(id uint, status domain.DownloadStatus, mut func(*domain.VideoRecord)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[id]
	if !ok {
		return fmt.Errorf("video %d not found", id)
	}
	rec.DownloadStatus = status
	if mut != nil {
		mut(rec)
	}
	return nil
}

func (f *fakeVideos) ListPending(_ context.Context, limit int) ([]domain.VideoRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.VideoRecord
	for id := uint(1); id < f.nextID && len(out) < limit; id++ {
		if rec, ok := f.recs[id]; ok && rec.DownloadStatus == domain.StatusPending {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *fakeVideos) Search(context.Context, ports.VideoQuery) ([]domain.VideoRecord, int64, error) {
	return nil, 0, nil
}

func (f *fakeVideos) StatusCounts(context.Context) (map[domain.DownloadStatus]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[domain.DownloadStatus]int64)
	for _, rec := range f.recs {
		counts[rec.DownloadStatus]++
	}
	return counts, nil
}

func (f *fakeVideos) Recent(context.Context, int) ([]domain.VideoRecord, error) {
	return nil, nil
}

func (f *fakeVideos) status(id uint) domain.DownloadStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.recs[id]; ok {
		return rec.DownloadStatus
	}
	return ""
}

func (f *fakeVideos) failReason(id uint) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.recs[id]; ok {
		return rec.FailReason
	}
	return ""
}

// fakeChannels is an in-memory ports.ChannelStore.
type fakeChannels struct {
	mu        sync.Mutex
	nextID    uint
	recs      map[uint]*domain.ChannelRecord
	scanned   map[uint]time.Time
	listErr   error
	upsertErr error
}

func newFakeChannels() *fakeChannels {
	return &fakeChannels{
		nextID:  1,
		recs:    make(map[uint]*domain.ChannelRecord),
		scanned: make(map[uint]time.Time),
	}
}

func (f *fakeChannels) add(rec domain.ChannelRecord) *domain.ChannelRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.ID == 0 {
		rec.ID = f.nextID
		f.nextID++
	}
	f.recs[rec.ID] = &rec
	return &rec
}

func (f *fakeChannels) Upsert(_ context.Context, c ports.ChannelUpsert) (*domain.ChannelRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	for _, rec := range f.recs {
		if rec.Platform == c.Platform && rec.ChannelKey == c.ChannelKey {
			if c.Topic != "" && !rec.HasTopic(c.Topic) {
				rec.Topics = append(rec.Topics, c.Topic)
			}
			out := *rec
			return &out, nil
		}
	}
	rec := &domain.ChannelRecord{
		ID:         f.nextID,
		Platform:   c.Platform,
		ChannelKey: c.ChannelKey,
		Name:       c.Name,
		Followers:  c.Followers,
		Priority:   domain.PriorityNormal,
		IsActive:   true,
	}
	if c.Topic != "" {
		rec.Topics = []string{c.Topic}
	}
	f.nextID++
	f.recs[rec.ID] = rec
	out := *rec
	return &out, nil
}

func (f *fakeChannels) Get(_ context.Context, id uint) (*domain.ChannelRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[id]
	if !ok {
		return nil, fmt.Errorf("channel %d not found", id)
	}
	out := *rec
	return &out, nil
}

func (f *fakeChannels) IncTotalVideos(_ context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.recs[id]; ok {
		rec.TotalVideos++
	}
	return nil
}

func (f *fakeChannels) ListActive(_ context.Context, limit int) ([]domain.ChannelRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.ChannelRecord
	for id := uint(1); id < f.nextID && len(out) < limit; id++ {
		if rec, ok := f.recs[id]; ok && rec.IsActive {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *fakeChannels) SetLastScanned(_ context.Context, id uint, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanned[id] = at
	return nil
}

func (f *fakeChannels) Search(context.Context, ports.ChannelQuery) ([]domain.ChannelRecord, int64, error) {
	return nil, 0, nil
}

// fakeJobLog collects audit entries.
type fakeJobLog struct {
	mu      sync.Mutex
	entries []domain.JobLogEntry
}

func (f *fakeJobLog) Record(_ context.Context, e domain.JobLogEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
}

func (f *fakeJobLog) Recent(context.Context, ports.LogQuery) ([]domain.JobLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.JobLogEntry, len(f.entries))
	copy(out, f.entries)
	return out, nil
}

func (f *fakeJobLog) byStatus(status domain.JobOutcome) []domain.JobLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.JobLogEntry
	for _, e := range f.entries {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

// fakeExecutor scripts download outcomes and records invocation order and
// peak concurrency.
type fakeExecutor struct {
	mu        sync.Mutex
	fn        func(ports.DownloadRequest) error
	delay     time.Duration
	calls     []ports.DownloadRequest
	inFlight  int
	peakUsage int
}

func (f *fakeExecutor) Run(_ context.Context, req ports.DownloadRequest) error {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.inFlight++
	if f.inFlight > f.peakUsage {
		f.peakUsage = f.inFlight
	}
	fn := f.fn
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	return nil
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeExecutor) callURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.URL
	}
	return out
}

func (f *fakeExecutor) peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peakUsage
}

// fakeEnqueuer records enqueue calls for gateway tests.
type fakeEnqueuer struct {
	mu    sync.Mutex
	calls []struct {
		videoID  uint
		priority int
	}
}

func (f *fakeEnqueuer) Enqueue(videoID uint, priority int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, struct {
		videoID  uint
		priority int
	}{videoID, priority})
	return fmt.Sprintf("job-%d", len(f.calls))
}

// fakeSource serves scripted discovery candidates per topic.
type fakeSource struct {
	byTopic map[string][]domain.Candidate
	errOn   string
}

func (f *fakeSource) Discover(_ context.Context, topic string, _ []string) ([]domain.Candidate, error) {
	if topic == f.errOn {
		return nil, fmt.Errorf("source unavailable")
	}
	return f.byTopic[topic], nil
}

// fakeFeed serves scripted channel uploads.
type fakeFeed struct {
	byChannel map[string][]domain.Candidate
	errOn     string
}

func (f *fakeFeed) FetchChannel(_ context.Context, ch domain.ChannelRecord) ([]domain.Candidate, error) {
	if ch.ChannelKey == f.errOn {
		return nil, fmt.Errorf("feed unavailable")
	}
	return f.byChannel[ch.ChannelKey], nil
}
