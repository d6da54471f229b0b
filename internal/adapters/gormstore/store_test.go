package gormstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"trendharvest/internal/core/domain"
	"trendharvest/internal/core/ports"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := Open(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSettings_GetCreatesDefaults(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	s, err := store.Settings().Get(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if s.MaxConcurrentDownload != 3 {
		t.Errorf("MaxConcurrentDownload = %d, want 3", s.MaxConcurrentDownload)
	}
	if s.MinViewsFilter != 100_000 {
		t.Errorf("MinViewsFilter = %d, want 100000", s.MinViewsFilter)
	}
	if s.DiscoverCron != "0 7 * * *" {
		t.Errorf("DiscoverCron = %q", s.DiscoverCron)
	}
	if !s.IsEnabled {
		t.Errorf("expected default settings enabled")
	}

	// Second read returns the same persisted row.
	again, err := store.Settings().Get(ctx)
	if err != nil {
		t.Fatalf("get settings again: %v", err)
	}
	if again.ID != s.ID {
		t.Errorf("second Get returned a different row: %d vs %d", again.ID, s.ID)
	}
}

func TestSettings_UpdatePersists(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	s, err := store.Settings().Get(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}

	s.MaxConcurrentDownload = 5
	s.ProxyList = []string{"socks5://127.0.0.1:1080"}
	s.Keywords = domain.TopicKeywords{"gaming": {"gaming", "game moi"}}
	if _, err := store.Settings().Update(ctx, s); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	got, err := store.Settings().Get(ctx)
	if err != nil {
		t.Fatalf("reload settings: %v", err)
	}
	if got.MaxConcurrentDownload != 5 {
		t.Errorf("MaxConcurrentDownload = %d, want 5", got.MaxConcurrentDownload)
	}
	if got.Proxy() != "socks5://127.0.0.1:1080" {
		t.Errorf("Proxy = %q", got.Proxy())
	}
	if len(got.Keywords["gaming"]) != 2 {
		t.Errorf("Keywords = %v, want serialized map back", got.Keywords)
	}
}

func TestChannelUpsert_CreateThenRefresh(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.Channels().Upsert(ctx, ports.ChannelUpsert{
		Platform:   domain.PlatformYouTube,
		ChannelKey: "UCabc",
		Name:       "Kenh Hai",
		Topic:      "hai",
		Followers:  1000,
	})
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	if first.Priority != domain.PriorityNormal {
		t.Errorf("new channel priority = %d, want %d", first.Priority, domain.PriorityNormal)
	}
	if !first.IsActive {
		t.Errorf("new channel should be active")
	}

	second, err := store.Channels().Upsert(ctx, ports.ChannelUpsert{
		Platform:   domain.PlatformYouTube,
		ChannelKey: "UCabc",
		Name:       "Kenh Hai Moi",
		Topic:      "dance",
		Followers:  2000,
	})
	if err != nil {
		t.Fatalf("refresh channel: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("upsert created a duplicate: %d vs %d", second.ID, first.ID)
	}
	if second.Name != "Kenh Hai Moi" || second.Followers != 2000 {
		t.Errorf("refresh did not apply: %+v", second)
	}
	if !second.HasTopic("hai") || !second.HasTopic("dance") {
		t.Errorf("topics = %v, want union of both", second.Topics)
	}

	// Re-upserting an existing topic must not duplicate it.
	third, err := store.Channels().Upsert(ctx, ports.ChannelUpsert{
		Platform:   domain.PlatformYouTube,
		ChannelKey: "UCabc",
		Topic:      "hai",
	})
	if err != nil {
		t.Fatalf("third upsert: %v", err)
	}
	if len(third.Topics) != 2 {
		t.Errorf("topics = %v, want no duplicates", third.Topics)
	}
}

func TestChannel_IncTotalVideosAndLastScanned(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	ch, err := store.Channels().Upsert(ctx, ports.ChannelUpsert{
		Platform: domain.PlatformYouTube, ChannelKey: "UCx", Topic: "food",
	})
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := store.Channels().IncTotalVideos(ctx, ch.ID); err != nil {
			t.Fatalf("inc total videos: %v", err)
		}
	}
	at := time.Now().UTC().Truncate(time.Second)
	if err := store.Channels().SetLastScanned(ctx, ch.ID, at); err != nil {
		t.Fatalf("set last scanned: %v", err)
	}

	got, err := store.Channels().Get(ctx, ch.ID)
	if err != nil {
		t.Fatalf("get channel: %v", err)
	}
	if got.TotalVideos != 3 {
		t.Errorf("TotalVideos = %d, want 3", got.TotalVideos)
	}
	if got.LastScanned == nil || !got.LastScanned.Equal(at) {
		t.Errorf("LastScanned = %v, want %v", got.LastScanned, at)
	}
}

func TestVideoUpsert_CreatedChangedUnchanged(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	up := ports.VideoUpsert{
		Platform: domain.PlatformYouTube,
		VideoKey: "vid1",
		Title:    "Clip hai",
		Views:    200_000,
		URL:      "https://youtu.be/vid1",
		Topic:    "hai",
	}

	rec, created, changed, err := store.Videos().Upsert(ctx, up)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !created || changed {
		t.Errorf("first upsert: created=%v changed=%v, want created only", created, changed)
	}
	if rec.DownloadStatus != domain.StatusPending {
		t.Errorf("new video status = %q, want pending", rec.DownloadStatus)
	}
	if rec.DiscoveredAt.IsZero() {
		t.Errorf("DiscoveredAt not set")
	}

	// Identical payload: neither created nor changed.
	_, created, changed, err = store.Videos().Upsert(ctx, up)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created || changed {
		t.Errorf("identical upsert: created=%v changed=%v, want neither", created, changed)
	}

	// Bumped view count counts as a change.
	up.Views = 500_000
	rec, created, changed, err = store.Videos().Upsert(ctx, up)
	if err != nil {
		t.Fatalf("third upsert: %v", err)
	}
	if created || !changed {
		t.Errorf("view bump: created=%v changed=%v, want changed only", created, changed)
	}
	if rec.Views != 500_000 {
		t.Errorf("Views = %d, want 500000", rec.Views)
	}
}

func TestVideoUpsert_NeverTouchesStatus(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	up := ports.VideoUpsert{
		Platform: domain.PlatformYouTube,
		VideoKey: "vid2",
		Title:    "Done already",
		URL:      "https://youtu.be/vid2",
	}
	rec, _, _, err := store.Videos().Upsert(ctx, up)
	if err != nil {
		t.Fatalf("create video: %v", err)
	}
	if err := store.Videos().MarkDone(ctx, rec.ID, "/data/x.mp4", time.Now().UTC()); err != nil {
		t.Fatalf("mark done: %v", err)
	}

	up.Views = 9_000_000
	if _, _, _, err := store.Videos().Upsert(ctx, up); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	got, err := store.Videos().Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	if got.DownloadStatus != domain.StatusDone {
		t.Errorf("status = %q, re-discovery must not regress done", got.DownloadStatus)
	}
	if got.LocalPath != "/data/x.mp4" {
		t.Errorf("LocalPath = %q", got.LocalPath)
	}
}

func TestVideo_StatusTransitions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rec, _, _, err := store.Videos().Upsert(ctx, ports.VideoUpsert{
		Platform: domain.PlatformYouTube, VideoKey: "vid3", URL: "https://youtu.be/vid3",
	})
	if err != nil {
		t.Fatalf("create video: %v", err)
	}

	if err := store.Videos().MarkDownloading(ctx, rec.ID); err != nil {
		t.Fatalf("mark downloading: %v", err)
	}
	if err := store.Videos().MarkPending(ctx, rec.ID, "timeout"); err != nil {
		t.Fatalf("mark pending: %v", err)
	}
	got, _ := store.Videos().Get(ctx, rec.ID)
	if got.DownloadStatus != domain.StatusPending || got.FailReason != "timeout" {
		t.Errorf("after retry transition: status=%q reason=%q", got.DownloadStatus, got.FailReason)
	}

	if err := store.Videos().MarkFailed(ctx, rec.ID, "exhausted"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, _ = store.Videos().Get(ctx, rec.ID)
	if got.DownloadStatus != domain.StatusFailed || got.FailReason != "exhausted" {
		t.Errorf("after failure: status=%q reason=%q", got.DownloadStatus, got.FailReason)
	}

	at := time.Now().UTC().Truncate(time.Second)
	if err := store.Videos().MarkDone(ctx, rec.ID, "/data/v.mp4", at); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	got, _ = store.Videos().Get(ctx, rec.ID)
	if got.DownloadStatus != domain.StatusDone {
		t.Errorf("status = %q, want done", got.DownloadStatus)
	}
	if got.FailReason != "" {
		t.Errorf("FailReason = %q, want cleared on done", got.FailReason)
	}
	if got.DownloadedAt == nil || !got.DownloadedAt.Equal(at) {
		t.Errorf("DownloadedAt = %v, want %v", got.DownloadedAt, at)
	}
}

func TestVideo_ListPendingAndCounts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		if _, _, _, err := store.Videos().Upsert(ctx, ports.VideoUpsert{
			Platform: domain.PlatformYouTube, VideoKey: key, URL: "https://youtu.be/" + key,
		}); err != nil {
			t.Fatalf("create video %s: %v", key, err)
		}
	}
	// Move one out of pending.
	rec, err := store.Videos().Get(ctx, 1)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	if err := store.Videos().MarkDone(ctx, rec.ID, "/data/a.mp4", time.Now().UTC()); err != nil {
		t.Fatalf("mark done: %v", err)
	}

	pending, err := store.Videos().ListPending(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("pending = %d, want 2", len(pending))
	}

	counts, err := store.Videos().StatusCounts(ctx)
	if err != nil {
		t.Fatalf("status counts: %v", err)
	}
	if counts[domain.StatusPending] != 2 || counts[domain.StatusDone] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestVideo_SearchFilters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	seed := []ports.VideoUpsert{
		{Platform: domain.PlatformYouTube, VideoKey: "v1", URL: "u1", Topic: "hai", Views: 50_000},
		{Platform: domain.PlatformYouTube, VideoKey: "v2", URL: "u2", Topic: "hai", Views: 900_000},
		{Platform: domain.PlatformFacebook, VideoKey: "v3", URL: "u3", Topic: "dance", Views: 120_000},
	}
	for _, up := range seed {
		if _, _, _, err := store.Videos().Upsert(ctx, up); err != nil {
			t.Fatalf("seed %s: %v", up.VideoKey, err)
		}
	}

	items, total, err := store.Videos().Search(ctx, ports.VideoQuery{Topic: "hai", MinViews: 100_000})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].VideoKey != "v2" {
		t.Errorf("search = %d items (total %d), want only v2", len(items), total)
	}

	_, total, err = store.Videos().Search(ctx, ports.VideoQuery{Platform: domain.PlatformFacebook})
	if err != nil {
		t.Fatalf("platform search: %v", err)
	}
	if total != 1 {
		t.Errorf("facebook total = %d, want 1", total)
	}
}

func TestJobLog_RecordAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.JobLog().Record(ctx, domain.JobLogEntry{
		JobType: domain.JobTypeDiscover, Status: domain.OutcomeSuccess, ItemsFound: 7,
	})
	store.JobLog().Record(ctx, domain.JobLogEntry{
		JobType: domain.JobTypeDownload, Status: domain.OutcomeFailed, Error: "boom",
	})

	all, err := store.JobLog().Recent(ctx, ports.LogQuery{})
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("entries = %d, want 2", len(all))
	}
	for _, e := range all {
		if e.RanAt.IsZero() {
			t.Errorf("RanAt not defaulted on record")
		}
	}

	failed, err := store.JobLog().Recent(ctx, ports.LogQuery{Status: domain.OutcomeFailed})
	if err != nil {
		t.Fatalf("filtered recent: %v", err)
	}
	if len(failed) != 1 || failed[0].JobType != domain.JobTypeDownload {
		t.Errorf("filtered = %+v, want the failed download entry", failed)
	}
}
