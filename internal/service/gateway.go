package service

import (
	"context"
	"fmt"
	"log/slog"

	"trendharvest/internal/core/domain"
	"trendharvest/internal/core/ports"
)

// Gateway is the idempotent ingestion point between the discovery/scan
// collaborators and the download queue. It upserts the persisted channel
// and video records and conditionally admits a job.
type Gateway struct {
	settings ports.SettingsStore
	channels ports.ChannelStore
	videos   ports.VideoStore
	queue    ports.Enqueuer
	logger   *slog.Logger
}

// AdmitResult reports what one candidate caused.
type AdmitResult struct {
	Skipped  bool // malformed candidate, nothing persisted
	Created  bool // a new VideoRecord was inserted
	Queued   bool // a download job was enqueued
	Priority int  // priority assigned when Queued
	VideoID  uint // VideoRecord primary key when persisted
	JobID    string
}

// NewGateway wires the gateway to its stores and the queue.
func NewGateway(settings ports.SettingsStore, channels ports.ChannelStore, videos ports.VideoStore, queue ports.Enqueuer, logger *slog.Logger) *Gateway {
	return &Gateway{
		settings: settings,
		channels: channels,
		videos:   videos,
		queue:    queue,
		logger:   logger,
	}
}

// Admit ingests one raw candidate: upsert the owning channel (topic set
// union, video counter), upsert the video keyed (platform, videoId), then
// enqueue a download job iff the upsert created or changed the record, the
// video is not already done, and the view count clears the admission
// threshold. Malformed candidates are skipped without error so one bad
// item never aborts a batch.
func (g *Gateway) Admit(ctx context.Context, cand domain.Candidate) (AdmitResult, error) {
	if !cand.Valid() {
		g.logger.Debug("skipping malformed candidate",
			slog.String("platform", string(cand.Platform)),
			slog.String("videoId", cand.VideoKey),
			slog.String("url", cand.URL))
		return AdmitResult{Skipped: true}, nil
	}

	settings, err := g.settings.Get(ctx)
	if err != nil {
		return AdmitResult{}, fmt.Errorf("failed to load settings: %w", err)
	}

	views := cand.ViewCount()
	topic := cand.Topic
	if topic == "" {
		topic = domain.DefaultTopic
	}

	channel, err := g.channels.Upsert(ctx, ports.ChannelUpsert{
		Platform:   cand.Platform,
		ChannelKey: cand.ChannelSlug(),
		Name:       cand.ChannelName,
		Topic:      topic,
		Followers:  cand.Followers,
	})
	if err != nil {
		return AdmitResult{}, err
	}
	if err := g.channels.IncTotalVideos(ctx, channel.ID); err != nil {
		g.logger.Warn("failed to bump channel video counter",
			slog.Uint64("channel", uint64(channel.ID)), slog.String("error", err.Error()))
	}

	rec, created, changed, err := g.videos.Upsert(ctx, ports.VideoUpsert{
		Platform:       cand.Platform,
		VideoKey:       cand.VideoKey,
		Title:          cand.Title,
		Views:          views,
		URL:            cand.URL,
		Topic:          topic,
		Thumbnail:      cand.Thumbnail,
		OwnerChannelID: channel.ID,
	})
	if err != nil {
		return AdmitResult{}, err
	}

	result := AdmitResult{Created: created, VideoID: rec.ID}

	if !created && !changed {
		return result, nil
	}
	if rec.DownloadStatus == domain.StatusDone {
		return result, nil
	}
	if views < settings.MinViewsFilter {
		return result, nil
	}

	result.Priority = settings.PriorityForViews(views)
	result.JobID = g.queue.Enqueue(rec.ID, result.Priority)
	result.Queued = true

	g.logger.Debug("candidate admitted",
		slog.String("platform", string(cand.Platform)),
		slog.String("videoId", cand.VideoKey),
		slog.Int64("views", views),
		slog.Int("priority", result.Priority))
	return result, nil
}
