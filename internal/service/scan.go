package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"trendharvest/internal/core/domain"
	"trendharvest/internal/core/ports"
	"trendharvest/internal/metrics"
)

// Channel scans cover at most this many channels per sweep.
const maxChannelsPerScan = 100

// ChannelScanService revisits known active channels for new uploads. Like
// discovery, it owns the iteration and audit trail while the per-channel
// feed stays an external collaborator.
type ChannelScanService struct {
	settings ports.SettingsStore
	channels ports.ChannelStore
	feed     ports.ChannelFeed
	gateway  *Gateway
	joblog   ports.JobLog
	logger   *slog.Logger
}

// NewChannelScanService creates the channel-scan sweep runner.
func NewChannelScanService(settings ports.SettingsStore, channels ports.ChannelStore, feed ports.ChannelFeed, gateway *Gateway, joblog ports.JobLog, logger *slog.Logger) *ChannelScanService {
	return &ChannelScanService{
		settings: settings,
		channels: channels,
		feed:     feed,
		gateway:  gateway,
		joblog:   joblog,
		logger:   logger,
	}
}

// Run executes one scan sweep over active channels, highest priority
// first. A failing channel is logged and skipped; only listing the
// channels at all can fail the sweep.
func (s *ChannelScanService) Run(ctx context.Context) (SweepResult, error) {
	started := time.Now()

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to load settings: %w", err)
	}
	if !settings.IsEnabled {
		s.logger.Info("channel scan skipped: automation disabled")
		return SweepResult{Skipped: true}, nil
	}

	channels, err := s.channels.ListActive(ctx, maxChannelsPerScan)
	if err != nil {
		duration := time.Since(started)
		s.joblog.Record(ctx, domain.JobLogEntry{
			JobType:    domain.JobTypeScanChannel,
			Status:     domain.OutcomeFailed,
			DurationMS: duration.Milliseconds(),
			Error:      err.Error(),
		})
		return SweepResult{}, fmt.Errorf("failed to list channels: %w", err)
	}

	found := 0
	for i := range channels {
		n, err := s.scanOne(ctx, &channels[i])
		if err != nil {
			s.logger.Warn("channel scan failed",
				slog.String("channel", channels[i].ChannelKey),
				slog.String("error", err.Error()))
			continue
		}
		found += n
	}

	duration := time.Since(started)
	s.joblog.Record(ctx, domain.JobLogEntry{
		JobType:    domain.JobTypeScanChannel,
		Status:     domain.OutcomeSuccess,
		ItemsFound: found,
		DurationMS: duration.Milliseconds(),
	})
	metrics.SweepDuration.WithLabelValues(string(domain.JobTypeScanChannel)).Observe(duration.Seconds())

	s.logger.Info("channel scan finished",
		slog.Int("channels", len(channels)), slog.Int("itemsFound", found),
		slog.Duration("took", duration))
	return SweepResult{ItemsFound: found, Channels: len(channels)}, nil
}

// ScanOne runs a single channel's scan out of band (the ops API's manual
// scan endpoint).
func (s *ChannelScanService) ScanOne(ctx context.Context, ch *domain.ChannelRecord) (int, error) {
	return s.scanOne(ctx, ch)
}

func (s *ChannelScanService) scanOne(ctx context.Context, ch *domain.ChannelRecord) (int, error) {
	candidates, err := s.feed.FetchChannel(ctx, *ch)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch channel %s: %w", ch.ChannelKey, err)
	}

	found := 0
	for _, cand := range candidates {
		cand.Platform = ch.Platform
		if cand.ChannelKey == "" {
			cand.ChannelKey = ch.ChannelKey
		}
		if cand.ChannelName == "" {
			cand.ChannelName = ch.Name
		}
		if cand.Topic == "" {
			cand.Topic = ch.PrimaryTopic()
		}

		res, err := s.gateway.Admit(ctx, cand)
		if err != nil {
			s.logger.Warn("candidate admission failed",
				slog.String("channel", ch.ChannelKey),
				slog.String("videoId", cand.VideoKey),
				slog.String("error", err.Error()))
			continue
		}
		if res.Queued {
			found++
		}
	}

	if err := s.channels.SetLastScanned(ctx, ch.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to stamp channel after scan",
			slog.String("channel", ch.ChannelKey), slog.String("error", err.Error()))
	}
	return found, nil
}
