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

// SweepResult summarizes one discovery or scan sweep.
type SweepResult struct {
	Skipped    bool `json:"skipped,omitempty"`
	ItemsFound int  `json:"itemsFound"`
	Channels   int  `json:"channels,omitempty"`
}

// DiscoverService runs the periodic topic discovery sweep. The candidate
// source behind it is an external collaborator; this service owns the
// topic iteration, admission calls and the one-per-sweep audit entry.
type DiscoverService struct {
	settings ports.SettingsStore
	source   ports.CandidateSource
	gateway  *Gateway
	joblog   ports.JobLog
	logger   *slog.Logger
}

// NewDiscoverService creates the discovery sweep runner.
func NewDiscoverService(settings ports.SettingsStore, source ports.CandidateSource, gateway *Gateway, joblog ports.JobLog, logger *slog.Logger) *DiscoverService {
	return &DiscoverService{
		settings: settings,
		source:   source,
		gateway:  gateway,
		joblog:   joblog,
		logger:   logger,
	}
}

// Run executes one full discovery sweep across all configured topics.
// A source failure aborts the sweep and is recorded as a failed entry;
// per-candidate admission failures are logged and skipped.
func (s *DiscoverService) Run(ctx context.Context) (SweepResult, error) {
	started := time.Now()

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to load settings: %w", err)
	}
	if !settings.IsEnabled {
		s.logger.Info("discovery sweep skipped: automation disabled")
		return SweepResult{Skipped: true}, nil
	}

	found := 0
	for _, topic := range settings.Topics() {
		candidates, err := s.source.Discover(ctx, topic, settings.Keywords[topic])
		if err != nil {
			duration := time.Since(started)
			s.joblog.Record(ctx, domain.JobLogEntry{
				JobType:    domain.JobTypeDiscover,
				Status:     domain.OutcomeFailed,
				Topic:      topic,
				ItemsFound: found,
				DurationMS: duration.Milliseconds(),
				Error:      err.Error(),
			})
			metrics.SweepDuration.WithLabelValues(string(domain.JobTypeDiscover)).Observe(duration.Seconds())
			return SweepResult{ItemsFound: found}, fmt.Errorf("discovery failed for topic %s: %w", topic, err)
		}

		for _, cand := range candidates {
			if cand.Topic == "" {
				cand.Topic = topic
			}
			res, err := s.gateway.Admit(ctx, cand)
			if err != nil {
				s.logger.Warn("candidate admission failed",
					slog.String("topic", topic),
					slog.String("videoId", cand.VideoKey),
					slog.String("error", err.Error()))
				continue
			}
			if !res.Skipped {
				found++
			}
		}
	}

	duration := time.Since(started)
	s.joblog.Record(ctx, domain.JobLogEntry{
		JobType:    domain.JobTypeDiscover,
		Status:     domain.OutcomeSuccess,
		ItemsFound: found,
		DurationMS: duration.Milliseconds(),
	})
	metrics.SweepDuration.WithLabelValues(string(domain.JobTypeDiscover)).Observe(duration.Seconds())

	s.logger.Info("discovery sweep finished",
		slog.Int("itemsFound", found), slog.Duration("took", duration))
	return SweepResult{ItemsFound: found}, nil
}
