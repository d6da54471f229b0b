package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"trendharvest/internal/core/ports"
)

// SweepRunner is the scheduler's view of a sweep: invoked with no
// arguments beyond a context, writes its own audit entry.
type SweepRunner interface {
	Run(ctx context.Context) (SweepResult, error)
}

// Scheduler registers cron timers for the discovery and channel-scan
// sweeps at the expressions stored in Settings, and restarts them on
// Reload so settings edits take effect without a process restart.
type Scheduler struct {
	settings ports.SettingsStore
	queue    *Queue
	discover SweepRunner
	scan     SweepRunner
	logger   *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	started bool
}

// NewScheduler wires the scheduler to its collaborators.
func NewScheduler(settings ports.SettingsStore, queue *Queue, discover, scan SweepRunner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		settings: settings,
		queue:    queue,
		discover: discover,
		scan:     scan,
		logger:   logger,
	}
}

// Start loads Settings, starts the queue dispatcher and registers both
// cron entries. It is idempotent: a second Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	c := cron.New()
	if _, err := c.AddFunc(settings.DiscoverCron, s.sweepFunc("discover", s.discover)); err != nil {
		return fmt.Errorf("invalid discover cron %q: %w", settings.DiscoverCron, err)
	}
	if _, err := c.AddFunc(settings.ScanCron, s.sweepFunc("scan-channel", s.scan)); err != nil {
		return fmt.Errorf("invalid scan cron %q: %w", settings.ScanCron, err)
	}

	s.queue.Start()
	c.Start()
	s.cron = c
	s.started = true

	s.logger.Info("scheduler started",
		slog.String("discoverCron", settings.DiscoverCron),
		slog.String("scanCron", settings.ScanCron))
	return nil
}

// Reload stops the current cron registrations and starts again with fresh
// Settings. Old entries never fire after Reload returns.
func (s *Scheduler) Reload(ctx context.Context) error {
	s.mu.Lock()
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
	s.started = false
	s.mu.Unlock()

	return s.Start(ctx)
}

// Stop deactivates the cron timers. In-flight sweeps run to completion.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
	s.started = false
}

// Entries returns the active cron entry count (for stats and tests).
func (s *Scheduler) Entries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return 0
	}
	return len(s.cron.Entries())
}

// sweepFunc wraps a sweep so that no failure or panic ever reaches the
// cron runner; the sweep itself records its failed audit entry.
func (s *Scheduler) sweepFunc(name string, runner SweepRunner) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("sweep panicked", slog.String("sweep", name), slog.Any("panic", r))
			}
		}()
		if _, err := runner.Run(context.Background()); err != nil {
			s.logger.Error("sweep failed", slog.String("sweep", name), slog.String("error", err.Error()))
		}
	}
}
