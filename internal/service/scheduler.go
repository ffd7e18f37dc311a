package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wapool/internal/config"
	apperrors "wapool/internal/errors"
	"wapool/internal/models"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// HealthCheckRunner is the entry point the scheduler triggers.
type HealthCheckRunner interface {
	Run(ctx context.Context, trigger Trigger) (*RunSummary, error)
}

// Scheduler triggers health checks on a cron schedule and once shortly after startup.
type Scheduler struct {
	runner       HealthCheckRunner
	apps         AppStore
	schedule     string
	runOnStartup bool
	initialDelay time.Duration
	logger       *logrus.Entry

	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(cfg models.HealthCheckConfig, runner HealthCheckRunner, apps AppStore, logger *logrus.Logger) (*Scheduler, error) {
	if _, err := config.ScheduleParser.Parse(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid health check schedule %q: %w", cfg.Schedule, err)
	}

	entry := componentLogger(logger, "scheduler")
	return &Scheduler{
		runner:       runner,
		apps:         apps,
		schedule:     cfg.Schedule,
		runOnStartup: cfg.StartupRunEnabled(),
		initialDelay: time.Duration(cfg.InitialDelaySec) * time.Second,
		logger:       entry,
		cron: cron.New(
			cron.WithParser(config.ScheduleParser),
			cron.WithChain(cron.Recover(cron.PrintfLogger(entry))),
		),
	}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if _, err := s.cron.AddFunc(s.schedule, func() { s.trigger(ctx, TriggerScheduled) }); err != nil {
		s.cancel()
		return fmt.Errorf("failed to schedule health check: %w", err)
	}
	s.cron.Start()
	s.logger.WithField("schedule", s.schedule).Info("Health check scheduler started")

	if s.runOnStartup {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.startupRun(ctx)
		}()
	}
	return nil
}

// Stop cancels pending work and waits for a running check to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("Health check scheduler stopped")
}

// Next returns the next scheduled run time.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) startupRun(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.initialDelay):
	}

	apps, err := s.apps.ListApps(ctx)
	if err != nil {
		apperrors.LogError(s.logger, err, "Failed to list apps for startup health check")
		return
	}
	if len(apps) == 0 {
		s.logger.Info("No apps registered, skipping startup health check")
		return
	}
	s.trigger(ctx, TriggerStartup)
}

func (s *Scheduler) trigger(ctx context.Context, trigger Trigger) {
	if ctx.Err() != nil {
		return
	}

	summary, err := s.runner.Run(ctx, trigger)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrCodeConflict) {
			s.logger.WithField(LogFieldTrigger, string(trigger)).Info("Health check already running, skipping")
			return
		}
		apperrors.LogError(s.logger, err, "Scheduled health check failed", logrus.Fields{LogFieldTrigger: string(trigger)})
		return
	}

	s.logger.WithFields(logrus.Fields{
		LogFieldRunID:   summary.RunID,
		LogFieldTrigger: string(trigger),
		"next_run":      s.Next(),
	}).Debug("Scheduled health check finished")
}
