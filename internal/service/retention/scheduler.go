package retention

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval separates scheduled runs.
const DefaultInterval = time.Hour

// Scheduler runs a Job at startup and then on a fixed interval.
type Scheduler struct {
	job      *Job
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler wraps job. A non-positive interval selects DefaultInterval.
func NewScheduler(job *Job, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{job: job, interval: interval, logger: logger.With("component", "retention_scheduler")}
}

// Start blocks until ctx is done, running the job immediately and then once
// per interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("retention scheduler started", "interval", s.interval)
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retention scheduler stopped")
			return nil
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	started := time.Now()
	report, err := s.job.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("retention run failed", "error", err)
		return
	}
	level := slog.LevelInfo
	if len(report.Errors) > 0 {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "retention run complete",
		"deleted", report.TotalLogsDeleted,
		"processed", report.ProjectsProcessed,
		"skipped", report.ProjectsSkipped,
		"errors", len(report.Errors),
		"duration_ms", time.Since(started).Milliseconds(),
	)
}
