package backup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs a Backup on a cron schedule.
type Scheduler struct {
	backup  *Backup
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// NewScheduler creates a scheduler of backup.
func NewScheduler(backup *Backup) *Scheduler {
	return &Scheduler{
		backup: backup,
		cron:   cron.New(),
		logger: slog.Default().With("component", "backup.scheduler"),
	}
}

// Start schedules backups with the standard cron expression of the
// configuration, e.g. "0 2 * * *" or "@every 6h". An empty schedule leaves
// the scheduler stopped. The scheduler stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule := s.backup.config.Schedule
	if schedule == "" {
		s.logger.Info("Backup schedule not configured, skipping scheduler")
		return nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule backups: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("Backup scheduler started", "schedule", schedule, "dir", s.backup.config.Dir, "format", s.backup.config.Format)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	paths, err := s.backup.Run(ctx)
	if err != nil {
		s.logger.Error("Scheduled backup failed", "error", err, "written", len(paths))
		return
	}
	s.logger.Info("Scheduled backup completed", "files", paths)
}

// Stop stops the scheduler and waits for a running backup.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("Backup scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the time of the next backup, nil when not scheduled.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
