package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper reclaims pending transfers whose confirmation window has elapsed.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Scheduler runs the periodic expiry sweep.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	logger  *slog.Logger
	timeout time.Duration
}

// New registers the sweep on schedule, a standard cron spec or a descriptor
// such as "@every 1m". The scheduler does not run until Start.
func New(sweeper Sweeper, schedule string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	s := &Scheduler{cron: c, sweeper: sweeper, logger: logger, timeout: 30 * time.Second}
	if _, err := c.AddFunc(schedule, s.Sweep); err != nil {
		return nil, fmt.Errorf("schedule expiry sweep %q: %w", schedule, err)
	}
	logger.Info("scheduled pending transfer sweep", "schedule", schedule)
	return s, nil
}

// Sweep runs one expiry pass.
func (s *Scheduler) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.sweeper.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("pending transfer sweep failed", "error", err)
		return
	}
	s.logger.Debug("pending transfer sweep finished", "reclaimed", n)
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
