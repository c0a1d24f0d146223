package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs feed cycles and job-run maintenance on fixed intervals.
type Scheduler struct {
	cron   *cron.Cron
	engine *Engine
	log    *slog.Logger
}

// NewScheduler creates a new Scheduler that runs engine tasks on a schedule.
// A zero maintenanceInterval disables maintenance.
func NewScheduler(
	eng *Engine,
	ingestionInterval time.Duration,
	maintenanceInterval time.Duration,
	log *slog.Logger,
) (*Scheduler, error) {
	// SkipIfStillRunning keeps a slow cycle from stacking up behind itself.
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	s := &Scheduler{
		cron:   c,
		engine: eng,
		log:    log,
	}

	if _, err := c.AddFunc(
		"@every "+ingestionInterval.String(),
		s.runIngestion,
	); err != nil {
		return nil, err
	}

	if maintenanceInterval > 0 {
		if _, err := c.AddFunc(
			"@every "+maintenanceInterval.String(),
			s.runMaintenance,
		); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Start begins running scheduled tasks.
func (s *Scheduler) Start() {
	s.log.Info("scheduler started")
	s.cron.Start()
}

// Stop gracefully stops the scheduler, waiting for running jobs to finish.
func (s *Scheduler) Stop() context.Context {
	s.log.Info("scheduler stopping")
	return s.cron.Stop()
}

// Entries returns the registered cron entries for inspection.
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

func (s *Scheduler) runIngestion() {
	ctx := context.Background()
	s.log.Info("scheduled ingestion starting")
	if _, err := s.engine.RunCycle(ctx); err != nil {
		s.log.Error("scheduled ingestion failed", "error", err)
	}
}

func (s *Scheduler) runMaintenance() {
	ctx := context.Background()
	if err := s.engine.RunMaintenance(ctx); err != nil {
		s.log.Error("scheduled maintenance failed", "error", err)
	}
}
