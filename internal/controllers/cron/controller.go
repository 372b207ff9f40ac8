package cron

import (
	"context"
	"fmt"

	use_cases "possync/internal/application/use-cases"
	"possync/pkg/config"

	"go.uber.org/zap"
)

type Controller struct {
	scheduler *Scheduler
	usecase   use_cases.UseCaser
	events    EventSink
	logger    *zap.SugaredLogger
}

func NewController(ctx context.Context, usecase use_cases.UseCaser, events EventSink, logger *zap.SugaredLogger) *Controller {
	return &Controller{
		scheduler: NewScheduler(ctx),
		usecase:   usecase,
		events:    events,
		logger:    logger,
	}
}

// RegisterJobs wires the periodic sync cycle, the retry pass and the daily
// cleanup. Specs support both cron format ("0 30 2 * * *") and intervals
// ("@every 15m").
func (c *Controller) RegisterJobs(conf config.Sync) error {
	jobs := []struct {
		name string
		spec string
		job  Job
	}{
		{"sync-cycle", conf.SyncInterval, NewSyncCycleJob(c.usecase, c.events, c.logger)},
		{"retry", conf.RetryInterval, NewRetryJob(c.usecase, c.events, c.logger)},
		{"cleanup", conf.CleanupSchedule, NewCleanupJob(c.usecase, c.events, c.logger)},
	}

	for _, j := range jobs {
		entryID, err := c.scheduler.Add(j.spec, j.job)
		if err != nil {
			return fmt.Errorf("register %s job (%q): %w", j.name, j.spec, err)
		}
		c.logger.Infof("%s job registered with ID %d, spec %q", j.name, entryID, j.spec)
	}
	return nil
}

// Start runs one reconciliation pass inline, then hands over to the schedule.
func (c *Controller) Start(ctx context.Context) {
	c.logger.Info("starting cron scheduler")

	NewSyncCycleJob(c.usecase, c.events, c.logger).Run(ctx)

	c.scheduler.Start()
}

func (c *Controller) Stop() {
	c.logger.Info("stopping cron scheduler")
	c.scheduler.Stop()
	c.logger.Info("cron scheduler stopped")
}
