package cron

import (
	"context"
	"fmt"

	use_cases "possync/internal/application/use-cases"

	"go.uber.org/zap"
)

// EventSink records job outcomes in the sync event log. The outbox store
// satisfies it.
type EventSink interface {
	LogEvent(eventType, status string, details map[string]any) error
}

// SyncCycleJob runs one push-then-pull reconciliation pass.
type SyncCycleJob struct {
	usecase use_cases.UseCaser
	events  EventSink
	logger  *zap.SugaredLogger
}

func NewSyncCycleJob(usecase use_cases.UseCaser, events EventSink, logger *zap.SugaredLogger) *SyncCycleJob {
	return &SyncCycleJob{usecase: usecase, events: events, logger: logger}
}

func (j *SyncCycleJob) Run(ctx context.Context) {
	j.logger.Info("sync cycle job started")
	defer func() {
		if r := recover(); r != nil {
			j.logger.Errorf("panic in sync cycle job: %v", r)
			_ = j.events.LogEvent("sync_cycle_job", "failed", map[string]any{"panic": fmt.Sprint(r)})
		}
	}()

	if err := j.usecase.RunSyncCycle(ctx, "scheduler"); err != nil {
		j.logger.Errorf("sync cycle job: %v", err)
		_ = j.events.LogEvent("sync_cycle_job", "failed", map[string]any{"error": err.Error()})
		return
	}
	j.logger.Info("sync cycle job finished")
}

// RetryJob re-queues failed outbox entries that still have budget.
type RetryJob struct {
	usecase use_cases.UseCaser
	events  EventSink
	logger  *zap.SugaredLogger
}

func NewRetryJob(usecase use_cases.UseCaser, events EventSink, logger *zap.SugaredLogger) *RetryJob {
	return &RetryJob{usecase: usecase, events: events, logger: logger}
}

func (j *RetryJob) Run(ctx context.Context) {
	j.logger.Info("retry job started")
	defer func() {
		if r := recover(); r != nil {
			j.logger.Errorf("panic in retry job: %v", r)
			_ = j.events.LogEvent("retry_job", "failed", map[string]any{"panic": fmt.Sprint(r)})
		}
	}()

	if _, err := j.usecase.TriggerRetry(ctx); err != nil {
		j.logger.Errorf("retry job: %v", err)
		_ = j.events.LogEvent("retry_job", "failed", map[string]any{"error": err.Error()})
		return
	}
	j.logger.Info("retry job finished")
}

// CleanupJob prunes aged-out sync history.
type CleanupJob struct {
	usecase use_cases.UseCaser
	events  EventSink
	logger  *zap.SugaredLogger
}

func NewCleanupJob(usecase use_cases.UseCaser, events EventSink, logger *zap.SugaredLogger) *CleanupJob {
	return &CleanupJob{usecase: usecase, events: events, logger: logger}
}

func (j *CleanupJob) Run(ctx context.Context) {
	j.logger.Info("cleanup job started")
	defer func() {
		if r := recover(); r != nil {
			j.logger.Errorf("panic in cleanup job: %v", r)
			_ = j.events.LogEvent("cleanup_job", "failed", map[string]any{"panic": fmt.Sprint(r)})
		}
	}()

	if _, err := j.usecase.TriggerCleanup(ctx); err != nil {
		j.logger.Errorf("cleanup job: %v", err)
		_ = j.events.LogEvent("cleanup_job", "failed", map[string]any{"error": err.Error()})
		return
	}
	j.logger.Info("cleanup job finished")
}
