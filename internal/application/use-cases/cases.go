package use_cases

import (
	"context"
	"errors"

	"possync/internal/application/entity"
	"possync/internal/application/service"
	"possync/pkg/config"

	"go.uber.org/zap"
)

type UseCaser interface {
	LogCRUDOperation(ctx context.Context, table string, changeType entity.ChangeType, recordID string, data map[string]any) (int, error)
	SyncStatus(ctx context.Context) (entity.SyncStatus, error)
	TriggerPush(ctx context.Context) (service.PushSummary, error)
	TriggerPull(ctx context.Context) (service.PullSummary, error)
	TriggerRetry(ctx context.Context) (service.RetrySummary, error)
	TriggerCleanup(ctx context.Context) (service.CleanupSummary, error)
	RunSyncCycle(ctx context.Context, trigger string) error

	HealthCheck(ctx context.Context) error
}
type UseCase struct {
	service service.Service
	logger  *zap.SugaredLogger
	conf    *config.Config
}

func NewUseCase(service service.Service, logger *zap.SugaredLogger, conf *config.Config) *UseCase {
	return &UseCase{
		service: service,
		logger:  logger,
		conf:    conf,
	}
}

func (u *UseCase) HealthCheck(ctx context.Context) error {
	return u.service.HealthCheck(ctx)
}

// LogCRUDOperation records a local change and kicks a drain in the background
// so the caller never waits on the remote.
func (u *UseCase) LogCRUDOperation(ctx context.Context, table string, changeType entity.ChangeType, recordID string, data map[string]any) (int, error) {
	u.logger.Debugf("[%s: %s] LogCRUDOperation started", table, recordID)

	id, err := u.service.Enqueue(ctx, table, changeType, recordID, data)
	if err != nil {
		return 0, err
	}

	go func() {
		if _, err := u.service.Push(context.Background(), "request"); err != nil {
			u.logger.Debugf("background drain after entry %d: %v", id, err)
		}
	}()

	return id, nil
}

func (u *UseCase) SyncStatus(ctx context.Context) (entity.SyncStatus, error) {
	return u.service.Status(ctx)
}

func (u *UseCase) TriggerPush(ctx context.Context) (service.PushSummary, error) {
	u.logger.Debug("TriggerPush started")
	return u.service.Push(ctx, "request")
}

func (u *UseCase) TriggerPull(ctx context.Context) (service.PullSummary, error) {
	u.logger.Debug("TriggerPull started")
	return u.service.Pull(ctx, "request")
}

func (u *UseCase) TriggerRetry(ctx context.Context) (service.RetrySummary, error) {
	u.logger.Debug("TriggerRetry started")
	return u.service.Retry(ctx)
}

func (u *UseCase) TriggerCleanup(ctx context.Context) (service.CleanupSummary, error) {
	u.logger.Debug("TriggerCleanup started")
	return u.service.Cleanup(ctx)
}

// RunSyncCycle is one full reconciliation pass: push what we owe, then pull
// what we missed. A push failure does not stop the pull; the combined error
// goes back to the caller so the scheduler can record the failed run.
func (u *UseCase) RunSyncCycle(ctx context.Context, trigger string) error {
	var pushErr, pullErr error
	if _, pushErr = u.service.Push(ctx, trigger); pushErr != nil {
		u.logger.Warnf("sync cycle (%s): push: %v", trigger, pushErr)
	}
	if _, pullErr = u.service.Pull(ctx, trigger); pullErr != nil {
		u.logger.Warnf("sync cycle (%s): pull: %v", trigger, pullErr)
	}
	return errors.Join(pushErr, pullErr)
}
