// Package service is the reconciliation engine: the push pipeline draining
// the outbox to the remote store, the pull pipeline applying the remote
// change feed to the local mirror, and the retry/cleanup maintenance passes.
package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"possync/internal/appers"
	"possync/internal/application/entity"
	"possync/internal/application/mirror"
	"possync/internal/application/outbox"
	"possync/internal/application/repo"
	"possync/pkg/circuit"
	"possync/pkg/config"
	"possync/pkg/metrics"

	"go.uber.org/zap"
)

type PushSummary struct {
	Processed int `json:"processed"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type PullSummary struct {
	Rows       int   `json:"rows"`
	Applied    int   `json:"applied"`
	Unchanged  int   `json:"unchanged"`
	Failed     int   `json:"failed"`
	LastSyncID int64 `json:"last_sync_id"`
}

type RetrySummary struct {
	Retried   int `json:"retried"`
	Exhausted int `json:"exhausted"`
}

type CleanupSummary struct {
	OutboxRemoved int   `json:"outbox_removed"`
	EventsRemoved int   `json:"events_removed"`
	AuditRemoved  int64 `json:"audit_removed"`
	LogsRemoved   int   `json:"logs_removed"`
}

type Service interface {
	Enqueue(ctx context.Context, table string, changeType entity.ChangeType, recordID string, data map[string]any) (int, error)
	Push(ctx context.Context, trigger string) (PushSummary, error)
	Pull(ctx context.Context, trigger string) (PullSummary, error)
	Retry(ctx context.Context) (RetrySummary, error)
	Cleanup(ctx context.Context) (CleanupSummary, error)
	Status(ctx context.Context) (entity.SyncStatus, error)
	SetRunning(on bool)

	HealthCheck(ctx context.Context) error
}

type ServiceImpl struct {
	outbox  *outbox.Store
	mirror  *mirror.Store
	remote  repo.Remote
	breaker *circuit.Breaker
	cfg     *config.Sync
	dataDir string
	logger  *zap.SugaredLogger
	metrics *metrics.SyncMetrics

	// One drain at a time; overlapping triggers are skipped, not queued.
	pushMu sync.Mutex

	// running mirrors the scheduler lifecycle, not a single pass. The status
	// API reports it as is_running.
	running atomic.Bool
}

func NewService(
	ob *outbox.Store,
	mr *mirror.Store,
	remote repo.Remote,
	breaker *circuit.Breaker,
	cfg *config.Sync,
	dataDir string,
	m *metrics.SyncMetrics,
	logger *zap.SugaredLogger,
) *ServiceImpl {
	return &ServiceImpl{
		outbox:  ob,
		mirror:  mr,
		remote:  remote,
		breaker: breaker,
		cfg:     cfg,
		dataDir: dataDir,
		logger:  logger,
		metrics: m,
	}
}

// Enqueue validates and records one intended change in the outbox. The caller
// decides whether to trigger a drain afterwards.
func (s *ServiceImpl) Enqueue(ctx context.Context, table string, changeType entity.ChangeType, recordID string, data map[string]any) (int, error) {
	spec, ok := entity.LookupTable(table)
	if !ok {
		s.logger.Warnf("[%s: %s] enqueue rejected: unknown table", table, recordID)
		return 0, fmt.Errorf("%w: %s", appers.ErrUnknownTable, table)
	}

	id, err := s.outbox.Append(spec.Name, changeType, recordID, data)
	if err != nil {
		return 0, err
	}

	_ = s.outbox.LogEvent(eventType(spec.Name, changeType, "logged"), "pending", map[string]any{
		"entry_id": id, "table": spec.Name, "record_id": recordID,
	})
	s.logger.Infof("[%s: %s] change %s queued as entry %d", spec.Name, recordID, changeType, id)
	s.updateOutboxGauges()
	return id, nil
}

func (s *ServiceImpl) Status(ctx context.Context) (entity.SyncStatus, error) {
	pending, failed, completed, skipped, total, err := s.outbox.Counts()
	if err != nil {
		return entity.SyncStatus{}, err
	}

	lastSync, err := s.mirror.LastSyncTime()
	if err != nil {
		s.logger.Warnf("reading last sync time: %v", err)
	}

	return entity.SyncStatus{
		IsRunning:     s.running.Load(),
		LastSync:      lastSync,
		PendingLogs:   pending,
		FailedLogs:    failed,
		CompletedLogs: completed,
		SkippedLogs:   skipped,
		TotalLogs:     total,
	}, nil
}

// SetRunning records whether the background sync engine is up. The scheduler
// flips it on start and stop.
func (s *ServiceImpl) SetRunning(on bool) {
	s.running.Store(on)
}

func (s *ServiceImpl) HealthCheck(ctx context.Context) error {
	return s.remote.HealthCheck(ctx)
}

func (s *ServiceImpl) updateOutboxGauges() {
	pending, failed, _, _, _, err := s.outbox.Counts()
	if err != nil {
		return
	}
	if s.metrics != nil {
		s.metrics.OutboxEntries.WithLabelValues(string(entity.StatusPending)).Set(float64(pending))
		s.metrics.OutboxEntries.WithLabelValues(string(entity.StatusFailed)).Set(float64(failed))
	}
}

func (s *ServiceImpl) observeCircuit() {
	if s.metrics == nil {
		return
	}
	if s.breaker.IsOffline() {
		s.metrics.CircuitOpen.Set(1)
	} else {
		s.metrics.CircuitOpen.Set(0)
	}
}
