package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"possync/internal/appers"
	"possync/internal/application/common"
	"possync/internal/application/entity"
	"possync/internal/application/repo"
)

// Push drains pending outbox entries to the remote store, oldest first. A
// failing entry is recorded and does not stop the entries behind it; only a
// dead remote aborts the pass early.
func (s *ServiceImpl) Push(ctx context.Context, trigger string) (PushSummary, error) {
	if !s.pushMu.TryLock() {
		s.logger.Infof("push (%s) skipped, another drain is in progress", trigger)
		return PushSummary{}, nil
	}
	defer s.pushMu.Unlock()

	s.observeCircuit()
	if !s.breaker.Allow() {
		s.logger.Warnf("push (%s) skipped, remote is in offline cooldown", trigger)
		return PushSummary{}, appers.ErrRemoteOffline
	}

	start := time.Now()

	pending, err := s.outbox.ListPending()
	if err != nil {
		return PushSummary{}, err
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })

	s.logger.Infof("push (%s) started: %d pending entries", trigger, len(pending))

	var summary PushSummary
	for _, e := range pending {
		if ctx.Err() != nil {
			break
		}

		summary.Processed++
		outcome, err := s.processEntry(ctx, e)
		summary.add(outcome)

		if s.metrics != nil {
			s.metrics.PushEntriesTotal.WithLabelValues(e.TableName, string(outcome)).Inc()
		}

		if err != nil && repo.IsTransient(err) {
			s.breaker.MarkFailure()
			s.observeCircuit()
			s.logger.Warnf("push (%s) aborted: remote unreachable: %v", trigger, err)
			break
		}
		if err == nil {
			s.breaker.MarkSuccess()
		}
	}

	s.updateOutboxGauges()
	s.observeCircuit()
	if s.metrics != nil {
		s.metrics.PushDurationSeconds.WithLabelValues(trigger).Observe(time.Since(start).Seconds())
	}

	s.logger.Infof("push (%s) finished: %d processed, %d completed, %d failed, %d skipped",
		trigger, summary.Processed, summary.Completed, summary.Failed, summary.Skipped)
	return summary, nil
}

func (p *PushSummary) add(outcome entity.EntryStatus) {
	switch outcome {
	case entity.StatusCompleted:
		p.Completed++
	case entity.StatusFailed:
		p.Failed++
	case entity.StatusSkipped:
		p.Skipped++
	}
}

// processEntry pushes a single outbox entry and records the outcome. The
// returned error is the underlying failure, used by the caller to detect a
// dead remote; the entry itself is already marked.
func (s *ServiceImpl) processEntry(ctx context.Context, e entity.OutboxEntry) (entity.EntryStatus, error) {
	s.logger.Debugf("[entry %d] pushing %s %s/%s", e.ID, e.ChangeType, e.TableName, e.RecordID)

	spec, ok := entity.LookupTable(e.TableName)
	if !ok {
		s.failEntry(e, fmt.Errorf("%w: %s", appers.ErrUnknownTable, e.TableName))
		return entity.StatusFailed, nil
	}

	changeType := e.ChangeType
	// A payload carrying _deleted is a soft delete recorded as an update
	if changeType == entity.ChangeCreate || changeType == entity.ChangeUpdate {
		if deleted, _ := e.ChangeData["_deleted"].(bool); deleted {
			s.logger.Infof("[entry %d] %s/%s carries _deleted, promoting to DELETE", e.ID, spec.Name, e.RecordID)
			changeType = entity.ChangeDelete
		}
	}

	var err error
	switch changeType {
	case entity.ChangeDeleteAllForUser:
		err = s.remote.DeleteAllForUser(ctx, userIDFromEntry(e))
	case entity.ChangeDelete:
		err = s.remote.Delete(ctx, spec, e.RecordID)
	case entity.ChangeCreate, entity.ChangeUpdate:
		if skipped, checkErr := s.remoteIsNewer(ctx, spec, e); checkErr != nil {
			err = checkErr
		} else if skipped {
			s.skipEntry(e, entity.ResolutionServerWins, "remote record is newer")
			return entity.StatusSkipped, nil
		} else {
			err = s.upsertWithResolution(ctx, spec, e)
		}
	default:
		s.failEntry(e, fmt.Errorf("unsupported change type %q", e.ChangeType))
		return entity.StatusFailed, nil
	}

	switch {
	case err == nil:
		s.completeEntry(ctx, spec, changeType, e)
		return entity.StatusCompleted, nil
	case errors.Is(err, appers.ErrParentDeleted):
		s.skipEntry(e, entity.ResolutionParentDeleted, err.Error())
		return entity.StatusSkipped, nil
	case errors.Is(err, appers.ErrParentNotFound):
		s.skipEntry(e, entity.ResolutionParentMissing, err.Error())
		return entity.StatusSkipped, nil
	default:
		s.failEntry(e, err)
		return entity.StatusFailed, err
	}
}

// eventType builds the audit-log event name, e.g. "products_create_success".
func eventType(table string, change entity.ChangeType, outcome string) string {
	return fmt.Sprintf("%s_%s_%s", table, strings.ToLower(string(change)), outcome)
}

// userIDFromEntry recovers the user id of a DELETE_ALL_FOR_USER entry. The
// record id is a synthesized composite ("user_<id>_all_stores"), with the
// payload's userid as the authoritative source when present.
func userIDFromEntry(e entity.OutboxEntry) string {
	if id, ok := common.NormalizeFields(e.ChangeData)["userid"].(string); ok && id != "" {
		return id
	}
	id := strings.TrimSuffix(e.RecordID, "_all_stores")
	return strings.TrimPrefix(id, "user_")
}

// remoteIsNewer applies the server-wins rule: an UPDATE loses when the remote
// row changed after the local one.
func (s *ServiceImpl) remoteIsNewer(ctx context.Context, spec entity.TableSpec, e entity.OutboxEntry) (bool, error) {
	if e.ChangeType != entity.ChangeUpdate || spec.UpdatedAtColumn == "" {
		return false, nil
	}

	remoteAt, exists, err := s.remote.FetchUpdatedAt(ctx, spec, e.RecordID)
	if err != nil || !exists || remoteAt == nil {
		return false, err
	}

	localAt := e.SyncTime
	if raw, ok := common.NormalizeFields(e.ChangeData)[spec.UpdatedAtColumn]; ok {
		if str, ok := raw.(string); ok {
			if t, ok := common.ParseFlexibleTime(str); ok {
				localAt = t
			}
		}
	}

	return remoteAt.After(localAt), nil
}

// upsertWithResolution writes the record and, on a foreign-key violation,
// tries to recover the missing parent before one retry.
func (s *ServiceImpl) upsertWithResolution(ctx context.Context, spec entity.TableSpec, e entity.OutboxEntry) error {
	err := s.remote.Upsert(ctx, spec, e.RecordID, e.ChangeData)

	var fk *repo.FKViolationError
	if !errors.As(err, &fk) {
		return err
	}

	s.logger.Warnf("[entry %d] %s/%s blocked by missing parent %s/%s, resolving",
		e.ID, spec.Name, e.RecordID, fk.ParentTable, fk.Value)

	if resolveErr := s.resolveParent(ctx, fk); resolveErr != nil {
		return resolveErr
	}
	return s.remote.Upsert(ctx, spec, e.RecordID, e.ChangeData)
}

func (s *ServiceImpl) completeEntry(ctx context.Context, spec entity.TableSpec, changeType entity.ChangeType, e entity.OutboxEntry) {
	// The audit row is best effort: the remote write is already confirmed
	payload, err := json.Marshal(e.ChangeData)
	if err != nil {
		payload = []byte("{}")
	}
	if _, err := s.remote.InsertAudit(ctx, &entity.AuditRow{
		TableName:     spec.Name,
		RecordID:      e.RecordID,
		OperationType: string(changeType),
		ChangeData:    payload,
		Source:        entity.AuditSourceLocal,
		Status:        entity.AuditStatusSynced,
	}); err != nil {
		s.logger.Warnf("[entry %d] audit row not recorded: %v", e.ID, err)
	}

	if err := s.outbox.MarkCompleted(e.ID); err != nil {
		s.logger.Errorf("[entry %d] mark completed failed: %v", e.ID, err)
		return
	}
	_ = s.outbox.LogEvent(eventType(spec.Name, changeType, "success"), "completed", map[string]any{
		"entry_id": e.ID, "table": spec.Name, "record_id": e.RecordID, "change_type": string(changeType),
	})
	s.logger.Infof("[entry %d] %s %s/%s pushed", e.ID, changeType, spec.Name, e.RecordID)
}

func (s *ServiceImpl) failEntry(e entity.OutboxEntry, cause error) {
	if err := s.outbox.MarkFailed(e.ID, cause.Error()); err != nil {
		s.logger.Errorf("[entry %d] mark failed failed: %v", e.ID, err)
		return
	}
	_ = s.outbox.LogEvent(eventType(e.TableName, e.ChangeType, "failed"), "failed", map[string]any{
		"entry_id": e.ID, "table": e.TableName, "record_id": e.RecordID, "error": cause.Error(),
	})
	s.logger.Warnf("[entry %d] %s %s/%s failed (attempt %d): %v",
		e.ID, e.ChangeType, e.TableName, e.RecordID, e.RetryCount+1, cause)
}

func (s *ServiceImpl) skipEntry(e entity.OutboxEntry, resolution, reason string) {
	if err := s.outbox.MarkSkipped(e.ID, resolution, reason); err != nil {
		s.logger.Errorf("[entry %d] mark skipped failed: %v", e.ID, err)
		return
	}
	_ = s.outbox.LogEvent(eventType(e.TableName, e.ChangeType, "skipped"), "skipped", map[string]any{
		"entry_id": e.ID, "table": e.TableName, "record_id": e.RecordID, "resolution": resolution,
	})
	s.logger.Infof("[entry %d] %s %s/%s skipped: %s", e.ID, e.ChangeType, e.TableName, e.RecordID, resolution)
}
