package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"possync/internal/application/entity"

	"github.com/gofrs/uuid"
)

const pullBatchLimit = 500

// Pull applies the remote change feed to the local mirror, in feed order. The
// checkpoint advances only after a whole batch is handled, so a crash midway
// replays rows instead of losing them; every apply is idempotent.
func (s *ServiceImpl) Pull(ctx context.Context, trigger string) (PullSummary, error) {
	s.observeCircuit()
	if !s.breaker.Allow() {
		s.logger.Warnf("pull (%s) skipped, remote is in offline cooldown", trigger)
		return PullSummary{}, nil
	}

	start := time.Now()
	var summary PullSummary

	sinceID, haveCheckpoint, err := s.mirror.LastSyncID()
	if err != nil {
		return summary, err
	}
	sinceTime := time.Unix(0, 0)
	if !haveCheckpoint {
		// First pull ever: limit the backfill window instead of replaying
		// the feed from the beginning of time
		sinceTime = time.Now().Add(-s.cfg.BootstrapWindow)
		s.logger.Infof("pull (%s): no checkpoint, bootstrapping from %s", trigger, sinceTime.Format(time.RFC3339))
	}

	for {
		batch, err := s.remote.PullBatch(ctx, sinceID, sinceTime, pullBatchLimit)
		if err != nil {
			s.breaker.MarkFailure()
			s.observeCircuit()
			return summary, err
		}
		s.breaker.MarkSuccess()
		if len(batch) == 0 {
			break
		}

		var appliedRemote []int64
		for _, row := range batch {
			outcome := s.applyAuditRow(ctx, row)
			switch outcome {
			case "applied":
				summary.Applied++
			case "unchanged":
				summary.Unchanged++
			case "failed":
				summary.Failed++
			}
			summary.Rows++
			if s.metrics != nil {
				s.metrics.PullRowsTotal.WithLabelValues(row.TableName, outcome).Inc()
			}
			if outcome != "failed" && row.Source == entity.AuditSourceRemote {
				appliedRemote = append(appliedRemote, row.ID)
			}
			sinceID = row.ID
		}

		if err := s.remote.MarkAuditSynced(ctx, appliedRemote); err != nil {
			s.logger.Warnf("pull (%s): confirming %d rows failed: %v", trigger, len(appliedRemote), err)
		}
		// Failed rows are marked on the remote and do not hold the
		// checkpoint back
		if err := s.mirror.SetLastSyncID(sinceID); err != nil {
			return summary, err
		}
		summary.LastSyncID = sinceID

		if len(batch) < pullBatchLimit {
			break
		}
	}

	if s.metrics != nil {
		s.metrics.PullDurationSeconds.WithLabelValues(trigger).Observe(time.Since(start).Seconds())
	}
	s.logger.Infof("pull (%s) finished: %d rows, %d applied, %d unchanged, %d failed, checkpoint %d",
		trigger, summary.Rows, summary.Applied, summary.Unchanged, summary.Failed, summary.LastSyncID)
	return summary, nil
}

// applyAuditRow writes one feed row into the mirror. Outcomes: applied,
// unchanged (the mirror already had this state), failed (malformed row,
// recorded on the remote and skipped).
func (s *ServiceImpl) applyAuditRow(ctx context.Context, row entity.AuditRow) string {
	data, err := decodeChangeData(row.ChangeData)
	if err != nil {
		s.logger.Warnf("[audit %d] undecodable change data for %s/%s: %v", row.ID, row.TableName, row.RecordID, err)
		s.markAuditFailed(ctx, row.ID, fmt.Sprintf("undecodable change data: %v", err))
		return "failed"
	}

	spec, ok := entity.LookupTable(row.TableName)
	if !ok {
		spec, ok = entity.InferTableFromPayload(data)
		if !ok {
			s.logger.Warnf("[audit %d] unknown table %q and payload shape matches nothing, skipping", row.ID, row.TableName)
			s.markAuditFailed(ctx, row.ID, fmt.Sprintf("unknown table %q", row.TableName))
			return "failed"
		}
		s.logger.Warnf("[audit %d] table %q not registered, inferred %s from payload shape", row.ID, row.TableName, spec.Name)
	}

	op := entity.ChangeType(row.OperationType)
	switch op {
	case entity.ChangeCreate, entity.ChangeUpdate, entity.ChangeDelete:
	default:
		s.logger.Warnf("[audit %d] unsupported operation %q, skipping", row.ID, row.OperationType)
		s.markAuditFailed(ctx, row.ID, fmt.Sprintf("unsupported operation %q", row.OperationType))
		return "failed"
	}

	// Password reset requests surface as notifications, they have no mirror
	if spec.Name == "passwordresettokens" && op == entity.ChangeCreate {
		return s.notifyPasswordReset(row, data)
	}

	changed, err := s.mirror.Apply(spec, op, row.RecordID, data)
	if err != nil {
		s.logger.Errorf("[audit %d] applying %s %s/%s to mirror: %v", row.ID, op, spec.Name, row.RecordID, err)
		s.markAuditFailed(ctx, row.ID, err.Error())
		return "failed"
	}
	if !changed {
		return "unchanged"
	}
	s.logger.Debugf("[audit %d] applied %s %s/%s", row.ID, op, spec.Name, row.RecordID)
	return "applied"
}

func (s *ServiceImpl) notifyPasswordReset(row entity.AuditRow, data map[string]any) string {
	userID, _ := data["userid"].(string)
	if userID == "" {
		userID, _ = data["userId"].(string)
	}

	name, email := "", ""
	if usersSpec, ok := entity.LookupTable("users"); ok && userID != "" {
		if user, found, err := s.mirror.FindByID(usersSpec, userID); err == nil && found {
			name, _ = user["name"].(string)
			email, _ = user["email"].(string)
		}
	}

	id, err := uuid.NewV4()
	if err != nil {
		s.logger.Errorf("[audit %d] notification id: %v", row.ID, err)
		return "failed"
	}

	added, err := s.mirror.AppendNotification(entity.Notification{
		ID:        id.String(),
		Type:      entity.NotificationPasswordReset,
		Title:     "Password reset requested",
		Message:   fmt.Sprintf("User %s requested a password reset", displayName(name, email, userID)),
		UserID:    userID,
		UserName:  name,
		UserEmail: email,
		CreatedAt: row.CreatedAt.Format(time.RFC3339),
		SyncLogID: row.ID,
	})
	if err != nil {
		s.logger.Errorf("[audit %d] appending notification: %v", row.ID, err)
		return "failed"
	}
	if !added {
		return "unchanged"
	}
	s.logger.Infof("[audit %d] password reset notification created for user %s", row.ID, userID)
	return "applied"
}

func displayName(name, email, userID string) string {
	switch {
	case name != "":
		return name
	case email != "":
		return email
	default:
		return userID
	}
}

func (s *ServiceImpl) markAuditFailed(ctx context.Context, id int64, msg string) {
	if err := s.remote.MarkAuditFailed(ctx, id, msg); err != nil {
		s.logger.Warnf("[audit %d] marking failed on remote: %v", id, err)
	}
}

// decodeChangeData tolerates the payload shapes seen in the wild: a JSON
// object, a double-encoded object (JSON string containing JSON), or null.
func decodeChangeData(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err == nil {
		return data, nil
	}

	var nested string
	if err := json.Unmarshal(raw, &nested); err == nil {
		if nested == "" {
			return map[string]any{}, nil
		}
		if err := json.Unmarshal([]byte(nested), &data); err == nil {
			return data, nil
		}
	}

	var null any
	if err := json.Unmarshal(raw, &null); err == nil && null == nil {
		return map[string]any{}, nil
	}

	return nil, fmt.Errorf("payload is neither an object nor an encoded object")
}
