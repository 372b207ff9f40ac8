package repo

import (
	"context"
	"fmt"
	"time"

	"possync/internal/application/entity"
)

// InsertAudit records one change in the remote sync_table feed. Pushed local
// changes go in with source "local" and status "synced" so other replicas can
// pull them; runs inside the push transaction when one is active.
func (r *RemoteImpl) InsertAudit(ctx context.Context, row *entity.AuditRow) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, insertAuditQuery,
		row.TableName, row.RecordID, row.OperationType, row.ChangeData, row.Source, row.Status).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert audit row for %s/%s: %w", row.TableName, row.RecordID, err)
	}
	return id, nil
}

// PullBatch reads applicable audit rows after the checkpoint, oldest first.
func (r *RemoteImpl) PullBatch(ctx context.Context, sinceID int64, since time.Time, limit int) ([]entity.AuditRow, error) {
	if limit <= 0 {
		limit = 500
	}

	var batch []entity.AuditRow
	err := r.withRetry(ctx, "pull_batch", func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, pullBatchSQL, sinceID, since, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		batch = batch[:0]
		for rows.Next() {
			var row entity.AuditRow
			if err := rows.Scan(&row.ID, &row.TableName, &row.RecordID, &row.OperationType,
				&row.ChangeData, &row.Source, &row.Status, &row.ErrorMessage,
				&row.SyncAttempts, &row.CreatedAt, &row.SyncedAt); err != nil {
				return err
			}
			batch = append(batch, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("pull audit batch after id %d: %w", sinceID, err)
	}
	return batch, nil
}

func (r *RemoteImpl) MarkAuditSynced(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.Exec(ctx, markAuditSyncedSQL, ids); err != nil {
		return fmt.Errorf("mark audit rows synced: %w", err)
	}
	return nil
}

func (r *RemoteImpl) MarkAuditFailed(ctx context.Context, id int64, errMsg string) error {
	if _, err := r.db.Exec(ctx, markAuditFailedSQL, id, errMsg); err != nil {
		return fmt.Errorf("mark audit row %d failed: %w", id, err)
	}
	return nil
}

// CleanupAudit removes confirmed audit rows older than the cutoff. Pending and
// failed rows stay regardless of age.
func (r *RemoteImpl) CleanupAudit(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, cleanupAuditSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup audit rows: %w", err)
	}
	return tag.RowsAffected(), nil
}
