package repo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"possync/internal/appers"
	"possync/internal/application/common"
	"possync/internal/application/entity"
	"possync/pkg/db"
	"possync/pkg/metrics"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Remote interface {
	FetchUpdatedAt(ctx context.Context, spec entity.TableSpec, recordID string) (*time.Time, bool, error)
	Upsert(ctx context.Context, spec entity.TableSpec, recordID string, data map[string]any) error
	Delete(ctx context.Context, spec entity.TableSpec, recordID string) error
	DeleteAllForUser(ctx context.Context, userID string) error

	InsertAudit(ctx context.Context, row *entity.AuditRow) (int64, error)
	PullBatch(ctx context.Context, sinceID int64, since time.Time, limit int) ([]entity.AuditRow, error)
	MarkAuditSynced(ctx context.Context, ids []int64) error
	MarkAuditFailed(ctx context.Context, id int64, errMsg string) error
	CleanupAudit(ctx context.Context, cutoff time.Time) (int64, error)

	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	HealthCheck(ctx context.Context) error
	InvalidateSchema()
}

type RemoteImpl struct {
	db               db.DB
	schema           *schemaCache
	transientRetries int
	deleteWorkers    int
	logger           *zap.SugaredLogger
	metrics          *metrics.RepoMetrics
}

func NewRemote(db db.DB, transientRetries, deleteWorkers int, m *metrics.RepoMetrics, logger *zap.SugaredLogger) *RemoteImpl {
	if deleteWorkers <= 0 {
		deleteWorkers = 4
	}
	return &RemoteImpl{
		db:               db,
		schema:           newSchemaCache(),
		transientRetries: transientRetries,
		deleteWorkers:    deleteWorkers,
		logger:           logger,
		metrics:          m,
	}
}

func (r *RemoteImpl) HealthCheck(ctx context.Context) error {
	var result int
	if err := r.db.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

func (r *RemoteImpl) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithinTransaction(ctx, fn)
}

// FetchUpdatedAt reads the remote row's modification timestamp for the
// conflict check. ok is false when the row does not exist remotely. Tables
// with a composite key cannot be addressed by record id, so the check is
// skipped for them.
func (r *RemoteImpl) FetchUpdatedAt(ctx context.Context, spec entity.TableSpec, recordID string) (*time.Time, bool, error) {
	if spec.UpdatedAtColumn == "" || !spec.KeyedByID() {
		return nil, false, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`,
		pgx.Identifier{spec.UpdatedAtColumn}.Sanitize(),
		pgx.Identifier{spec.Name}.Sanitize())

	var updatedAt *time.Time
	err := r.withRetry(ctx, "fetch_updated_at", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, query, recordID).Scan(&updatedAt)
	})
	switch {
	case err == nil:
		return updatedAt, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("fetch %s/%s: %w", spec.Name, recordID, err)
	}
}

// Upsert writes one record, inserting or updating on the table's conflict key.
// The payload is normalized to the remote column convention and filtered
// against the live schema; a foreign-key violation comes back as
// *FKViolationError for the dependency resolver.
func (r *RemoteImpl) Upsert(ctx context.Context, spec entity.TableSpec, recordID string, data map[string]any) error {
	r.logger.Debugf("[%s: %s] start upserting", spec.Name, recordID)

	liveCols, err := r.columnsFor(ctx, spec.Name)
	if err != nil {
		return err
	}

	fields := common.NormalizeFields(data)
	if _, ok := fields["id"]; !ok && recordID != "" {
		fields["id"] = recordID
	}

	cols := make([]string, 0, len(fields))
	dropped := make([]string, 0)
	for col := range fields {
		if _, ok := liveCols[col]; ok {
			cols = append(cols, col)
		} else {
			dropped = append(dropped, col)
		}
	}
	if len(dropped) > 0 {
		r.logger.Warnf("[%s: %s] dropping fields absent from remote schema: %s",
			spec.Name, recordID, strings.Join(dropped, ", "))
	}
	if len(cols) == 0 {
		return appers.ErrNoValidColumns
	}
	sort.Strings(cols)

	conflict := make(map[string]struct{}, len(spec.ConflictColumns))
	for _, c := range spec.ConflictColumns {
		conflict[c] = struct{}{}
	}

	args := make([]any, 0, len(cols))
	for _, col := range cols {
		v := fields[col]
		// An empty-string foreign key means "no parent", not a key of ""
		if s, ok := v.(string); ok && s == "" && strings.HasSuffix(col, "id") {
			if _, isKey := conflict[col]; !isKey {
				v = nil
			}
		}
		args = append(args, v)
	}

	query := buildUpsertQuery(spec, cols, conflict)

	err = r.withRetry(ctx, "upsert", func(ctx context.Context) error {
		_, execErr := r.db.Exec(ctx, query, args...)
		return execErr
	})
	if err != nil {
		if isUndefinedColumnError(err) {
			r.InvalidateSchema()
		}
		if fk := classifyFKViolation(spec.Name, err); fk != nil {
			return fk
		}
		r.logger.Errorf("[%s: %s] error upserting: %v", spec.Name, recordID, err)
		return fmt.Errorf("upsert %s/%s: %w", spec.Name, recordID, err)
	}

	if err := r.syncRelatedRows(ctx, spec, recordID, fields); err != nil {
		return err
	}

	r.logger.Debugf("[%s: %s] upserted successfully", spec.Name, recordID)
	return nil
}

func buildUpsertQuery(spec entity.TableSpec, cols []string, conflict map[string]struct{}) string {
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	updates := make([]string, 0, len(cols))
	for i, col := range cols {
		quoted[i] = pgx.Identifier{col}.Sanitize()
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if _, isKey := conflict[col]; !isKey {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quoted[i], quoted[i]))
		}
	}

	conflictCols := make([]string, len(spec.ConflictColumns))
	for i, c := range spec.ConflictColumns {
		conflictCols[i] = pgx.Identifier{c}.Sanitize()
	}

	sb := strings.Builder{}
	sb.WriteString("INSERT INTO ")
	sb.WriteString(pgx.Identifier{spec.Name}.Sanitize())
	sb.WriteString(" (")
	sb.WriteString(strings.Join(quoted, ", "))
	sb.WriteString(") VALUES (")
	sb.WriteString(strings.Join(placeholders, ", "))
	sb.WriteString(") ON CONFLICT (")
	sb.WriteString(strings.Join(conflictCols, ", "))
	if len(updates) == 0 {
		sb.WriteString(") DO NOTHING")
	} else {
		sb.WriteString(") DO UPDATE SET ")
		sb.WriteString(strings.Join(updates, ", "))
	}
	return sb.String()
}

// Delete removes a record after clearing its dependent rows. Dependents are
// independent of each other and are cleaned concurrently.
func (r *RemoteImpl) Delete(ctx context.Context, spec entity.TableSpec, recordID string) error {
	r.logger.Debugf("[%s: %s] start deleting", spec.Name, recordID)

	if len(spec.Dependents) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.deleteWorkers)
		for _, dep := range spec.Dependents {
			dep := dep
			g.Go(func() error {
				query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`,
					pgx.Identifier{dep.Table}.Sanitize(),
					pgx.Identifier{dep.FKColumn}.Sanitize())
				return r.withRetry(gctx, "delete_dependents", func(ctx context.Context) error {
					tag, err := r.db.Exec(ctx, query, recordID)
					if err != nil {
						return fmt.Errorf("delete dependents %s of %s/%s: %w", dep.Table, spec.Name, recordID, err)
					}
					if n := tag.RowsAffected(); n > 0 {
						r.logger.Debugf("[%s: %s] removed %d dependent rows from %s", spec.Name, recordID, n, dep.Table)
					}
					return nil
				})
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, pgx.Identifier{spec.Name}.Sanitize())
	err := r.withRetry(ctx, "delete", func(ctx context.Context) error {
		tag, execErr := r.db.Exec(ctx, query, recordID)
		if execErr != nil {
			return execErr
		}
		if tag.RowsAffected() == 0 {
			r.logger.Debugf("[%s: %s] nothing to delete, treating as done", spec.Name, recordID)
		}
		return nil
	})
	if err != nil {
		// A violation here means an unregistered dependent table holds rows
		if fk := classifyFKViolation(spec.Name, err); fk != nil {
			return fk
		}
		r.logger.Errorf("[%s: %s] error deleting: %v", spec.Name, recordID, err)
		return fmt.Errorf("delete %s/%s: %w", spec.Name, recordID, err)
	}

	r.logger.Debugf("[%s: %s] deleted successfully", spec.Name, recordID)
	return nil
}

// DeleteAllForUser unassigns a user from every store in one step: all their
// userstores rows go, the user row itself stays.
func (r *RemoteImpl) DeleteAllForUser(ctx context.Context, userID string) error {
	err := r.withRetry(ctx, "delete_all_for_user", func(ctx context.Context) error {
		tag, execErr := r.db.Exec(ctx, deleteUserStoresSQL, userID)
		if execErr != nil {
			return execErr
		}
		r.logger.Infof("[userstores: %s] removed %d store assignments", userID, tag.RowsAffected())
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete store assignments for user %s: %w", userID, err)
	}
	return nil
}

// ===== Error classification =====

// FKViolationError carries the parsed detail of a 23503, enough for the
// dependency resolver to identify the missing parent row.
type FKViolationError struct {
	Table       string
	Column      string
	Value       string
	ParentTable string
	Detail      string
}

func (e *FKViolationError) Error() string {
	return fmt.Sprintf("foreign key violation on %s: %s=%s is not present in %s", e.Table, e.Column, e.Value, e.ParentTable)
}

var fkDetailRe = regexp.MustCompile(`Key \(([^)]+)\)=\(([^)]+)\) is not present in table "([^"]+)"`)

func classifyFKViolation(table string, err error) *FKViolationError {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23503" {
		return nil
	}

	fk := &FKViolationError{Table: table, Detail: pgErr.Detail}
	if m := fkDetailRe.FindStringSubmatch(pgErr.Detail); m != nil {
		fk.Column = m[1]
		fk.Value = m[2]
		fk.ParentTable = m[3]
	}
	return fk
}

func isUndefinedColumnError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42703"
}

// IsTransient reports whether a retry with the same arguments could
// plausibly succeed: connection failures, timeouts, serialization conflicts.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exceptions; 40001/40P01: retryable conflicts
		return strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func (r *RemoteImpl) withRetry(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil || !IsTransient(err) || attempt >= r.transientRetries {
			break
		}
		r.logger.Warnf("transient error on %s (attempt %d): %v", name, attempt+1, err)
		if sleepErr := common.SleepCtx(ctx, time.Duration(attempt+1)*500*time.Millisecond); sleepErr != nil {
			err = sleepErr
			break
		}
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	if r.metrics != nil {
		r.metrics.RequestsTotal.WithLabelValues("query", name, result).Inc()
		r.metrics.DurationSeconds.WithLabelValues("query", name, result).Observe(time.Since(start).Seconds())
	}
	return err
}
