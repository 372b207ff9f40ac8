package service

import (
	"context"
	"testing"
	"time"

	"possync/internal/application/entity"
	"possync/internal/application/mirror"
	"possync/internal/application/outbox"
	"possync/pkg/circuit"
	"possync/pkg/config"

	"go.uber.org/zap"
)

// fakeRemote implements repo.Remote in memory. Hooks override the default
// happy-path behavior per test.
type fakeRemote struct {
	upsertFn  func(ctx context.Context, spec entity.TableSpec, recordID string, data map[string]any) error
	deleteFn  func(ctx context.Context, spec entity.TableSpec, recordID string) error
	updatedAt func(spec entity.TableSpec, recordID string) (*time.Time, bool, error)
	batches   [][]entity.AuditRow

	upserts      []upsertCall
	deletes      []string
	deletedUsers []string
	audits       []entity.AuditRow
	synced       []int64
	failed       map[int64]string
}

type upsertCall struct {
	table    string
	recordID string
	data     map[string]any
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{failed: make(map[int64]string)}
}

func (f *fakeRemote) FetchUpdatedAt(ctx context.Context, spec entity.TableSpec, recordID string) (*time.Time, bool, error) {
	if f.updatedAt != nil {
		return f.updatedAt(spec, recordID)
	}
	return nil, false, nil
}

func (f *fakeRemote) Upsert(ctx context.Context, spec entity.TableSpec, recordID string, data map[string]any) error {
	f.upserts = append(f.upserts, upsertCall{table: spec.Name, recordID: recordID, data: data})
	if f.upsertFn != nil {
		return f.upsertFn(ctx, spec, recordID, data)
	}
	return nil
}

func (f *fakeRemote) Delete(ctx context.Context, spec entity.TableSpec, recordID string) error {
	f.deletes = append(f.deletes, spec.Name+"/"+recordID)
	if f.deleteFn != nil {
		return f.deleteFn(ctx, spec, recordID)
	}
	return nil
}

func (f *fakeRemote) DeleteAllForUser(ctx context.Context, userID string) error {
	f.deletedUsers = append(f.deletedUsers, userID)
	return nil
}

func (f *fakeRemote) InsertAudit(ctx context.Context, row *entity.AuditRow) (int64, error) {
	f.audits = append(f.audits, *row)
	return int64(len(f.audits)), nil
}

func (f *fakeRemote) PullBatch(ctx context.Context, sinceID int64, since time.Time, limit int) ([]entity.AuditRow, error) {
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]

	out := make([]entity.AuditRow, 0, len(batch))
	for _, row := range batch {
		if row.ID > sinceID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeRemote) MarkAuditSynced(ctx context.Context, ids []int64) error {
	f.synced = append(f.synced, ids...)
	return nil
}

func (f *fakeRemote) MarkAuditFailed(ctx context.Context, id int64, errMsg string) error {
	f.failed[id] = errMsg
	return nil
}

func (f *fakeRemote) CleanupAudit(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeRemote) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeRemote) HealthCheck(ctx context.Context) error { return nil }
func (f *fakeRemote) InvalidateSchema()                     {}

type testEngine struct {
	svc    *ServiceImpl
	remote *fakeRemote
	outbox *outbox.Store
	mirror *mirror.Store
	dir    string
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	dir := t.TempDir()
	logger := zap.NewNop().Sugar()

	ob, err := outbox.NewStore(dir, logger)
	if err != nil {
		t.Fatalf("outbox.NewStore: %v", err)
	}
	mr, err := mirror.NewStore(dir, logger)
	if err != nil {
		t.Fatalf("mirror.NewStore: %v", err)
	}

	remote := newFakeRemote()
	cfg := &config.Sync{
		MaxAttempts:      3,
		TransientRetries: 1,
		RetentionDays:    30,
		LogRetentionDays: 15,
		BootstrapWindow:  24 * time.Hour,
		OfflineCooldown:  45 * time.Second,
		ProbeInterval:    10 * time.Second,
		CleanupWorkers:   4,
	}
	breaker := circuit.New(cfg.OfflineCooldown, cfg.ProbeInterval)

	return &testEngine{
		svc:    NewService(ob, mr, remote, breaker, cfg, dir, nil, logger),
		remote: remote,
		outbox: ob,
		mirror: mr,
		dir:    dir,
	}
}

func TestEnqueueUnknownTable(t *testing.T) {
	e := newTestEngine(t)

	if _, err := e.svc.Enqueue(context.Background(), "invoices", entity.ChangeCreate, "i1", nil); err == nil {
		t.Fatal("unknown table should be rejected")
	}
}

func TestEnqueueNormalizesTableName(t *testing.T) {
	e := newTestEngine(t)

	if _, err := e.svc.Enqueue(context.Background(), "Products", entity.ChangeCreate, "p1", nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	pending, _ := e.outbox.ListPending()
	if len(pending) != 1 || pending[0].TableName != "products" {
		t.Fatalf("table name should be normalized: %+v", pending)
	}
}

func TestStatusAggregates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, _ = e.svc.Enqueue(ctx, "products", entity.ChangeCreate, "p1", map[string]any{"name": "soap"})
	if _, err := e.svc.Push(ctx, "request"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	_, _ = e.svc.Enqueue(ctx, "products", entity.ChangeCreate, "p2", nil)

	status, err := e.svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.CompletedLogs != 1 || status.PendingLogs != 1 || status.TotalLogs != 2 {
		t.Fatalf("status = %+v", status)
	}
	if status.IsRunning {
		t.Error("engine was never started, is_running should be false")
	}
}

func TestStatusReportsEngineRunning(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.svc.SetRunning(true)

	_, _ = e.svc.Enqueue(ctx, "products", entity.ChangeCreate, "p1", map[string]any{"name": "soap"})
	if _, err := e.svc.Push(ctx, "request"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if _, err := e.svc.Pull(ctx, "request"); err != nil {
		t.Fatalf("Pull: %v", err)
	}

	status, err := e.svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.IsRunning {
		t.Error("is_running should stay true while the engine is up, regardless of pass activity")
	}

	e.svc.SetRunning(false)
	status, _ = e.svc.Status(ctx)
	if status.IsRunning {
		t.Error("is_running should be false after the engine stops")
	}
}
