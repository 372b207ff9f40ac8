package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"possync/internal/application/entity"
)

func auditRow(id int64, table, recordID, op string, data map[string]any) entity.AuditRow {
	raw, _ := json.Marshal(data)
	return entity.AuditRow{
		ID:            id,
		TableName:     table,
		RecordID:      recordID,
		OperationType: op,
		ChangeData:    raw,
		Source:        entity.AuditSourceRemote,
		Status:        entity.AuditStatusPending,
		CreatedAt:     time.Now(),
	}
}

func TestPullAppliesRowsAndAdvancesCheckpoint(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.remote.batches = [][]entity.AuditRow{{
		auditRow(10, "products", "p1", "CREATE", map[string]any{"id": "p1", "name": "soap"}),
		auditRow(11, "products", "p1", "UPDATE", map[string]any{"id": "p1", "price": 12}),
		auditRow(12, "stores", "s1", "CREATE", map[string]any{"id": "s1", "name": "shop", "address": "main st"}),
	}}

	summary, err := e.svc.Pull(ctx, "request")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if summary.Rows != 3 || summary.Applied != 3 || summary.Failed != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.LastSyncID != 12 {
		t.Fatalf("checkpoint = %d, want 12", summary.LastSyncID)
	}

	productsSpec, _ := entity.LookupTable("products")
	got, found, _ := e.mirror.FindByID(productsSpec, "p1")
	if !found || got["name"] != "soap" || got["price"] != float64(12) {
		t.Fatalf("mirror state = %v, found=%v", got, found)
	}

	if len(e.remote.synced) != 3 {
		t.Fatalf("synced = %v, all remote rows should be confirmed", e.remote.synced)
	}

	id, ok, _ := e.mirror.LastSyncID()
	if !ok || id != 12 {
		t.Fatalf("persisted checkpoint = %d, ok=%v", id, ok)
	}
}

func TestPullSkipsProcessedRowsOnNextPass(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	rows := []entity.AuditRow{
		auditRow(10, "products", "p1", "CREATE", map[string]any{"id": "p1", "name": "soap"}),
	}
	e.remote.batches = [][]entity.AuditRow{rows}
	if _, err := e.svc.Pull(ctx, "request"); err != nil {
		t.Fatalf("Pull: %v", err)
	}

	// The same feed again: the fake filters by sinceID like the real query
	e.remote.batches = [][]entity.AuditRow{rows}
	summary, err := e.svc.Pull(ctx, "request")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if summary.Rows != 0 {
		t.Fatalf("already-processed rows must not be pulled again: %+v", summary)
	}
}

func TestPullMalformedRowDoesNotBlockCheckpoint(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	bad := auditRow(10, "products", "p1", "CREATE", nil)
	bad.ChangeData = json.RawMessage(`[1, 2, 3]`)

	e.remote.batches = [][]entity.AuditRow{{
		bad,
		auditRow(11, "products", "p2", "CREATE", map[string]any{"id": "p2", "name": "rope"}),
	}}

	summary, err := e.svc.Pull(ctx, "request")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if summary.Failed != 1 || summary.Applied != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.LastSyncID != 11 {
		t.Fatalf("checkpoint = %d, a bad row must not hold it back", summary.LastSyncID)
	}
	if _, ok := e.remote.failed[10]; !ok {
		t.Fatal("bad row should be marked failed on the remote")
	}
}

func TestPullDoubleEncodedPayload(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	row := auditRow(10, "products", "p1", "CREATE", nil)
	row.ChangeData = json.RawMessage(`"{\"id\": \"p1\", \"name\": \"soap\"}"`)

	e.remote.batches = [][]entity.AuditRow{{row}}
	summary, err := e.svc.Pull(ctx, "request")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if summary.Applied != 1 {
		t.Fatalf("double-encoded payload should decode: %+v", summary)
	}
}

func TestPullInfersTableFromPayload(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.remote.batches = [][]entity.AuditRow{{
		auditRow(10, "", "p1", "CREATE", map[string]any{"id": "p1", "name": "soap", "price": 3}),
	}}

	summary, err := e.svc.Pull(ctx, "request")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if summary.Applied != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	productsSpec, _ := entity.LookupTable("products")
	if _, found, _ := e.mirror.FindByID(productsSpec, "p1"); !found {
		t.Fatal("row should land in the inferred products mirror")
	}
}

func TestPullUnknownTableUnknownShape(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.remote.batches = [][]entity.AuditRow{{
		auditRow(10, "mystery", "m1", "CREATE", map[string]any{"foo": "bar"}),
	}}

	summary, err := e.svc.Pull(ctx, "request")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.LastSyncID != 10 {
		t.Fatalf("checkpoint = %d, want 10", summary.LastSyncID)
	}
}

func TestPullDeleteRemovesFromMirror(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	productsSpec, _ := entity.LookupTable("products")
	_, _ = e.mirror.Apply(productsSpec, entity.ChangeCreate, "p1", map[string]any{"id": "p1"})

	e.remote.batches = [][]entity.AuditRow{{
		auditRow(10, "products", "p1", "DELETE", nil),
	}}

	summary, err := e.svc.Pull(ctx, "request")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if summary.Applied != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if _, found, _ := e.mirror.FindByID(productsSpec, "p1"); found {
		t.Fatal("p1 should be removed from the mirror")
	}
}

func TestPullPasswordResetCreatesNotification(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	usersSpec, _ := entity.LookupTable("users")
	_, _ = e.mirror.Apply(usersSpec, entity.ChangeCreate, "u1", map[string]any{
		"id": "u1", "name": "Dana", "email": "dana@example.com",
	})

	row := auditRow(10, "passwordresettokens", "t1", "CREATE", map[string]any{"id": "t1", "userid": "u1"})
	e.remote.batches = [][]entity.AuditRow{{row}}

	summary, err := e.svc.Pull(ctx, "request")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if summary.Applied != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	// Crash-replay of the same audit row must not duplicate the notification
	if outcome := e.svc.applyAuditRow(ctx, row); outcome != "unchanged" {
		t.Fatalf("replayed notification row outcome = %q, want unchanged", outcome)
	}
}

func TestPullUnchangedRowsSuppressed(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	row := auditRow(10, "products", "p1", "CREATE", map[string]any{"id": "p1", "name": "soap"})
	e.remote.batches = [][]entity.AuditRow{{row}}
	if _, err := e.svc.Pull(ctx, "request"); err != nil {
		t.Fatalf("Pull: %v", err)
	}

	// Same content under a new feed id: mirror write should be suppressed
	again := auditRow(11, "products", "p1", "UPDATE", map[string]any{"id": "p1", "name": "soap"})
	e.remote.batches = [][]entity.AuditRow{{again}}
	summary, err := e.svc.Pull(ctx, "request")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if summary.Unchanged != 1 || summary.Applied != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.LastSyncID != 11 {
		t.Fatalf("checkpoint = %d, unchanged rows still advance it", summary.LastSyncID)
	}
}

func TestPullEmptyFeed(t *testing.T) {
	e := newTestEngine(t)

	summary, err := e.svc.Pull(context.Background(), "scheduler")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if summary.Rows != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if _, ok, _ := e.mirror.LastSyncID(); ok {
		t.Fatal("empty feed must not create a checkpoint")
	}
}
