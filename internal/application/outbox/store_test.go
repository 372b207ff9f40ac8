package outbox

import (
	"path/filepath"
	"testing"
	"time"

	"possync/internal/application/entity"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestAppendAssignsMonotonicIDs(t *testing.T) {
	s := newTestStore(t)

	id1, err := s.Append("products", entity.ChangeCreate, "p1", map[string]any{"name": "soap"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	id2, err := s.Append("products", entity.ChangeCreate, "p2", map[string]any{"name": "rope"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if id1 != 1 || id2 != 2 {
		t.Fatalf("ids = %d, %d, want 1, 2", id1, id2)
	}
}

func TestAppendSupersedesPendingDuplicate(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Append("products", entity.ChangeCreate, "p1", map[string]any{"price": 1}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := s.Append("products", entity.ChangeUpdate, "p1", map[string]any{"price": 2}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	pending, err := s.ListPending()
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d entries, want 1 (duplicate superseded)", len(pending))
	}
	if pending[0].ChangeType != entity.ChangeUpdate {
		t.Errorf("surviving entry is %s, want the newer UPDATE", pending[0].ChangeType)
	}
	if got := pending[0].ChangeData["price"]; got != float64(2) && got != 2 {
		t.Errorf("surviving payload price = %v, want 2", got)
	}
}

func TestAppendKeepsCompletedHistoryForSameKey(t *testing.T) {
	s := newTestStore(t)

	id1, _ := s.Append("products", entity.ChangeCreate, "p1", map[string]any{"price": 1})
	if err := s.MarkCompleted(id1); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if _, err := s.Append("products", entity.ChangeUpdate, "p1", map[string]any{"price": 2}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	history, err := s.History("products", "p1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].ID != id1 {
		t.Fatalf("completed entry should survive a new append, history = %+v", history)
	}
}

func TestMarkFailedIncrementsRetryCount(t *testing.T) {
	s := newTestStore(t)

	id, _ := s.Append("bills", entity.ChangeCreate, "b1", nil)
	if err := s.MarkFailed(id, "connection refused"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if err := s.MarkPending(id); err != nil {
		t.Fatalf("MarkPending: %v", err)
	}
	if err := s.MarkFailed(id, "still down"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	failed, err := s.ListFailed()
	if err != nil {
		t.Fatalf("ListFailed: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("failed = %d entries, want 1", len(failed))
	}
	e := failed[0]
	if e.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", e.RetryCount)
	}
	if e.ErrorMessage != "still down" {
		t.Errorf("ErrorMessage = %q, want the latest error", e.ErrorMessage)
	}
	if e.LastRetry == nil {
		t.Error("LastRetry should be set")
	}
}

func TestMarkPendingClearsError(t *testing.T) {
	s := newTestStore(t)

	id, _ := s.Append("bills", entity.ChangeCreate, "b1", nil)
	_ = s.MarkFailed(id, "boom")
	_ = s.MarkPending(id)

	pending, _ := s.ListPending()
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	if pending[0].ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want cleared", pending[0].ErrorMessage)
	}
	// RetryCount survives the re-queue so the budget still applies
	if pending[0].RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", pending[0].RetryCount)
	}
}

func TestMarkSkippedRecordsResolution(t *testing.T) {
	s := newTestStore(t)

	id, _ := s.Append("products", entity.ChangeUpdate, "p1", nil)
	if err := s.MarkSkipped(id, entity.ResolutionServerWins, "remote record is newer"); err != nil {
		t.Fatalf("MarkSkipped: %v", err)
	}

	_, _, _, skipped, _, err := s.Counts()
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if skipped != 1 {
		t.Fatalf("skipped = %d, want 1", skipped)
	}

	history, _ := s.History("products", "p1")
	if len(history) != 1 || history[0].Resolution != entity.ResolutionServerWins {
		t.Fatalf("resolution not recorded: %+v", history)
	}
}

func TestMarkUnknownIDIsNoOp(t *testing.T) {
	s := newTestStore(t)
	if err := s.MarkCompleted(999); err != nil {
		t.Fatalf("marking an unknown id should not error: %v", err)
	}
}

func TestCountsAggregate(t *testing.T) {
	s := newTestStore(t)

	id1, _ := s.Append("products", entity.ChangeCreate, "p1", nil)
	id2, _ := s.Append("products", entity.ChangeCreate, "p2", nil)
	_, _ = s.Append("products", entity.ChangeCreate, "p3", nil)
	_ = s.MarkCompleted(id1)
	_ = s.MarkFailed(id2, "x")

	pending, failed, completed, skipped, total, err := s.Counts()
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if pending != 1 || failed != 1 || completed != 1 || skipped != 0 || total != 3 {
		t.Fatalf("Counts = %d/%d/%d/%d/%d, want 1/1/1/0/3", pending, failed, completed, skipped, total)
	}
}

func TestCleanupKeepsPendingAndFailed(t *testing.T) {
	s := newTestStore(t)

	id1, _ := s.Append("products", entity.ChangeCreate, "p1", nil)
	id2, _ := s.Append("products", entity.ChangeCreate, "p2", nil)
	_, _ = s.Append("products", entity.ChangeCreate, "p3", nil)
	_ = s.MarkCompleted(id1)
	_ = s.MarkFailed(id2, "x")

	// Cutoff in the future: age alone must not remove active work
	removed, err := s.Cleanup(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want only the completed entry", removed)
	}

	pending, failed, completed, _, _, _ := s.Counts()
	if pending != 1 || failed != 1 || completed != 0 {
		t.Fatalf("after cleanup: pending=%d failed=%d completed=%d", pending, failed, completed)
	}
}

func TestCleanupRespectsCutoff(t *testing.T) {
	s := newTestStore(t)

	id, _ := s.Append("products", entity.ChangeCreate, "p1", nil)
	_ = s.MarkCompleted(id)

	removed, err := s.Cleanup(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if removed != 0 {
		t.Fatalf("removed = %d, fresh entries should be kept", removed)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	logger := zap.NewNop().Sugar()

	s1, err := NewStore(dir, logger)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	id, err := s1.Append("products", entity.ChangeCreate, "p1", map[string]any{"name": "soap"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	s2, err := NewStore(dir, logger)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	pending, err := s2.ListPending()
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != id {
		t.Fatalf("entry did not survive reopen: %+v", pending)
	}

	// New appends continue the id sequence
	id2, _ := s2.Append("products", entity.ChangeCreate, "p2", nil)
	if id2 != id+1 {
		t.Fatalf("id after reopen = %d, want %d", id2, id+1)
	}
}

func TestLogEventAndCleanup(t *testing.T) {
	s := newTestStore(t)

	if err := s.LogEvent("push", "completed", map[string]any{"entry_id": 1}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if err := s.LogEvent("cleanup", "completed", nil); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}

	removed, err := s.CleanupEvents(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("CleanupEvents: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}

	removed, err = s.CleanupEvents(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("CleanupEvents: %v", err)
	}
	if removed != 0 {
		t.Fatalf("second cleanup removed = %d, want 0", removed)
	}
}

func TestAppendHoldsFileLockAcrossReadModifyWrite(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	rival := flock.New(filepath.Join(dir, "json", ".outbox.lock"))
	locked, err := rival.TryLock()
	if err != nil || !locked {
		t.Fatalf("taking rival lock: locked=%v err=%v", locked, err)
	}

	done := make(chan int, 1)
	go func() {
		id, _ := s.Append("products", entity.ChangeCreate, "p1", nil)
		done <- id
	}()

	select {
	case <-done:
		t.Fatal("Append must wait for the cross-process lock, not just the final write")
	case <-time.After(100 * time.Millisecond):
	}

	if err := rival.Unlock(); err != nil {
		t.Fatalf("releasing rival lock: %v", err)
	}

	select {
	case id := <-done:
		if id != 1 {
			t.Fatalf("id = %d, want 1", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Append never finished after the lock was released")
	}
}
