// Package outbox is the durable local change log. Every mirror mutation is
// recorded here before the push pipeline attempts to apply it remotely, so a
// crash between the local write and the remote apply loses nothing.
package outbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"possync/internal/application/entity"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

type Store struct {
	path       string
	eventsPath string

	// mu serializes in-process read-modify-write passes; fileLock guards
	// against a second process touching the same files.
	mu       sync.Mutex
	fileLock *flock.Flock

	logger *zap.SugaredLogger
}

func NewStore(dataDir string, logger *zap.SugaredLogger) (*Store, error) {
	jsonDir := filepath.Join(dataDir, "json")
	if err := os.MkdirAll(jsonDir, 0o755); err != nil {
		return nil, fmt.Errorf("create json dir: %w", err)
	}

	return &Store{
		path:       filepath.Join(jsonDir, "outbox.json"),
		eventsPath: filepath.Join(jsonDir, "sync_events.json"),
		fileLock:   flock.New(filepath.Join(jsonDir, ".outbox.lock")),
		logger:     logger,
	}, nil
}

// Append records one intended change. Any still-pending entry for the same
// (table, record) pair is superseded, so at most one pending entry per key
// exists at any time. Returns the id assigned to the new entry.
func (s *Store) Append(table string, changeType entity.ChangeType, recordID string, data map[string]any) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockFile()
	if err != nil {
		return 0, err
	}
	defer unlock()

	entries, err := s.load()
	if err != nil {
		return 0, err
	}

	kept := entries[:0]
	superseded := 0
	for _, e := range entries {
		if e.TableName == table && e.RecordID == recordID && e.Status == entity.StatusPending {
			superseded++
			continue
		}
		kept = append(kept, e)
	}
	if superseded > 0 {
		s.logger.Debugf("[%s:%s] superseded %d stale pending entries", table, recordID, superseded)
	}

	maxID := 0
	for _, e := range kept {
		if e.ID > maxID {
			maxID = e.ID
		}
	}

	now := time.Now()
	newEntry := entity.OutboxEntry{
		ID:         maxID + 1,
		SyncTime:   now,
		TableName:  table,
		ChangeType: changeType,
		RecordID:   recordID,
		ChangeData: data,
		Status:     entity.StatusPending,
		CreatedAt:  now,
	}
	kept = append(kept, newEntry)

	if err := s.save(kept); err != nil {
		return 0, err
	}

	s.logger.Infof("[%s:%s] logged %s as outbox entry %d", table, recordID, changeType, newEntry.ID)
	return newEntry.ID, nil
}

func (s *Store) ListPending() ([]entity.OutboxEntry, error) {
	return s.listByStatus(entity.StatusPending)
}

func (s *Store) ListFailed() ([]entity.OutboxEntry, error) {
	return s.listByStatus(entity.StatusFailed)
}

func (s *Store) listByStatus(status entity.EntryStatus) ([]entity.OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]entity.OutboxEntry, 0)
	for _, e := range entries {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out, nil
}

// History returns every non-pending entry for the key, oldest first. Used by
// the dependency resolver to reconstruct a missing parent.
func (s *Store) History(table, recordID string) ([]entity.OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]entity.OutboxEntry, 0)
	for _, e := range entries {
		if e.TableName == table && e.RecordID == recordID && e.Status != entity.StatusPending {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) MarkCompleted(id int) error {
	now := time.Now()
	return s.mark(id, func(e *entity.OutboxEntry) {
		e.Status = entity.StatusCompleted
		e.CompletedAt = &now
		e.ErrorMessage = ""
	})
}

// MarkFailed increments the retry counter; the retry job decides later whether
// the entry goes back to pending or is skipped for good.
func (s *Store) MarkFailed(id int, errMsg string) error {
	now := time.Now()
	return s.mark(id, func(e *entity.OutboxEntry) {
		e.Status = entity.StatusFailed
		e.RetryCount++
		e.LastRetry = &now
		e.ErrorMessage = errMsg
	})
}

func (s *Store) MarkSkipped(id int, resolution, errMsg string) error {
	return s.mark(id, func(e *entity.OutboxEntry) {
		e.Status = entity.StatusSkipped
		e.Resolution = resolution
		e.ErrorMessage = errMsg
	})
}

func (s *Store) MarkPending(id int) error {
	return s.mark(id, func(e *entity.OutboxEntry) {
		e.Status = entity.StatusPending
		e.ErrorMessage = ""
	})
}

func (s *Store) mark(id int, apply func(*entity.OutboxEntry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockFile()
	if err != nil {
		return err
	}
	defer unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}

	found := false
	for i := range entries {
		if entries[i].ID == id {
			apply(&entries[i])
			found = true
			break
		}
	}
	if !found {
		// Idempotent no-op: the entry may have been cleaned up already
		s.logger.Warnf("[entry %d] mark requested but entry not found", id)
		return nil
	}

	return s.save(entries)
}

// Counts aggregates entry statuses for the status API.
func (s *Store) Counts() (pending, failed, completed, skipped, total int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return 0, 0, 0, 0, 0, err
	}
	for _, e := range entries {
		switch e.Status {
		case entity.StatusPending:
			pending++
		case entity.StatusFailed:
			failed++
		case entity.StatusCompleted:
			completed++
		case entity.StatusSkipped:
			skipped++
		}
	}
	return pending, failed, completed, skipped, len(entries), nil
}

// Cleanup drops entries created before the cutoff. Pending and failed entries
// are kept regardless of age so no queued change is silently discarded.
func (s *Store) Cleanup(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockFile()
	if err != nil {
		return 0, err
	}
	defer unlock()

	entries, err := s.load()
	if err != nil {
		return 0, err
	}

	kept := entries[:0]
	removed := 0
	for _, e := range entries {
		if e.CreatedAt.Before(cutoff) && (e.Status == entity.StatusCompleted || e.Status == entity.StatusSkipped) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.save(kept); err != nil {
		return 0, err
	}
	return removed, nil
}

// ===== whole-file read-modify-write =====

// lockFile takes the cross-process lock for a whole read-modify-write span.
// Holding it only around the write would let another process interleave
// between load and save and lose its update.
func (s *Store) lockFile() (func(), error) {
	if err := s.fileLock.Lock(); err != nil {
		return nil, fmt.Errorf("lock outbox: %w", err)
	}
	return func() { _ = s.fileLock.Unlock() }, nil
}

func (s *Store) load() ([]entity.OutboxEntry, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []entity.OutboxEntry{}, nil
		}
		return nil, fmt.Errorf("read outbox: %w", err)
	}

	var entries []entity.OutboxEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode outbox: %w", err)
	}
	return entries, nil
}

func (s *Store) save(entries []entity.OutboxEntry) error {
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode outbox: %w", err)
	}

	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("write outbox: %w", err)
	}
	return nil
}
