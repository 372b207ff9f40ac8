// Package mirror is the local JSON read model: one pretty-printed document per
// entity, the offline system of record for everything outside the sync engine.
package mirror

import (
	"bytes"
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

const settingsKey = "systemSettings"

type Store struct {
	dir string

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
		dir:      jsonDir,
		fileLock: flock.New(filepath.Join(jsonDir, ".mirror.lock")),
		logger:   logger,
	}, nil
}

// Apply writes one pulled change into the table's mirror document. Returns
// false when the document is byte-identical afterwards, in which case nothing
// touches the disk.
func (s *Store) Apply(spec entity.TableSpec, op entity.ChangeType, recordID string, data map[string]any) (bool, error) {
	if spec.MirrorFile == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockFile()
	if err != nil {
		return false, err
	}
	defer unlock()

	path := filepath.Join(s.dir, spec.MirrorFile)

	if spec.SingleObject {
		return s.applyToObject(path, op, data)
	}
	return s.applyToList(path, op, recordID, data)
}

func (s *Store) applyToObject(path string, op entity.ChangeType, data map[string]any) (bool, error) {
	doc, raw, err := s.loadObject(path)
	if err != nil {
		return false, err
	}

	switch op {
	case entity.ChangeCreate, entity.ChangeUpdate:
		for k, v := range data {
			doc[k] = v
		}
	case entity.ChangeDelete:
		// Settings are never deleted wholesale; a DELETE row is a no-op here
		return false, nil
	}

	return s.writeIfChanged(path, doc, raw)
}

func (s *Store) applyToList(path string, op entity.ChangeType, recordID string, data map[string]any) (bool, error) {
	list, raw, err := s.loadList(path)
	if err != nil {
		return false, err
	}

	if recordID == "" {
		if id, ok := data["id"]; ok {
			recordID = fmt.Sprint(id)
		}
	}

	switch op {
	case entity.ChangeCreate, entity.ChangeUpdate:
		found := false
		for i, item := range list {
			if fmt.Sprint(item["id"]) == recordID {
				merged := make(map[string]any, len(item)+len(data))
				for k, v := range item {
					merged[k] = v
				}
				for k, v := range data {
					merged[k] = v
				}
				list[i] = merged
				found = true
				break
			}
		}
		if !found {
			list = append(list, data)
		}
	case entity.ChangeDelete:
		kept := list[:0]
		for _, item := range list {
			if fmt.Sprint(item["id"]) == recordID {
				continue
			}
			kept = append(kept, item)
		}
		list = kept
	}

	return s.writeIfChanged(path, list, raw)
}

// FindByID looks a record up in the table's mirror document. Used by the
// dependency resolver to recover a missing parent.
func (s *Store) FindByID(spec entity.TableSpec, recordID string) (map[string]any, bool, error) {
	if spec.MirrorFile == "" || spec.SingleObject {
		return nil, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, _, err := s.loadList(filepath.Join(s.dir, spec.MirrorFile))
	if err != nil {
		return nil, false, err
	}
	for _, item := range list {
		if fmt.Sprint(item["id"]) == recordID {
			return item, true, nil
		}
	}
	return nil, false, nil
}

// AppendNotification adds a synthesized notification, newest first, unless one
// for the same audit row already exists.
func (s *Store) AppendNotification(n entity.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockFile()
	if err != nil {
		return false, err
	}
	defer unlock()

	path := filepath.Join(s.dir, "notifications.json")
	raw, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("read notifications: %w", err)
	}

	var notifications []entity.Notification
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &notifications); err != nil {
			return false, fmt.Errorf("decode notifications: %w", err)
		}
	}

	for _, existing := range notifications {
		if existing.SyncLogID == n.SyncLogID {
			s.logger.Debugf("notification for audit row %d already exists", n.SyncLogID)
			return false, nil
		}
	}

	notifications = append([]entity.Notification{n}, notifications...)
	return s.writeIfChanged(path, notifications, raw)
}

// ===== sync checkpoint, nested under settings.json =====

// LastSyncID reads the pull checkpoint. ok is false when no pull has ever
// completed.
func (s *Store) LastSyncID() (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, _, err := s.loadObject(filepath.Join(s.dir, "settings.json"))
	if err != nil {
		return 0, false, err
	}

	system, ok := settings[settingsKey].(map[string]any)
	if !ok {
		return 0, false, nil
	}
	switch v := system["lastSyncId"].(type) {
	case float64:
		return int64(v), true, nil
	case json.Number:
		id, err := v.Int64()
		if err != nil {
			return 0, false, nil
		}
		return id, true, nil
	default:
		return 0, false, nil
	}
}

// SetLastSyncID advances the checkpoint. The value only moves forward.
func (s *Store) SetLastSyncID(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockFile()
	if err != nil {
		return err
	}
	defer unlock()

	path := filepath.Join(s.dir, "settings.json")
	settings, raw, err := s.loadObject(path)
	if err != nil {
		return err
	}

	system, ok := settings[settingsKey].(map[string]any)
	if !ok {
		system = map[string]any{}
	}
	if prev, ok := system["lastSyncId"].(float64); ok && int64(prev) >= id {
		return nil
	}
	system["lastSyncId"] = id
	system["last_sync_time"] = time.Now().Format(time.RFC3339)
	settings[settingsKey] = system

	_, err = s.writeIfChanged(path, settings, raw)
	return err
}

// LastSyncTime reports when the checkpoint last advanced.
func (s *Store) LastSyncTime() (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, _, err := s.loadObject(filepath.Join(s.dir, "settings.json"))
	if err != nil {
		return nil, err
	}
	system, ok := settings[settingsKey].(map[string]any)
	if !ok {
		return nil, nil
	}
	str, ok := system["last_sync_time"].(string)
	if !ok {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return nil, nil
	}
	return &t, nil
}

// ===== document IO =====

// lockFile takes the cross-process lock for a whole read-modify-write span.
// Holding it only around the write would let another process interleave
// between load and save and lose its update.
func (s *Store) lockFile() (func(), error) {
	if err := s.fileLock.Lock(); err != nil {
		return nil, fmt.Errorf("lock mirror: %w", err)
	}
	return func() { _ = s.fileLock.Unlock() }, nil
}

func (s *Store) loadList(path string) ([]map[string]any, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []map[string]any{}, nil, nil
		}
		return nil, nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	var list []map[string]any
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return list, raw, nil
}

func (s *Store) loadObject(path string) (map[string]any, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil, nil
		}
		return nil, nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return doc, raw, nil
}

func (s *Store) writeIfChanged(path string, doc any, previous []byte) (bool, error) {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	if bytes.Equal(bytes.TrimSpace(previous), raw) {
		s.logger.Debugf("%s unchanged, skipping write", filepath.Base(path))
		return false, nil
	}

	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return true, nil
}
