package outbox

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"possync/internal/application/entity"
)

// LogEvent appends one audit record to sync_events.json. Events are write-only
// from the engine's perspective and never block the operation that emitted
// them; callers ignore the returned error outside of tests.
func (s *Store) LogEvent(eventType, status string, details map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockFile()
	if err != nil {
		return err
	}
	defer unlock()

	events, err := s.loadEvents()
	if err != nil {
		return err
	}

	maxID := 0
	for _, ev := range events {
		if ev.ID > maxID {
			maxID = ev.ID
		}
	}

	events = append(events, entity.SyncLogEvent{
		ID:        maxID + 1,
		Timestamp: time.Now(),
		EventType: eventType,
		Status:    status,
		Details:   details,
	})

	return s.saveEvents(events)
}

// CleanupEvents drops events older than the cutoff.
func (s *Store) CleanupEvents(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockFile()
	if err != nil {
		return 0, err
	}
	defer unlock()

	events, err := s.loadEvents()
	if err != nil {
		return 0, err
	}

	kept := events[:0]
	removed := 0
	for _, ev := range events {
		if ev.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.saveEvents(kept); err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *Store) loadEvents() ([]entity.SyncLogEvent, error) {
	raw, err := os.ReadFile(s.eventsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []entity.SyncLogEvent{}, nil
		}
		return nil, fmt.Errorf("read sync events: %w", err)
	}

	var events []entity.SyncLogEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("decode sync events: %w", err)
	}
	return events, nil
}

func (s *Store) saveEvents(events []entity.SyncLogEvent) error {
	raw, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sync events: %w", err)
	}

	if err := os.WriteFile(s.eventsPath, raw, 0o644); err != nil {
		return fmt.Errorf("write sync events: %w", err)
	}
	return nil
}
