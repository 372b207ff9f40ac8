package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Cleanup prunes sync history that has aged out: confirmed outbox entries,
// processing events, confirmed remote audit rows, and rotated log files.
// Pending and failed work is never touched here.
func (s *ServiceImpl) Cleanup(ctx context.Context) (CleanupSummary, error) {
	var summary CleanupSummary
	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)

	removed, err := s.outbox.Cleanup(cutoff)
	if err != nil {
		return summary, err
	}
	summary.OutboxRemoved = removed

	events, err := s.outbox.CleanupEvents(cutoff)
	if err != nil {
		return summary, err
	}
	summary.EventsRemoved = events

	if s.breaker.Allow() {
		audit, err := s.remote.CleanupAudit(ctx, cutoff)
		if err != nil {
			s.logger.Warnf("cleanup: remote audit prune failed: %v", err)
		} else {
			summary.AuditRemoved = audit
		}
	} else {
		s.logger.Infof("cleanup: remote offline, skipping audit prune")
	}

	logs, err := s.pruneLogFiles(time.Now().AddDate(0, 0, -s.cfg.LogRetentionDays))
	if err != nil {
		s.logger.Warnf("cleanup: log prune failed: %v", err)
	}
	summary.LogsRemoved = logs

	s.logger.Infof("cleanup finished: %d outbox entries, %d events, %d audit rows, %d log files",
		summary.OutboxRemoved, summary.EventsRemoved, summary.AuditRemoved, summary.LogsRemoved)
	_ = s.outbox.LogEvent("cleanup", "completed", map[string]any{
		"outbox_removed": summary.OutboxRemoved,
		"events_removed": summary.EventsRemoved,
		"audit_removed":  summary.AuditRemoved,
		"logs_removed":   summary.LogsRemoved,
	})
	return summary, nil
}

// pruneLogFiles removes rotated log files older than the cutoff. The active
// log file is left alone regardless of age.
func (s *ServiceImpl) pruneLogFiles(cutoff time.Time) (int, error) {
	logDir := filepath.Join(s.dataDir, "logs")
	entries, err := os.ReadDir(logDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		// Rotated files carry a timestamp infix, the active file does not
		if strings.Count(e.Name(), "-") == 0 {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(logDir, e.Name())); err != nil {
			s.logger.Warnf("cleanup: removing %s: %v", e.Name(), err)
			continue
		}
		removed++
	}
	return removed, nil
}
