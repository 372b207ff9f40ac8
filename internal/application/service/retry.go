package service

import (
	"context"
	"fmt"
	"time"

	"possync/internal/application/common"
	"possync/internal/application/entity"
)

// Retry re-queues failed outbox entries that still have retry budget and
// drains them. An entry out of budget is marked skipped with a terminal
// message, so it surfaces in the status counts instead of retrying forever.
func (s *ServiceImpl) Retry(ctx context.Context) (RetrySummary, error) {
	failed, err := s.outbox.ListFailed()
	if err != nil {
		return RetrySummary{}, err
	}
	if len(failed) == 0 {
		return RetrySummary{}, nil
	}

	var summary RetrySummary
	for _, e := range failed {
		if e.RetryCount >= s.cfg.MaxAttempts {
			msg := fmt.Sprintf("gave up after %d attempts: %s", e.RetryCount, e.ErrorMessage)
			if err := s.outbox.MarkSkipped(e.ID, entity.ResolutionRetryExhausted, msg); err != nil {
				s.logger.Errorf("[entry %d] mark exhausted failed: %v", e.ID, err)
				continue
			}
			s.logger.Warnf("[entry %d] %s %s/%s retry budget exhausted", e.ID, e.ChangeType, e.TableName, e.RecordID)
			summary.Exhausted++
			continue
		}
		// Respect the backoff window of the previous failure
		if e.LastRetry != nil {
			wait := common.NextBackoffWithJitter(e.RetryCount)
			if time.Since(*e.LastRetry) < wait {
				continue
			}
		}
		if err := s.outbox.MarkPending(e.ID); err != nil {
			s.logger.Errorf("[entry %d] re-queue failed: %v", e.ID, err)
			continue
		}
		summary.Retried++
	}

	s.logger.Infof("retry pass: %d re-queued, %d exhausted of %d failed", summary.Retried, summary.Exhausted, len(failed))
	if summary.Exhausted > 0 {
		_ = s.outbox.LogEvent("retry", "exhausted", map[string]any{"entries": summary.Exhausted})
	}

	if summary.Retried > 0 {
		if _, err := s.Push(ctx, "retry"); err != nil {
			return summary, err
		}
	}
	return summary, nil
}
