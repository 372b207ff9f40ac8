package common

import (
	"context"
	"math/rand"
	"strings"
	"time"
)

const Version = "1.0.0"

func NextBackoffWithJitter(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	// 2^11s already exceeds the cap; larger shifts would overflow
	if attempts > 11 {
		attempts = 11
	}

	base := time.Second << attempts

	limit := 30 * time.Minute
	if base > limit {
		base = limit
	}

	jitter := time.Duration(rand.Int63n(int64(base / 2)))

	return base/2 + jitter
}

func SleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer func() {
		if !t.Stop() {
			select {
			case <-t.C:
			default:
			}
		}
	}()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NormalizeColumnName converts a mirror field name (camelCase) to the remote
// schema's convention (all-lowercase, supabase style): updatedAt -> updatedat.
func NormalizeColumnName(field string) string {
	return strings.ToLower(strings.TrimSpace(field))
}

// NormalizeFields lowercases every key of a change payload. Later duplicates
// win, matching how the remote would see the row.
func NormalizeFields(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[NormalizeColumnName(k)] = v
	}
	return out
}

// ParseFlexibleTime accepts the timestamp layouts that occur in mirror
// documents and pulled audit rows.
func ParseFlexibleTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
