package repo

import (
	"context"
	"fmt"
	"sync"
)

// schemaCache holds the live column set of each remote table. Change payloads
// are filtered against it so fields the remote schema no longer has (or never
// had) are dropped instead of breaking the whole entry.
type schemaCache struct {
	mu      sync.RWMutex
	columns map[string]map[string]struct{}
}

func newSchemaCache() *schemaCache {
	return &schemaCache{columns: make(map[string]map[string]struct{})}
}

func (r *RemoteImpl) columnsFor(ctx context.Context, table string) (map[string]struct{}, error) {
	r.schema.mu.RLock()
	cols, ok := r.schema.columns[table]
	r.schema.mu.RUnlock()
	if ok {
		return cols, nil
	}

	rows, err := r.db.Query(ctx, tableColumnsQuery, table)
	if err != nil {
		return nil, fmt.Errorf("introspect %s: %w", table, err)
	}
	defer rows.Close()

	cols = make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("introspect %s: %w", table, err)
		}
		cols[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("introspect %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("introspect %s: table has no columns or does not exist", table)
	}

	r.schema.mu.Lock()
	r.schema.columns[table] = cols
	r.schema.mu.Unlock()
	return cols, nil
}

// InvalidateSchema drops the cached column sets. Called when a write fails
// with an undefined-column error, so the next attempt re-reads the catalog.
func (r *RemoteImpl) InvalidateSchema() {
	r.schema.mu.Lock()
	r.schema.columns = make(map[string]map[string]struct{})
	r.schema.mu.Unlock()
}
