package entity

import (
	"encoding/json"
	"time"
)

type EntryStatus string

const (
	StatusPending   EntryStatus = "pending"
	StatusCompleted EntryStatus = "completed"
	StatusFailed    EntryStatus = "failed"
	StatusSkipped   EntryStatus = "skipped"
)

type ChangeType string

const (
	ChangeCreate           ChangeType = "CREATE"
	ChangeUpdate           ChangeType = "UPDATE"
	ChangeDelete           ChangeType = "DELETE"
	ChangeDeleteAllForUser ChangeType = "DELETE_ALL_FOR_USER"
)

// Resolution values recorded on skipped entries.
const (
	ResolutionServerWins     = "server_wins"
	ResolutionParentMissing  = "parent_missing"
	ResolutionParentDeleted  = "parent_deleted"
	ResolutionRetryExhausted = "retry_exhausted"
)

// OutboxEntry is one intended change that is not yet confirmed on the remote
// store. The on-disk field names match the mirror's historical JSON shape.
type OutboxEntry struct {
	ID           int            `json:"id"`
	SyncTime     time.Time      `json:"sync_time"`
	TableName    string         `json:"table_name"`
	ChangeType   ChangeType     `json:"change_type"`
	RecordID     string         `json:"record_id"`
	ChangeData   map[string]any `json:"change_data"`
	Status       EntryStatus    `json:"status"`
	RetryCount   int            `json:"retry_count"`
	LastRetry    *time.Time     `json:"last_retry"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Resolution   string         `json:"resolution,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// SyncLogEvent is an append-only audit record of outbox processing. It is
// write-only from the engine's perspective.
type SyncLogEvent struct {
	ID        int            `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"eventType"`
	Status    string         `json:"status"`
	Details   map[string]any `json:"details"`
}

// AuditRow mirrors one row of the remote sync_table change feed.
type AuditRow struct {
	ID            int64           `db:"id"`
	TableName     string          `db:"table_name"`
	RecordID      string          `db:"record_id"`
	OperationType string          `db:"operation_type"`
	ChangeData    json.RawMessage `db:"change_data"`
	Source        string          `db:"source"`
	Status        string          `db:"status"`
	ErrorMessage  string          `db:"error_message"`
	SyncAttempts  int             `db:"sync_attempts"`
	CreatedAt     time.Time       `db:"created_at"`
	SyncedAt      *time.Time      `db:"synced_at"`
}

// Audit feed constants. Rows written by this process carry source "local";
// rows produced by other replicas or server-side jobs carry source "remote".
const (
	AuditSourceLocal  = "local"
	AuditSourceRemote = "remote"

	AuditStatusPending = "pending"
	AuditStatusSynced  = "synced"
	AuditStatusFailed  = "failed"
)

// SyncStatus is the read-only diagnostic returned by the status API.
type SyncStatus struct {
	IsRunning     bool       `json:"is_running"`
	LastSync      *time.Time `json:"last_sync"`
	PendingLogs   int        `json:"pending_logs"`
	FailedLogs    int        `json:"failed_logs"`
	CompletedLogs int        `json:"completed_logs"`
	SkippedLogs   int        `json:"skipped_logs"`
	TotalLogs     int        `json:"total_logs"`
}
