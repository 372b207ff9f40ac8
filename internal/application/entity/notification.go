package entity

// Notification is the user-facing record synthesized by the pull pipeline for
// side-channel change rows (currently only password resets). Shape matches
// notifications.json as consumed by the UI layer.
type Notification struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	UserEmail string `json:"userEmail"`
	IsRead    bool   `json:"isRead"`
	CreatedAt string `json:"createdAt"`
	SyncLogID int64  `json:"syncLogId"`
}

const NotificationPasswordReset = "PASSWORD_RESET"
