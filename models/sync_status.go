package models

import (
	"gorm.io/gorm"
)

type SyncState string

const (
	SyncPending     SyncState = "pending"
	SyncRunning     SyncState = "running"
	SyncDone        SyncState = "done"
	SyncFailed      SyncState = "failed"
	SyncRateLimited SyncState = "rate_limited"
)

// SyncStatus records a repository load for a user so the web layer can poll
// its progress. Rows are purged by the housekeeping cron once finished.
type SyncStatus struct {
	gorm.Model
	UserID uint `gorm:"index:idx_sync_status_user"`
	User   *User
	State  SyncState
	Detail string
}

func (s *SyncStatus) Finished() bool {
	return s.State == SyncDone || s.State == SyncFailed || s.State == SyncRateLimited
}
