package models

import "time"

type LockStatus string

const (
	LockActive   LockStatus = "ACTIVE"
	LockResolved LockStatus = "RESOLVED"
	LockExpired  LockStatus = "EXPIRED"
)

type LockResolution string

const (
	ResolutionPending  LockResolution = "PENDING"
	ResolutionExecuted LockResolution = "EXECUTED"
	ResolutionFailed   LockResolution = "FAILED"
)

// ActionLock restricts a user to execution-only actions while one of their
// obligations is bound.
type ActionLock struct {
	ID                 string         `json:"id"`
	ObligationID       string         `json:"obligation_id"`
	UserID             string         `json:"user_id"`
	LockStart          time.Time      `json:"lock_start"`
	LockEnd            *time.Time     `json:"lock_end,omitempty"`
	Status             LockStatus     `json:"status"`
	Resolution         LockResolution `json:"resolution"`
	EscapeAttempts     int            `json:"escape_attempts"`
	UnitsRequired      int            `json:"units_required"`
	UnitsCompleted     int            `json:"units_completed"`
	WindowEnd          time.Time      `json:"window_end"`
	BackgroundDuration time.Duration  `json:"background_duration"`
	LastActivityAt     time.Time      `json:"last_activity_at"`
	IdleWarningsSent   int            `json:"idle_warnings_sent"`
	ResumeCount        int            `json:"resume_count"`
}

// IsActive reports whether the lock is currently enforcing.
func (l *ActionLock) IsActive() bool {
	return l != nil && l.Status == LockActive
}

// TimeRemaining returns the time left until the window closes, never negative.
func (l *ActionLock) TimeRemaining(now time.Time) time.Duration {
	if l == nil || !now.Before(l.WindowEnd) {
		return 0
	}
	return l.WindowEnd.Sub(now)
}

// IdleFor returns the inactivity duration at now.
func (l *ActionLock) IdleFor(now time.Time) time.Duration {
	if l == nil || l.LastActivityAt.IsZero() || now.Before(l.LastActivityAt) {
		return 0
	}
	return now.Sub(l.LastActivityAt)
}
