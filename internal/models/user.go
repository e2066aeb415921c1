package models

import "time"

type UserStatus string

const (
	UserActive     UserStatus = "ACTIVE"
	UserRestricted UserStatus = "RESTRICTED"
	UserSuspended  UserStatus = "SUSPENDED"
)

// User carries identity and the cumulative discipline state. Every field
// other than ID and CreatedAt is mutated by the consequence policy only.
type User struct {
	ID                    string     `json:"id"`
	CreatedAt             time.Time  `json:"created_at"`
	FailureCount          int        `json:"failure_count"`
	DebtUnits             int        `json:"debt_units"`
	RestrictionLevel      int        `json:"restriction_level"`
	Status                UserStatus `json:"status"`
	ConsecutiveExecutions int        `json:"consecutive_executions"`
	EscapeBumps           int        `json:"escape_bumps"`
	// Applied holds the keys of the most recent consequences. Each key is
	// applied at most once.
	Applied   []string  `json:"applied,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

const appliedHistory = 64

// HasApplied reports whether the consequence named key was recorded.
func (u User) HasApplied(key string) bool {
	for _, k := range u.Applied {
		if k == key {
			return true
		}
	}
	return false
}

// MarkApplied records key, dropping the oldest keys past the history size.
func (u *User) MarkApplied(key string) {
	u.Applied = append(u.Applied, key)
	if n := len(u.Applied); n > appliedHistory {
		u.Applied = append([]string(nil), u.Applied[n-appliedHistory:]...)
	}
}
