package models

import "time"

type ExecutionResult string

const (
	ResultExecuted ExecutionResult = "EXECUTED"
	ResultFailed   ExecutionResult = "FAILED"
)

// ExecutionLog records the terminal outcome of an obligation. Append-only.
type ExecutionLog struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	ObligationID   string          `json:"obligation_id"`
	Timestamp      time.Time       `json:"timestamp"`
	Result         ExecutionResult `json:"result"`
	UnitsCompleted int             `json:"units_completed"`
	UnitsRequired  int             `json:"units_required"`
}

type EscapeKind string

const (
	EscapeNavigation EscapeKind = "NAVIGATION"
	EscapeBackground EscapeKind = "BACKGROUND"
	EscapeForceClose EscapeKind = "FORCE_CLOSE"
)

// EscapeAttempt records behaviour observed while a lock was active.
type EscapeAttempt struct {
	ID           string        `json:"id"`
	UserID       string        `json:"user_id"`
	LockID       string        `json:"lock_id"`
	ObligationID string        `json:"obligation_id"`
	Kind         EscapeKind    `json:"kind"`
	Action       string        `json:"action,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// ActionLogEntry records every routed action, permitted or not.
type ActionLogEntry struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Action    string            `json:"action"`
	Category  string            `json:"category"`
	Permitted bool              `json:"permitted"`
	Reason    string            `json:"reason,omitempty"`
	Payload   map[string]string `json:"payload,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Violation records a rejected mutation of a binding obligation.
type Violation struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	ObligationID string    `json:"obligation_id"`
	Kind         string    `json:"kind"`
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
}
