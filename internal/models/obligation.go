package models

import (
	"time"

	"github.com/julianstephens/lockstep/internal/constants"
)

type ObligationStatus string

const (
	ObligationCreated  ObligationStatus = "CREATED"
	ObligationBinding  ObligationStatus = "BINDING"
	ObligationBound    ObligationStatus = "BOUND"
	ObligationExecuted ObligationStatus = "EXECUTED"
	ObligationFailed   ObligationStatus = "FAILED"
)

// rank orders the non-terminal states along wall-clock progression.
func (s ObligationStatus) rank() int {
	switch s {
	case ObligationCreated:
		return 0
	case ObligationBinding:
		return 1
	case ObligationBound:
		return 2
	default:
		return 3
	}
}

// IsTerminal reports whether the status is EXECUTED or FAILED.
func (s ObligationStatus) IsTerminal() bool {
	return s == ObligationExecuted || s == ObligationFailed
}

// IsBinding reports whether the obligation is immutable (BINDING or BOUND).
func (s ObligationStatus) IsBinding() bool {
	return s == ObligationBinding || s == ObligationBound
}

// Obligation is a scheduled unit of required execution.
type Obligation struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	Type           string           `json:"type"`
	UnitsRequired  int              `json:"units_required"`
	UnitsCompleted int              `json:"units_completed"`
	ScheduledAt    time.Time        `json:"scheduled_at"`
	BindingTime    time.Time        `json:"binding_time"`
	Status         ObligationStatus `json:"status"`
	DebtRepayment  bool             `json:"debt_repayment,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	ResolvedAt     *time.Time       `json:"resolved_at,omitempty"`
}

// WindowEnd is the instant the execution window closes.
func (o Obligation) WindowEnd() time.Time {
	return o.ScheduledAt.Add(constants.ExecutionWindow)
}

// IsComplete reports whether the required units have been logged.
func (o Obligation) IsComplete() bool {
	return o.UnitsCompleted >= o.UnitsRequired
}

// BindingTimeFor returns the binding instant for a scheduled time.
func BindingTimeFor(scheduledAt time.Time) time.Time {
	return scheduledAt.Add(-constants.BindingWindow)
}

// ResolveStatus derives the status of o at now. Terminal states pass
// through. The result never ranks below the stored status.
func ResolveStatus(o Obligation, now time.Time) ObligationStatus {
	if o.Status.IsTerminal() {
		return o.Status
	}

	derived := o.Status
	switch {
	case !now.Before(o.ScheduledAt):
		derived = ObligationBound
	case !now.Before(o.BindingTime):
		derived = ObligationBinding
	}

	if derived.rank() < o.Status.rank() {
		return o.Status
	}
	return derived
}
