package errors

import (
	stderrors "errors"
	"fmt"
)

// Sentinel kinds. Typed errors below match them through errors.Is.
var (
	ErrNotFound         = stderrors.New("not found")
	ErrInvalidInput     = stderrors.New("invalid input")
	ErrBindingViolation = stderrors.New("binding violation")
	ErrActionLocked     = stderrors.New("action locked")
	ErrRestricted       = stderrors.New("action restricted")
)

// ViolationKind names the forbidden mutation attempted on a bound obligation.
type ViolationKind string

const (
	ViolationReschedule ViolationKind = "RESCHEDULE"
	ViolationDelete     ViolationKind = "DELETE"
)

// ViolationModify returns the MODIFY:<field> kind.
func ViolationModify(field string) ViolationKind {
	return ViolationKind("MODIFY:" + field)
}

// BindingViolation is returned when an obligation in BINDING or BOUND state
// is rescheduled, deleted or modified.
type BindingViolation struct {
	Kind          ViolationKind
	ObligationID  string
	CurrentStatus string
}

func (e *BindingViolation) Error() string {
	return fmt.Sprintf("binding violation: %s refused for obligation %s (status %s)", e.Kind, e.ObligationID, e.CurrentStatus)
}

func (e *BindingViolation) Is(target error) bool { return target == ErrBindingViolation }

// ActionLockedError is returned when a non-execution action is attempted
// while an action lock is active.
type ActionLockedError struct {
	ObligationID    string
	LockID          string
	AttemptedAction string
}

func (e *ActionLockedError) Error() string {
	return fmt.Sprintf("action %s blocked: obligation %s is bound", e.AttemptedAction, e.ObligationID)
}

func (e *ActionLockedError) Is(target error) bool { return target == ErrActionLocked }

// RestrictedError is returned when the user's restriction level removes the
// action's category.
type RestrictedError struct {
	Action   string
	Category string
	Level    int
}

func (e *RestrictedError) Error() string {
	return fmt.Sprintf("action %s (%s) unavailable at restriction level %d", e.Action, e.Category, e.Level)
}

func (e *RestrictedError) Is(target error) bool { return target == ErrRestricted }

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// InvalidInputError reports a rejected field before any state mutation.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

// InvalidInput builds an InvalidInputError.
func InvalidInput(field, reason string) error {
	return &InvalidInputError{Field: field, Reason: reason}
}

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case stderrors.Is(err, ErrActionLocked), stderrors.Is(err, ErrRestricted):
		return 3
	case stderrors.Is(err, ErrBindingViolation):
		return 4
	default:
		return 1
	}
}
