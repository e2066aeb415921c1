// Package policy maps failures and executions onto a user's debt and
// restriction state. Every function here is pure.
package policy

import (
	"math"
	"time"

	"github.com/julianstephens/lockstep/internal/constants"
	"github.com/julianstephens/lockstep/internal/models"
)

// Consequence is the table entry for a cumulative failure count.
type Consequence struct {
	DebtDelta        int
	RestrictionLevel int
	Status           models.UserStatus
}

// ForFailureCount returns the consequence of reaching failureCount.
func ForFailureCount(failureCount int) Consequence {
	switch {
	case failureCount <= 0:
		return Consequence{Status: models.UserActive}
	case failureCount >= 5:
		return Consequence{
			DebtDelta:        failureCount,
			RestrictionLevel: constants.MaxRestrictionLevel,
			Status:           models.UserSuspended,
		}
	default:
		level := failureCount - 1
		return Consequence{
			DebtDelta:        failureCount,
			RestrictionLevel: level,
			Status:           StatusForLevel(level),
		}
	}
}

// StatusForLevel derives the user status from a restriction level.
func StatusForLevel(level int) models.UserStatus {
	switch {
	case level <= 0:
		return models.UserActive
	case level >= constants.MaxRestrictionLevel:
		return models.UserSuspended
	default:
		return models.UserRestricted
	}
}

// Avoidance classifies behaviour during a failed lock.
type Avoidance int

const (
	AvoidanceNone Avoidance = iota
	AvoidanceDetected
	AvoidanceActiveRefusal
)

func (a Avoidance) String() string {
	switch a {
	case AvoidanceDetected:
		return "AVOIDANCE"
	case AvoidanceActiveRefusal:
		return "ACTIVE_REFUSAL"
	default:
		return "NONE"
	}
}

// Multiplier is the debt scale factor for the classification.
func (a Avoidance) Multiplier() float64 {
	switch a {
	case AvoidanceDetected:
		return constants.AvoidanceDebtMultiplier
	case AvoidanceActiveRefusal:
		return constants.ActiveRefusalDebtMultiplier
	default:
		return 1
	}
}

// Behaviour summarises what happened while a lock was held.
type Behaviour struct {
	EscapeAttempts     int
	BackgroundDuration time.Duration
	LockDuration       time.Duration
	Idle               time.Duration
}

// BehaviourOf extracts the behaviour recorded on a terminal lock.
func BehaviourOf(l models.ActionLock) Behaviour {
	end := l.WindowEnd
	if l.LockEnd != nil {
		end = *l.LockEnd
	}
	b := Behaviour{
		EscapeAttempts:     l.EscapeAttempts,
		BackgroundDuration: l.BackgroundDuration,
		Idle:               l.IdleFor(end),
	}
	if end.After(l.LockStart) {
		b.LockDuration = end.Sub(l.LockStart)
	}
	return b
}

// BackgroundRatio is the share of the lock spent outside the app.
func (b Behaviour) BackgroundRatio() float64 {
	if b.LockDuration <= 0 {
		return 0
	}
	return float64(b.BackgroundDuration) / float64(b.LockDuration)
}

const (
	avoidanceEscapes       = 3
	avoidanceRatio         = 0.25
	activeRefusalRatio     = 0.5
	avoidanceIdle          = 300 * time.Second
	activeRefusalIdle      = 600 * time.Second
	activeRefusalThreshold = constants.EscapeAttemptThreshold
)

// Classify scores behaviour. Active refusal needs sustained escapes together
// with long absence; any single strong signal is avoidance.
func Classify(b Behaviour) Avoidance {
	ratio := b.BackgroundRatio()
	if b.EscapeAttempts >= activeRefusalThreshold && (ratio >= activeRefusalRatio || b.Idle >= activeRefusalIdle) {
		return AvoidanceActiveRefusal
	}
	if b.EscapeAttempts >= avoidanceEscapes || ratio >= avoidanceRatio || b.Idle >= avoidanceIdle {
		return AvoidanceDetected
	}
	return AvoidanceNone
}

// Outcome describes what a failure did to the user.
type Outcome struct {
	FailureCount int
	DebtAdded    int
	Level        int
	Status       models.UserStatus
	Avoidance    Avoidance
	EscapeBump   bool
}

// ApplyFailure returns the user after one more failure. The restriction
// level is recomputed from the failure table and the execution streak
// resets. Escape attempts at or above the threshold keep the extra level
// ApplyEscapeBump already granted for the lock.
func ApplyFailure(u models.User, b Behaviour, now time.Time) (models.User, Outcome) {
	u.FailureCount++
	c := ForFailureCount(u.FailureCount)
	avoidance := Classify(b)

	debt := int(math.Ceil(float64(c.DebtDelta) * avoidance.Multiplier()))
	u.DebtUnits += debt

	level := c.RestrictionLevel
	bumped := false
	if b.EscapeAttempts >= constants.EscapeAttemptThreshold && level < constants.MaxRestrictionLevel {
		level++
		bumped = true
	}

	u.RestrictionLevel = level
	u.Status = StatusForLevel(level)
	u.ConsecutiveExecutions = 0
	u.UpdatedAt = now

	return u, Outcome{
		FailureCount: u.FailureCount,
		DebtAdded:    debt,
		Level:        level,
		Status:       u.Status,
		Avoidance:    avoidance,
		EscapeBump:   bumped,
	}
}

// ApplyEscapeBump raises the restriction level by one when a lock's escape
// attempts reach the threshold. It reports false at the maximum level.
func ApplyEscapeBump(u models.User, now time.Time) (models.User, bool) {
	if u.RestrictionLevel >= constants.MaxRestrictionLevel {
		return u, false
	}
	u.RestrictionLevel++
	u.EscapeBumps++
	u.Status = StatusForLevel(u.RestrictionLevel)
	u.UpdatedAt = now
	return u, true
}

// ApplyExecution returns the user after an obligation was executed. A
// debt-repayment obligation clears one debt unit; level*3 consecutive
// executions lift one restriction level.
func ApplyExecution(u models.User, o models.Obligation, now time.Time) models.User {
	u.ConsecutiveExecutions++
	if o.DebtRepayment && u.DebtUnits > 0 {
		u.DebtUnits--
	}

	if u.RestrictionLevel > 0 && u.ConsecutiveExecutions >= LiftRequirement(u.RestrictionLevel) {
		u.RestrictionLevel--
		u.ConsecutiveExecutions = 0
	}
	u.Status = StatusForLevel(u.RestrictionLevel)
	u.UpdatedAt = now
	return u
}

// LiftRequirement is the streak needed to leave level.
func LiftRequirement(level int) int {
	return level * constants.LiftingExecutionsPerLevel
}
