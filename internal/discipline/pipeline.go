package discipline

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/lockstep/internal/errors"
	"github.com/julianstephens/lockstep/internal/logger"
	"github.com/julianstephens/lockstep/internal/models"
	"github.com/julianstephens/lockstep/internal/notifier"
	"github.com/julianstephens/lockstep/internal/policy"
)

// pipeline applies consequences for terminal outcomes. It is the lock
// manager's handler and the obligation store's pipeline, so every failure
// path in the kernel ends in fail. Every step can be re-run after a failed
// write: log entries are written once per obligation and result, and each
// consequence is keyed on the user record.
type pipeline struct {
	s *Service
}

func (p *pipeline) ObligationExecuted(ctx context.Context, o models.Obligation) error {
	now := p.s.clock.Now()
	if err := p.logOnce(ctx, o, models.ResultExecuted, now); err != nil {
		return fmt.Errorf("failed to log execution: %w", err)
	}

	var before int
	u, applied, err := p.applyOnce(ctx, o.UserID, "executed:"+o.ID, func(u models.User) models.User {
		before = u.RestrictionLevel
		return policy.ApplyExecution(u, o, now)
	})
	if err != nil || !applied {
		return err
	}

	logger.Info("Obligation executed", "obligation", o.ID, "streak", u.ConsecutiveExecutions, "debt", u.DebtUnits)
	if u.RestrictionLevel < before {
		logger.Info("Restriction lifted", "user", u.ID, "level", u.RestrictionLevel)
	}
	return nil
}

// ObligationExpired fails a BOUND obligation whose window closed. When it
// holds the active lock the lock is expired, which reaches fail through
// LockExpired with the lock's behaviour attached.
func (p *pipeline) ObligationExpired(ctx context.Context, o models.Obligation) error {
	l, err := p.s.repo.GetActiveLock(ctx, o.UserID)
	if err != nil {
		return err
	}
	if l.IsActive() && l.ObligationID == o.ID {
		_, err := p.s.locks.Expire(ctx, o.UserID)
		return err
	}
	return p.fail(ctx, o.ID, nil)
}

func (p *pipeline) LockExpired(ctx context.Context, l models.ActionLock) error {
	return p.fail(ctx, l.ObligationID, &l)
}

func (p *pipeline) ObligationMissed(ctx context.Context, o models.Obligation) error {
	return p.fail(ctx, o.ID, nil)
}

// EscapeThresholdReached raises the restriction level once per lock.
func (p *pipeline) EscapeThresholdReached(ctx context.Context, l models.ActionLock) error {
	now := p.s.clock.Now()
	bumped := false
	u, applied, err := p.applyOnce(ctx, l.UserID, "escape:"+l.ID, func(u models.User) models.User {
		u, bumped = policy.ApplyEscapeBump(u, now)
		return u
	})
	if err != nil || !applied {
		return err
	}
	if bumped {
		logger.Warn("Restriction raised for escape attempts", "user", u.ID, "lock", l.ID, "attempts", l.EscapeAttempts, "level", u.RestrictionLevel)
	}
	return nil
}

// fail applies the consequence policy and then marks the obligation FAILED.
// Terminal obligations are left alone, so the FAILED status is the last
// write of a completed failure.
func (p *pipeline) fail(ctx context.Context, obligationID string, l *models.ActionLock) error {
	s := p.s
	o, err := s.repo.GetObligation(ctx, obligationID)
	if err != nil {
		if isNotFound(err) {
			logger.Warn("Failed obligation no longer exists", "obligation", obligationID)
			return nil
		}
		return err
	}
	if o.Status.IsTerminal() {
		return nil
	}

	now := s.clock.Now()
	if l == nil {
		// A retry after the lock was retired finds its behaviour in the archive.
		if l, err = p.expiredLock(ctx, o); err != nil {
			return err
		}
	}
	if err := p.logOnce(ctx, o, models.ResultFailed, now); err != nil {
		return fmt.Errorf("failed to log failure: %w", err)
	}

	var behaviour policy.Behaviour
	if l != nil {
		behaviour = policy.BehaviourOf(*l)
	}
	var outcome policy.Outcome
	u, applied, err := p.applyOnce(ctx, o.UserID, "failed:"+o.ID, func(u models.User) models.User {
		u, outcome = policy.ApplyFailure(u, behaviour, now)
		return u
	})
	if err != nil {
		return err
	}

	o.Status = models.ObligationFailed
	o.ResolvedAt = &now
	o.UpdatedAt = now
	if err := s.repo.SaveObligation(ctx, o); err != nil {
		return fmt.Errorf("failed to save obligation: %w", err)
	}

	if applied {
		logger.Warn("Obligation failed",
			"obligation", o.ID,
			"failures", outcome.FailureCount,
			"debt_added", outcome.DebtAdded,
			"level", outcome.Level,
			"avoidance", outcome.Avoidance,
		)
	}
	s.notifier.Trigger(notifier.KindObligationFailed, notifier.Payload{
		"obligation": o.ID,
		"type":       o.Type,
		"debt":       strconv.Itoa(u.DebtUnits),
		"level":      strconv.Itoa(u.RestrictionLevel),
	})
	return nil
}

// applyOnce applies fn to the user unless key was applied before. The key
// is saved in the same write as the new state.
func (p *pipeline) applyOnce(ctx context.Context, userID, key string, fn func(models.User) models.User) (models.User, bool, error) {
	u, err := p.s.ensureUser(ctx, userID)
	if err != nil {
		return models.User{}, false, err
	}
	if u.HasApplied(key) {
		logger.Debug("Consequence already applied", "user", userID, "key", key)
		return u, false, nil
	}

	u = fn(u)
	u.MarkApplied(key)
	if err := p.s.repo.SaveUser(ctx, u); err != nil {
		return models.User{}, false, fmt.Errorf("failed to save user: %w", err)
	}
	return u, true, nil
}

// logOnce appends the execution log entry for o unless one with the same
// result exists.
func (p *pipeline) logOnce(ctx context.Context, o models.Obligation, result models.ExecutionResult, now time.Time) error {
	logs, err := p.s.repo.ListExecutionLogs(ctx, o.UserID)
	if err != nil {
		return err
	}
	for _, e := range logs {
		if e.ObligationID == o.ID && e.Result == result {
			return nil
		}
	}
	return p.s.repo.AppendExecutionLog(ctx, models.ExecutionLog{
		ID:             uuid.NewString(),
		UserID:         o.UserID,
		ObligationID:   o.ID,
		Timestamp:      now,
		Result:         result,
		UnitsCompleted: o.UnitsCompleted,
		UnitsRequired:  o.UnitsRequired,
	})
}

// expiredLock returns the latest archived EXPIRED lock of o, if any.
func (p *pipeline) expiredLock(ctx context.Context, o models.Obligation) (*models.ActionLock, error) {
	archived, err := p.s.repo.ListArchivedLocks(ctx, o.UserID)
	if err != nil {
		return nil, err
	}
	for i := len(archived) - 1; i >= 0; i-- {
		if archived[i].ObligationID == o.ID && archived[i].Status == models.LockExpired {
			l := archived[i]
			return &l, nil
		}
	}
	return nil, nil
}

func isNotFound(err error) bool {
	return stderrors.Is(err, errors.ErrNotFound)
}
