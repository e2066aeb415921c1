// Package lock maintains the per-user action lock. A user holds at most one
// ACTIVE lock; further BOUND obligations queue behind it and are locked in
// schedule order once it resolves or expires.
package lock

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/lockstep/internal/clock"
	"github.com/julianstephens/lockstep/internal/constants"
	"github.com/julianstephens/lockstep/internal/errors"
	"github.com/julianstephens/lockstep/internal/logger"
	"github.com/julianstephens/lockstep/internal/models"
	"github.com/julianstephens/lockstep/internal/notifier"
	"github.com/julianstephens/lockstep/internal/storage"
)

// Handler receives the outcomes the manager discovers lazily. Every method
// may run again for the same lock or obligation after a failed write, so
// implementations apply each consequence once.
type Handler interface {
	// LockExpired runs after the expired record has been archived.
	LockExpired(ctx context.Context, l models.ActionLock) error
	// ObligationMissed runs for a BOUND obligation whose window closed while
	// it was queued behind another lock.
	ObligationMissed(ctx context.Context, o models.Obligation) error
	// ObligationExecuted runs when an ACTIVE lock is found to belong to an
	// obligation that is already EXECUTED.
	ObligationExecuted(ctx context.Context, o models.Obligation) error
	// EscapeThresholdReached runs for every escape attempt at or past the
	// threshold.
	EscapeThresholdReached(ctx context.Context, l models.ActionLock) error
}

type Manager struct {
	repo     storage.Repository
	clock    clock.Clock
	notifier notifier.Sink
	handler  Handler
	newID    func() string
}

func NewManager(repo storage.Repository, clk clock.Clock, sink notifier.Sink) *Manager {
	if sink == nil {
		sink = notifier.Nop{}
	}
	return &Manager{
		repo:     repo,
		clock:    clk,
		notifier: sink,
		newID:    uuid.NewString,
	}
}

// SetHandler registers the failure pipeline.
func (m *Manager) SetHandler(h Handler) {
	m.handler = h
}

// Create locks o, or queues it if the user already holds a lock. It returns
// the user's active lock afterwards, which may belong to an earlier
// obligation.
func (m *Manager) Create(ctx context.Context, o models.Obligation) (*models.ActionLock, error) {
	active, err := m.current(ctx, o.UserID)
	if err != nil {
		return nil, err
	}
	if active.IsActive() && active.ObligationID != o.ID {
		logger.Debug("Obligation queued behind active lock", "obligation", o.ID, "lock", active.ID)
	}
	return active, nil
}

// GetActive returns the user's lock. A lock whose window has closed is
// expired here and its EXPIRED record returned; the next queued obligation,
// if any, is locked in the same call and is returned by later reads.
// With no lock in place, the earliest BOUND obligation is locked.
func (m *Manager) GetActive(ctx context.Context, userID string) (*models.ActionLock, error) {
	l, err := m.repo.GetActiveLock(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lock: %w", err)
	}
	now := m.clock.Now()

	if l != nil && l.Status != models.LockActive {
		// Terminal records never stay in the active slot.
		if err := m.repo.ClearActiveLock(ctx, userID); err != nil {
			return nil, err
		}
		l = nil
	}

	if l != nil {
		settled, err := m.settleExecuted(ctx, *l, now)
		if err != nil {
			return nil, err
		}
		if settled {
			return m.repo.GetActiveLock(ctx, userID)
		}
	}

	if l != nil && !now.Before(l.WindowEnd) {
		expired, err := m.expire(ctx, *l, now)
		if err != nil {
			return nil, err
		}
		if _, err := m.activateNext(ctx, userID); err != nil {
			return nil, err
		}
		return &expired, nil
	}

	if l != nil {
		return l, nil
	}
	return m.activateNext(ctx, userID)
}

// current is GetActive for callers that act on the lock in force: when the
// read expired a lock, the successor now in the slot is returned instead.
func (m *Manager) current(ctx context.Context, userID string) (*models.ActionLock, error) {
	l, err := m.GetActive(ctx, userID)
	if err != nil || l == nil || l.IsActive() {
		return l, err
	}
	return m.repo.GetActiveLock(ctx, userID)
}

// settleExecuted resolves an ACTIVE lock whose obligation is EXECUTED and
// reports whether it did.
func (m *Manager) settleExecuted(ctx context.Context, l models.ActionLock, now time.Time) (bool, error) {
	o, err := m.repo.GetObligation(ctx, l.ObligationID)
	if stderrors.Is(err, errors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load obligation: %w", err)
	}
	if o.Status != models.ObligationExecuted {
		return false, nil
	}

	logger.Debug("Obligation executed, resolving its lock", "lock", l.ID, "obligation", o.ID)
	if o.UnitsCompleted > l.UnitsCompleted {
		l.UnitsCompleted = o.UnitsCompleted
	}
	if _, err := m.resolve(ctx, l, now); err != nil {
		return false, err
	}
	if m.handler != nil {
		if err := m.handler.ObligationExecuted(ctx, o); err != nil {
			return false, fmt.Errorf("failed to handle executed obligation %s: %w", o.ID, err)
		}
	}
	return true, nil
}

// IsLocked reports whether the user currently holds an ACTIVE lock.
func (m *Manager) IsLocked(ctx context.Context, userID string) (bool, error) {
	l, err := m.current(ctx, userID)
	if err != nil {
		return false, err
	}
	return l.IsActive(), nil
}

// AssertUnlocked fails with an ActionLockedError while a lock is active.
// Each refusal counts as an escape attempt.
func (m *Manager) AssertUnlocked(ctx context.Context, userID, action string) error {
	l, err := m.current(ctx, userID)
	if err != nil {
		return err
	}
	if !l.IsActive() {
		return nil
	}

	if err := m.recordEscape(ctx, l, models.EscapeNavigation, action, 0); err != nil {
		return err
	}
	return &errors.ActionLockedError{
		ObligationID:    l.ObligationID,
		LockID:          l.ID,
		AttemptedAction: action,
	}
}

// UpdateProgress mirrors the obligation's completed units onto its lock and
// resolves the lock once they reach the requirement. Progress on a queued
// obligation is ignored here.
func (m *Manager) UpdateProgress(ctx context.Context, userID, obligationID string, unitsCompleted int) error {
	l, err := m.current(ctx, userID)
	if err != nil {
		return err
	}
	if !l.IsActive() || l.ObligationID != obligationID {
		return nil
	}

	now := m.clock.Now()
	if unitsCompleted > l.UnitsCompleted {
		l.UnitsCompleted = unitsCompleted
	}
	l.LastActivityAt = now
	l.IdleWarningsSent = 0

	if l.UnitsCompleted >= l.UnitsRequired {
		_, err := m.resolve(ctx, *l, now)
		return err
	}
	return m.repo.SaveActiveLock(ctx, *l)
}

// Resolve marks the active lock EXECUTED.
func (m *Manager) Resolve(ctx context.Context, userID string) (*models.ActionLock, error) {
	l, err := m.current(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !l.IsActive() {
		return nil, errors.NotFound("active lock", userID)
	}
	return m.resolve(ctx, *l, m.clock.Now())
}

// Expire fails the active lock immediately.
func (m *Manager) Expire(ctx context.Context, userID string) (*models.ActionLock, error) {
	l, err := m.repo.GetActiveLock(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !l.IsActive() {
		return nil, errors.NotFound("active lock", userID)
	}

	expired, err := m.expire(ctx, *l, m.clock.Now())
	if err != nil {
		return nil, err
	}
	if _, err := m.activateNext(ctx, userID); err != nil {
		return nil, err
	}
	return &expired, nil
}

// RecordBackground adds time spent away from the app. An absence longer
// than the tolerance counts as an escape attempt; the result reports that.
func (m *Manager) RecordBackground(ctx context.Context, userID string, d time.Duration) (bool, error) {
	l, err := m.current(ctx, userID)
	if err != nil || !l.IsActive() || d <= 0 {
		return false, err
	}

	l.BackgroundDuration += d
	if d <= constants.BackgroundTolerance {
		return false, m.repo.SaveActiveLock(ctx, *l)
	}
	return true, m.recordEscape(ctx, l, models.EscapeBackground, "", d)
}

// RecordForceClose counts a forced shutdown while locked as an escape attempt.
func (m *Manager) RecordForceClose(ctx context.Context, userID string) error {
	l, err := m.current(ctx, userID)
	if err != nil || !l.IsActive() {
		return err
	}
	return m.recordEscape(ctx, l, models.EscapeForceClose, "", 0)
}

// Touch records user activity on the active lock.
func (m *Manager) Touch(ctx context.Context, userID string) error {
	l, err := m.current(ctx, userID)
	if err != nil || !l.IsActive() {
		return err
	}
	l.LastActivityAt = m.clock.Now()
	l.IdleWarningsSent = 0
	return m.repo.SaveActiveLock(ctx, *l)
}

// CheckIdle sends one idle warning for every threshold crossed since the
// last activity that has not been warned about yet. It returns how many
// warnings were sent.
func (m *Manager) CheckIdle(ctx context.Context, userID string) (int, error) {
	l, err := m.current(ctx, userID)
	if err != nil || !l.IsActive() {
		return 0, err
	}

	idle := l.IdleFor(m.clock.Now())
	sent := 0
	for i := l.IdleWarningsSent; i < len(constants.IdleWarningThresholds); i++ {
		threshold := constants.IdleWarningThresholds[i]
		if idle < threshold {
			break
		}
		m.notifier.Trigger(notifier.KindIdleWarning, notifier.Payload{
			"lock":      l.ID,
			"threshold": threshold.String(),
		})
		l.IdleWarningsSent = i + 1
		sent++
	}

	if sent == 0 {
		return 0, nil
	}
	logger.Debug("Idle warnings sent", "lock", l.ID, "count", sent, "idle", idle)
	return sent, m.repo.SaveActiveLock(ctx, *l)
}

// Resume is called on process start. A lock that survived the restart is
// announced again and counted.
func (m *Manager) Resume(ctx context.Context, userID string) (*models.ActionLock, error) {
	l, err := m.current(ctx, userID)
	if err != nil || !l.IsActive() {
		return l, err
	}

	l.ResumeCount++
	if err := m.repo.SaveActiveLock(ctx, *l); err != nil {
		return nil, err
	}
	m.notifier.Trigger(notifier.KindLockPersisted, notifier.Payload{
		"lock":       l.ID,
		"obligation": l.ObligationID,
	})
	logger.Info("Active lock persisted across restart", "lock", l.ID, "resumes", l.ResumeCount)
	return l, nil
}

func (m *Manager) recordEscape(ctx context.Context, l *models.ActionLock, kind models.EscapeKind, action string, d time.Duration) error {
	l.EscapeAttempts++
	if err := m.repo.SaveActiveLock(ctx, *l); err != nil {
		return err
	}
	logger.Info("Escape attempt recorded", "lock", l.ID, "kind", kind, "attempts", l.EscapeAttempts)
	if err := m.repo.AppendEscapeAttempt(ctx, models.EscapeAttempt{
		UserID:       l.UserID,
		LockID:       l.ID,
		ObligationID: l.ObligationID,
		Kind:         kind,
		Action:       action,
		Duration:     d,
		Timestamp:    m.clock.Now(),
	}); err != nil {
		return err
	}

	if l.EscapeAttempts < constants.EscapeAttemptThreshold || m.handler == nil {
		return nil
	}
	if err := m.handler.EscapeThresholdReached(ctx, *l); err != nil {
		return fmt.Errorf("failed to handle escape threshold on lock %s: %w", l.ID, err)
	}
	return nil
}

func (m *Manager) resolve(ctx context.Context, l models.ActionLock, now time.Time) (*models.ActionLock, error) {
	l.Status = models.LockResolved
	l.Resolution = models.ResolutionExecuted
	l.LockEnd = &now

	if err := m.retire(ctx, l); err != nil {
		return nil, err
	}
	logger.Info("Lock resolved", "lock", l.ID, "obligation", l.ObligationID)
	m.notifier.Trigger(notifier.KindLockResolved, notifier.Payload{"lock": l.ID, "obligation": l.ObligationID})

	if _, err := m.activateNext(ctx, l.UserID); err != nil {
		return nil, err
	}
	return &l, nil
}

func (m *Manager) expire(ctx context.Context, l models.ActionLock, now time.Time) (models.ActionLock, error) {
	l.Status = models.LockExpired
	l.Resolution = models.ResolutionFailed
	l.LockEnd = &now

	if err := m.retire(ctx, l); err != nil {
		return l, err
	}
	logger.Info("Lock expired", "lock", l.ID, "obligation", l.ObligationID, "escapes", l.EscapeAttempts)

	if m.handler != nil {
		if err := m.handler.LockExpired(ctx, l); err != nil {
			return l, fmt.Errorf("failed to handle expired lock %s: %w", l.ID, err)
		}
	}
	return l, nil
}

// retire moves a terminal lock from the active slot to the archive.
func (m *Manager) retire(ctx context.Context, l models.ActionLock) error {
	if err := m.repo.ArchiveLock(ctx, l); err != nil {
		return fmt.Errorf("failed to archive lock: %w", err)
	}
	if err := m.repo.ClearActiveLock(ctx, l.UserID); err != nil {
		return fmt.Errorf("failed to clear lock: %w", err)
	}
	return nil
}

// activateNext locks the earliest unresolved BOUND obligation, if any.
// Queued obligations whose window already closed are handed to the handler
// instead.
func (m *Manager) activateNext(ctx context.Context, userID string) (*models.ActionLock, error) {
	obligations, err := m.repo.ListObligations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list obligations: %w", err)
	}
	now := m.clock.Now()

	var candidates, missed []models.Obligation
	for _, o := range obligations {
		if models.ResolveStatus(o, now) != models.ObligationBound || o.IsComplete() {
			continue
		}
		if !now.Before(o.WindowEnd()) {
			missed = append(missed, o)
			continue
		}
		candidates = append(candidates, o)
	}

	if m.handler != nil {
		for _, o := range missed {
			if err := m.handler.ObligationMissed(ctx, o); err != nil {
				return nil, err
			}
		}
	}

	if len(candidates) == 0 {
		return nil, nil
	}
	SortQueue(candidates)
	o := candidates[0]

	if o.Status != models.ObligationBound {
		o.Status = models.ObligationBound
		o.UpdatedAt = now
		if err := m.repo.SaveObligation(ctx, o); err != nil {
			return nil, err
		}
	}

	l := models.ActionLock{
		ID:             m.newID(),
		ObligationID:   o.ID,
		UserID:         userID,
		LockStart:      now,
		Status:         models.LockActive,
		Resolution:     models.ResolutionPending,
		UnitsRequired:  o.UnitsRequired,
		UnitsCompleted: o.UnitsCompleted,
		WindowEnd:      o.WindowEnd(),
		LastActivityAt: now,
	}
	if err := m.repo.SaveActiveLock(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to save lock: %w", err)
	}

	logger.Info("Lock created", "lock", l.ID, "obligation", o.ID, "window_end", l.WindowEnd)
	m.notifier.Trigger(notifier.KindLockCreated, notifier.Payload{
		"lock":       l.ID,
		"obligation": o.ID,
		"type":       o.Type,
	})
	return &l, nil
}

// SortQueue orders obligations by lock priority: scheduled time, then
// creation time, then id.
func SortQueue(obligations []models.Obligation) {
	sort.SliceStable(obligations, func(i, j int) bool {
		a, b := obligations[i], obligations[j]
		if !a.ScheduledAt.Equal(b.ScheduledAt) {
			return a.ScheduledAt.Before(b.ScheduledAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
