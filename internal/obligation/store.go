// Package obligation owns obligation records: creation, lazy status
// resolution, execution logging and guarded mutation.
package obligation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/lockstep/internal/clock"
	"github.com/julianstephens/lockstep/internal/errors"
	"github.com/julianstephens/lockstep/internal/logger"
	"github.com/julianstephens/lockstep/internal/models"
	"github.com/julianstephens/lockstep/internal/storage"
	"github.com/julianstephens/lockstep/internal/validation"
)

// Locker is the part of the action lock the store drives.
type Locker interface {
	Create(ctx context.Context, o models.Obligation) (*models.ActionLock, error)
	UpdateProgress(ctx context.Context, userID, obligationID string, unitsCompleted int) error
}

// Pipeline reacts to terminal outcomes discovered by the store.
type Pipeline interface {
	ObligationExecuted(ctx context.Context, o models.Obligation) error
	// ObligationExpired is called for a BOUND obligation whose execution
	// window closed without completion.
	ObligationExpired(ctx context.Context, o models.Obligation) error
}

type Store struct {
	repo     storage.ObligationRepository
	guard    *Guard
	locks    Locker
	pipeline Pipeline
	clock    clock.Clock
	newID    func() string
}

func NewStore(repo storage.ObligationRepository, guard *Guard, locks Locker, pipeline Pipeline, clk clock.Clock) *Store {
	return &Store{
		repo:     repo,
		guard:    guard,
		locks:    locks,
		pipeline: pipeline,
		clock:    clk,
		newID:    uuid.NewString,
	}
}

// ResolveStatus derives the status of o at now.
func ResolveStatus(o models.Obligation, now time.Time) models.ObligationStatus {
	return models.ResolveStatus(o, now)
}

type createOptions struct {
	debtRepayment bool
}

type Option func(*createOptions)

// WithDebtRepayment marks the obligation as repaying one debt unit.
func WithDebtRepayment() Option {
	return func(o *createOptions) { o.debtRepayment = true }
}

// Create stores a new obligation and returns it resolved at the current
// time. scheduledAt may lie in the past; such an obligation is BOUND at once.
func (s *Store) Create(ctx context.Context, userID, obligationType string, unitsRequired int, scheduledAt time.Time, opts ...Option) (models.Obligation, error) {
	if err := validation.CheckNewObligation(userID, obligationType, unitsRequired, scheduledAt); err != nil {
		return models.Obligation{}, err
	}
	var options createOptions
	for _, opt := range opts {
		opt(&options)
	}

	now := s.clock.Now()
	o := models.Obligation{
		ID:            s.newID(),
		UserID:        userID,
		Type:          strings.TrimSpace(obligationType),
		UnitsRequired: unitsRequired,
		ScheduledAt:   scheduledAt,
		BindingTime:   models.BindingTimeFor(scheduledAt),
		Status:        models.ObligationCreated,
		DebtRepayment: options.debtRepayment,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.SaveObligation(ctx, o); err != nil {
		return models.Obligation{}, fmt.Errorf("failed to save obligation: %w", err)
	}
	logger.Info("Obligation created", "id", o.ID, "type", o.Type, "scheduled_at", o.ScheduledAt)

	return s.Get(ctx, o.ID)
}

// Get reads an obligation and resolves its status, storing any change. A
// transition into BOUND creates the action lock. A BOUND obligation whose
// window has closed is failed before it is returned.
func (s *Store) Get(ctx context.Context, id string) (models.Obligation, error) {
	o, err := s.repo.GetObligation(ctx, id)
	if err != nil {
		return models.Obligation{}, err
	}
	now := s.clock.Now()

	resolved := ResolveStatus(o, now)
	enteredBound := false
	if resolved != o.Status {
		logger.Debug("Obligation status resolved", "id", o.ID, "from", o.Status, "to", resolved)
		enteredBound = resolved == models.ObligationBound
		o.Status = resolved
		o.UpdatedAt = now
		if err := s.repo.SaveObligation(ctx, o); err != nil {
			return models.Obligation{}, fmt.Errorf("failed to save obligation: %w", err)
		}
	}

	if o.Status != models.ObligationBound {
		return o, nil
	}

	if !now.Before(o.WindowEnd()) && !o.IsComplete() {
		if err := s.pipeline.ObligationExpired(ctx, o); err != nil {
			return models.Obligation{}, err
		}
		return s.repo.GetObligation(ctx, id)
	}

	if enteredBound {
		if _, err := s.locks.Create(ctx, o); err != nil {
			return models.Obligation{}, fmt.Errorf("failed to create lock: %w", err)
		}
	}
	return o, nil
}

// ListForUser returns the user's obligations, resolved and ordered by
// scheduled time.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]models.Obligation, error) {
	stored, err := s.repo.ListObligations(ctx, userID)
	if err != nil {
		return nil, err
	}

	obligations := make([]models.Obligation, 0, len(stored))
	for _, o := range stored {
		resolved, err := s.Get(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		obligations = append(obligations, resolved)
	}

	sort.SliceStable(obligations, func(i, j int) bool {
		return obligations[i].ScheduledAt.Before(obligations[j].ScheduledAt)
	})
	return obligations, nil
}

// LogExecution adds completed units. It is accepted in every state: a
// complete obligation is returned unchanged, and so is a failed one. The
// lock update and the executed pipeline run again for a complete
// obligation, so a call that failed after saving EXECUTED can be retried.
func (s *Store) LogExecution(ctx context.Context, id string, units int) (models.Obligation, error) {
	if err := validation.CheckUnits(units); err != nil {
		return models.Obligation{}, err
	}

	o, err := s.Get(ctx, id)
	if err != nil {
		return models.Obligation{}, err
	}
	switch o.Status {
	case models.ObligationFailed:
		logger.Info("Execution logged after failure ignored", "id", o.ID, "units", units)
		return o, nil
	case models.ObligationExecuted:
		return o, s.settle(ctx, o)
	}

	now := s.clock.Now()
	o.UnitsCompleted += units
	o.UpdatedAt = now
	if o.IsComplete() {
		o.Status = models.ObligationExecuted
		o.ResolvedAt = &now
	}
	if err := s.repo.SaveObligation(ctx, o); err != nil {
		return models.Obligation{}, fmt.Errorf("failed to save obligation: %w", err)
	}
	logger.Debug("Execution logged", "id", o.ID, "completed", o.UnitsCompleted, "required", o.UnitsRequired)

	if o.Status == models.ObligationExecuted {
		logger.Info("Obligation executed", "id", o.ID)
	}
	if err := s.settle(ctx, o); err != nil {
		return models.Obligation{}, err
	}
	return o, nil
}

// settle carries o's progress onto its lock and, once o is EXECUTED, runs
// the executed pipeline. Both steps are safe to repeat.
func (s *Store) settle(ctx context.Context, o models.Obligation) error {
	if err := s.locks.UpdateProgress(ctx, o.UserID, o.ID, o.UnitsCompleted); err != nil {
		return err
	}
	if o.Status != models.ObligationExecuted {
		return nil
	}
	return s.pipeline.ObligationExecuted(ctx, o)
}

// Reschedule moves an obligation that is not yet binding. The new time must
// itself lie outside the binding window.
func (s *Store) Reschedule(ctx context.Context, id string, scheduledAt time.Time) (models.Obligation, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return models.Obligation{}, err
	}
	if err := s.guard.GuardReschedule(ctx, o); err != nil {
		return models.Obligation{}, err
	}
	if o.Status.IsTerminal() {
		return models.Obligation{}, errors.InvalidInput("status", fmt.Sprintf("obligation is %s", o.Status))
	}

	now := s.clock.Now()
	if err := validation.CheckReschedule(scheduledAt, now); err != nil {
		return models.Obligation{}, err
	}

	o.ScheduledAt = scheduledAt
	o.BindingTime = models.BindingTimeFor(scheduledAt)
	o.UpdatedAt = now
	if err := s.repo.SaveObligation(ctx, o); err != nil {
		return models.Obligation{}, fmt.Errorf("failed to save obligation: %w", err)
	}
	logger.Info("Obligation rescheduled", "id", o.ID, "scheduled_at", scheduledAt)
	return o, nil
}

// Delete removes an obligation that is not binding. Execution logs of a
// terminal obligation are kept.
func (s *Store) Delete(ctx context.Context, id string) error {
	o, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.guard.GuardDelete(ctx, o); err != nil {
		return err
	}
	if err := s.repo.DeleteObligation(ctx, id); err != nil {
		return fmt.Errorf("failed to delete obligation: %w", err)
	}
	logger.Info("Obligation deleted", "id", id)
	return nil
}

// Modification lists the fields to change; nil fields are left alone.
type Modification struct {
	Type          *string
	UnitsRequired *int
	DebtRepayment *bool
}

const (
	FieldType          = "type"
	FieldUnitsRequired = "unitsRequired"
	FieldDebtRepayment = "debtRepayment"
)

// Modify changes fields of an obligation that is not binding. Each changed
// field is guarded separately so the violation names it.
func (s *Store) Modify(ctx context.Context, id string, m Modification) (models.Obligation, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return models.Obligation{}, err
	}

	type change struct {
		field string
		apply func() error
	}
	var changes []change
	if m.Type != nil {
		changes = append(changes, change{FieldType, func() error {
			t := strings.TrimSpace(*m.Type)
			if t == "" {
				return errors.InvalidInput(FieldType, "must not be empty")
			}
			o.Type = t
			return nil
		}})
	}
	if m.UnitsRequired != nil {
		changes = append(changes, change{FieldUnitsRequired, func() error {
			units := *m.UnitsRequired
			if units <= 0 {
				return errors.InvalidInput(FieldUnitsRequired, "must be positive")
			}
			if units <= o.UnitsCompleted {
				return errors.InvalidInput(FieldUnitsRequired, "must exceed units already completed")
			}
			o.UnitsRequired = units
			return nil
		}})
	}
	if m.DebtRepayment != nil {
		changes = append(changes, change{FieldDebtRepayment, func() error {
			o.DebtRepayment = *m.DebtRepayment
			return nil
		}})
	}
	if len(changes) == 0 {
		return models.Obligation{}, errors.InvalidInput("modification", "no fields to change")
	}

	for _, c := range changes {
		if err := s.guard.GuardModify(ctx, o, c.field); err != nil {
			return models.Obligation{}, err
		}
	}
	if o.Status.IsTerminal() {
		return models.Obligation{}, errors.InvalidInput("status", fmt.Sprintf("obligation is %s", o.Status))
	}
	for _, c := range changes {
		if err := c.apply(); err != nil {
			return models.Obligation{}, err
		}
	}

	o.UpdatedAt = s.clock.Now()
	if err := s.repo.SaveObligation(ctx, o); err != nil {
		return models.Obligation{}, fmt.Errorf("failed to save obligation: %w", err)
	}
	logger.Info("Obligation modified", "id", o.ID)
	return o, nil
}
