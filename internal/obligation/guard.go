package obligation

import (
	"context"
	stderrors "errors"

	"github.com/julianstephens/lockstep/internal/clock"
	"github.com/julianstephens/lockstep/internal/errors"
	"github.com/julianstephens/lockstep/internal/logger"
	"github.com/julianstephens/lockstep/internal/models"
)

// ViolationRecorder stores rejected guard checks.
type ViolationRecorder interface {
	RecordViolation(ctx context.Context, v models.Violation) error
}

// Guard refuses mutations of obligations in BINDING or BOUND state. It has
// no state of its own; every mutation entry point calls it before writing.
type Guard struct {
	recorder ViolationRecorder
	clock    clock.Clock
}

func NewGuard(recorder ViolationRecorder, clk clock.Clock) *Guard {
	return &Guard{recorder: recorder, clock: clk}
}

// IsLocked reports whether status forbids mutation.
func IsLocked(status models.ObligationStatus) bool {
	return status.IsBinding()
}

func (g *Guard) GuardReschedule(ctx context.Context, o models.Obligation) error {
	return g.check(ctx, o, errors.ViolationReschedule)
}

func (g *Guard) GuardDelete(ctx context.Context, o models.Obligation) error {
	return g.check(ctx, o, errors.ViolationDelete)
}

func (g *Guard) GuardModify(ctx context.Context, o models.Obligation, field string) error {
	return g.check(ctx, o, errors.ViolationModify(field))
}

func (g *Guard) check(ctx context.Context, o models.Obligation, kind errors.ViolationKind) error {
	now := g.clock.Now()
	status := models.ResolveStatus(o, now)
	if !IsLocked(status) {
		return nil
	}

	violation := &errors.BindingViolation{
		Kind:          kind,
		ObligationID:  o.ID,
		CurrentStatus: string(status),
	}
	logger.Info("Binding violation", "obligation", o.ID, "kind", kind, "status", status)

	if g.recorder == nil {
		return violation
	}
	err := g.recorder.RecordViolation(ctx, models.Violation{
		UserID:       o.UserID,
		ObligationID: o.ID,
		Kind:         string(kind),
		Status:       string(status),
		Timestamp:    now,
	})
	if err != nil {
		return stderrors.Join(violation, err)
	}
	return violation
}
