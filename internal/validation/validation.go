package validation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/julianstephens/lockstep/internal/constants"
	"github.com/julianstephens/lockstep/internal/errors"
	"github.com/julianstephens/lockstep/internal/models"
)

// MaxUnitsRequired bounds a single obligation's workload.
const MaxUnitsRequired = 10000

// CheckNewObligation validates the fields of an obligation before it is
// created. The first failing field is reported as an InvalidInputError.
func CheckNewObligation(userID, obligationType string, unitsRequired int, scheduledAt time.Time) error {
	if strings.TrimSpace(userID) == "" {
		return errors.InvalidInput("userId", "must not be empty")
	}
	if strings.TrimSpace(obligationType) == "" {
		return errors.InvalidInput("type", "must not be empty")
	}
	if unitsRequired <= 0 {
		return errors.InvalidInput("unitsRequired", "must be positive")
	}
	if unitsRequired > MaxUnitsRequired {
		return errors.InvalidInput("unitsRequired", fmt.Sprintf("must not exceed %d", MaxUnitsRequired))
	}
	if scheduledAt.IsZero() {
		return errors.InvalidInput("scheduledAt", "must be set")
	}
	return nil
}

// CheckUnits validates an execution log increment.
func CheckUnits(units int) error {
	if units <= 0 {
		return errors.InvalidInput("units", "must be positive")
	}
	return nil
}

// CheckReschedule rejects targets that are already inside their own binding
// window at now, so a mutation can never skip BINDING.
func CheckReschedule(target, now time.Time) error {
	if target.IsZero() {
		return errors.InvalidInput("scheduledAt", "must be set")
	}
	if !models.BindingTimeFor(target).After(now) {
		return errors.InvalidInput("scheduledAt", fmt.Sprintf("must be more than %s in the future", constants.BindingWindow))
	}
	return nil
}

// ConflictType represents the type of validation conflict
type ConflictType string

const (
	ConflictDuplicateSchedule  ConflictType = "duplicate_schedule"
	ConflictInvalidUnits       ConflictType = "invalid_units"
	ConflictOverlappingWindows ConflictType = "overlapping_windows"
	ConflictBindingTimeDrift   ConflictType = "binding_time_drift"
	ConflictMissingType        ConflictType = "missing_type"
)

// Conflict represents a detected problem in a user's obligations
type Conflict struct {
	Type          ConflictType
	Description   string
	ObligationIDs []string
}

// ValidationResult contains all detected conflicts
type ValidationResult struct {
	Conflicts []Conflict
}

// HasConflicts returns true if there are any conflicts
func (vr *ValidationResult) HasConflicts() bool {
	return len(vr.Conflicts) > 0
}

// FormatReport returns a human-readable report of all conflicts
func (vr *ValidationResult) FormatReport() string {
	if !vr.HasConflicts() {
		return "No conflicts detected."
	}

	var b strings.Builder
	b.WriteString("Conflicts detected:\n")
	for _, conflict := range vr.Conflicts {
		fmt.Fprintf(&b, "- %s\n", conflict.Description)
	}
	return b.String()
}

// Validator inspects stored obligations for inconsistencies. It is used by
// the doctor command and never mutates anything.
type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// ValidateObligations checks a user's obligations. Terminal obligations are
// only checked for field sanity.
func (v *Validator) ValidateObligations(obligations []models.Obligation) ValidationResult {
	result := ValidationResult{Conflicts: []Conflict{}}

	for _, o := range obligations {
		if o.UnitsRequired <= 0 {
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:          ConflictInvalidUnits,
				Description:   fmt.Sprintf("Obligation %s requires %d units", o.ID, o.UnitsRequired),
				ObligationIDs: []string{o.ID},
			})
		}
		if strings.TrimSpace(o.Type) == "" {
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:          ConflictMissingType,
				Description:   fmt.Sprintf("Obligation %s has no type", o.ID),
				ObligationIDs: []string{o.ID},
			})
		}
		if !o.BindingTime.Equal(models.BindingTimeFor(o.ScheduledAt)) {
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:          ConflictBindingTimeDrift,
				Description:   fmt.Sprintf("Obligation %s binding time %s does not match scheduled time %s", o.ID, o.BindingTime.Format(constants.DateTimeFormat), o.ScheduledAt.Format(constants.DateTimeFormat)),
				ObligationIDs: []string{o.ID},
			})
		}
	}

	open := make([]models.Obligation, 0, len(obligations))
	for _, o := range obligations {
		if !o.Status.IsTerminal() {
			open = append(open, o)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].ScheduledAt.Before(open[j].ScheduledAt) })

	bySchedule := make(map[time.Time][]string)
	for _, o := range open {
		key := o.ScheduledAt.UTC()
		bySchedule[key] = append(bySchedule[key], o.ID)
	}
	for at, ids := range bySchedule {
		if len(ids) > 1 {
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:          ConflictDuplicateSchedule,
				Description:   fmt.Sprintf("Obligations %v are all scheduled at %s; they will lock one after another", ids, at.Format(constants.DateTimeFormat)),
				ObligationIDs: ids,
			})
		}
	}

	for i := 0; i+1 < len(open); i++ {
		a, b := open[i], open[i+1]
		if a.ScheduledAt.Equal(b.ScheduledAt) {
			continue
		}
		if b.ScheduledAt.Before(a.WindowEnd()) {
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:          ConflictOverlappingWindows,
				Description:   fmt.Sprintf("Obligation %s starts before the execution window of %s closes", b.ID, a.ID),
				ObligationIDs: []string{a.ID, b.ID},
			})
		}
	}

	sort.SliceStable(result.Conflicts, func(i, j int) bool {
		return result.Conflicts[i].Type < result.Conflicts[j].Type
	})
	return result
}
