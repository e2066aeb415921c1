// Package router is the single choke point for user-facing actions. Every
// action is classified, checked against the action lock and the user's
// restriction level, and logged whatever the outcome.
package router

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/julianstephens/lockstep/internal/clock"
	"github.com/julianstephens/lockstep/internal/constants"
	"github.com/julianstephens/lockstep/internal/errors"
	"github.com/julianstephens/lockstep/internal/logger"
	"github.com/julianstephens/lockstep/internal/models"
	"github.com/julianstephens/lockstep/internal/storage"
)

type Category string

const (
	CategoryExecution  Category = "EXECUTION"
	CategoryNavigation Category = "NAVIGATION"
	CategorySettings   Category = "SETTINGS"
	CategoryPlanning   Category = "PLANNING"
	CategoryHistory    Category = "HISTORY"
	CategorySocial     Category = "SOCIAL"
	CategoryAnalytics  Category = "ANALYTICS"
	categoryUnknown    Category = "UNKNOWN"
)

var categories = map[string]Category{
	constants.ActionLogExecution:          CategoryExecution,
	constants.ActionConfirmCompletion:     CategoryExecution,
	constants.ActionViewCurrentObligation: CategoryExecution,
	constants.ActionViewTimeRemaining:     CategoryExecution,

	constants.ActionNavigate:   CategoryNavigation,
	constants.ActionGoHome:     CategoryNavigation,
	constants.ActionGoBack:     CategoryNavigation,
	constants.ActionOpenTab:    CategoryNavigation,
	constants.ActionExitApp:    CategoryNavigation,
	constants.ActionOpenScreen: CategoryNavigation,

	constants.ActionOpenSettings:   CategorySettings,
	constants.ActionChangeSettings: CategorySettings,
	constants.ActionRestoreBackup:  CategorySettings,
	constants.ActionManageKeyring:  CategorySettings,

	constants.ActionAccessPlanning:       CategoryPlanning,
	constants.ActionCreateObligation:     CategoryPlanning,
	constants.ActionRescheduleObligation: CategoryPlanning,
	constants.ActionModifyObligation:     CategoryPlanning,
	constants.ActionDeleteObligation:     CategoryPlanning,
	constants.ActionViewMealPlan:         CategoryPlanning,
	constants.ActionViewWorkoutPlan:      CategoryPlanning,

	constants.ActionViewHistory:      CategoryHistory,
	constants.ActionViewExecutionLog: CategoryHistory,

	constants.ActionShareProgress: CategorySocial,
	constants.ActionViewFeed:      CategorySocial,

	constants.ActionViewAnalytics: CategoryAnalytics,
	constants.ActionViewStats:     CategoryAnalytics,
}

// gatedAt is the restriction level from which a category is unavailable.
var gatedAt = map[Category]int{
	CategorySocial:    1,
	CategoryAnalytics: 2,
	CategoryHistory:   3,
	CategoryPlanning:  constants.MaxRestrictionLevel,
}

// ungated actions stay open at every restriction level so a restricted user
// can still schedule debt repayment. The action lock still applies.
var ungated = map[string]bool{
	constants.ActionCreateObligation: true,
}

// CategoryOf classifies an action name.
func CategoryOf(action string) (Category, bool) {
	c, ok := categories[action]
	return c, ok
}

// IsExecutionAction reports whether action bypasses the lock check.
func IsExecutionAction(action string) bool {
	return categories[action] == CategoryExecution
}

// IsGated reports whether the category is blocked at the restriction level.
func IsGated(c Category, level int) bool {
	from, ok := gatedAt[c]
	return ok && level >= from
}

// Actions returns every known action name of the category.
func Actions(c Category) []string {
	var out []string
	for action, cat := range categories {
		if cat == c {
			out = append(out, action)
		}
	}
	return out
}

// Locker is the lock primitive the router enforces.
type Locker interface {
	AssertUnlocked(ctx context.Context, userID, action string) error
}

type Decision struct {
	Action    string
	Category  Category
	Permitted bool
}

type Router struct {
	locks Locker
	users storage.UserRepository
	audit storage.AuditRepository
	clock clock.Clock
}

func New(locks Locker, users storage.UserRepository, audit storage.AuditRepository, clk clock.Clock) *Router {
	return &Router{locks: locks, users: users, audit: audit, clock: clk}
}

// Route decides whether userID may perform action. A refused action returns
// the refusal as the error alongside a non-permitted decision.
func (r *Router) Route(ctx context.Context, userID, action string, payload map[string]string) (Decision, error) {
	category, ok := CategoryOf(action)
	if !ok {
		err := errors.InvalidInput("action", fmt.Sprintf("unknown action %q", action))
		if logErr := r.log(ctx, userID, action, categoryUnknown, payload, err); logErr != nil {
			return Decision{Action: action, Category: categoryUnknown}, logErr
		}
		return Decision{Action: action, Category: categoryUnknown}, err
	}

	decision := Decision{Action: action, Category: category}
	refusal, err := r.check(ctx, userID, action, category)
	if err != nil {
		// The attempt is still recorded, as refused.
		if logErr := r.log(ctx, userID, action, category, payload, err); logErr != nil {
			logger.Warn("Failed to record action", "action", action, "error", logErr)
		}
		return decision, err
	}

	if err := r.log(ctx, userID, action, category, payload, refusal); err != nil {
		return decision, err
	}
	if refusal != nil {
		logger.Debug("Action refused", "user", userID, "action", action, "reason", refusal)
		return decision, refusal
	}

	decision.Permitted = true
	return decision, nil
}

// check returns the refusal for the action, if any. err reports failures of
// the check itself.
func (r *Router) check(ctx context.Context, userID, action string, category Category) (refusal, err error) {
	if category == CategoryExecution {
		return nil, nil
	}

	if lockErr := r.locks.AssertUnlocked(ctx, userID, action); lockErr != nil {
		if stderrors.Is(lockErr, errors.ErrActionLocked) {
			return lockErr, nil
		}
		return nil, lockErr
	}

	u, err := r.users.GetUser(ctx, userID)
	if stderrors.Is(err, errors.ErrNotFound) {
		// Unregistered users carry no restrictions.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !ungated[action] && IsGated(category, u.RestrictionLevel) {
		return &errors.RestrictedError{Action: action, Category: string(category), Level: u.RestrictionLevel}, nil
	}
	return nil, nil
}

func (r *Router) log(ctx context.Context, userID, action string, category Category, payload map[string]string, refusal error) error {
	entry := models.ActionLogEntry{
		UserID:    userID,
		Action:    action,
		Category:  string(category),
		Permitted: refusal == nil,
		Payload:   payload,
		Timestamp: r.clock.Now(),
	}
	if refusal != nil {
		entry.Reason = refusal.Error()
	}
	if err := r.audit.AppendActionLog(ctx, entry); err != nil {
		return fmt.Errorf("failed to append action log: %w", err)
	}
	return nil
}

// Navigate routes a navigation to target.
func (r *Router) Navigate(ctx context.Context, userID, target string) (Decision, error) {
	return r.Route(ctx, userID, constants.ActionNavigate, map[string]string{"target": target})
}

func (r *Router) OpenSettings(ctx context.Context, userID string) (Decision, error) {
	return r.Route(ctx, userID, constants.ActionOpenSettings, nil)
}

func (r *Router) AccessPlanning(ctx context.Context, userID string) (Decision, error) {
	return r.Route(ctx, userID, constants.ActionAccessPlanning, nil)
}
