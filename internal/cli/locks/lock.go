package locks

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/julianstephens/lockstep/internal/cli"
	"github.com/julianstephens/lockstep/internal/clock"
	"github.com/julianstephens/lockstep/internal/constants"
	"github.com/julianstephens/lockstep/internal/errors"
	"github.com/julianstephens/lockstep/internal/lockscreen"
	"github.com/julianstephens/lockstep/internal/router"
)

type LockStatusCmd struct{}

func (c *LockStatusCmd) Run(ctx *cli.Context) error {
	if err := ctx.Route(constants.ActionViewTimeRemaining, nil); err != nil {
		return err
	}

	status, err := ctx.Service.GetLockStatus(ctx.Ctx, ctx.User())
	if err != nil {
		return err
	}
	if status.Expired != nil {
		ctx.Printf("Lock %s has just %s.\n", status.Expired.ID, strings.ToLower(string(status.Expired.Status)))
	}
	if !status.Locked {
		ctx.Println("No active lock.")
		return c.printRestriction(ctx)
	}

	view := lockscreen.View{Lock: *status.Lock, Now: ctx.Clock.Now()}
	if status.Obligation != nil {
		view.ObligationType = status.Obligation.Type
	}
	if status.Queued > 0 {
		view.Notice = lockscreen.MessageQueued
	}
	screen, err := lockscreen.Render(view)
	if err != nil {
		return err
	}
	ctx.Println(screen)
	ctx.Printf("\nObligation: %s  Escape attempts: %d\n", status.Lock.ObligationID, status.Lock.EscapeAttempts)
	return nil
}

func (c *LockStatusCmd) printRestriction(ctx *cli.Context) error {
	r, err := ctx.Service.RestrictionSummary(ctx.Ctx, ctx.User())
	if stderrors.Is(err, errors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if r.Level == 0 {
		return nil
	}
	ctx.Printf("Restriction level %d (%s); %d more executions lift one level.\n", r.Level, r.Status, r.ToLift)
	return nil
}

type LockBackgroundCmd struct {
	Duration time.Duration `arg:"" help:"Time spent away from the app, e.g. 45s or 5m."`
}

func (c *LockBackgroundCmd) Run(ctx *cli.Context) error {
	counted, err := ctx.Service.ReportBackground(ctx.Ctx, ctx.User(), c.Duration)
	if err != nil {
		return err
	}
	if counted {
		ctx.Printf("Recorded %s away as an escape attempt.\n", c.Duration)
	}
	return nil
}

type LockForceCloseCmd struct{}

func (c *LockForceCloseCmd) Run(ctx *cli.Context) error {
	return ctx.Service.ReportForceClose(ctx.Ctx, ctx.User())
}

// RouteCmd submits an arbitrary action through the router, for shells and
// integrations that enforce the lock themselves.
type RouteCmd struct {
	Action  string            `arg:"" optional:"" help:"Action name, e.g. NAVIGATE or OPEN_SETTINGS."`
	Payload map[string]string `short:"p" help:"Payload as key=value pairs."`
	List    bool              `help:"List known actions by category instead."`
}

func (c *RouteCmd) Run(ctx *cli.Context) error {
	if c.List {
		c.printActions(ctx)
		return nil
	}
	if c.Action == "" {
		return fmt.Errorf("an action name is required (see --list)")
	}

	d, err := ctx.Service.RouteAction(ctx.Ctx, ctx.User(), strings.ToUpper(c.Action), c.Payload)
	if err != nil {
		return err
	}
	ctx.Printf("✓ %s permitted (%s)\n", d.Action, d.Category)
	return nil
}

func (c *RouteCmd) printActions(ctx *cli.Context) {
	categories := []router.Category{
		router.CategoryExecution,
		router.CategoryNavigation,
		router.CategorySettings,
		router.CategoryPlanning,
		router.CategoryHistory,
		router.CategorySocial,
		router.CategoryAnalytics,
	}
	for _, cat := range categories {
		actions := router.Actions(cat)
		sort.Strings(actions)
		ctx.Printf("%s:\n  %s\n", cat, strings.Join(actions, "\n  "))
	}
}

// CheckIdleCmd sends pending idle warnings. It is meant to run from cron.
type CheckIdleCmd struct{}

func (c *CheckIdleCmd) Run(ctx *cli.Context) error {
	sent, err := ctx.Service.CheckIdle(ctx.Ctx, ctx.User())
	if err != nil {
		return fmt.Errorf("idle check failed: %w", err)
	}
	if sent > 0 {
		status, err := ctx.Service.GetLockStatus(ctx.Ctx, ctx.User())
		if err == nil && status.Locked {
			ctx.Printf("Sent %d idle warning(s); %s remaining.\n", sent, clock.FormatRemaining(status.TimeRemaining))
		}
	}
	return nil
}
