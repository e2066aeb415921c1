package system

import (
	"fmt"
	"time"

	"github.com/julianstephens/lockstep/internal/cli"
	"github.com/julianstephens/lockstep/internal/constants"
	"github.com/julianstephens/lockstep/internal/models"
	"github.com/julianstephens/lockstep/internal/notifier"
)

// NotifyCmd sends reminders for obligations that become binding or fall due
// in the current minute. It is meant to run from cron once a minute.
type NotifyCmd struct {
	DryRun bool `help:"Print notifications to stdout instead of sending them."`
}

func (c *NotifyCmd) Run(ctx *cli.Context) error {
	if !ctx.Config.NotificationsEnabled() {
		if c.DryRun {
			ctx.Println("Notifications are disabled in the config file.")
		}
		return nil
	}

	obligations, err := ctx.Service.ListObligations(ctx.Ctx, ctx.User())
	if err != nil {
		return fmt.Errorf("failed to list obligations: %w", err)
	}

	now := ctx.Clock.Now().Truncate(time.Minute)
	n := notifier.New(true)
	for _, msg := range reminders(obligations, now, ctx.Location()) {
		if c.DryRun {
			ctx.Println("[DryRun] " + msg)
			continue
		}
		if err := n.Notify(ctx.Ctx, msg); err != nil {
			// Log error but continue with the remaining reminders
			ctx.Printf("Failed to send notification: %v\n", err)
		}
	}
	return nil
}

// reminders lists the messages due in the minute starting at now.
func reminders(obligations []models.Obligation, now time.Time, loc *time.Location) []string {
	var out []string
	for _, o := range obligations {
		if o.Status.IsTerminal() {
			continue
		}
		at := o.ScheduledAt.In(loc).Format(constants.DateTimeFormat)
		switch {
		case sameMinute(o.BindingTime, now):
			out = append(out, fmt.Sprintf("Binding now: %s (%d units) can no longer be changed. Due %s", o.Type, o.UnitsRequired, at))
		case sameMinute(o.ScheduledAt, now):
			out = append(out, fmt.Sprintf("Due now: %s (%d units)", o.Type, o.UnitsRequired))
		}
	}
	return out
}

func sameMinute(t, minute time.Time) bool {
	return t.Truncate(time.Minute).Equal(minute)
}
