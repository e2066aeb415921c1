package system

import (
	"github.com/julianstephens/lockstep/internal/cli"
	"github.com/julianstephens/lockstep/internal/constants"
)

type HistoryCmd struct {
	Escapes bool `help:"Include escape attempts."`
	Actions bool `help:"Include the routed action log."`
	Limit   int  `short:"n" default:"20" help:"Show at most this many entries per section."`
}

func (c *HistoryCmd) Run(ctx *cli.Context) error {
	if err := ctx.Route(constants.ActionViewHistory, nil); err != nil {
		return err
	}

	h, err := ctx.Service.History(ctx.Ctx, ctx.User())
	if err != nil {
		return err
	}
	loc := ctx.Location()

	ctx.Printf("Executions (%d):\n", len(h.Executions))
	for _, e := range tail(h.Executions, c.Limit) {
		ctx.Printf("  %s  %-8s %s  %d/%d units\n",
			e.Timestamp.In(loc).Format(constants.DateTimeFormat), e.Result, e.ObligationID, e.UnitsCompleted, e.UnitsRequired)
	}

	ctx.Printf("\nLocks (%d):\n", len(h.Locks))
	for _, l := range tail(h.Locks, c.Limit) {
		ctx.Printf("  %s  %-8s %s  resolution=%s escapes=%d\n",
			l.LockStart.In(loc).Format(constants.DateTimeFormat), l.Status, l.ObligationID, l.Resolution, l.EscapeAttempts)
	}

	if len(h.Violations) > 0 {
		ctx.Printf("\nBinding violations (%d):\n", len(h.Violations))
		for _, v := range tail(h.Violations, c.Limit) {
			ctx.Printf("  %s  %s on %s (%s)\n",
				v.Timestamp.In(loc).Format(constants.DateTimeFormat), v.Kind, v.ObligationID, v.Status)
		}
	}

	if c.Escapes {
		ctx.Printf("\nEscape attempts (%d):\n", len(h.Escapes))
		for _, e := range tail(h.Escapes, c.Limit) {
			detail := e.Action
			if e.Duration > 0 {
				detail = e.Duration.String()
			}
			ctx.Printf("  %s  %-11s %s %s\n",
				e.Timestamp.In(loc).Format(constants.DateTimeFormat), e.Kind, e.ObligationID, detail)
		}
	}

	if c.Actions {
		ctx.Printf("\nActions (%d):\n", len(h.Actions))
		for _, a := range tail(h.Actions, c.Limit) {
			verdict := "allowed"
			if !a.Permitted {
				verdict = "refused: " + a.Reason
			}
			ctx.Printf("  %s  %-24s %s\n",
				a.Timestamp.In(loc).Format(constants.DateTimeFormat), a.Action, verdict)
		}
	}
	return nil
}

// tail keeps the most recent n entries of an append-only list.
func tail[T any](items []T, n int) []T {
	if n <= 0 || len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}
