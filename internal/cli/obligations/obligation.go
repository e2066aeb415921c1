package obligations

import (
	"fmt"

	"github.com/julianstephens/lockstep/internal/cli"
	"github.com/julianstephens/lockstep/internal/constants"
	"github.com/julianstephens/lockstep/internal/obligation"
)

type ObligationAddCmd struct {
	Type          string `arg:"" help:"Obligation type, e.g. workout or reading."`
	Units         int    `short:"u" help:"Units required to execute the obligation." required:""`
	At            string `short:"a" help:"Scheduled time: now, +<duration>, 'YYYY-MM-DD HH:MM' or RFC 3339." default:"now"`
	DebtRepayment bool   `help:"Count the obligation toward repaying debt."`
}

func (c *ObligationAddCmd) Validate() error {
	if c.Units <= 0 {
		return fmt.Errorf("units must be greater than zero")
	}
	return nil
}

func (c *ObligationAddCmd) Run(ctx *cli.Context) error {
	if err := ctx.Route(constants.ActionCreateObligation, map[string]string{"type": c.Type}); err != nil {
		return err
	}

	at, err := cli.ParseWhen(c.At, ctx.Clock.Now())
	if err != nil {
		return err
	}
	var opts []obligation.Option
	if c.DebtRepayment {
		opts = append(opts, obligation.WithDebtRepayment())
	}

	o, err := ctx.Service.CreateObligation(ctx.Ctx, ctx.User(), c.Type, c.Units, at, opts...)
	if err != nil {
		return err
	}
	ctx.Printf("✓ Obligation created: %s\n", cli.FormatObligation(o, ctx.Location()))
	if o.Status.IsBinding() {
		ctx.Printf("  It is already %s and can no longer be changed.\n", o.Status)
	}
	return nil
}

type ObligationShowCmd struct {
	ID string `arg:"" help:"Obligation ID."`
}

func (c *ObligationShowCmd) Run(ctx *cli.Context) error {
	// The locked obligation stays visible; anything else is planning.
	action := constants.ActionAccessPlanning
	status, err := ctx.Service.GetLockStatus(ctx.Ctx, ctx.User())
	if err != nil {
		return err
	}
	if status.Locked && status.Lock.ObligationID == c.ID {
		action = constants.ActionViewCurrentObligation
	}
	if err := ctx.Route(action, map[string]string{"id": c.ID}); err != nil {
		return err
	}

	o, err := ctx.Service.GetObligation(ctx.Ctx, c.ID)
	if err != nil {
		return err
	}
	loc := ctx.Location()
	ctx.Printf("ID:        %s\n", o.ID)
	ctx.Printf("Type:      %s\n", o.Type)
	ctx.Printf("Status:    %s\n", o.Status)
	ctx.Printf("Units:     %d/%d\n", o.UnitsCompleted, o.UnitsRequired)
	ctx.Printf("Scheduled: %s\n", o.ScheduledAt.In(loc).Format(constants.DateTimeFormat))
	ctx.Printf("Binding:   %s\n", o.BindingTime.In(loc).Format(constants.DateTimeFormat))
	ctx.Printf("Window:    until %s\n", o.WindowEnd().In(loc).Format(constants.DateTimeFormat))
	if o.DebtRepayment {
		ctx.Println("Repays:    1 debt unit")
	}
	if o.ResolvedAt != nil {
		ctx.Printf("Resolved:  %s\n", o.ResolvedAt.In(loc).Format(constants.DateTimeFormat))
	}
	return nil
}

type ObligationListCmd struct {
	Open bool `help:"Show only obligations that are not yet executed or failed."`
}

func (c *ObligationListCmd) Run(ctx *cli.Context) error {
	if err := ctx.Route(constants.ActionAccessPlanning, nil); err != nil {
		return err
	}

	list, err := ctx.Service.ListObligations(ctx.Ctx, ctx.User())
	if err != nil {
		return fmt.Errorf("failed to list obligations: %w", err)
	}
	if len(list) == 0 {
		ctx.Println("No obligations found")
		return nil
	}

	ctx.Println("Obligations:")
	for _, o := range list {
		if c.Open && o.Status.IsTerminal() {
			continue
		}
		ctx.Printf("  %s\n", cli.FormatObligation(o, ctx.Location()))
	}
	return nil
}

type ObligationLogCmd struct {
	ID    string `arg:"" help:"Obligation ID."`
	Units int    `arg:"" optional:"" help:"Units completed." default:"1"`
}

func (c *ObligationLogCmd) Run(ctx *cli.Context) error {
	if err := ctx.Route(constants.ActionLogExecution, map[string]string{"id": c.ID}); err != nil {
		return err
	}

	o, err := ctx.Service.LogExecution(ctx.Ctx, c.ID, c.Units)
	if err != nil {
		return err
	}
	ctx.Printf("✓ %s: %d/%d units\n", o.Type, o.UnitsCompleted, o.UnitsRequired)
	if o.ResolvedAt != nil {
		ctx.Printf("  Obligation %s.\n", o.Status)
	}
	return nil
}

type ObligationRescheduleCmd struct {
	ID string `arg:"" help:"Obligation ID."`
	At string `arg:"" help:"New scheduled time."`
}

func (c *ObligationRescheduleCmd) Run(ctx *cli.Context) error {
	if err := ctx.Route(constants.ActionRescheduleObligation, map[string]string{"id": c.ID, "at": c.At}); err != nil {
		return err
	}

	at, err := cli.ParseWhen(c.At, ctx.Clock.Now())
	if err != nil {
		return err
	}
	o, err := ctx.Service.RescheduleObligation(ctx.Ctx, c.ID, at)
	if err != nil {
		return err
	}
	ctx.Printf("✓ Rescheduled: %s\n", cli.FormatObligation(o, ctx.Location()))
	return nil
}

type ObligationDeleteCmd struct {
	ID string `arg:"" help:"Obligation ID."`
}

func (c *ObligationDeleteCmd) Run(ctx *cli.Context) error {
	if err := ctx.Route(constants.ActionDeleteObligation, map[string]string{"id": c.ID}); err != nil {
		return err
	}
	if err := ctx.Service.DeleteObligation(ctx.Ctx, c.ID); err != nil {
		return err
	}
	ctx.Printf("✓ Obligation %s deleted\n", c.ID)
	return nil
}

type ObligationModifyCmd struct {
	ID              string `arg:"" help:"Obligation ID."`
	Type            string `help:"New obligation type."`
	Units           int    `short:"u" help:"New number of units required."`
	DebtRepayment   bool   `help:"Mark the obligation as debt repayment." xor:"debt"`
	NoDebtRepayment bool   `help:"Clear the debt repayment mark." xor:"debt"`
}

func (c *ObligationModifyCmd) modification() obligation.Modification {
	var m obligation.Modification
	if c.Type != "" {
		m.Type = &c.Type
	}
	if c.Units != 0 {
		m.UnitsRequired = &c.Units
	}
	switch {
	case c.DebtRepayment:
		v := true
		m.DebtRepayment = &v
	case c.NoDebtRepayment:
		v := false
		m.DebtRepayment = &v
	}
	return m
}

func (c *ObligationModifyCmd) Run(ctx *cli.Context) error {
	if err := ctx.Route(constants.ActionModifyObligation, map[string]string{"id": c.ID}); err != nil {
		return err
	}
	o, err := ctx.Service.ModifyObligation(ctx.Ctx, c.ID, c.modification())
	if err != nil {
		return err
	}
	ctx.Printf("✓ Modified: %s\n", cli.FormatObligation(o, ctx.Location()))
	return nil
}
