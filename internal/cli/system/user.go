package system

import (
	"github.com/julianstephens/lockstep/internal/cli"
	"github.com/julianstephens/lockstep/internal/constants"
)

type UserRegisterCmd struct {
	ID string `arg:"" optional:"" help:"User to register (defaults to the configured user)."`
}

func (c *UserRegisterCmd) Run(ctx *cli.Context) error {
	id := c.ID
	if id == "" {
		id = ctx.User()
	}
	u, err := ctx.Service.RegisterUser(ctx.Ctx, id)
	if err != nil {
		return err
	}
	ctx.Printf("✓ User %q registered (%s)\n", u.ID, u.Status)
	return nil
}

type UserShowCmd struct{}

func (c *UserShowCmd) Run(ctx *cli.Context) error {
	if err := ctx.Route(constants.ActionViewStats, nil); err != nil {
		return err
	}

	u, err := ctx.Service.GetUser(ctx.Ctx, ctx.User())
	if err != nil {
		return err
	}
	r, err := ctx.Service.RestrictionSummary(ctx.Ctx, ctx.User())
	if err != nil {
		return err
	}

	ctx.Printf("User:              %s\n", u.ID)
	ctx.Printf("Status:            %s\n", u.Status)
	ctx.Printf("Restriction level: %d\n", u.RestrictionLevel)
	ctx.Printf("Failures:          %d\n", u.FailureCount)
	ctx.Printf("Debt units:        %d\n", u.DebtUnits)
	ctx.Printf("Execution streak:  %d\n", u.ConsecutiveExecutions)
	if r.ToLift > 0 {
		ctx.Printf("Executions until the next level is lifted: %d\n", r.ToLift)
	}
	ctx.Printf("Member since:      %s\n", u.CreatedAt.In(ctx.Location()).Format(constants.DateTimeFormat))
	return nil
}
