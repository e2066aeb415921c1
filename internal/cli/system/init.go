package system

import (
	"fmt"
	"os"

	"github.com/julianstephens/lockstep/internal/cli"
	"github.com/julianstephens/lockstep/internal/config"
)

type InitCmd struct {
	Force bool `help:"Force reset by deleting the existing SQLite database before initialization."`
}

func (c *InitCmd) Run(ctx *cli.Context) error {
	if c.Force {
		if err := c.reset(ctx); err != nil {
			return err
		}
	}

	if err := ctx.Store.Init(); err != nil {
		return err
	}
	ctx.Printf("Initialized %s storage at: %s\n", ctx.Config.Storage.Backend, ctx.Store.Location())

	u, err := ctx.Service.RegisterUser(ctx.Ctx, ctx.User())
	if err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}
	ctx.Printf("User %q is %s (restriction level %d)\n", u.ID, u.Status, u.RestrictionLevel)
	ctx.Printf("Times are shown in %s\n", ctx.Location())
	return nil
}

func (c *InitCmd) reset(ctx *cli.Context) error {
	if ctx.Config.Storage.Backend != config.BackendSQLite {
		return fmt.Errorf("--force is only supported for SQLite storage (current: %s)", ctx.Config.Storage.Backend)
	}

	dbPath := ctx.Config.Storage.Path
	if _, err := os.Stat(dbPath); err == nil {
		if err := ctx.Store.Close(); err != nil {
			return fmt.Errorf("failed to close existing database: %w", err)
		}
		if err := os.Remove(dbPath); err != nil {
			return fmt.Errorf("failed to delete existing database: %w", err)
		}
		for _, suffix := range []string{"-wal", "-shm"} {
			_ = os.Remove(dbPath + suffix)
		}
		ctx.Printf("Deleted existing database at: %s\n", dbPath)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to access existing database: %w", err)
	}
	return nil
}
