package system

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/julianstephens/lockstep/internal/cli"
	"github.com/julianstephens/lockstep/internal/clock"
	"github.com/julianstephens/lockstep/internal/config"
	"github.com/julianstephens/lockstep/internal/constants"
	"github.com/julianstephens/lockstep/internal/errors"
	"github.com/julianstephens/lockstep/internal/keyring"
	"github.com/julianstephens/lockstep/internal/models"
	"github.com/julianstephens/lockstep/internal/storage"
	"github.com/julianstephens/lockstep/internal/validation"
)

const writeCheckKey = "doctor:write-check"

type DoctorCmd struct{}

type check struct {
	name string
	// warnOnly checks never fail the run.
	warnOnly bool
	// needsStorage checks are skipped when storage is unreachable.
	needsStorage bool
	run          func(*cli.Context) error
}

func (cmd *DoctorCmd) Run(ctx *cli.Context) error {
	ctx.Println("Running diagnostics...")
	ctx.Println()

	checks := []check{
		{name: "Storage reachable", run: checkStorageReachable},
		{name: "Migrations complete", needsStorage: true, run: checkMigrationsComplete},
		{name: "Backups present", warnOnly: true, run: checkBackupsPresent},
		{name: "Obligation validation", needsStorage: true, run: checkValidation},
		{name: "Lock integrity", needsStorage: true, run: checkLockIntegrity},
		{name: "Clock/timezone", run: checkClockTimezone},
		{name: "Keyring", warnOnly: true, run: checkKeyring},
	}

	hasError := false
	reachable := true
	for _, c := range checks {
		if c.needsStorage && !reachable {
			ctx.Printf("⊘ %s: SKIPPED (storage not reachable)\n", c.name)
			continue
		}
		err := c.run(ctx)
		switch {
		case err == nil:
			ctx.Printf("✓ %s: OK\n", c.name)
		case c.warnOnly:
			ctx.Printf("⚠ %s: WARNING\n", c.name)
			ctx.Printf("   %v\n", err)
		default:
			ctx.Printf("❌ %s: FAIL\n", c.name)
			ctx.Printf("   Error: %v\n", err)
			hasError = true
			if c.name == "Storage reachable" {
				reachable = false
			}
		}
	}

	ctx.Println()
	if hasError {
		ctx.Println("Diagnostics completed with errors.")
		return fmt.Errorf("one or more health checks failed")
	}
	ctx.Println("All diagnostics passed!")
	return nil
}

func checkStorageReachable(ctx *cli.Context) error {
	if err := ctx.Store.Load(); err != nil {
		return fmt.Errorf("failed to load storage: %w", err)
	}
	if err := ctx.Store.Set(ctx.Ctx, writeCheckKey, "ok"); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}
	v, ok, err := ctx.Store.Get(ctx.Ctx, writeCheckKey)
	if err != nil {
		return fmt.Errorf("failed to read: %w", err)
	}
	if !ok || v != "ok" {
		return fmt.Errorf("read back %q after writing %q", v, "ok")
	}
	return ctx.Store.Remove(ctx.Ctx, writeCheckKey)
}

func checkMigrationsComplete(ctx *cli.Context) error {
	m, ok := ctx.Store.(cli.Migrator)
	if !ok {
		// key-value backends have no schema
		return nil
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}
	if pending > 0 {
		return fmt.Errorf("%d pending migration(s). Run '%s migrate'", pending, constants.AppName)
	}
	return nil
}

func checkBackupsPresent(ctx *cli.Context) error {
	mgr, err := ctx.BackupManager()
	if err != nil {
		return err
	}
	backups, err := mgr.List()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}
	if len(backups) == 0 {
		return fmt.Errorf("no backups found in %s", mgr.BackupDir())
	}
	return nil
}

func checkValidation(ctx *cli.Context) error {
	repo := storage.NewKVRepository(ctx.Store)
	obligations, err := repo.ListObligations(ctx.Ctx, ctx.User())
	if err != nil {
		return err
	}
	result := validation.New().ValidateObligations(obligations)
	if result.HasConflicts() {
		return fmt.Errorf("%s", result.FormatReport())
	}
	return nil
}

// checkLockIntegrity reads the stored lock without evaluating it, so running
// the doctor never expires or activates anything.
func checkLockIntegrity(ctx *cli.Context) error {
	return lockIntegrity(ctx.Ctx, storage.NewKVRepository(ctx.Store), ctx.User())
}

func lockIntegrity(ctx context.Context, repo storage.Repository, userID string) error {
	lock, err := repo.GetActiveLock(ctx, userID)
	if err != nil {
		return err
	}
	if lock == nil {
		return nil
	}
	if lock.Status != models.LockActive {
		return fmt.Errorf("lock %s is stored as active but has status %s", lock.ID, lock.Status)
	}
	o, err := repo.GetObligation(ctx, lock.ObligationID)
	if stderrors.Is(err, errors.ErrNotFound) {
		return fmt.Errorf("lock %s references missing obligation %s", lock.ID, lock.ObligationID)
	}
	if err != nil {
		return err
	}
	if o.UserID != userID {
		return fmt.Errorf("lock %s belongs to %s but obligation %s belongs to %s", lock.ID, userID, o.ID, o.UserID)
	}
	if o.Status.IsTerminal() {
		return fmt.Errorf("lock %s is active but obligation %s is %s", lock.ID, o.ID, o.Status)
	}
	if lock.UnitsCompleted > lock.UnitsRequired {
		return fmt.Errorf("lock %s has %d/%d units", lock.ID, lock.UnitsCompleted, lock.UnitsRequired)
	}
	return nil
}

func checkClockTimezone(ctx *cli.Context) error {
	loc, err := clock.LoadLocation(ctx.Config.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", ctx.Config.Timezone, err)
	}
	now := ctx.Clock.Now()
	if now.IsZero() {
		return fmt.Errorf("clock returned the zero time")
	}
	if now.Year() < 2000 {
		return fmt.Errorf("system clock looks wrong: %s", now.Format("2006-01-02"))
	}
	if now.Location().String() != loc.String() {
		return fmt.Errorf("clock location %s does not match configured timezone %s", now.Location(), loc)
	}
	return nil
}

func checkKeyring(ctx *cli.Context) error {
	var backend keyring.Backend
	switch ctx.Config.Storage.Backend {
	case config.BackendPostgres:
		backend = keyring.BackendPostgres
	case config.BackendRedis:
		backend = keyring.BackendRedis
	default:
		return nil
	}
	if !keyring.IsAvailable() {
		return fmt.Errorf("OS keyring is not available; use %s or the config file", config.EnvConnection)
	}
	if _, err := keyring.GetConnectionString(backend); stderrors.Is(err, keyring.ErrNotFound) && ctx.Config.Storage.DSN == "" {
		return fmt.Errorf("no %s connection string stored in keyring", backend)
	}
	return nil
}
