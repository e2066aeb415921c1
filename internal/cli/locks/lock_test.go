package locks

import (
	"bytes"
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/lockstep/internal/cli"
	"github.com/julianstephens/lockstep/internal/clock"
	"github.com/julianstephens/lockstep/internal/config"
	"github.com/julianstephens/lockstep/internal/constants"
	"github.com/julianstephens/lockstep/internal/errors"
	"github.com/julianstephens/lockstep/internal/kv"
	"github.com/julianstephens/lockstep/internal/models"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func setupLocked(t *testing.T) (*cli.Context, *clock.Fake, *bytes.Buffer, models.Obligation) {
	t.Helper()
	cfg := config.Config{Storage: config.Storage{Backend: config.BackendMemory}, User: "u1", Timezone: "UTC"}
	clk := clock.NewFake(testNow)
	ctx := cli.NewContext(context.Background(), cfg, kv.NewMemory(), clk, nil)
	out := &bytes.Buffer{}
	ctx.Out = out

	o, err := ctx.Service.CreateObligation(ctx.Ctx, "u1", "reading", 2, testNow.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("failed to create obligation: %v", err)
	}
	clk.Set(o.ScheduledAt)
	return ctx, clk, out, o
}

func TestLockStatusCmd(t *testing.T) {
	ctx, _, out, o := setupLocked(t)

	if err := (&LockStatusCmd{}).Run(ctx); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	for _, want := range []string{"reading", "Obligation: " + o.ID, "Escape attempts: 0"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("status output missing %q:\n%s", want, out.String())
		}
	}

	if _, err := ctx.Service.LogExecution(ctx.Ctx, o.ID, 2); err != nil {
		t.Fatalf("failed to log execution: %v", err)
	}
	out.Reset()
	if err := (&LockStatusCmd{}).Run(ctx); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out.String(), "No active lock.") {
		t.Errorf("unexpected output after execution:\n%s", out.String())
	}
}

func TestLockStatusCmdReportsExpiry(t *testing.T) {
	ctx, clk, out, _ := setupLocked(t)

	clk.Advance(25 * time.Hour)
	if err := (&LockStatusCmd{}).Run(ctx); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	for _, want := range []string{"has just expired.", "No active lock."} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("status output missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	if err := (&LockStatusCmd{}).Run(ctx); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if strings.Contains(out.String(), "has just") {
		t.Errorf("expiry should be reported once:\n%s", out.String())
	}
}

func TestEscapeSignals(t *testing.T) {
	ctx, _, out, _ := setupLocked(t)

	if err := (&LockBackgroundCmd{Duration: 10 * time.Second}).Run(ctx); err != nil {
		t.Fatalf("background failed: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("short absence should not be reported: %s", out.String())
	}
	if err := (&LockBackgroundCmd{Duration: 5 * time.Minute}).Run(ctx); err != nil {
		t.Fatalf("background failed: %v", err)
	}
	if !strings.Contains(out.String(), "escape attempt") {
		t.Errorf("long absence should be reported: %s", out.String())
	}
	if err := (&LockForceCloseCmd{}).Run(ctx); err != nil {
		t.Fatalf("force close failed: %v", err)
	}

	status, err := ctx.Service.GetLockStatus(ctx.Ctx, "u1")
	if err != nil {
		t.Fatalf("failed to read lock: %v", err)
	}
	if status.Lock.EscapeAttempts != 2 {
		t.Errorf("escape attempts = %d, want 2", status.Lock.EscapeAttempts)
	}
}

func TestRouteCmd(t *testing.T) {
	ctx, _, out, _ := setupLocked(t)

	if err := (&RouteCmd{}).Run(ctx); err == nil {
		t.Error("expected an error without an action")
	}

	err := (&RouteCmd{Action: "open_settings"}).Run(ctx)
	if !stderrors.Is(err, errors.ErrActionLocked) {
		t.Errorf("OPEN_SETTINGS while locked: got %v, want ErrActionLocked", err)
	}

	if err := (&RouteCmd{Action: constants.ActionViewTimeRemaining}).Run(ctx); err != nil {
		t.Errorf("execution actions should pass: %v", err)
	}
	if !strings.Contains(out.String(), constants.ActionViewTimeRemaining+" permitted") {
		t.Errorf("unexpected output: %s", out.String())
	}

	if err := (&RouteCmd{Action: "LAUNCH_ROCKET"}).Run(ctx); !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("unknown action: got %v, want ErrInvalidInput", err)
	}

	out.Reset()
	if err := (&RouteCmd{List: true}).Run(ctx); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out.String(), constants.ActionLogExecution) {
		t.Errorf("action list missing %s:\n%s", constants.ActionLogExecution, out.String())
	}
}

func TestCheckIdleCmd(t *testing.T) {
	ctx, clk, out, _ := setupLocked(t)

	if err := (&CheckIdleCmd{}).Run(ctx); err != nil {
		t.Fatalf("check-idle failed: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("no warning expected right after binding: %s", out.String())
	}

	clk.Advance(2 * time.Hour)
	if err := (&CheckIdleCmd{}).Run(ctx); err != nil {
		t.Fatalf("check-idle failed: %v", err)
	}
	if !strings.Contains(out.String(), "idle warning") {
		t.Errorf("expected an idle warning after two hours: %s", out.String())
	}
}
