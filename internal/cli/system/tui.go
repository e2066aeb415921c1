package system

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/julianstephens/lockstep/internal/cli"
	"github.com/julianstephens/lockstep/internal/logger"
	"github.com/julianstephens/lockstep/internal/tui"
)

type TuiCmd struct{}

func (c *TuiCmd) Run(ctx *cli.Context) error {
	// Perform automatic backup on TUI startup (after successful load)
	ctx.PerformAutomaticBackup()

	lock, err := ctx.Service.Resume(ctx.Ctx, ctx.User())
	if err != nil {
		return fmt.Errorf("failed to resume lock: %w", err)
	}
	if lock.IsActive() {
		logger.Info("Resumed active lock", "lock", lock.ID, "obligation", lock.ObligationID, "resumes", lock.ResumeCount)
	}

	model := tui.NewModel(ctx.Ctx, ctx.Service, ctx.Clock, tui.Options{
		UserID:        ctx.User(),
		Timezone:      ctx.Config.Timezone,
		Storage:       ctx.Store.Location(),
		Notifications: ctx.Config.NotificationsEnabled(),
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithReportFocus(), tea.WithContext(ctx.Ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui exited with error: %w", err)
	}
	return nil
}
