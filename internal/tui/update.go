package tui

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/julianstephens/lockstep/internal/cli"
	"github.com/julianstephens/lockstep/internal/constants"
	"github.com/julianstephens/lockstep/internal/errors"
	"github.com/julianstephens/lockstep/internal/lockscreen"
	"github.com/julianstephens/lockstep/internal/logger"
	"github.com/julianstephens/lockstep/internal/obligation"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		if m.status.Locked {
			if n, err := m.svc.CheckIdle(m.ctx, m.opts.UserID); err != nil {
				logger.Warn("Idle check failed", "error", err)
			} else if n > 0 {
				m.notice = lockscreen.MessageIdle
			}
		}
		m.refresh()
		return m, tick()

	case tea.BlurMsg:
		m.blurredAt = m.clock.Now()
		return m, nil

	case tea.FocusMsg:
		if !m.blurredAt.IsZero() {
			away := m.clock.Now().Sub(m.blurredAt)
			m.blurredAt = time.Time{}
			escaped, err := m.svc.ReportBackground(m.ctx, m.opts.UserID, away)
			if err != nil {
				logger.Warn("Failed to record background time", "error", err)
			} else if escaped {
				m.notice = lockscreen.MessageBackground
			}
		}
		m.refresh()
		return m, nil
	}

	if m.state == StateLogForm || m.state == StateAddForm {
		return m.updateForm(msg)
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.status.Locked {
		if err := m.svc.ReportActivity(m.ctx, m.opts.UserID); err != nil {
			logger.Warn("Failed to record activity", "error", err)
		}
	}

	switch {
	case key.Matches(keyMsg, m.keys.Quit):
		if m.status.Locked {
			if err := m.svc.ReportForceClose(m.ctx, m.opts.UserID); err != nil {
				logger.Warn("Failed to record force close", "error", err)
			}
		}
		m.quitting = true
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}

	if m.state == StateLocked {
		return m.updateLocked(keyMsg)
	}
	return m.updateBrowsing(keyMsg)
}

func (m Model) updateLocked(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Log):
		if m.status.Lock == nil {
			return m, nil
		}
		return m.openLogForm(m.status.Lock.ObligationID)
	case key.Matches(msg, m.keys.Tab):
		_, err := m.svc.Navigate(m.ctx, m.opts.UserID, m.nextTab(1).String())
		m.handleRouteErr(err)
	case key.Matches(msg, m.keys.ShiftTab):
		_, err := m.svc.Navigate(m.ctx, m.opts.UserID, m.nextTab(-1).String())
		m.handleRouteErr(err)
	case key.Matches(msg, m.keys.Add):
		_, err := m.svc.RouteAction(m.ctx, m.opts.UserID, constants.ActionCreateObligation, nil)
		m.handleRouteErr(err)
	}
	m.refresh()
	return m, nil
}

func (m Model) updateBrowsing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.errMsg = ""
	switch {
	case key.Matches(msg, m.keys.Tab):
		m.switchTab(m.nextTab(1))
	case key.Matches(msg, m.keys.ShiftTab):
		m.switchTab(m.nextTab(-1))
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.obligations)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Add):
		if m.state != StateObligations {
			return m, nil
		}
		return m.openAddForm()
	case key.Matches(msg, m.keys.Log):
		o, ok := m.selected()
		if m.state != StateObligations || !ok {
			return m, nil
		}
		return m.openLogForm(o.ID)
	}
	return m, nil
}

func (m Model) nextTab(step int) SessionState {
	idx := 0
	for i, t := range tabs {
		if t == m.tab {
			idx = i
		}
	}
	return tabs[(idx+step+len(tabs))%len(tabs)]
}

// switchTab navigates to target and then performs the action the view
// needs. A refused step leaves the current view in place.
func (m *Model) switchTab(target SessionState) {
	if _, err := m.svc.Navigate(m.ctx, m.opts.UserID, target.String()); err != nil {
		m.handleRouteErr(err)
		return
	}

	var err error
	switch target {
	case StateObligations:
		_, err = m.svc.AccessPlanning(m.ctx, m.opts.UserID)
	case StateHistory:
		_, err = m.svc.RouteAction(m.ctx, m.opts.UserID, constants.ActionViewHistory, nil)
	case StateSettings:
		_, err = m.svc.OpenSettings(m.ctx, m.opts.UserID)
	}
	if err != nil {
		m.handleRouteErr(err)
		return
	}

	m.tab = target
	m.state = target
	m.refresh()
}

func (m *Model) handleRouteErr(err error) {
	switch {
	case err == nil:
	case stderrors.Is(err, errors.ErrActionLocked):
		m.notice = lockscreen.MessageActionRefused
	default:
		m.errMsg = err.Error()
	}
}

func (m Model) openLogForm(obligationID string) (tea.Model, tea.Cmd) {
	if _, err := m.svc.RouteAction(m.ctx, m.opts.UserID, constants.ActionLogExecution, map[string]string{"obligation": obligationID}); err != nil {
		m.handleRouteErr(err)
		return m, nil
	}

	m.logTarget = obligationID
	m.logForm = &LogFormModel{Units: "1"}
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Units completed").
				Value(&m.logForm.Units).
				Validate(validateUnits),
		),
	)
	m.state = StateLogForm
	return m, m.form.Init()
}

func (m Model) openAddForm() (tea.Model, tea.Cmd) {
	if _, err := m.svc.RouteAction(m.ctx, m.opts.UserID, constants.ActionCreateObligation, nil); err != nil {
		m.handleRouteErr(err)
		return m, nil
	}

	m.addForm = &AddFormModel{Units: "1", When: "+2d"}
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Type").
				Value(&m.addForm.Type).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("type is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Units required").
				Value(&m.addForm.Units).
				Validate(validateUnits),
			huh.NewInput().
				Title("When").
				Description(`now, +12h, +3d or "2006-01-02 15:04"`).
				Value(&m.addForm.When).
				Validate(func(s string) error {
					_, err := cli.ParseWhen(s, m.clock.Now())
					return err
				}),
			huh.NewConfirm().
				Title("Debt repayment?").
				Value(&m.addForm.DebtRepayment),
		),
	)
	m.state = StateAddForm
	return m, m.form.Init()
}

func (m Model) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.Type == tea.KeyEsc {
		m.closeForm()
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		var err error
		if m.state == StateLogForm {
			err = m.submitLog()
		} else {
			err = m.submitAdd()
		}
		m.closeForm()
		if err != nil {
			m.errMsg = err.Error()
		}
		return m, nil
	case huh.StateAborted:
		m.closeForm()
		return m, nil
	}
	return m, cmd
}

func (m *Model) closeForm() {
	m.form = nil
	m.logForm = nil
	m.addForm = nil
	m.state = m.tab
	m.refresh()
}

func (m *Model) submitLog() error {
	units, err := strconv.Atoi(strings.TrimSpace(m.logForm.Units))
	if err != nil {
		return err
	}
	_, err = m.svc.LogExecution(m.ctx, m.logTarget, units)
	return err
}

func (m *Model) submitAdd() error {
	units, err := strconv.Atoi(strings.TrimSpace(m.addForm.Units))
	if err != nil {
		return err
	}
	at, err := cli.ParseWhen(m.addForm.When, m.clock.Now())
	if err != nil {
		return err
	}
	var opts []obligation.Option
	if m.addForm.DebtRepayment {
		opts = append(opts, obligation.WithDebtRepayment())
	}
	_, err = m.svc.CreateObligation(m.ctx, m.opts.UserID, strings.TrimSpace(m.addForm.Type), units, at, opts...)
	return err
}

func validateUnits(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fmt.Errorf("enter a positive whole number")
	}
	return nil
}
