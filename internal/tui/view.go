package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/lockstep/internal/constants"
	"github.com/julianstephens/lockstep/internal/lockscreen"
	"github.com/julianstephens/lockstep/internal/models"
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.state {
	case StateLocked:
		return docStyle.Render(lipgloss.JoinVertical(lipgloss.Left, m.viewLocked(), m.help.View(m)))
	case StateLogForm, StateAddForm:
		content = m.form.View()
	case StateObligations:
		content = m.viewObligations()
	case StateHistory:
		content = m.viewHistory()
	case StateSettings:
		content = m.viewSettings()
	}

	var banner string
	if m.errMsg != "" {
		banner = dangerStyle.Render(m.errMsg)
	} else if text, err := lockscreen.Text(m.notice); err == nil && m.notice != lockscreen.MessageNone {
		banner = warningStyle.Render(text)
	}

	return docStyle.Render(lipgloss.JoinVertical(
		lipgloss.Left,
		m.viewTabs(),
		banner,
		content,
		m.help.View(m),
	))
}

func (m Model) viewTabs() string {
	var rendered []string
	for _, t := range tabs {
		title := strings.ToUpper(t.String()[:1]) + t.String()[1:]
		if t == m.tab {
			rendered = append(rendered, activeTabStyle.Render(title))
		} else {
			rendered = append(rendered, inactiveTabStyle.Render(title))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...) + "\n"
}

func (m Model) viewLocked() string {
	if m.status.Lock == nil {
		return ""
	}
	v := lockscreen.View{
		Lock:   *m.status.Lock,
		Now:    m.clock.Now(),
		Notice: m.notice,
		Width:  m.width,
		Height: max(m.height-4, 0),
	}
	if m.status.Obligation != nil {
		v.ObligationType = m.status.Obligation.Type
	}
	if v.Notice == lockscreen.MessageNone && m.status.Queued > 0 {
		v.Notice = lockscreen.MessageQueued
	}
	screen, err := lockscreen.Render(v)
	if err != nil {
		return dangerStyle.Render(err.Error())
	}
	return screen
}

func (m Model) viewObligations() string {
	var b strings.Builder
	if m.restriction.Level > 0 {
		fmt.Fprintf(&b, "%s\n\n", warningStyle.Render(fmt.Sprintf(
			"Restriction level %d (%s), %d execution(s) until it lifts",
			m.restriction.Level, m.restriction.Status, m.restriction.ToLift)))
	}
	if len(m.obligations) == 0 {
		b.WriteString("No obligations. Press a to add one.\n")
		return b.String()
	}

	loc := m.clock.Now().Location()
	for i, o := range m.obligations {
		status := models.ResolveStatus(o, m.clock.Now())
		line := fmt.Sprintf("%s %-16s %s  %s",
			statusStyle(status).Render(fmt.Sprintf("%-9s", status)), o.Type,
			o.ScheduledAt.In(loc).Format(constants.DateTimeFormat),
			lockscreen.ProgressBar(o.UnitsCompleted, o.UnitsRequired, 10))
		if o.DebtRepayment {
			line += " [debt]"
		}
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> "+line) + "\n")
		} else {
			b.WriteString("  " + line + "\n")
		}
	}
	return b.String()
}

func (m Model) viewHistory() string {
	var b strings.Builder
	loc := m.clock.Now().Location()

	fmt.Fprintf(&b, "Executions (%d)\n", len(m.history.Executions))
	for _, e := range m.history.Executions {
		fmt.Fprintf(&b, "  %s  %-8s %d/%d\n",
			e.Timestamp.In(loc).Format(constants.DateTimeFormat), e.Result, e.UnitsCompleted, e.UnitsRequired)
	}
	fmt.Fprintf(&b, "\nLocks (%d)\n", len(m.history.Locks))
	for _, l := range m.history.Locks {
		fmt.Fprintf(&b, "  %s  %-8s escapes=%d\n",
			l.LockStart.In(loc).Format(constants.DateTimeFormat), l.Resolution, l.EscapeAttempts)
	}
	fmt.Fprintf(&b, "\nEscape attempts: %d  Violations: %d\n", len(m.history.Escapes), len(m.history.Violations))
	return b.String()
}

func (m Model) viewSettings() string {
	notifications := "off"
	if m.opts.Notifications {
		notifications = "on"
	}
	return fmt.Sprintf("User:          %s\nTimezone:      %s\nStorage:       %s\nNotifications: %s\n\nEdit the config file to change these.\n",
		m.opts.UserID, m.opts.Timezone, m.opts.Storage, notifications)
}
