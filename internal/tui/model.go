package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/julianstephens/lockstep/internal/clock"
	"github.com/julianstephens/lockstep/internal/discipline"
	"github.com/julianstephens/lockstep/internal/lockscreen"
	"github.com/julianstephens/lockstep/internal/models"
)

type SessionState int

const (
	StateObligations SessionState = iota
	StateHistory
	StateSettings
	StateLocked
	StateLogForm
	StateAddForm
)

// tabs is the order tab cycles through.
var tabs = []SessionState{StateObligations, StateHistory, StateSettings}

func (s SessionState) String() string {
	switch s {
	case StateObligations:
		return "obligations"
	case StateHistory:
		return "history"
	case StateSettings:
		return "settings"
	case StateLocked:
		return "locked"
	case StateLogForm:
		return "log"
	case StateAddForm:
		return "add"
	}
	return "unknown"
}

// Options describes the session shown in the settings view.
type Options struct {
	UserID        string
	Timezone      string
	Storage       string
	Notifications bool
}

type LogFormModel struct {
	Units string
}

type AddFormModel struct {
	Type          string
	Units         string
	When          string
	DebtRepayment bool
}

type tickMsg time.Time

type Model struct {
	ctx     context.Context
	svc     *discipline.Service
	clock   clock.Clock
	opts    Options
	state   SessionState
	tab     SessionState
	keys    KeyMap
	help    help.Model
	form    *huh.Form
	logForm *LogFormModel
	addForm *AddFormModel

	status      discipline.LockStatus
	obligations []models.Obligation
	history     discipline.History
	restriction discipline.Restriction
	cursor      int
	// logTarget is the obligation the open log form writes to.
	logTarget string

	notice    lockscreen.Message
	errMsg    string
	blurredAt time.Time
	quitting  bool
	width     int
	height    int
}

func NewModel(ctx context.Context, svc *discipline.Service, clk clock.Clock, opts Options) Model {
	m := Model{
		ctx:   ctx,
		svc:   svc,
		clock: clk,
		opts:  opts,
		state: StateObligations,
		tab:   StateObligations,
		keys:  DefaultKeyMap(),
		help:  help.New(),
	}
	m.refresh()
	return m
}

func (m Model) ShortHelp() []key.Binding {
	if m.state == StateLocked {
		return []key.Binding{m.keys.Log, m.keys.Help, m.keys.Quit}
	}
	keys := []key.Binding{m.keys.Tab, m.keys.Quit, m.keys.Help}
	if m.state == StateObligations {
		keys = append(keys, m.keys.Add, m.keys.Log)
	}
	return keys
}

func (m Model) FullHelp() [][]key.Binding {
	if m.state == StateLocked {
		return [][]key.Binding{{m.keys.Log, m.keys.Help, m.keys.Quit}}
	}
	global := []key.Binding{m.keys.Tab, m.keys.ShiftTab, m.keys.Quit, m.keys.Help}
	navigation := []key.Binding{m.keys.Up, m.keys.Down}
	actions := []key.Binding{m.keys.Add, m.keys.Log}
	return [][]key.Binding{global, navigation, actions}
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// refresh reloads lock status and the data of the current tab. A lock
// always takes over the screen.
func (m *Model) refresh() {
	status, err := m.svc.GetLockStatus(m.ctx, m.opts.UserID)
	if err != nil {
		m.errMsg = err.Error()
		return
	}
	wasLocked := m.status.Locked
	m.status = status

	if status.Locked && m.state != StateLogForm {
		switch {
		case status.Expired != nil:
			m.notice = lockscreen.MessageExpired
		case !wasLocked:
			m.notice = lockscreen.MessageBound
		}
		m.form, m.addForm = nil, nil
		m.state = StateLocked
	}
	if !status.Locked && wasLocked {
		if m.state == StateLocked {
			m.state = m.tab
		}
		if status.Expired != nil {
			m.notice = lockscreen.MessageExpired
		} else {
			m.notice = lockscreen.MessageResolved
		}
	}

	if status.Locked {
		return
	}
	if obligations, err := m.svc.ListObligations(m.ctx, m.opts.UserID); err == nil {
		m.obligations = obligations
		if m.cursor >= len(obligations) {
			m.cursor = max(len(obligations)-1, 0)
		}
	}
	if r, err := m.svc.RestrictionSummary(m.ctx, m.opts.UserID); err == nil {
		m.restriction = r
	}
	if m.tab == StateHistory {
		if h, err := m.svc.History(m.ctx, m.opts.UserID); err == nil {
			m.history = h
		}
	}
}

func (m Model) selected() (models.Obligation, bool) {
	if m.cursor < 0 || m.cursor >= len(m.obligations) {
		return models.Obligation{}, false
	}
	return m.obligations[m.cursor], true
}
