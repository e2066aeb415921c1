package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/lockstep/internal/clock"
	"github.com/julianstephens/lockstep/internal/constants"
	"github.com/julianstephens/lockstep/internal/discipline"
	"github.com/julianstephens/lockstep/internal/kv"
	"github.com/julianstephens/lockstep/internal/lockscreen"
	"github.com/julianstephens/lockstep/internal/models"
	"github.com/julianstephens/lockstep/internal/notifier"
	"github.com/julianstephens/lockstep/internal/storage"
)

var start = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type harness struct {
	ctx   context.Context
	clock *clock.Fake
	svc   *discipline.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := clock.NewFake(start)
	repo := storage.NewKVRepository(kv.NewMemory())
	return &harness{
		ctx:   context.Background(),
		clock: clk,
		svc:   discipline.New(repo, clk, &notifier.Recorder{}),
	}
}

func (h *harness) model() Model {
	return NewModel(h.ctx, h.svc, h.clock, Options{UserID: "u1", Timezone: "UTC", Storage: ":memory:"})
}

// bind creates an obligation and moves the clock to its scheduled time.
func (h *harness) bind(t *testing.T, units int) models.Obligation {
	t.Helper()
	o, err := h.svc.CreateObligation(h.ctx, "u1", "reading", units, start.Add(48*time.Hour))
	require.NoError(t, err)
	h.clock.Set(o.ScheduledAt)
	return o
}

func press(m Model, k string) (Model, tea.Cmd) {
	var msg tea.KeyMsg
	switch k {
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestBoundObligationTakesOverScreen(t *testing.T) {
	h := newHarness(t)
	h.bind(t, 2)

	m := h.model()
	assert.Equal(t, StateLocked, m.state)
	assert.Equal(t, lockscreen.MessageBound, m.notice)

	text, err := lockscreen.Text(lockscreen.MessageBound)
	require.NoError(t, err)
	assert.Contains(t, m.View(), text)
}

func TestLockedNavigationIsRefused(t *testing.T) {
	h := newHarness(t)
	h.bind(t, 2)

	m, _ := press(h.model(), "tab")
	assert.Equal(t, StateLocked, m.state)
	assert.Equal(t, StateObligations, m.tab)
	assert.Equal(t, lockscreen.MessageActionRefused, m.notice)

	hist, err := h.svc.History(h.ctx, "u1")
	require.NoError(t, err)
	require.NotEmpty(t, hist.Actions)
	last := hist.Actions[len(hist.Actions)-1]
	assert.Equal(t, constants.ActionNavigate, last.Action)
	assert.False(t, last.Permitted)
}

func TestLoggingExecutionReleasesScreen(t *testing.T) {
	h := newHarness(t)
	o := h.bind(t, 3)

	m, _ := press(h.model(), "l")
	require.Equal(t, StateLogForm, m.state)
	assert.Equal(t, o.ID, m.logTarget)

	m.logForm.Units = "3"
	require.NoError(t, m.submitLog())
	m.closeForm()

	assert.Equal(t, StateObligations, m.state)
	assert.False(t, m.status.Locked)
	assert.Equal(t, lockscreen.MessageResolved, m.notice)
}

func TestQuitWhileLockedCountsAsForceClose(t *testing.T) {
	h := newHarness(t)
	h.bind(t, 1)

	m, cmd := press(h.model(), "q")
	assert.True(t, m.quitting)
	assert.NotNil(t, cmd)

	hist, err := h.svc.History(h.ctx, "u1")
	require.NoError(t, err)
	require.Len(t, hist.Escapes, 1)
	assert.Equal(t, models.EscapeForceClose, hist.Escapes[0].Kind)
}

func TestBackgroundBeyondToleranceIsReported(t *testing.T) {
	h := newHarness(t)
	h.bind(t, 1)
	m := h.model()

	next, _ := m.Update(tea.BlurMsg{})
	h.clock.Advance(constants.BackgroundTolerance + time.Minute)
	next, _ = next.(Model).Update(tea.FocusMsg{})
	m = next.(Model)

	assert.Equal(t, lockscreen.MessageBackground, m.notice)
	assert.Equal(t, StateLocked, m.state)
}

func TestTabsSwitchWhenUnlocked(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.RegisterUser(h.ctx, "u1")
	require.NoError(t, err)

	m, _ := press(h.model(), "tab")
	assert.Equal(t, StateHistory, m.state)
	m, _ = press(m, "tab")
	assert.Equal(t, StateSettings, m.state)
	assert.Contains(t, m.View(), ":memory:")
	m, _ = press(m, "tab")
	assert.Equal(t, StateObligations, m.state)
}

func TestAddFormCreatesObligation(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.RegisterUser(h.ctx, "u1")
	require.NoError(t, err)

	m, _ := press(h.model(), "a")
	require.Equal(t, StateAddForm, m.state)

	m.addForm.Type = "meditation"
	m.addForm.Units = "2"
	m.addForm.When = "+3d"
	require.NoError(t, m.submitAdd())
	m.closeForm()

	require.Len(t, m.obligations, 1)
	assert.Equal(t, "meditation", m.obligations[0].Type)
	assert.True(t, m.obligations[0].ScheduledAt.Equal(start.Add(72*time.Hour)))
}

func TestExpiredLockShowsNotice(t *testing.T) {
	h := newHarness(t)
	h.bind(t, 1)

	m := h.model()
	require.Equal(t, StateLocked, m.state)

	h.clock.Advance(25 * time.Hour)
	m.refresh()
	assert.Equal(t, StateObligations, m.state)
	assert.Equal(t, lockscreen.MessageExpired, m.notice)
	assert.False(t, m.status.Locked)
}
