// Package lockscreen renders the screen shown while an action lock is
// active. Every sentence it shows comes from a fixed set of messages.
package lockscreen

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/lockstep/internal/clock"
	"github.com/julianstephens/lockstep/internal/models"
)

type Message string

const (
	MessageNone          Message = ""
	MessageBound         Message = "bound"
	MessageExecuteOnly   Message = "execute_only"
	MessageActionRefused Message = "action_refused"
	MessageIdle          Message = "idle"
	MessageBackground    Message = "background"
	MessageExpired       Message = "expired"
	MessageResolved      Message = "resolved"
	MessageQueued        Message = "queued"
)

var messages = map[Message]string{
	MessageBound:         "This obligation is bound.",
	MessageExecuteOnly:   "Only execution is available until it is complete.",
	MessageActionRefused: "That action is unavailable while an obligation is bound.",
	MessageIdle:          "No activity has been recorded.",
	MessageBackground:    "Time away from the obligation has been recorded.",
	MessageExpired:       "The execution window has closed.",
	MessageResolved:      "Obligation executed.",
	MessageQueued:        "Another bound obligation follows.",
}

// Text returns the sentence for m.
func Text(m Message) (string, error) {
	s, ok := messages[m]
	if !ok {
		return "", fmt.Errorf("unknown lock screen message %q", m)
	}
	return s, nil
}

// Allowed reports whether s is one of the lock screen sentences.
func Allowed(s string) bool {
	for _, text := range messages {
		if text == s {
			return true
		}
	}
	return false
}

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true).
			Padding(1, 2).
			Align(lipgloss.Center)

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true).
			Padding(1, 0).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Width(40).
			Align(lipgloss.Center)

	progressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	remainingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true).
			Padding(1, 0, 0, 0)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true).
			Padding(1, 0, 0, 0)
)

const barWidth = 30

// View is everything the lock screen shows.
type View struct {
	Lock           models.ActionLock
	ObligationType string
	Now            time.Time
	Notice         Message
	Width, Height  int
}

// Render draws v. An unknown notice is an error rather than free text.
func Render(v View) (string, error) {
	bound, _ := Text(MessageBound)
	rows := []string{
		titleStyle.Render(bound),
		typeStyle.Render(v.ObligationType),
		progressStyle.Render(ProgressBar(v.Lock.UnitsCompleted, v.Lock.UnitsRequired, barWidth)),
		remainingStyle.Render(clock.FormatRemaining(v.Lock.TimeRemaining(v.Now))),
	}

	notice := v.Notice
	if notice == MessageNone {
		notice = MessageExecuteOnly
	}
	text, err := Text(notice)
	if err != nil {
		return "", err
	}
	rows = append(rows, noticeStyle.Render(text))

	content := lipgloss.JoinVertical(lipgloss.Center, rows...)
	if v.Width > 0 && v.Height > 0 {
		return lipgloss.Place(v.Width, v.Height, lipgloss.Center, lipgloss.Center, content), nil
	}
	return content, nil
}

// ProgressBar renders completed/required as a fixed-width bar followed by
// the unit count.
func ProgressBar(completed, required, width int) string {
	if required <= 0 || width <= 0 {
		return ""
	}
	filled := completed * width / required
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return fmt.Sprintf("%s%s %d/%d",
		strings.Repeat("█", filled),
		strings.Repeat("░", width-filled),
		completed, required)
}
