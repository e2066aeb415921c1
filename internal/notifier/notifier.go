package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/mitchellh/go-ps"

	"github.com/julianstephens/lockstep/internal/constants"
	"github.com/julianstephens/lockstep/internal/logger"
)

var (
	userConfigDirFunc = os.UserConfigDir
	findProcessFunc   = ps.FindProcess
)

// Kind identifies a notification.
type Kind string

const (
	KindIdleWarning      Kind = "idle_warning"
	KindLockPersisted    Kind = "lock_persisted"
	KindLockCreated      Kind = "lock_created"
	KindLockResolved     Kind = "lock_resolved"
	KindObligationFailed Kind = "obligation_failed"
)

// Payload carries the fields of a notification.
type Payload map[string]string

// Sink receives fire-and-forget notifications. Trigger must not block the
// caller and must not report errors.
type Sink interface {
	Trigger(kind Kind, payload Payload)
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Trigger(Kind, Payload) {}

type Notifier struct {
	enabled bool
	send    func(ctx context.Context, text string) error
	wg      sync.WaitGroup
}

type WebhookPayload struct {
	Text       string `json:"text"`
	DurationMs uint32 `json:"duration_ms"`
}

// New returns a notifier that delivers through the tray application. A
// disabled notifier accepts triggers and drops them.
func New(enabled bool) *Notifier {
	n := &Notifier{enabled: enabled}
	n.send = n.notify
	return n
}

// Trigger formats the notification and delivers it on its own goroutine.
// Delivery failures are logged at debug level only.
func (n *Notifier) Trigger(kind Kind, payload Payload) {
	if !n.enabled {
		return
	}
	text := Message(kind, payload)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), constants.NotificationTimeout)
		defer cancel()
		if err := n.send(ctx, text); err != nil {
			logger.Debug("Notification not delivered", "kind", kind, "error", err)
		}
	}()
}

// Wait blocks until every triggered delivery has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// Notify delivers text synchronously.
func (n *Notifier) Notify(ctx context.Context, text string) error {
	return n.send(ctx, text)
}

func (n *Notifier) notify(ctx context.Context, text string) error {
	trayAppConfigPath, err := GetTrayAppConfigDir()
	if err != nil {
		return err
	}

	port, secret, err := findAndValidateTrayProcess(filepath.Join(trayAppConfigPath, constants.NotifierLockfileName))
	if err != nil {
		return err
	}

	payload := WebhookPayload{
		Text:       text,
		DurationMs: constants.NotificationDurationMs,
	}
	return sendNotification(ctx, port, secret, payload)
}

// Message renders the user-facing text for a notification.
func Message(kind Kind, payload Payload) string {
	var text string
	switch kind {
	case KindIdleWarning:
		text = "Your obligation is waiting. Log your execution."
	case KindLockPersisted:
		text = "Your obligation is still active. Complete it to continue."
	case KindLockCreated:
		text = "An obligation is now due. Everything else is locked until it is executed."
	case KindLockResolved:
		text = "Obligation executed. Access restored."
	case KindObligationFailed:
		text = "Obligation failed. Consequences applied."
	default:
		text = string(kind)
	}

	if detail := payload["type"]; detail != "" {
		text = fmt.Sprintf("[%s] %s", detail, text)
	}
	return text
}

// GetTrayAppConfigDir returns the configuration directory used by the tray application.
func GetTrayAppConfigDir() (string, error) {
	configDir, err := userConfigDirFunc()
	if err != nil {
		return "", fmt.Errorf("failed to get user config dir: %w", err)
	}

	trayConfigDir := filepath.Join(configDir, constants.TrayAppIdentifier)

	// Check for settings.json to see if a custom lockfile dir is set
	settingsPath := filepath.Join(trayConfigDir, "settings.json")
	if data, err := os.ReadFile(settingsPath); err == nil {
		var store struct {
			Settings struct {
				LockfileDir *string `json:"lockfile_dir"`
			} `json:"settings"`
		}
		if err := json.Unmarshal(data, &store); err == nil {
			if store.Settings.LockfileDir != nil && *store.Settings.LockfileDir != "" {
				return *store.Settings.LockfileDir, nil
			}
		}
	}

	return trayConfigDir, nil
}

func findAndValidateTrayProcess(lockfilePath string) (string, string, error) {
	content, err := os.ReadFile(lockfilePath)
	if err != nil {
		return "", "", errors.New("tray application is not running")
	}

	parts := strings.Split(strings.TrimSpace(string(content)), "|")
	if len(parts) != 3 {
		return "", "", errors.New("lockfile is malformed")
	}

	port := parts[0]
	if strings.TrimSpace(port) == "" {
		return "", "", errors.New("port in lockfile is empty")
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return "", "", errors.New("invalid port number in lockfile")
	}
	if portNum < 1 || portNum > 65535 {
		return "", "", fmt.Errorf("port number %d is outside valid range (1-65535)", portNum)
	}

	pid, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", "", errors.New("invalid process ID in lockfile")
	}
	secret := parts[2]
	if strings.TrimSpace(secret) == "" {
		return "", "", errors.New("secret in lockfile is empty")
	}

	process, err := findProcessFunc(pid)
	if err != nil || process == nil {
		return "", "", errors.New("tray process not running")
	}

	if !strings.HasPrefix(process.Executable(), constants.TrayExecutableName) {
		return "", "", fmt.Errorf("process with PID %d is not %s (is %s)", pid, constants.TrayExecutableName, process.Executable())
	}

	return port, secret, nil
}

func sendNotification(ctx context.Context, port string, secret string, payload WebhookPayload) error {
	url := fmt.Sprintf("http://127.0.0.1:%s", port)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(constants.TraySecretHeader, secret)

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(res.Body)
	return fmt.Errorf("notification failed with status %d: %s", res.StatusCode, string(body))
}

// Event is one recorded notification.
type Event struct {
	Kind    Kind
	Payload Payload
}

// Recorder is a Sink that keeps every notification in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Trigger(kind Kind, payload Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Kind: kind, Payload: payload})
}

// Events returns a copy of the recorded notifications.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the recorded kinds in trigger order.
func (r *Recorder) Kinds() []Kind {
	events := r.Events()
	kinds := make([]Kind, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	return kinds
}

// Count returns how many notifications of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	n := 0
	for _, e := range r.Events() {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
