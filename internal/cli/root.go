package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/julianstephens/lockstep/internal/backup"
	"github.com/julianstephens/lockstep/internal/clock"
	"github.com/julianstephens/lockstep/internal/config"
	"github.com/julianstephens/lockstep/internal/constants"
	"github.com/julianstephens/lockstep/internal/discipline"
	"github.com/julianstephens/lockstep/internal/kv"
	"github.com/julianstephens/lockstep/internal/logger"
	"github.com/julianstephens/lockstep/internal/models"
	"github.com/julianstephens/lockstep/internal/notifier"
	"github.com/julianstephens/lockstep/internal/storage"
)

type Context struct {
	Ctx    context.Context
	Config config.Config
	// ConfigPath is the file Config was loaded from.
	ConfigPath string
	Store      kv.Provider
	Clock      clock.Clock
	Notifier   notifier.Sink
	Service    *discipline.Service
	Out        io.Writer
}

// NewContext wires the discipline service over store.
func NewContext(ctx context.Context, cfg config.Config, store kv.Provider, clk clock.Clock, sink notifier.Sink) *Context {
	if sink == nil {
		sink = notifier.Nop{}
	}
	return &Context{
		Ctx:      ctx,
		Config:   cfg,
		Store:    store,
		Clock:    clk,
		Notifier: sink,
		Service:  discipline.New(storage.NewKVRepository(store), clk, sink),
		Out:      os.Stdout,
	}
}

func (c *Context) User() string {
	return c.Config.User
}

func (c *Context) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

func (c *Context) Printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out(), format, args...)
}

func (c *Context) Println(args ...interface{}) {
	fmt.Fprintln(c.out(), args...)
}

// Route checks action for the configured user. A refusal is returned as
// the error.
func (c *Context) Route(action string, payload map[string]string) error {
	_, err := c.Service.RouteAction(c.Ctx, c.User(), action, payload)
	return err
}

// Migrator is implemented by the SQL backends.
type Migrator interface {
	Migrate(logFn func(string)) (int, error)
	PendingMigrations() (int, error)
}

// BackupManager returns the backup manager for the SQLite backend.
func (c *Context) BackupManager() (*backup.Manager, error) {
	if c.Config.Storage.Backend != config.BackendSQLite {
		return nil, fmt.Errorf("backups are only supported for SQLite storage (current: %s)", c.Config.Storage.Backend)
	}
	return backup.NewManager(c.Config.Storage.Path, c.Clock), nil
}

// PerformAutomaticBackup creates a backup and only logs failures.
func (c *Context) PerformAutomaticBackup() {
	mgr, err := c.BackupManager()
	if err != nil {
		return
	}
	if _, err := mgr.Create(); err != nil {
		logger.Warn("Automatic backup failed", "error", err)
	}
}

// ParseWhen reads a point in time: "now", an offset like "+12h" or "+3d",
// the "2006-01-02 15:04" format in the clock's location, or RFC 3339.
func ParseWhen(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == "now":
		return now, nil
	case strings.HasPrefix(s, "+"):
		d, err := parseOffset(s[1:])
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(d), nil
	}

	if t, err := time.ParseInLocation(constants.DateTimeFormat, s, now.Location()); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q: use now, +<duration>, %q or RFC 3339", s, constants.DateTimeFormat)
}

func parseOffset(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid offset %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid offset %q", s)
	}
	return d, nil
}

// FormatObligation renders one obligation on a single line.
func FormatObligation(o models.Obligation, loc *time.Location) string {
	flags := ""
	if o.DebtRepayment {
		flags = " [debt]"
	}
	return fmt.Sprintf("[%s] %s %s - %d/%d units, scheduled %s%s",
		o.Status, o.ID, o.Type, o.UnitsCompleted, o.UnitsRequired,
		o.ScheduledAt.In(loc).Format(constants.DateTimeFormat), flags)
}

// Location is the timezone times are shown in.
func (c *Context) Location() *time.Location {
	return c.Clock.Now().Location()
}
