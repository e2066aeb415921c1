package constants

import "time"

const (
	AppName            = "lockstep"
	DefaultKeyringUser = "storage-connection"
	DefaultConfigDir   = "~/.config/lockstep"
	DefaultConfigFile  = "config.yaml"
	DefaultDBFile      = "lockstep.db"
	DefaultUserID      = "local"
	Version            = "v0.1.0"

	// DateTimeFormat is the format accepted for obligation times on the command line
	DateTimeFormat = "2006-01-02 15:04"

	// Binding and execution windows
	BindingWindow   = 24 * time.Hour
	ExecutionWindow = 24 * time.Hour

	// Escape detection
	BackgroundTolerance    = 30 * time.Second
	EscapeAttemptThreshold = 5

	// Debt multipliers applied on failure
	AvoidanceDebtMultiplier     = 1.5
	ActiveRefusalDebtMultiplier = 2.0

	// Restriction levels
	MaxRestrictionLevel       = 4
	LiftingExecutionsPerLevel = 3

	// Backup constants
	MaxBackups       = 14
	BackupDirName    = "backups"
	BackupFilePrefix = "lockstep-"
	BackupFileSuffix = ".db"

	// Notify constants
	NotifierLockfileName   = "daylit-notifier.lock"
	NotificationDurationMs = 5000
	TrayAppIdentifier      = "com.julianstephens.daylit"
	TrayExecutableName     = "daylit-tray"
	TraySecretHeader       = "X-Daylit-Secret"
	NotificationTimeout    = 5 * time.Second
)

// IdleWarningThresholds are the inactivity durations, in ascending order, at
// which an idle warning is sent while a lock is active.
var IdleWarningThresholds = []time.Duration{
	60 * time.Second,
	300 * time.Second,
	600 * time.Second,
}
