package constants

// Action names routed through the action router.
const (
	// Execution-only actions, never blocked by a lock
	ActionLogExecution          = "LOG_EXECUTION"
	ActionConfirmCompletion     = "CONFIRM_COMPLETION"
	ActionViewCurrentObligation = "VIEW_CURRENT_OBLIGATION"
	ActionViewTimeRemaining     = "VIEW_TIME_REMAINING"

	// Navigation
	ActionNavigate   = "NAVIGATE"
	ActionGoHome     = "GO_HOME"
	ActionGoBack     = "GO_BACK"
	ActionOpenTab    = "OPEN_TAB"
	ActionExitApp    = "EXIT_APP"
	ActionOpenScreen = "OPEN_SCREEN"

	// Settings
	ActionOpenSettings   = "OPEN_SETTINGS"
	ActionChangeSettings = "CHANGE_SETTINGS"
	ActionRestoreBackup  = "RESTORE_BACKUP"
	ActionManageKeyring  = "MANAGE_KEYRING"

	// Planning
	ActionAccessPlanning       = "ACCESS_PLANNING"
	ActionCreateObligation     = "CREATE_OBLIGATION"
	ActionRescheduleObligation = "RESCHEDULE_OBLIGATION"
	ActionModifyObligation     = "MODIFY_OBLIGATION"
	ActionDeleteObligation     = "DELETE_OBLIGATION"
	ActionViewMealPlan         = "VIEW_MEAL_PLAN"
	ActionViewWorkoutPlan      = "VIEW_WORKOUT_PLAN"

	// History
	ActionViewHistory      = "VIEW_HISTORY"
	ActionViewExecutionLog = "VIEW_EXECUTION_LOG"

	// Social
	ActionShareProgress = "SHARE_PROGRESS"
	ActionViewFeed      = "VIEW_FEED"

	// Analytics
	ActionViewAnalytics = "VIEW_ANALYTICS"
	ActionViewStats     = "VIEW_STATS"
)
