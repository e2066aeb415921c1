package storage

const (
	prefixLock            = "lock:"
	prefixObligation      = "obligation:"
	prefixUser            = "user:"
	prefixUserObligations = "user-obligations:"
	prefixLockArchive     = "lock-archive:"
	prefixExecLog         = "execlog:"
	prefixEscapes         = "escapes:"
	prefixActionLog       = "actionlog:"
	prefixViolations      = "violations:"
)

func lockKey(userID string) string            { return prefixLock + userID }
func obligationKey(id string) string          { return prefixObligation + id }
func userKey(id string) string                { return prefixUser + id }
func userObligationsKey(userID string) string { return prefixUserObligations + userID }
func lockArchiveKey(userID string) string     { return prefixLockArchive + userID }
func execLogKey(userID string) string         { return prefixExecLog + userID }
func escapesKey(userID string) string         { return prefixEscapes + userID }
func actionLogKey(userID string) string       { return prefixActionLog + userID }
func violationsKey(userID string) string      { return prefixViolations + userID }
