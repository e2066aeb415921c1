package errors

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/julianstephens/lockstep/internal/logger"
)

// Format formats an error message with a consistent "Error: " prefix
func Format(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Error: %v", err)
}

// Formatf formats an error message with a consistent "Error: " prefix using a format string
func Formatf(format string, args ...interface{}) string {
	return fmt.Sprintf("Error: "+format, args...)
}

// Hint returns a follow-up line telling the user what unblocks a refused
// action, or "" for ordinary failures.
func Hint(err error) string {
	var locked *ActionLockedError
	switch {
	case stderrors.As(err, &locked):
		return fmt.Sprintf("Log executions for obligation %s to release the lock.", locked.ObligationID)
	case stderrors.Is(err, ErrActionLocked):
		return "Log executions for the bound obligation to release the lock."
	case stderrors.Is(err, ErrRestricted):
		return "Complete scheduled obligations to lower the restriction level."
	case stderrors.Is(err, ErrBindingViolation):
		return "Obligations that are binding or bound can only be executed."
	default:
		return ""
	}
}

// Fatal logs err, prints it with its hint and exits with ExitCode(err).
func Fatal(err error) {
	if err == nil {
		return
	}
	logger.Error("Command execution failed", "error", err)
	fmt.Fprintln(os.Stderr, Format(err))
	if hint := Hint(err); hint != "" {
		fmt.Fprintln(os.Stderr, hint)
	}
	os.Exit(ExitCode(err))
}

// Fatalf logs and formats an error message, then exits the program with exit code 1
func Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Error("Command execution failed", "error", msg)
	fmt.Fprintln(os.Stderr, Formatf(format, args...))
	os.Exit(1)
}
