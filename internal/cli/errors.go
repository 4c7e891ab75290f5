// Package cli holds what the m2m commands share: configuration loading,
// logger setup and the mapping from failures to process exit codes.
package cli

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes of the m2m binary. Scripts driving a migration or a cleanup can
// tell a broken setup (config, database) from a run that did not finish.
const (
	ExitSuccess    = 0
	ExitGeneral    = 1
	ExitConfig     = 2
	ExitMigration  = 3
	ExitDBConnect  = 4
	ExitIncomplete = 5
)

// ExitError is a command failure carrying the exit code to report.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode returns the code err should end the process with.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitGeneral
}

// ExitWithError prints err to stderr and exits with ExitCode(err).
func ExitWithError(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(ExitCode(err))
}

// ConfigError reports an unreadable or invalid m2m.yaml, env or flag value.
func ConfigError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitConfig, Message: msg, Err: err}
}

// MigrationError reports a migration step that ended with an error status.
func MigrationError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitMigration, Message: msg, Err: err}
}

// DBConnectError reports a database that cannot be opened or pinged.
func DBConnectError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitDBConnect, Message: msg, Err: err}
}

// IncompleteError reports a command that ran but left work behind: failed
// health checks, or intermediary posts that could not be deleted.
func IncompleteError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitIncomplete, Message: msg, Err: err}
}

// GeneralError reports any other failure.
func GeneralError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitGeneral, Message: msg, Err: err}
}
