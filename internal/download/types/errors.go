package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration matches every *ConfigurationError via errors.Is.
	ErrConfiguration = errors.New("invalid download configuration")
	// ErrUserCancelled marks a session that ended because of a stop request.
	// It is an outcome, not a failure.
	ErrUserCancelled = errors.New("download cancelled by user")
	// ErrSessionActive is returned when starting while another session runs.
	ErrSessionActive = errors.New("a download session is already active")
	// ErrNoSession is returned by lookups when nothing has been started.
	ErrNoSession = errors.New("no download session")
)

// ConfigurationError reports a request that was rejected before any session
// was created.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// ToolingMissingError means the external transfer executable is not available.
type ToolingMissingError struct {
	Binary   string
	Searched []string
}

func (e *ToolingMissingError) Error() string {
	if len(e.Searched) == 0 {
		return fmt.Sprintf("transfer tool %s not found", e.Binary)
	}
	return fmt.Sprintf("transfer tool %s not found (searched: %s)", e.Binary, strings.Join(e.Searched, ", "))
}

// TransferFailedError reports a transfer process that exited abnormally
// without being asked to stop.
type TransferFailedError struct {
	File        string
	ExitCode    int
	Diagnostics string
}

func (e *TransferFailedError) Error() string {
	msg := fmt.Sprintf("download failed: %s (exit code %d)", e.File, e.ExitCode)
	if d := strings.TrimSpace(e.Diagnostics); d != "" {
		msg += ": " + d
	}
	return msg
}
