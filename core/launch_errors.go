package core

import (
	"errors"
	"fmt"

	"pkt.systems/chromux/schema"
)

// LaunchErrorKind classifies launch failures for user-facing hints.
type LaunchErrorKind string

const (
	// LaunchErrorUnknown is an uncategorized launch failure.
	LaunchErrorUnknown LaunchErrorKind = "unknown"
	// LaunchErrorBinaryNotFound indicates no browser binary exists for
	// the current platform.
	LaunchErrorBinaryNotFound LaunchErrorKind = "binary_not_found"
	// LaunchErrorSpawn indicates the process failed to start.
	LaunchErrorSpawn LaunchErrorKind = "spawn"
	// LaunchErrorNotReady indicates the control-protocol endpoint never
	// became ready within the retry budget.
	LaunchErrorNotReady LaunchErrorKind = "not_ready"
)

// LaunchError wraps a failed browser launch with a stable classification.
type LaunchError struct {
	Kind      LaunchErrorKind
	Workspace schema.WorkspaceName
	// Attempts is the number of readiness poll attempts made before
	// giving up; zero for failures before polling started.
	Attempts int
	Err      error
}

// NewLaunchError constructs a classified launch error.
func NewLaunchError(kind LaunchErrorKind, workspace schema.WorkspaceName, err error) *LaunchError {
	return &LaunchError{Kind: kind, Workspace: workspace, Err: err}
}

func (e *LaunchError) Error() string {
	if e == nil {
		return "launch error"
	}
	msg := fmt.Sprintf("workspace %q launch failed", e.Workspace)
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *LaunchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsLaunchError reports whether err wraps a LaunchError.
func IsLaunchError(err error) bool {
	var le *LaunchError
	return errors.As(err, &le)
}
