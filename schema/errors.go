package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidWorkspaceName indicates a missing or malformed workspace name.
	ErrInvalidWorkspaceName = errors.New("invalid workspace name")
	// ErrUnknownWorkspace indicates the workspace is not in the static config.
	ErrUnknownWorkspace = errors.New("unknown workspace")
	// ErrInvalidPageName indicates a missing or malformed page name.
	ErrInvalidPageName = errors.New("invalid page name")
	// ErrPageNotFound indicates a requested page is not registered.
	ErrPageNotFound = errors.New("page not found")
	// ErrNoWorkspace indicates no workspace is current and no default exists.
	ErrNoWorkspace = errors.New("no workspace selected")
	// ErrLauncherUnavailable indicates no browser launcher is configured.
	ErrLauncherUnavailable = errors.New("browser launcher not configured")
	// ErrConnectionUnavailable indicates no connection pool is configured.
	ErrConnectionUnavailable = errors.New("connection pool not configured")
)
