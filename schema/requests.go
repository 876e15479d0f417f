package schema

// Workspace lifecycle.

// SwitchWorkspaceRequest describes a request to make a workspace current,
// launching its browser process if necessary.
type SwitchWorkspaceRequest struct {
	Workspace WorkspaceName
}

// SwitchWorkspaceResponse reports the running workspace.
type SwitchWorkspaceResponse struct {
	Workspace WorkspaceName
	Endpoint  string
	PID       int
}

// StopWorkspaceRequest describes a request to stop a workspace.
type StopWorkspaceRequest struct {
	Workspace WorkspaceName
}

// StopWorkspaceResponse reports the stopped workspace.
type StopWorkspaceResponse struct {
	Workspace WorkspaceName
	// Stopped is false when no process was tracked for the name.
	Stopped bool
}

// ListWorkspacesRequest describes a request for all workspace states.
type ListWorkspacesRequest struct{}

// ListWorkspacesResponse reports derived state for every configured
// workspace plus the current pointer.
type ListWorkspacesResponse struct {
	Workspaces []WorkspaceState
	Current    WorkspaceName
}

// CurrentWorkspaceRequest describes a request for the current workspace.
type CurrentWorkspaceRequest struct{}

// CurrentWorkspaceResponse reports the current workspace, if any.
type CurrentWorkspaceResponse struct {
	Workspace WorkspaceName
	Endpoint  string
}

// Page registry.

// GetOrCreatePageRequest describes a request to resolve a named page,
// creating it when no live page carries the name.
type GetOrCreatePageRequest struct {
	Name     PageName
	Viewport *Viewport
}

// GetOrCreatePageResponse reports the resolved page.
type GetOrCreatePageResponse struct {
	Page     PageSnapshot
	Endpoint string
	// Created is true when a new page was created rather than adopted.
	Created bool
}

// ListPagesRequest describes a request for all registered pages.
type ListPagesRequest struct{}

// ListPagesResponse reports all registered pages.
type ListPagesResponse struct {
	Pages []PageSnapshot
}

// ClosePageRequest describes a request to close a named page.
type ClosePageRequest struct {
	Name PageName
}

// ClosePageResponse reports the closed page.
type ClosePageResponse struct {
	Page PageSnapshot
}
