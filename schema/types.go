package schema

// WorkspaceName identifies a configured browser workspace.
type WorkspaceName string

// PageName is the logical application-level identifier of a page.
type PageName string

// TargetID is the durable opaque page identifier supplied by the
// automation protocol once a logical name has been resolved.
type TargetID string

// WorkspaceStatus describes the derived lifecycle state of a workspace.
type WorkspaceStatus string

const (
	// WorkspaceStopped means no browser process is tracked for the name.
	WorkspaceStopped WorkspaceStatus = "stopped"
	// WorkspaceStarting means a launch is in flight for the name.
	WorkspaceStarting WorkspaceStatus = "starting"
	// WorkspaceRunning means a browser process is tracked and reachable.
	WorkspaceRunning WorkspaceStatus = "running"
)

// WorkspaceConfig is the static declared configuration of one workspace.
type WorkspaceConfig struct {
	ProfileDirectory string
	Port             int
}

// WorkspaceState is the derived view of one workspace, computed on demand.
type WorkspaceState struct {
	Name     WorkspaceName   `json:"name"`
	Status   WorkspaceStatus `json:"status"`
	Port     int             `json:"port"`
	Endpoint string          `json:"endpoint,omitempty"`
	PID      int             `json:"pid,omitempty"`
}

// PageSnapshot is a transport-friendly view of one registered page.
type PageSnapshot struct {
	Name      PageName      `json:"name"`
	TargetID  TargetID      `json:"targetId"`
	Workspace WorkspaceName `json:"workspace"`
}

// Viewport is an optional page viewport size.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}
