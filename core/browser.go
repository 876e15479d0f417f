package core

import (
	"context"

	"pkt.systems/chromux/schema"
)

// ProcessSignal indicates which signal to send to a browser process.
type ProcessSignal string

const (
	// ProcessSignalTERM requests a graceful termination signal.
	ProcessSignalTERM ProcessSignal = "TERM"
	// ProcessSignalKILL requests an immediate kill signal.
	ProcessSignalKILL ProcessSignal = "KILL"
)

// ProcessHandle controls a spawned browser OS process.
type ProcessHandle interface {
	PID() int
	Signal(sig ProcessSignal) error
	// Done is closed once the process has exited.
	Done() <-chan struct{}
}

// ChromeInstance is a running browser process. Instances are created by a
// BrowserLauncher and owned exclusively by the service that tracks them.
type ChromeInstance struct {
	Workspace schema.WorkspaceName
	Port      int
	// Endpoint is the WebSocket control-protocol URL extracted from the
	// process introspection endpoint.
	Endpoint string
	Proc     ProcessHandle
}

// PID reports the OS process id, or 0 when no process handle is attached.
func (i *ChromeInstance) PID() int {
	if i == nil || i.Proc == nil {
		return 0
	}
	return i.Proc.PID()
}

// LaunchRequest describes one browser process launch.
type LaunchRequest struct {
	Workspace    schema.WorkspaceName
	ProfileDir   string
	Port         int
	Headless     bool
	WindowWidth  int
	WindowHeight int
}

// BrowserLauncher launches and supervises browser processes.
type BrowserLauncher interface {
	Launch(ctx context.Context, req LaunchRequest) (*ChromeInstance, error)
	// Terminate requests a graceful stop and schedules a forced stop after
	// a grace period. It never blocks on process exit.
	Terminate(ctx context.Context, inst *ChromeInstance) error
}

// PageInfo describes one live page target reachable over a connection.
type PageInfo struct {
	TargetID schema.TargetID
	URL      string
	Title    string
}

// CreatePageSpec describes a page to create inside a fresh isolated
// browsing context.
type CreatePageSpec struct {
	// Marker is written into the context's runtime scope for every page
	// created within it, so identity can be recovered after a restart.
	Marker string
	Width  int
	Height int
}

// Connection is one automation-protocol connection to a running workspace.
type Connection interface {
	ListPages(ctx context.Context) ([]PageInfo, error)
	// ReadMarker reads the application marker embedded in a page's runtime
	// scope. Errors are expected for closed or mid-navigation pages and
	// are skipped by callers.
	ReadMarker(ctx context.Context, id schema.TargetID) (string, error)
	CreatePage(ctx context.Context, spec CreatePageSpec) (PageInfo, error)
	ClosePage(ctx context.Context, id schema.TargetID) error
	// OnPageClosed registers the handler invoked when any page target is
	// destroyed. Registering replaces the previous handler.
	OnPageClosed(fn func(schema.TargetID))
	Close() error
}

// ConnectionPool lazily holds one connection per running workspace.
type ConnectionPool interface {
	// ConnectionFor returns the cached connection for the workspace,
	// establishing one over the given endpoint if none exists.
	ConnectionFor(ctx context.Context, name schema.WorkspaceName, endpoint string) (Connection, error)
	// Existing returns the cached connection without dialing.
	Existing(name schema.WorkspaceName) (Connection, bool)
	// CloseConnection closes and evicts the cached entry, best effort.
	CloseConnection(name schema.WorkspaceName)
	CloseAll()
}
