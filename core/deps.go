package core

import "pkt.systems/pslog"

// ServiceDeps captures dependencies for the core service.
type ServiceDeps struct {
	Launcher    BrowserLauncher
	Connections ConnectionPool
	Logger      pslog.Logger
}
