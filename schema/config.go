package schema

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ServiceConfig defines the static workspace set and launch tuning for the
// core service.
type ServiceConfig struct {
	Workspaces       map[WorkspaceName]WorkspaceConfig
	DefaultWorkspace WorkspaceName
	// ProfileRoot is the directory under which per-workspace Chrome
	// profiles are created.
	ProfileRoot string
	// Headless forces headless mode even when an off-screen placement
	// could be resolved.
	Headless     bool
	WindowWidth  int
	WindowHeight int
	// PollInterval and PollAttempts bound the DevTools readiness poll.
	PollInterval time.Duration
	PollAttempts int
	// TerminateGrace is the window between the graceful stop signal and
	// the forced kill.
	TerminateGrace time.Duration
}

// Launch tuning defaults.
const (
	DefaultWindowWidth    = 1920
	DefaultWindowHeight   = 1080
	DefaultPollAttempts   = 50
	DefaultPollInterval   = 200 * time.Millisecond
	DefaultTerminateGrace = 5 * time.Second
)

// NormalizeServiceConfig applies defaults and validates the config.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	if len(cfg.Workspaces) == 0 {
		return ServiceConfig{}, errors.New("at least one workspace is required")
	}
	if cfg.ProfileRoot == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ServiceConfig{}, err
		}
		cfg.ProfileRoot = filepath.Join(home, ".chromux", "profiles")
	}
	if cfg.WindowWidth <= 0 {
		cfg.WindowWidth = DefaultWindowWidth
	}
	if cfg.WindowHeight <= 0 {
		cfg.WindowHeight = DefaultWindowHeight
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = DefaultPollAttempts
	}
	if cfg.TerminateGrace <= 0 {
		cfg.TerminateGrace = DefaultTerminateGrace
	}
	ports := make(map[int]WorkspaceName, len(cfg.Workspaces))
	for name, ws := range cfg.Workspaces {
		if _, err := NormalizeWorkspaceName(string(name)); err != nil {
			return ServiceConfig{}, fmt.Errorf("workspace %q: %w", name, err)
		}
		if ws.Port <= 0 || ws.Port > 65535 {
			return ServiceConfig{}, fmt.Errorf("workspace %q: port %d out of range", name, ws.Port)
		}
		if other, ok := ports[ws.Port]; ok {
			return ServiceConfig{}, fmt.Errorf("workspaces %q and %q share port %d", other, name, ws.Port)
		}
		ports[ws.Port] = name
		if ws.ProfileDirectory == "" {
			ws.ProfileDirectory = string(name)
			cfg.Workspaces[name] = ws
		}
	}
	if cfg.DefaultWorkspace != "" {
		if _, ok := cfg.Workspaces[cfg.DefaultWorkspace]; !ok {
			return ServiceConfig{}, fmt.Errorf("default workspace %q is not configured", cfg.DefaultWorkspace)
		}
	}
	return cfg, nil
}
