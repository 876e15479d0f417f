package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"pkt.systems/chromux/internal/display"
	"pkt.systems/chromux/schema"
)

// Config is the top-level application configuration, persisted as JSON.
type Config struct {
	Workspaces       map[string]WorkspaceConfig `mapstructure:"workspaces" json:"workspaces"`
	DefaultWorkspace string                     `mapstructure:"defaultWorkspace" json:"defaultWorkspace"`
	ProfileRoot      string                     `mapstructure:"profileRoot" json:"profileRoot,omitempty"`
	HTTP             HTTPConfig                 `mapstructure:"http" json:"http"`
	Chrome           ChromeConfig               `mapstructure:"chrome" json:"chrome"`
	Display          DisplayConfig              `mapstructure:"display" json:"display"`
}

// WorkspaceConfig declares one static workspace.
type WorkspaceConfig struct {
	ProfileDirectory string `mapstructure:"profileDirectory" json:"profileDirectory"`
	Port             int    `mapstructure:"port" json:"port"`
}

// HTTPConfig configures the control-plane HTTP server.
type HTTPConfig struct {
	Addr string `mapstructure:"addr" json:"addr"`
}

// ChromeConfig tunes browser launch and supervision.
type ChromeConfig struct {
	// Path overrides browser binary discovery.
	Path                  string `mapstructure:"path" json:"path,omitempty"`
	Headless              bool   `mapstructure:"headless" json:"headless"`
	WindowWidth           int    `mapstructure:"windowWidth" json:"windowWidth"`
	WindowHeight          int    `mapstructure:"windowHeight" json:"windowHeight"`
	PollIntervalMillis    int    `mapstructure:"pollIntervalMillis" json:"pollIntervalMillis"`
	PollAttempts          int    `mapstructure:"pollAttempts" json:"pollAttempts"`
	TerminateGraceSeconds int    `mapstructure:"terminateGraceSeconds" json:"terminateGraceSeconds"`
}

// DisplayConfig tunes off-screen display detection.
type DisplayConfig struct {
	ListCommand        string `mapstructure:"listCommand" json:"listCommand,omitempty"`
	CreateCommand      string `mapstructure:"createCommand" json:"createCommand,omitempty"`
	SettleDelaySeconds int    `mapstructure:"settleDelaySeconds" json:"settleDelaySeconds,omitempty"`
}

// DefaultConfig returns a config with a two-workspace default.
func DefaultConfig() Config {
	return Config{
		Workspaces: map[string]WorkspaceConfig{
			"personal": {ProfileDirectory: "personal", Port: 9230},
			"work":     {ProfileDirectory: "work", Port: 9231},
		},
		DefaultWorkspace: "personal",
		HTTP: HTTPConfig{
			Addr: "127.0.0.1:9320",
		},
		Chrome: ChromeConfig{
			Headless:              false,
			WindowWidth:           schema.DefaultWindowWidth,
			WindowHeight:          schema.DefaultWindowHeight,
			PollIntervalMillis:    int(schema.DefaultPollInterval / time.Millisecond),
			PollAttempts:          schema.DefaultPollAttempts,
			TerminateGraceSeconds: int(schema.DefaultTerminateGrace / time.Second),
		},
		Display: DisplayConfig{},
	}
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".chromux", "config.json"), nil
}

// ServiceConfig converts the application config into the core service
// config, applying defaults and validation.
func (c Config) ServiceConfig() (schema.ServiceConfig, error) {
	workspaces := make(map[schema.WorkspaceName]schema.WorkspaceConfig, len(c.Workspaces))
	for name, ws := range c.Workspaces {
		workspaces[schema.WorkspaceName(name)] = schema.WorkspaceConfig{
			ProfileDirectory: ws.ProfileDirectory,
			Port:             ws.Port,
		}
	}
	return schema.NormalizeServiceConfig(schema.ServiceConfig{
		Workspaces:       workspaces,
		DefaultWorkspace: schema.WorkspaceName(c.DefaultWorkspace),
		ProfileRoot:      c.ProfileRoot,
		Headless:         c.Chrome.Headless,
		WindowWidth:      c.Chrome.WindowWidth,
		WindowHeight:     c.Chrome.WindowHeight,
		PollInterval:     time.Duration(c.Chrome.PollIntervalMillis) * time.Millisecond,
		PollAttempts:     c.Chrome.PollAttempts,
		TerminateGrace:   time.Duration(c.Chrome.TerminateGraceSeconds) * time.Second,
	})
}

// DisplayResolverConfig converts the display section into resolver options.
func (c Config) DisplayResolverConfig() display.Config {
	return display.Config{
		ListCommand:   strings.Fields(c.Display.ListCommand),
		CreateCommand: strings.Fields(c.Display.CreateCommand),
		SettleDelay:   time.Duration(c.Display.SettleDelaySeconds) * time.Second,
	}
}
