package appconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Load reads configuration from the provided path. If path is empty, uses
// DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetDefault("defaultWorkspace", cfg.DefaultWorkspace)
	v.SetDefault("profileRoot", cfg.ProfileRoot)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("chrome.path", cfg.Chrome.Path)
	v.SetDefault("chrome.headless", cfg.Chrome.Headless)
	v.SetDefault("chrome.windowWidth", cfg.Chrome.WindowWidth)
	v.SetDefault("chrome.windowHeight", cfg.Chrome.WindowHeight)
	v.SetDefault("chrome.pollIntervalMillis", cfg.Chrome.PollIntervalMillis)
	v.SetDefault("chrome.pollAttempts", cfg.Chrome.PollAttempts)
	v.SetDefault("chrome.terminateGraceSeconds", cfg.Chrome.TerminateGraceSeconds)
	v.SetDefault("display.listCommand", cfg.Display.ListCommand)
	v.SetDefault("display.createCommand", cfg.Display.CreateCommand)
	v.SetDefault("display.settleDelaySeconds", cfg.Display.SettleDelaySeconds)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		}
		// Absent file falls through to defaults.
	}

	// The workspace map comes from the file verbatim when present; viper
	// defaults would otherwise merge into user-defined maps.
	if v.IsSet("workspaces") {
		cfg.Workspaces = nil
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if len(cfg.Workspaces) == 0 {
		return Config{}, fmt.Errorf("config %s declares no workspaces", path)
	}
	return cfg, nil
}

// Ensure loads the config, writing the default file first if none exists.
func Ensure(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if _, err := WriteDefault(path, false); err != nil {
			return Config{}, err
		}
	}
	return Load(path)
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	data, err := json.MarshalIndent(DefaultConfig(), "", "  ")
	if err != nil {
		return "", err
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
