package appconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DefaultWorkspace != "personal" {
		t.Fatalf("expected default workspace personal, got %q", cfg.DefaultWorkspace)
	}
	if got := cfg.Workspaces["personal"].Port; got != 9230 {
		t.Fatalf("expected personal port 9230, got %d", got)
	}
	if got := cfg.Workspaces["work"].Port; got != 9231 {
		t.Fatalf("expected work port 9231, got %d", got)
	}
}

func TestLoadWorkspacesReplaceDefaults(t *testing.T) {
	path := writeConfig(t, `{
  "workspaces": {
    "lab": {"profileDirectory": "lab", "port": 9400}
  },
  "defaultWorkspace": "lab"
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Workspaces) != 1 {
		t.Fatalf("expected the file's workspace set verbatim, got %v", cfg.Workspaces)
	}
	if cfg.DefaultWorkspace != "lab" {
		t.Fatalf("expected default workspace lab, got %q", cfg.DefaultWorkspace)
	}
	// Untouched sections keep their defaults.
	if cfg.HTTP.Addr == "" {
		t.Fatalf("expected default http addr")
	}
	if cfg.Chrome.PollAttempts == 0 {
		t.Fatalf("expected default poll attempts")
	}
}

func TestLoadRejectsEmptyWorkspaces(t *testing.T) {
	path := writeConfig(t, `{"workspaces": {}}`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "no workspaces") {
		t.Fatalf("expected no-workspaces error, got %v", err)
	}
}

func TestEnsureCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg, err := Ensure(path)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(cfg.Workspaces) != 2 {
		t.Fatalf("expected the two-entry default, got %v", cfg.Workspaces)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected config file on disk: %v", err)
	}
	var onDisk Config
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("parse written config: %v", err)
	}
	if onDisk.DefaultWorkspace != "personal" {
		t.Fatalf("expected written default workspace personal, got %q", onDisk.DefaultWorkspace)
	}
}

func TestWriteDefaultRefusesOverwrite(t *testing.T) {
	path := writeConfig(t, `{"workspaces":{"x":{"port":9400}}}`)
	if _, err := WriteDefault(path, false); err == nil {
		t.Fatalf("expected overwrite refusal")
	}
	if _, err := WriteDefault(path, true); err != nil {
		t.Fatalf("forced overwrite: %v", err)
	}
}

func TestServiceConfigConversion(t *testing.T) {
	cfg := DefaultConfig()
	serviceCfg, err := cfg.ServiceConfig()
	if err != nil {
		t.Fatalf("service config: %v", err)
	}
	if serviceCfg.DefaultWorkspace != "personal" {
		t.Fatalf("expected default workspace personal, got %q", serviceCfg.DefaultWorkspace)
	}
	if serviceCfg.PollAttempts != 50 {
		t.Fatalf("expected 50 poll attempts, got %d", serviceCfg.PollAttempts)
	}
	if serviceCfg.ProfileRoot == "" {
		t.Fatalf("expected profile root default")
	}
}
