package chromeproc

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// chromePathEnv overrides browser binary discovery.
const chromePathEnv = "CHROMUX_CHROME"

// wellKnownPaths lists install locations probed before PATH lookup.
var wellKnownPaths = map[string][]string{
	"darwin": {
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		"/Applications/Chromium.app/Contents/MacOS/Chromium",
	},
	"linux": {
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
		"/snap/bin/chromium",
	},
	"windows": {
		`C:\Program Files\Google\Chrome\Application\chrome.exe`,
		`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
	},
}

// pathCandidates are tried with exec.LookPath as a last resort.
var pathCandidates = []string{
	"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome",
}

// ResolveExecutable finds the browser binary, preferring an explicit
// configured path, then the environment override, then well-known install
// locations, then PATH.
func ResolveExecutable(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured chrome path %q: %w", configured, err)
		}
		return configured, nil
	}
	if p := os.Getenv(chromePathEnv); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("%s=%q: %w", chromePathEnv, p, err)
		}
		return p, nil
	}
	for _, p := range wellKnownPaths[runtime.GOOS] {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	for _, name := range pathCandidates {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no chrome or chromium binary found (set %s)", chromePathEnv)
}
