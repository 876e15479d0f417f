package chromeproc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/chromux/core"
	"pkt.systems/chromux/internal/display"
	"pkt.systems/chromux/schema"
)

func TestBuildArgs(t *testing.T) {
	req := core.LaunchRequest{
		Workspace:    "personal",
		ProfileDir:   "/tmp/profiles/personal",
		Port:         9230,
		WindowWidth:  1920,
		WindowHeight: 1080,
	}

	args := buildArgs(req, &display.Info{OriginX: 2560, OriginY: 0}, false)
	want := []string{
		"--user-data-dir=/tmp/profiles/personal",
		"--remote-debugging-port=9230",
		"--window-size=1920,1080",
		"--no-first-run",
		"--no-default-browser-check",
		"--window-position=2560,0",
		"about:blank",
	}
	if len(args) != len(want) {
		t.Fatalf("unexpected args: %v", args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("arg %d: got %q want %q", i, args[i], want[i])
		}
	}

	headlessArgs := buildArgs(req, nil, true)
	joined := strings.Join(headlessArgs, " ")
	if !strings.Contains(joined, "--headless=new") || !strings.Contains(joined, "--disable-gpu") {
		t.Fatalf("expected headless flags, got %v", headlessArgs)
	}
	if strings.Contains(joined, "--window-position") {
		t.Fatalf("expected no window position without placement, got %v", headlessArgs)
	}
	if headlessArgs[len(headlessArgs)-1] != "about:blank" {
		t.Fatalf("expected blank start target last, got %v", headlessArgs)
	}
}

// devtoolsPort extracts the port a test server listens on so the poll can
// be pointed at it.
func devtoolsPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return port
}

func TestWaitForDevToolsSucceedsAfterRetries(t *testing.T) {
	var mu sync.Mutex
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		n := requests
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"webSocketDebuggerUrl":"ws://127.0.0.1:9230/devtools/browser/abc"}`))
	}))
	defer srv.Close()

	l := NewLauncher(Config{PollInterval: 5 * time.Millisecond, PollAttempts: 5}, nil, nil)
	endpoint, err := l.waitForDevTools(context.Background(), devtoolsPort(t, srv))
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if endpoint != "ws://127.0.0.1:9230/devtools/browser/abc" {
		t.Fatalf("unexpected endpoint: %q", endpoint)
	}
	mu.Lock()
	defer mu.Unlock()
	if requests != 3 {
		t.Fatalf("expected three polls, got %d", requests)
	}
}

func TestWaitForDevToolsExhaustsAttempts(t *testing.T) {
	var mu sync.Mutex
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	const attempts = 4
	l := NewLauncher(Config{PollInterval: 5 * time.Millisecond, PollAttempts: attempts}, nil, nil)
	_, err := l.waitForDevTools(context.Background(), devtoolsPort(t, srv))
	if err == nil {
		t.Fatalf("expected exhaustion error")
	}
	mu.Lock()
	defer mu.Unlock()
	if requests != attempts {
		t.Fatalf("expected exactly %d polls, got %d", attempts, requests)
	}
}

func TestWaitForDevToolsMissingEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	l := NewLauncher(Config{PollInterval: 5 * time.Millisecond, PollAttempts: 2}, nil, nil)
	_, err := l.waitForDevTools(context.Background(), devtoolsPort(t, srv))
	if err == nil || !strings.Contains(err.Error(), "webSocketDebuggerUrl") {
		t.Fatalf("expected missing-endpoint error, got %v", err)
	}
}

func TestResolveExecutableConfiguredPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chrome")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	got, err := ResolveExecutable(path)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != path {
		t.Fatalf("expected configured path, got %q", got)
	}

	if _, err := ResolveExecutable(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing configured path")
	}
}

func TestResolveExecutableEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chrome")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	t.Setenv(chromePathEnv, path)
	got, err := ResolveExecutable("")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != path {
		t.Fatalf("expected env override, got %q", got)
	}

	t.Setenv(chromePathEnv, filepath.Join(t.TempDir(), "missing"))
	if _, err := ResolveExecutable(""); err == nil {
		t.Fatalf("expected error for dangling env override")
	}
}

// stubProc implements core.ProcessHandle for termination tests.
type stubProc struct {
	done chan struct{}

	mu      sync.Mutex
	signals []core.ProcessSignal
}

func (p *stubProc) PID() int { return 4242 }

func (p *stubProc) Signal(sig core.ProcessSignal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = append(p.signals, sig)
	return nil
}

func (p *stubProc) Done() <-chan struct{} { return p.done }

func (p *stubProc) recorded() []core.ProcessSignal {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.ProcessSignal, len(p.signals))
	copy(out, p.signals)
	return out
}

func instanceFor(proc core.ProcessHandle) *core.ChromeInstance {
	return &core.ChromeInstance{
		Workspace: schema.WorkspaceName("personal"),
		Port:      9230,
		Endpoint:  "ws://127.0.0.1:9230/devtools/browser/abc",
		Proc:      proc,
	}
}

func waitForSignals(t *testing.T, proc *stubProc, want int) []core.ProcessSignal {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if sigs := proc.recorded(); len(sigs) >= want {
			return sigs
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d signals, have %v", want, proc.recorded())
	return nil
}

func TestTerminateEscalatesAfterGrace(t *testing.T) {
	l := NewLauncher(Config{TerminateGrace: time.Minute}, nil, nil)
	timer := make(chan time.Time, 1)
	l.after = func(time.Duration) <-chan time.Time { return timer }

	proc := &stubProc{done: make(chan struct{})}
	if err := l.Terminate(context.Background(), instanceFor(proc)); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	sigs := waitForSignals(t, proc, 1)
	if sigs[0] != core.ProcessSignalTERM {
		t.Fatalf("expected TERM first, got %v", sigs)
	}

	timer <- time.Now()
	sigs = waitForSignals(t, proc, 2)
	if sigs[1] != core.ProcessSignalKILL {
		t.Fatalf("expected KILL after grace, got %v", sigs)
	}
}

func TestTerminateSkipsKillWhenExited(t *testing.T) {
	l := NewLauncher(Config{TerminateGrace: time.Minute}, nil, nil)
	timer := make(chan time.Time, 1)
	l.after = func(time.Duration) <-chan time.Time { return timer }

	proc := &stubProc{done: make(chan struct{})}
	if err := l.Terminate(context.Background(), instanceFor(proc)); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	close(proc.done)

	// Give the grace goroutine a moment to observe the exit.
	time.Sleep(20 * time.Millisecond)
	timer <- time.Now()
	time.Sleep(20 * time.Millisecond)

	sigs := proc.recorded()
	for _, sig := range sigs[1:] {
		if sig == core.ProcessSignalKILL {
			t.Fatalf("expected no KILL after clean exit, got %v", sigs)
		}
	}
}

func TestTerminateNilInstance(t *testing.T) {
	l := NewLauncher(Config{}, nil, nil)
	if err := l.Terminate(context.Background(), nil); err != nil {
		t.Fatalf("terminate nil: %v", err)
	}
}

func TestLaunchBinaryNotFound(t *testing.T) {
	l := NewLauncher(Config{ChromePath: filepath.Join(t.TempDir(), "missing")}, nil, nil)
	_, err := l.Launch(context.Background(), core.LaunchRequest{Workspace: "personal", Port: 9230})
	var le *core.LaunchError
	if !errors.As(err, &le) {
		t.Fatalf("expected launch error, got %v", err)
	}
	if le.Kind != core.LaunchErrorBinaryNotFound {
		t.Fatalf("expected binary-not-found kind, got %q", le.Kind)
	}
}
