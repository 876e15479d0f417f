// Package chromeproc launches and supervises local Chrome OS processes:
// one isolated profile and fixed DevTools port per workspace.
package chromeproc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"pkt.systems/chromux/core"
	"pkt.systems/chromux/internal/display"
	"pkt.systems/chromux/internal/logx"
	"pkt.systems/pslog"
)

// Config configures the launcher.
type Config struct {
	// ChromePath overrides browser binary discovery.
	ChromePath string
	// PollInterval and PollAttempts bound the DevTools readiness poll.
	PollInterval time.Duration
	PollAttempts int
	// TerminateGrace is the window between the graceful stop signal and
	// the forced kill.
	TerminateGrace time.Duration
}

// Launcher implements core.BrowserLauncher over local OS processes.
type Launcher struct {
	cfg     Config
	display *display.Resolver
	logger  pslog.Logger
	// after is a seam for the forced-termination grace timer.
	after func(time.Duration) <-chan time.Time
}

// NewLauncher constructs a launcher. The display resolver decides whether
// launches get an off-screen window position or fall back to headless.
func NewLauncher(cfg Config, resolver *display.Resolver, logger pslog.Logger) *Launcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 50
	}
	if cfg.TerminateGrace <= 0 {
		cfg.TerminateGrace = 5 * time.Second
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Launcher{cfg: cfg, display: resolver, logger: logger, after: time.After}
}

// Launch spawns a browser process for the workspace and waits for its
// control-protocol endpoint to become reachable.
func (l *Launcher) Launch(ctx context.Context, req core.LaunchRequest) (*core.ChromeInstance, error) {
	log := logx.WithWorkspace(ctx, req.Workspace)

	binary, err := ResolveExecutable(l.cfg.ChromePath)
	if err != nil {
		return nil, core.NewLaunchError(core.LaunchErrorBinaryNotFound, req.Workspace, err)
	}

	placement := (*display.Info)(nil)
	if l.display != nil {
		placement = l.display.Resolve(ctx)
	}
	headless := req.Headless || placement == nil

	if err := os.MkdirAll(req.ProfileDir, 0o700); err != nil {
		return nil, core.NewLaunchError(core.LaunchErrorSpawn, req.Workspace, err)
	}
	args := buildArgs(req, placement, headless)
	log.Debug("chrome launch", "binary", binary, "headless", headless, "args", args)

	cmd := exec.Command(binary, args...)
	cmd.SysProcAttr = detachedSysProcAttr()
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, core.NewLaunchError(core.LaunchErrorSpawn, req.Workspace, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, core.NewLaunchError(core.LaunchErrorSpawn, req.Workspace, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, core.NewLaunchError(core.LaunchErrorSpawn, req.Workspace, err)
	}
	proc := newProcess(cmd)
	plog := l.logger.With("workspace", req.Workspace, "pid", proc.PID())
	go watchOutput(plog, "stdout", stdout)
	go watchOutput(plog, "stderr", stderr)
	go func() {
		err := cmd.Wait()
		close(proc.done)
		if err != nil {
			plog.Debug("chrome exited", "err", err)
		} else {
			plog.Debug("chrome exited")
		}
	}()

	endpoint, err := l.waitForDevTools(ctx, req.Port)
	if err != nil {
		// The process is useless without a reachable endpoint.
		_ = proc.Signal(core.ProcessSignalKILL)
		le := &core.LaunchError{
			Kind:      core.LaunchErrorNotReady,
			Workspace: req.Workspace,
			Attempts:  l.cfg.PollAttempts,
			Err:       err,
		}
		return nil, le
	}
	return &core.ChromeInstance{
		Workspace: req.Workspace,
		Port:      req.Port,
		Endpoint:  endpoint,
		Proc:      proc,
	}, nil
}

// Terminate sends the graceful stop signal and schedules a forced kill
// after the grace period. It never blocks on process exit.
func (l *Launcher) Terminate(ctx context.Context, inst *core.ChromeInstance) error {
	if inst == nil || inst.Proc == nil {
		return nil
	}
	log := logx.WithWorkspace(ctx, inst.Workspace).With("pid", inst.PID())
	if err := inst.Proc.Signal(core.ProcessSignalTERM); err != nil {
		log.Debug("chrome terminate signal failed", "err", err)
	}
	grace := l.cfg.TerminateGrace
	proc := inst.Proc
	go func() {
		select {
		case <-proc.Done():
		case <-l.after(grace):
			log.Warn("chrome did not exit within grace period; killing")
			_ = proc.Signal(core.ProcessSignalKILL)
		}
	}()
	return nil
}

func (l *Launcher) waitForDevTools(ctx context.Context, port int) (string, error) {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = l.cfg.PollAttempts - 1
	client.RetryWaitMin = l.cfg.PollInterval
	client.RetryWaitMax = l.cfg.PollInterval
	// Fixed interval, no backoff growth.
	client.Backoff = func(min, _ time.Duration, _ int, _ *http.Response) time.Duration {
		return min
	}
	client.HTTPClient.Timeout = l.cfg.PollInterval * 4

	url := fmt.Sprintf("http://127.0.0.1:%d/json/version", port)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	var version struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return "", fmt.Errorf("decode %s: %w", url, err)
	}
	if version.WebSocketDebuggerURL == "" {
		return "", errors.New("introspection endpoint returned no webSocketDebuggerUrl")
	}
	return version.WebSocketDebuggerURL, nil
}

func buildArgs(req core.LaunchRequest, placement *display.Info, headless bool) []string {
	args := []string{
		"--user-data-dir=" + req.ProfileDir,
		fmt.Sprintf("--remote-debugging-port=%d", req.Port),
		fmt.Sprintf("--window-size=%d,%d", req.WindowWidth, req.WindowHeight),
		"--no-first-run",
		"--no-default-browser-check",
	}
	if placement != nil {
		args = append(args, fmt.Sprintf("--window-position=%d,%d", placement.OriginX, placement.OriginY))
	}
	if headless {
		args = append(args, "--headless=new", "--disable-gpu")
	}
	// Blank start target keeps startup cheap.
	return append(args, "about:blank")
}

// process implements core.ProcessHandle over an exec.Cmd, reporting exit
// through a closed channel.
type process struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func newProcess(cmd *exec.Cmd) *process {
	return &process{cmd: cmd, done: make(chan struct{})}
}

func (p *process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *process) Signal(sig core.ProcessSignal) error {
	if p.cmd.Process == nil {
		return errors.New("process not started")
	}
	return signalProcess(p.cmd.Process.Pid, sig)
}

func (p *process) Done() <-chan struct{} {
	return p.done
}

// watchOutput logs each line the process writes; Chrome is expected to be
// quiet once started, so output is surfaced at debug level only.
func watchOutput(log pslog.Logger, stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		log.Debug("chrome output", "stream", stream, "line", scanner.Text())
	}
}
