// Package display resolves an off-screen rendering target so automated
// browser windows never appear on the operator's visible display. Detection
// is only meaningful on macOS; everywhere else resolution yields nil and
// launches fall back to headless mode.
package display

import (
	"context"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"pkt.systems/pslog"
)

// Info describes the resolved off-screen placement.
type Info struct {
	OriginX int
	OriginY int
	Width   int
	Height  int
}

// Config configures the placement resolver.
type Config struct {
	// ListCommand lists current display devices. Defaults to
	// "displayplacer list".
	ListCommand []string
	// CreateCommand attempts to create a new virtual display when no
	// off-screen device exists. Defaults to "betterdisplaycli create
	// --virtualScreen".
	CreateCommand []string
	// SettleDelay is the wait between creating a virtual display and the
	// single detection retry.
	SettleDelay time.Duration
}

const defaultSettleDelay = 2 * time.Second

// Resolver owns the resolve-once placement cache. A result, including a
// failed (nil) one, is reused for every subsequent launch; Refresh is the
// only way to re-query.
type Resolver struct {
	cfg    Config
	logger pslog.Logger
	goos   string
	run    func(ctx context.Context, name string, args ...string) ([]byte, error)
	sleep  func(time.Duration)

	mu       sync.Mutex
	resolved bool
	info     *Info
}

// NewResolver constructs a placement resolver.
func NewResolver(cfg Config, logger pslog.Logger) *Resolver {
	if len(cfg.ListCommand) == 0 {
		cfg.ListCommand = []string{"displayplacer", "list"}
	}
	if len(cfg.CreateCommand) == 0 {
		cfg.CreateCommand = []string{"betterdisplaycli", "create", "--virtualScreen"}
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Resolver{
		cfg:    cfg,
		logger: logger,
		goos:   runtime.GOOS,
		run:    runCommand,
		sleep:  time.Sleep,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Resolve returns the cached placement, querying the OS on first use. A nil
// result means no off-screen placement is available and the caller should
// run headless. OS-utility failures are swallowed, never propagated.
func (r *Resolver) Resolve(ctx context.Context) *Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		return r.info
	}
	r.info = r.resolve(ctx)
	r.resolved = true
	if r.info != nil {
		r.logger.Info("display placement resolved", "origin_x", r.info.OriginX, "origin_y", r.info.OriginY, "width", r.info.Width, "height", r.info.Height)
	} else {
		r.logger.Info("display placement unavailable; launches fall back to headless")
	}
	return r.info
}

// Refresh drops the cached result so the next Resolve re-queries the OS.
func (r *Resolver) Refresh() {
	r.mu.Lock()
	r.resolved = false
	r.info = nil
	r.mu.Unlock()
}

func (r *Resolver) resolve(ctx context.Context) *Info {
	if r.goos != "darwin" {
		return nil
	}
	if info := r.detect(ctx); info != nil {
		return info
	}
	// No off-screen device: try to create a virtual display, then retry
	// detection exactly once after a settle delay.
	if _, err := r.run(ctx, r.cfg.CreateCommand[0], r.cfg.CreateCommand[1:]...); err != nil {
		r.logger.Debug("virtual display create failed", "err", err)
		return nil
	}
	r.sleep(r.cfg.SettleDelay)
	return r.detect(ctx)
}

func (r *Resolver) detect(ctx context.Context) *Info {
	out, err := r.run(ctx, r.cfg.ListCommand[0], r.cfg.ListCommand[1:]...)
	if err != nil {
		r.logger.Debug("display list failed", "err", err)
		return nil
	}
	for _, dev := range parseDevices(string(out)) {
		if dev.builtin {
			continue
		}
		// A strictly positive horizontal origin means the device sits off
		// to the side of the main display, hence invisible.
		if dev.info.OriginX > 0 {
			return &dev.info
		}
	}
	return nil
}

type device struct {
	builtin bool
	info    Info
}

// parseDevices parses displayplacer-style records: blank-line separated
// blocks of "Key: value" lines with Type, Resolution and Origin fields.
func parseDevices(out string) []device {
	var devices []device
	current := device{}
	seen := false
	flush := func() {
		if seen {
			devices = append(devices, current)
		}
		current = device{}
		seen = false
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "type":
			seen = true
			current.builtin = strings.Contains(strings.ToLower(value), "built in")
		case "resolution":
			if w, h, ok := parseResolution(value); ok {
				seen = true
				current.info.Width = w
				current.info.Height = h
			}
		case "origin":
			if x, y, ok := parseOrigin(value); ok {
				seen = true
				current.info.OriginX = x
				current.info.OriginY = y
			}
		}
	}
	flush()
	return devices
}

func parseResolution(value string) (int, int, bool) {
	w, h, ok := strings.Cut(value, "x")
	if !ok {
		return 0, 0, false
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil {
		return 0, 0, false
	}
	fields := strings.Fields(h)
	if len(fields) == 0 {
		return 0, 0, false
	}
	height, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, false
	}
	return width, height, true
}

func parseOrigin(value string) (int, int, bool) {
	open := strings.IndexByte(value, '(')
	closing := strings.IndexByte(value, ')')
	if open < 0 || closing < open {
		return 0, 0, false
	}
	xs, ys, ok := strings.Cut(value[open+1:closing], ",")
	if !ok {
		return 0, 0, false
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return 0, 0, false
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return 0, 0, false
	}
	return x, y, true
}
