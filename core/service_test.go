package core

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"pkt.systems/chromux/schema"
)

// Shared fakes for the service tests.

type fakeProc struct {
	pid  int
	done chan struct{}

	mu      sync.Mutex
	signals []ProcessSignal
}

func newFakeProc(pid int) *fakeProc {
	return &fakeProc{pid: pid, done: make(chan struct{})}
}

func (p *fakeProc) PID() int { return p.pid }

func (p *fakeProc) Signal(sig ProcessSignal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = append(p.signals, sig)
	return nil
}

func (p *fakeProc) Done() <-chan struct{} { return p.done }

type fakeLauncher struct {
	mu         sync.Mutex
	launches   []LaunchRequest
	terminated []schema.WorkspaceName
	launchErr  error
	// block, when non-nil, holds Launch until closed; started, when
	// non-nil, receives one signal as each Launch call begins.
	block   chan struct{}
	started chan struct{}
	events  *eventLog
	nexPID  int
}

func (l *fakeLauncher) Launch(ctx context.Context, req LaunchRequest) (*ChromeInstance, error) {
	l.mu.Lock()
	block := l.block
	started := l.started
	l.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches = append(l.launches, req)
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	l.nexPID++
	return &ChromeInstance{
		Workspace: req.Workspace,
		Port:      req.Port,
		Endpoint:  fmt.Sprintf("ws://127.0.0.1:%d/devtools/browser/%s", req.Port, req.Workspace),
		Proc:      newFakeProc(l.nexPID),
	}, nil
}

func (l *fakeLauncher) Terminate(ctx context.Context, inst *ChromeInstance) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.terminated = append(l.terminated, inst.Workspace)
	l.events.append("terminate:" + string(inst.Workspace))
	return nil
}

func (l *fakeLauncher) launchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launches)
}

type fakeConn struct {
	mu       sync.Mutex
	live     []PageInfo
	markers  map[schema.TargetID]string
	badMarks map[schema.TargetID]error
	created  []CreatePageSpec
	closed   []schema.TargetID
	handler  func(schema.TargetID)
	nextID   int
	events   *eventLog
}

func newFakeConn(events *eventLog) *fakeConn {
	return &fakeConn{
		markers:  make(map[schema.TargetID]string),
		badMarks: make(map[schema.TargetID]error),
		events:   events,
	}
}

func (c *fakeConn) ListPages(ctx context.Context) ([]PageInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PageInfo, len(c.live))
	copy(out, c.live)
	return out, nil
}

func (c *fakeConn) ReadMarker(ctx context.Context, id schema.TargetID) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.badMarks[id]; ok {
		return "", err
	}
	return c.markers[id], nil
}

func (c *fakeConn) CreatePage(ctx context.Context, spec CreatePageSpec) (PageInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	info := PageInfo{TargetID: schema.TargetID(fmt.Sprintf("target-%d", c.nextID)), URL: "about:blank"}
	c.created = append(c.created, spec)
	c.markers[info.TargetID] = spec.Marker
	c.live = append(c.live, info)
	return info, nil
}

func (c *fakeConn) ClosePage(ctx context.Context, id schema.TargetID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = append(c.closed, id)
	c.events.append("page.close:" + string(id))
	for i, info := range c.live {
		if info.TargetID == id {
			c.live = append(c.live[:i], c.live[i+1:]...)
			break
		}
	}
	return nil
}

func (c *fakeConn) OnPageClosed(fn func(schema.TargetID)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = fn
}

func (c *fakeConn) fireClosed(id schema.TargetID) {
	c.mu.Lock()
	// A destroyed target is gone from the browser's list too.
	for i, info := range c.live {
		if info.TargetID == id {
			c.live = append(c.live[:i], c.live[i+1:]...)
			break
		}
	}
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		handler(id)
	}
}

func (c *fakeConn) Close() error { return nil }

type fakePool struct {
	mu     sync.Mutex
	conns  map[schema.WorkspaceName]*fakeConn
	closed []schema.WorkspaceName
	events *eventLog
}

func newFakePool(events *eventLog) *fakePool {
	return &fakePool{conns: make(map[schema.WorkspaceName]*fakeConn), events: events}
}

func (p *fakePool) ConnectionFor(ctx context.Context, name schema.WorkspaceName, endpoint string) (Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.conns[name]; ok {
		return c, nil
	}
	c := newFakeConn(p.events)
	p.conns[name] = c
	return c, nil
}

func (p *fakePool) Existing(name schema.WorkspaceName) (Connection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.conns[name]
	return c, ok
}

func (p *fakePool) CloseConnection(name schema.WorkspaceName) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = append(p.closed, name)
	delete(p.conns, name)
}

func (p *fakePool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events.append("pool.closeall")
	p.conns = make(map[schema.WorkspaceName]*fakeConn)
}

// eventLog records cross-fake ordering for shutdown assertions.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (e *eventLog) append(event string) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *eventLog) snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.events))
	copy(out, e.events)
	return out
}

func testConfig(t *testing.T) schema.ServiceConfig {
	t.Helper()
	return schema.ServiceConfig{
		Workspaces: map[schema.WorkspaceName]schema.WorkspaceConfig{
			"personal": {ProfileDirectory: "personal", Port: 9230},
			"work":     {ProfileDirectory: "work", Port: 9231},
		},
		DefaultWorkspace: "personal",
		ProfileRoot:      t.TempDir(),
	}
}

func newTestService(t *testing.T, cfg schema.ServiceConfig) (Service, *fakeLauncher, *fakePool, *eventLog) {
	t.Helper()
	events := &eventLog{}
	launcher := &fakeLauncher{events: events}
	pool := newFakePool(events)
	svc, err := NewService(cfg, ServiceDeps{Launcher: launcher, Connections: pool})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, launcher, pool, events
}
