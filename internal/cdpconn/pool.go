package cdpconn

import (
	"context"
	"sync"

	"pkt.systems/chromux/core"
	"pkt.systems/chromux/schema"
	"pkt.systems/pslog"
)

// Pool implements core.ConnectionPool: one cached connection per running
// workspace, dialed on first use.
type Pool struct {
	logger pslog.Logger
	// dialFn is a seam for tests.
	dialFn func(ctx context.Context, workspace schema.WorkspaceName, endpoint string, logger pslog.Logger) (core.Connection, error)

	mu    sync.Mutex
	conns map[schema.WorkspaceName]core.Connection
}

// NewPool constructs an empty pool.
func NewPool(logger pslog.Logger) *Pool {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Pool{
		logger: logger,
		dialFn: dial,
		conns:  make(map[schema.WorkspaceName]core.Connection),
	}
}

func (p *Pool) ConnectionFor(ctx context.Context, name schema.WorkspaceName, endpoint string) (core.Connection, error) {
	p.mu.Lock()
	if c, ok := p.conns[name]; ok {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	c, err := p.dialFn(ctx, name, endpoint, p.logger)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	if existing, ok := p.conns[name]; ok {
		p.mu.Unlock()
		_ = c.Close()
		return existing, nil
	}
	p.conns[name] = c
	p.mu.Unlock()
	p.logger.Debug("workspace connection established", "workspace", name, "endpoint", endpoint)
	return c, nil
}

func (p *Pool) Existing(name schema.WorkspaceName) (core.Connection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.conns[name]
	return c, ok
}

func (p *Pool) CloseConnection(name schema.WorkspaceName) {
	p.mu.Lock()
	c, ok := p.conns[name]
	delete(p.conns, name)
	p.mu.Unlock()
	if ok {
		_ = c.Close()
	}
}

func (p *Pool) CloseAll() {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[schema.WorkspaceName]core.Connection)
	p.mu.Unlock()
	for name, c := range conns {
		if err := c.Close(); err != nil {
			p.logger.Debug("close workspace connection", "workspace", name, "err", err)
		}
	}
}
