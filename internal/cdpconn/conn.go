// Package cdpconn pools automation-protocol connections to running
// workspaces and exposes page-level operations over them.
package cdpconn

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"pkt.systems/chromux/core"
	"pkt.systems/chromux/schema"
	"pkt.systems/pslog"
)

// markerGlobal is the runtime-scope variable that carries a page's
// registered name across daemon restarts.
const markerGlobal = "__chromux_page"

// conn is one live connection to a workspace's browser. Page sessions are
// attached lazily and cached: a cached session is only ever cancelled to
// close its page on purpose, never as cleanup, because detaching a session
// context also destroys its target.
type conn struct {
	workspace schema.WorkspaceName
	logger    pslog.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	// attachMu serializes session attachment; mu guards the maps.
	attachMu sync.Mutex
	mu       sync.Mutex
	sessions map[schema.TargetID]*session
	onClosed func(schema.TargetID)
	closed   bool
}

type session struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// dial connects to a browser's control-protocol endpoint. The endpoint URL
// is used verbatim; the browser keeps running when the connection drops.
func dial(ctx context.Context, workspace schema.WorkspaceName, endpoint string, logger pslog.Logger) (core.Connection, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), endpoint, chromedp.NoModifyURL)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	c := &conn{
		workspace:     workspace,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		sessions:      make(map[schema.TargetID]*session),
	}

	// Targets establishes the websocket without creating a page.
	if _, err := chromedp.Targets(browserCtx); err != nil {
		c.teardown()
		return nil, fmt.Errorf("connect to workspace %q at %s: %w", workspace, endpoint, err)
	}
	// Target discovery feeds destruction events to the listener below.
	if err := c.browserExec(ctx, func(ectx context.Context) error {
		return target.SetDiscoverTargets(true).Do(ectx)
	}); err != nil {
		c.teardown()
		return nil, fmt.Errorf("enable target discovery for workspace %q: %w", workspace, err)
	}
	chromedp.ListenBrowser(browserCtx, func(ev interface{}) {
		destroyed, ok := ev.(*target.EventTargetDestroyed)
		if !ok {
			return
		}
		c.targetDestroyed(schema.TargetID(destroyed.TargetID))
	})
	return c, nil
}

// browserExec runs fn with the browser-level command executor. The browser
// connection is established in dial before the first call.
func (c *conn) browserExec(ctx context.Context, fn func(context.Context) error) error {
	ectx := cdp.WithExecutor(ctx, chromedp.FromContext(c.browserCtx).Browser)
	return fn(ectx)
}

func (c *conn) targetDestroyed(id schema.TargetID) {
	c.mu.Lock()
	sess, ok := c.sessions[id]
	delete(c.sessions, id)
	handler := c.onClosed
	closed := c.closed
	c.mu.Unlock()
	if ok {
		sess.cancel()
	}
	if handler != nil && !closed {
		c.logger.Debug("page target destroyed", "workspace", c.workspace, "targetId", id)
		handler(id)
	}
}

func (c *conn) ListPages(ctx context.Context) ([]core.PageInfo, error) {
	var infos []*target.Info
	err := c.browserExec(ctx, func(ectx context.Context) error {
		var err error
		infos, err = target.GetTargets().Do(ectx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list pages for workspace %q: %w", c.workspace, err)
	}
	pages := make([]core.PageInfo, 0, len(infos))
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		pages = append(pages, core.PageInfo{
			TargetID: schema.TargetID(info.TargetID),
			URL:      info.URL,
			Title:    info.Title,
		})
	}
	return pages, nil
}

func (c *conn) ReadMarker(ctx context.Context, id schema.TargetID) (string, error) {
	sess, err := c.sessionFor(id)
	if err != nil {
		return "", err
	}
	var marker string
	expr := fmt.Sprintf("window.%s || \"\"", markerGlobal)
	if err := chromedp.Run(sess.ctx, chromedp.Evaluate(expr, &marker)); err != nil {
		return "", fmt.Errorf("read marker from target %s: %w", id, err)
	}
	return marker, nil
}

func (c *conn) CreatePage(ctx context.Context, spec core.CreatePageSpec) (core.PageInfo, error) {
	var tid target.ID
	err := c.browserExec(ctx, func(ectx context.Context) error {
		bctx, err := target.CreateBrowserContext().Do(ectx)
		if err != nil {
			return fmt.Errorf("create browsing context: %w", err)
		}
		create := target.CreateTarget("about:blank").WithBrowserContextID(bctx)
		if spec.Width > 0 && spec.Height > 0 {
			create = create.WithWidth(int64(spec.Width)).WithHeight(int64(spec.Height))
		}
		tid, err = create.Do(ectx)
		if err != nil {
			return fmt.Errorf("create page target: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.PageInfo{}, err
	}

	sess, err := c.sessionFor(schema.TargetID(tid))
	if err != nil {
		return core.PageInfo{}, err
	}
	// The marker must survive both reloads and the initial blank document,
	// so it is installed as a new-document script and evaluated once now.
	script := fmt.Sprintf("window.%s = %s;", markerGlobal, strconv.Quote(spec.Marker))
	err = chromedp.Run(sess.ctx,
		chromedp.ActionFunc(func(actx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(actx)
			return err
		}),
		chromedp.Evaluate(script, nil),
	)
	if err != nil {
		return core.PageInfo{}, fmt.Errorf("install marker on target %s: %w", tid, err)
	}

	var info *target.Info
	err = c.browserExec(ctx, func(ectx context.Context) error {
		var err error
		info, err = target.GetTargetInfo().WithTargetID(tid).Do(ectx)
		return err
	})
	if err != nil {
		return core.PageInfo{}, fmt.Errorf("describe target %s: %w", tid, err)
	}
	return core.PageInfo{
		TargetID: schema.TargetID(info.TargetID),
		URL:      info.URL,
		Title:    info.Title,
	}, nil
}

func (c *conn) ClosePage(ctx context.Context, id schema.TargetID) error {
	c.mu.Lock()
	sess, ok := c.sessions[id]
	delete(c.sessions, id)
	c.mu.Unlock()
	if ok {
		// Cancelling an attached session detaches and closes the target.
		sess.cancel()
		return nil
	}
	return c.browserExec(ctx, func(ectx context.Context) error {
		return target.CloseTarget(target.ID(id)).Do(ectx)
	})
}

func (c *conn) OnPageClosed(fn func(schema.TargetID)) {
	c.mu.Lock()
	c.onClosed = fn
	c.mu.Unlock()
}

// Close drops the websocket. The browser (and its pages) keep running.
func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.sessions = make(map[schema.TargetID]*session)
	c.mu.Unlock()
	c.teardown()
	return nil
}

func (c *conn) teardown() {
	// Cancelling the browser context of a remote allocator only closes the
	// websocket; cached session contexts die with it without closing their
	// targets, so they are deliberately not cancelled here.
	c.browserCancel()
	c.allocCancel()
}

// sessionFor returns the cached protocol session for a target, attaching a
// new one if needed. Sessions stay cached for the connection's lifetime;
// cancelling one is reserved for intentional page close. Attaches are
// serialized so a lost race never cancels (and thereby closes) a target.
func (c *conn) sessionFor(id schema.TargetID) (*session, error) {
	c.attachMu.Lock()
	defer c.attachMu.Unlock()

	c.mu.Lock()
	if sess, ok := c.sessions[id]; ok {
		c.mu.Unlock()
		return sess, nil
	}
	c.mu.Unlock()

	ctx, cancel := chromedp.NewContext(c.browserCtx, chromedp.WithTargetID(target.ID(id)))
	// An empty run attaches to the target.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("attach to target %s: %w", id, err)
	}
	sess := &session{ctx: ctx, cancel: cancel}
	c.mu.Lock()
	c.sessions[id] = sess
	c.mu.Unlock()
	return sess, nil
}
