package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"pkt.systems/chromux/internal/logx"
	"pkt.systems/chromux/schema"
	"pkt.systems/pslog"
)

// service implements the core service behavior.
type service struct {
	cfg      schema.ServiceConfig
	launcher BrowserLauncher
	pool     ConnectionPool
	logger   pslog.Logger

	mu         sync.Mutex
	workspaces map[schema.WorkspaceName]*workspaceEntry
	current    schema.WorkspaceName
	pages      map[schema.PageName]*pageEntry
	// pending serializes lookup-or-create for the same new page name.
	pending map[schema.PageName]chan struct{}
}

// workspaceEntry tracks the one instance (or in-flight launch) per name.
// A tracked entry is either in flight (wait non-nil, inst nil) or running
// (wait nil, inst non-nil); a failed launch records err on the entry for
// its waiters and removes it from tracking in the same critical section,
// so failed entries are never observable through the map.
type workspaceEntry struct {
	inst *ChromeInstance
	// wait is non-nil while a launch is in flight; concurrent switch
	// requests for the same name block on it and share the outcome
	// through this entry's inst/err fields.
	wait chan struct{}
	err  error
}

// pageEntry maps one logical page name to a live protocol target.
type pageEntry struct {
	name      schema.PageName
	targetID  schema.TargetID
	workspace schema.WorkspaceName
}

func (e *pageEntry) snapshot() schema.PageSnapshot {
	return schema.PageSnapshot{Name: e.name, TargetID: e.targetID, Workspace: e.workspace}
}

// NewService constructs the core service implementation.
func NewService(cfg schema.ServiceConfig, deps ServiceDeps) (Service, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	if deps.Launcher == nil {
		return nil, schema.ErrLauncherUnavailable
	}
	if deps.Connections == nil {
		return nil, schema.ErrConnectionUnavailable
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &service{
		cfg:        cfg,
		launcher:   deps.Launcher,
		pool:       deps.Connections,
		logger:     logger,
		workspaces: make(map[schema.WorkspaceName]*workspaceEntry),
		pages:      make(map[schema.PageName]*pageEntry),
		pending:    make(map[schema.PageName]chan struct{}),
	}, nil
}

func (s *service) SwitchWorkspace(ctx context.Context, req schema.SwitchWorkspaceRequest) (schema.SwitchWorkspaceResponse, error) {
	if ctx == nil {
		return schema.SwitchWorkspaceResponse{}, errors.New("missing context")
	}
	name, err := schema.NormalizeWorkspaceName(string(req.Workspace))
	if err != nil {
		return schema.SwitchWorkspaceResponse{}, err
	}
	wsCfg, ok := s.cfg.Workspaces[name]
	if !ok {
		return schema.SwitchWorkspaceResponse{}, fmt.Errorf("%w: %q (configured: %s)", schema.ErrUnknownWorkspace, name, s.configuredNames())
	}
	log := logx.WithWorkspace(ctx, name)

	var entry *workspaceEntry
	for {
		s.mu.Lock()
		tracked, ok := s.workspaces[name]
		if !ok {
			entry = &workspaceEntry{wait: make(chan struct{})}
			s.workspaces[name] = entry
			s.mu.Unlock()
			break
		}
		if wait := tracked.wait; wait != nil {
			s.mu.Unlock()
			log.Debug("workspace launch in progress")
			select {
			case <-wait:
			case <-ctx.Done():
				return schema.SwitchWorkspaceResponse{}, ctx.Err()
			}
			// The outcome lives on the entry waited on, not on whatever
			// the map holds now: a failed entry is already untracked and
			// the name may have been relaunched in the meantime.
			s.mu.Lock()
			err := tracked.err
			s.mu.Unlock()
			if err != nil {
				log.Warn("workspace launch failed", "err", err)
				return schema.SwitchWorkspaceResponse{}, err
			}
			continue
		}
		s.current = name
		resp := schema.SwitchWorkspaceResponse{
			Workspace: name,
			Endpoint:  tracked.inst.Endpoint,
			PID:       tracked.inst.PID(),
		}
		s.mu.Unlock()
		log.Debug("workspace ready (already running)", "endpoint", resp.Endpoint)
		return resp, nil
	}

	log.Info("workspace launch start", "port", wsCfg.Port, "profile", wsCfg.ProfileDirectory)
	inst, err := s.launcher.Launch(ctx, LaunchRequest{
		Workspace:    name,
		ProfileDir:   filepath.Join(s.cfg.ProfileRoot, wsCfg.ProfileDirectory),
		Port:         wsCfg.Port,
		Headless:     s.cfg.Headless,
		WindowWidth:  s.cfg.WindowWidth,
		WindowHeight: s.cfg.WindowHeight,
	})
	s.mu.Lock()
	if err != nil {
		entry.err = err
		close(entry.wait)
		entry.wait = nil
		delete(s.workspaces, name)
		s.mu.Unlock()
		log.Warn("workspace launch failed", "err", err)
		return schema.SwitchWorkspaceResponse{}, err
	}
	entry.inst = inst
	close(entry.wait)
	entry.wait = nil
	s.current = name
	s.mu.Unlock()
	log.Info("workspace running", "pid", inst.PID(), "endpoint", inst.Endpoint)
	return schema.SwitchWorkspaceResponse{Workspace: name, Endpoint: inst.Endpoint, PID: inst.PID()}, nil
}

func (s *service) StopWorkspace(ctx context.Context, req schema.StopWorkspaceRequest) (schema.StopWorkspaceResponse, error) {
	name, err := schema.NormalizeWorkspaceName(string(req.Workspace))
	if err != nil {
		return schema.StopWorkspaceResponse{}, err
	}
	log := logx.WithWorkspace(ctx, name)

	s.mu.Lock()
	entry := s.workspaces[name]
	if entry == nil || entry.inst == nil {
		s.mu.Unlock()
		log.Debug("workspace stop skipped", "reason", "not running")
		return schema.StopWorkspaceResponse{Workspace: name, Stopped: false}, nil
	}
	inst := entry.inst
	delete(s.workspaces, name)
	if s.current == name {
		s.current = ""
	}
	purged := s.purgePagesLocked(name)
	s.mu.Unlock()

	s.pool.CloseConnection(name)
	if err := s.launcher.Terminate(ctx, inst); err != nil {
		log.Warn("workspace terminate failed", "err", err)
	}
	log.Info("workspace stopped", "pid", inst.PID(), "pages_purged", purged)
	return schema.StopWorkspaceResponse{Workspace: name, Stopped: true}, nil
}

func (s *service) StopAll(ctx context.Context) error {
	log := logx.Ctx(ctx)

	s.mu.Lock()
	pages := make([]*pageEntry, 0, len(s.pages))
	for _, entry := range s.pages {
		pages = append(pages, entry)
	}
	s.pages = make(map[schema.PageName]*pageEntry)
	insts := make([]*ChromeInstance, 0, len(s.workspaces))
	for name, entry := range s.workspaces {
		if entry.inst != nil {
			insts = append(insts, entry.inst)
		}
		delete(s.workspaces, name)
	}
	s.current = ""
	s.mu.Unlock()

	// Close pages before connections, connections before processes.
	for _, page := range pages {
		conn, ok := s.pool.Existing(page.workspace)
		if !ok {
			continue
		}
		if err := conn.ClosePage(ctx, page.targetID); err != nil {
			log.Debug("page close failed during shutdown", "page", page.name, "err", err)
		}
	}
	s.pool.CloseAll()
	for _, inst := range insts {
		if err := s.launcher.Terminate(ctx, inst); err != nil {
			log.Warn("workspace terminate failed", "workspace", inst.Workspace, "err", err)
		}
	}
	log.Info("all workspaces stopped", "count", len(insts), "pages_purged", len(pages))
	return nil
}

func (s *service) ListWorkspaces(ctx context.Context, req schema.ListWorkspacesRequest) (schema.ListWorkspacesResponse, error) {
	_ = req
	s.mu.Lock()
	defer s.mu.Unlock()
	states := make([]schema.WorkspaceState, 0, len(s.cfg.Workspaces))
	for name, wsCfg := range s.cfg.Workspaces {
		state := schema.WorkspaceState{Name: name, Status: schema.WorkspaceStopped, Port: wsCfg.Port}
		if entry, ok := s.workspaces[name]; ok {
			switch {
			case entry.inst != nil:
				state.Status = schema.WorkspaceRunning
				state.Endpoint = entry.inst.Endpoint
				state.PID = entry.inst.PID()
			case entry.wait != nil:
				state.Status = schema.WorkspaceStarting
			}
		}
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Name < states[j].Name })
	logx.Ctx(ctx).Trace("workspaces listed", "count", len(states), "current", s.current)
	return schema.ListWorkspacesResponse{Workspaces: states, Current: s.current}, nil
}

func (s *service) CurrentWorkspace(ctx context.Context, req schema.CurrentWorkspaceRequest) (schema.CurrentWorkspaceResponse, error) {
	_ = ctx
	_ = req
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := schema.CurrentWorkspaceResponse{Workspace: s.current}
	if entry, ok := s.workspaces[s.current]; ok && entry.inst != nil {
		resp.Endpoint = entry.inst.Endpoint
	}
	return resp, nil
}

func (s *service) GetOrCreatePage(ctx context.Context, req schema.GetOrCreatePageRequest) (schema.GetOrCreatePageResponse, error) {
	if ctx == nil {
		return schema.GetOrCreatePageResponse{}, errors.New("missing context")
	}
	name, err := schema.NormalizePageName(string(req.Name))
	if err != nil {
		return schema.GetOrCreatePageResponse{}, err
	}

	s.mu.Lock()
	target := s.current
	s.mu.Unlock()
	if target == "" {
		target = s.cfg.DefaultWorkspace
	}
	if target == "" {
		return schema.GetOrCreatePageResponse{}, schema.ErrNoWorkspace
	}
	log := logx.WithWorkspacePage(ctx, target, name)

	// Idempotent: launches only when the workspace is not yet running.
	ws, err := s.SwitchWorkspace(ctx, schema.SwitchWorkspaceRequest{Workspace: target})
	if err != nil {
		return schema.GetOrCreatePageResponse{}, err
	}
	conn, err := s.pool.ConnectionFor(ctx, ws.Workspace, ws.Endpoint)
	if err != nil {
		log.Warn("workspace connection failed", "err", err)
		return schema.GetOrCreatePageResponse{}, err
	}
	conn.OnPageClosed(s.pageClosed)

	for {
		s.mu.Lock()
		if entry, ok := s.pages[name]; ok {
			resp := schema.GetOrCreatePageResponse{Page: entry.snapshot(), Endpoint: ws.Endpoint}
			s.mu.Unlock()
			log.Debug("page resolved (registered)", "target", resp.Page.TargetID)
			return resp, nil
		}
		wait, inFlight := s.pending[name]
		if !inFlight {
			wait = make(chan struct{})
			s.pending[name] = wait
			s.mu.Unlock()
			break
		}
		s.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return schema.GetOrCreatePageResponse{}, ctx.Err()
		}
	}
	defer func() {
		s.mu.Lock()
		if wait, ok := s.pending[name]; ok {
			close(wait)
			delete(s.pending, name)
		}
		s.mu.Unlock()
	}()

	// Reconcile against live protocol state before creating anything: a
	// page created before a daemon restart may still carry the marker.
	infos, err := conn.ListPages(ctx)
	if err != nil {
		log.Warn("page enumeration failed", "err", err)
		return schema.GetOrCreatePageResponse{}, err
	}
	for _, info := range infos {
		marker, err := conn.ReadMarker(ctx, info.TargetID)
		if err != nil {
			// Closed or mid-navigation pages are skipped, not errors.
			log.Trace("page marker read skipped", "target", info.TargetID, "err", err)
			continue
		}
		if marker != string(name) {
			continue
		}
		entry := &pageEntry{name: name, targetID: info.TargetID, workspace: ws.Workspace}
		s.mu.Lock()
		s.pages[name] = entry
		s.mu.Unlock()
		log.Info("page adopted", "target", info.TargetID, "url", info.URL)
		return schema.GetOrCreatePageResponse{Page: entry.snapshot(), Endpoint: ws.Endpoint}, nil
	}

	spec := CreatePageSpec{Marker: string(name), Width: s.cfg.WindowWidth, Height: s.cfg.WindowHeight}
	if req.Viewport != nil {
		if req.Viewport.Width > 0 {
			spec.Width = req.Viewport.Width
		}
		if req.Viewport.Height > 0 {
			spec.Height = req.Viewport.Height
		}
	}
	info, err := conn.CreatePage(ctx, spec)
	if err != nil {
		log.Warn("page create failed", "err", err)
		return schema.GetOrCreatePageResponse{}, err
	}
	entry := &pageEntry{name: name, targetID: info.TargetID, workspace: ws.Workspace}
	s.mu.Lock()
	s.pages[name] = entry
	s.mu.Unlock()
	log.Info("page created", "target", info.TargetID)
	return schema.GetOrCreatePageResponse{Page: entry.snapshot(), Endpoint: ws.Endpoint, Created: true}, nil
}

func (s *service) ListPages(ctx context.Context, req schema.ListPagesRequest) (schema.ListPagesResponse, error) {
	_ = req
	s.mu.Lock()
	defer s.mu.Unlock()
	pages := make([]schema.PageSnapshot, 0, len(s.pages))
	for _, entry := range s.pages {
		pages = append(pages, entry.snapshot())
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Name < pages[j].Name })
	logx.Ctx(ctx).Trace("pages listed", "count", len(pages))
	return schema.ListPagesResponse{Pages: pages}, nil
}

func (s *service) ClosePage(ctx context.Context, req schema.ClosePageRequest) (schema.ClosePageResponse, error) {
	name, err := schema.NormalizePageName(string(req.Name))
	if err != nil {
		return schema.ClosePageResponse{}, err
	}
	s.mu.Lock()
	entry, ok := s.pages[name]
	if !ok {
		s.mu.Unlock()
		return schema.ClosePageResponse{}, schema.ErrPageNotFound
	}
	delete(s.pages, name)
	s.mu.Unlock()
	log := logx.WithWorkspacePage(ctx, entry.workspace, name)

	if conn, ok := s.pool.Existing(entry.workspace); ok {
		if err := conn.ClosePage(ctx, entry.targetID); err != nil {
			// Entry already removed; the underlying page may be gone.
			log.Debug("page close failed", "target", entry.targetID, "err", err)
		}
	}
	log.Info("page closed", "target", entry.targetID)
	return schema.ClosePageResponse{Page: entry.snapshot()}, nil
}

// pageClosed purges the registry entry when the underlying page target is
// destroyed for any reason.
func (s *service) pageClosed(id schema.TargetID) {
	s.mu.Lock()
	var name schema.PageName
	for _, entry := range s.pages {
		if entry.targetID == id {
			name = entry.name
			break
		}
	}
	if name != "" {
		delete(s.pages, name)
	}
	s.mu.Unlock()
	if name != "" {
		s.logger.Debug("page purged", "page", name, "target", id)
	}
}

// purgePagesLocked removes every page entry owned by the workspace.
// Caller holds s.mu.
func (s *service) purgePagesLocked(name schema.WorkspaceName) int {
	purged := 0
	for pageName, entry := range s.pages {
		if entry.workspace == name {
			delete(s.pages, pageName)
			purged++
		}
	}
	return purged
}

func (s *service) configuredNames() string {
	names := make([]string, 0, len(s.cfg.Workspaces))
	for name := range s.cfg.Workspaces {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
