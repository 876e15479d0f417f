// Package chromux composes the workspace service and its HTTP control
// plane into one runnable daemon.
package chromux

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/chromux/core"
	"pkt.systems/chromux/httpapi"
	"pkt.systems/chromux/schema"
	"pkt.systems/pslog"
)

// Server runs the daemon until stopped.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Service schema.ServiceConfig
	HTTP    httpapi.Config
}

// ServerDeps captures dependencies required to build the server.
type ServerDeps struct {
	ServiceDeps core.ServiceDeps
}

// Lifecycle states. Transitions only move forward; Stop acts exactly once
// no matter how many shutdown triggers race.
type lifecycleState int

const (
	lifecycleIdle lifecycleState = iota
	lifecycleRunning
	lifecycleShuttingDown
	lifecycleStopped
)

// New constructs a chromux daemon server.
func New(cfg ServerConfig, deps ServerDeps) (Server, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg.Service)
	if err != nil {
		return nil, err
	}
	cfg.Service = normalized

	service, err := core.NewService(cfg.Service, deps.ServiceDeps)
	if err != nil {
		return nil, err
	}
	return &compositeServer{
		cfg:     cfg,
		service: service,
		httpSrv: httpapi.NewServer(cfg.HTTP, service),
	}, nil
}

type compositeServer struct {
	cfg     ServerConfig
	service core.Service
	httpSrv *httpapi.Server
	logger  pslog.Logger

	mu      sync.Mutex
	state   lifecycleState
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	stopped chan struct{}
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.state != lifecycleIdle {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 1)
	s.stopped = make(chan struct{})
	s.state = lifecycleRunning
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info("server start", "http_addr", s.cfg.HTTP.Addr, "workspaces", len(s.cfg.Service.Workspaces))
	go func() {
		if err := httpapi.ListenAndServe(s.ctx, s.cfg.HTTP.Addr, s.httpSrv.Handler()); err != nil {
			log.Error("http server failed", "err", err)
			s.errCh <- err
		}
	}()
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	state := s.state
	s.mu.Unlock()
	if state == lifecycleIdle {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

// Stop shuts the daemon down in order: tracked pages, pooled connections,
// browser processes, then the HTTP listener. Concurrent callers beyond the
// first wait for the same shutdown to finish.
func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case lifecycleIdle:
		s.mu.Unlock()
		return nil
	case lifecycleShuttingDown, lifecycleStopped:
		stopped := s.stopped
		s.mu.Unlock()
		if ctx == nil {
			ctx = context.Background()
		}
		select {
		case <-stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.state = lifecycleShuttingDown
	cancel := s.cancel
	stopped := s.stopped
	log := s.logger
	s.mu.Unlock()

	log.Info("server stop requested")
	if err := s.service.StopAll(context.Background()); err != nil {
		log.Warn("server workspace shutdown failed", "err", err)
	} else {
		log.Info("server workspaces stopped")
	}
	// Cancelling the root context makes the HTTP listener drain and close.
	cancel()

	s.mu.Lock()
	s.state = lifecycleStopped
	s.mu.Unlock()
	close(stopped)
	log.Info("server stopped")
	return nil
}
