// Package httpapi serves the HTTP control plane for workspace and page
// operations.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"pkt.systems/chromux/core"
	"pkt.systems/chromux/internal/logx"
	"pkt.systems/chromux/schema"
	"pkt.systems/pslog"
)

const shutdownTimeout = 5 * time.Second

// Server serves the HTTP control plane.
type Server struct {
	cfg     Config
	service core.Service
}

// NewServer constructs an HTTP server around the core service.
func NewServer(cfg Config, service core.Service) *Server {
	return &Server{cfg: cfg, service: service}
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/workspaces", s.handleWorkspaces)
	mux.HandleFunc("/workspace/current", s.handleCurrentWorkspace)
	mux.HandleFunc("/workspace/switch", s.handleSwitchWorkspace)
	mux.HandleFunc("/workspace/stop", s.handleStopWorkspace)
	mux.HandleFunc("/pages", s.handlePages)
	mux.HandleFunc("/pages/", s.handlePageByName)
	return withRequestLogging(mux)
}

func (s *Server) handleWorkspaces(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	resp, err := s.service.ListWorkspaces(r.Context(), schema.ListWorkspacesRequest{})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workspaces": resp.Workspaces,
		"current":    resp.Current,
	})
}

func (s *Server) handleCurrentWorkspace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	resp, err := s.service.CurrentWorkspace(r.Context(), schema.CurrentWorkspaceRequest{})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if resp.Workspace == "" {
		writeJSON(w, http.StatusOK, map[string]any{"workspace": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workspace": resp.Workspace,
		"endpoint":  resp.Endpoint,
	})
}

func (s *Server) handleSwitchWorkspace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	var payload struct {
		Workspace string `json:"workspace"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.Workspace) == "" {
		writeError(w, http.StatusBadRequest, errors.New("workspace is required"))
		return
	}
	name := schema.WorkspaceName(payload.Workspace)
	ctx := logx.ContextWithWorkspaceLogger(r.Context(), pslog.Ctx(r.Context()).With("workspace", name), name)
	resp, err := s.service.SwitchWorkspace(ctx, schema.SwitchWorkspaceRequest{Workspace: name})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workspace": resp.Workspace,
		"endpoint":  resp.Endpoint,
		"status":    schema.WorkspaceRunning,
	})
}

func (s *Server) handleStopWorkspace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	var payload struct {
		Workspace string `json:"workspace"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.Workspace) == "" {
		writeError(w, http.StatusBadRequest, errors.New("workspace is required"))
		return
	}
	name := schema.WorkspaceName(payload.Workspace)
	ctx := logx.ContextWithWorkspaceLogger(r.Context(), pslog.Ctx(r.Context()).With("workspace", name), name)
	resp, err := s.service.StopWorkspace(ctx, schema.StopWorkspaceRequest{Workspace: name})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"workspace": resp.Workspace,
	})
}

func (s *Server) handlePages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		resp, err := s.service.ListPages(r.Context(), schema.ListPagesRequest{})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"pages": resp.Pages})
	case http.MethodPost:
		var payload struct {
			Name     string           `json:"name"`
			Viewport *schema.Viewport `json:"viewport"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if strings.TrimSpace(payload.Name) == "" {
			writeError(w, http.StatusBadRequest, errors.New("name is required"))
			return
		}
		name := schema.PageName(payload.Name)
		ctx := pslog.ContextWithLogger(r.Context(), pslog.Ctx(r.Context()).With("page", name))
		ctx = logx.ContextWithPage(ctx, name)
		resp, err := s.service.GetOrCreatePage(ctx, schema.GetOrCreatePageRequest{
			Name:     name,
			Viewport: payload.Viewport,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"name":     resp.Page.Name,
			"targetId": resp.Page.TargetID,
			"endpoint": resp.Endpoint,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

func (s *Server) handlePageByName(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/pages/")
	if raw == "" || strings.Contains(raw, "/") {
		writeError(w, http.StatusNotFound, errors.New("page not found"))
		return
	}
	name := schema.PageName(raw)
	ctx := pslog.ContextWithLogger(r.Context(), pslog.Ctx(r.Context()).With("page", name))
	ctx = logx.ContextWithPage(ctx, name)
	_, err := s.service.ClosePage(ctx, schema.ClosePageRequest{Name: name})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// writeServiceError maps core errors to HTTP statuses: not-found conditions
// to 404, caller mistakes to 400, everything else (launch, protocol) to 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schema.ErrUnknownWorkspace), errors.Is(err, schema.ErrPageNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, schema.ErrInvalidRequest),
		errors.Is(err, schema.ErrInvalidWorkspaceName),
		errors.Is(err, schema.ErrInvalidPageName),
		errors.Is(err, schema.ErrNoWorkspace):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
