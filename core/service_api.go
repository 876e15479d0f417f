package core

import (
	"context"

	"pkt.systems/chromux/schema"
)

// Service is the transport-agnostic API for managing browser workspaces and
// named pages.
type Service interface {
	SwitchWorkspace(ctx context.Context, req schema.SwitchWorkspaceRequest) (schema.SwitchWorkspaceResponse, error)
	StopWorkspace(ctx context.Context, req schema.StopWorkspaceRequest) (schema.StopWorkspaceResponse, error)
	StopAll(ctx context.Context) error
	ListWorkspaces(ctx context.Context, req schema.ListWorkspacesRequest) (schema.ListWorkspacesResponse, error)
	CurrentWorkspace(ctx context.Context, req schema.CurrentWorkspaceRequest) (schema.CurrentWorkspaceResponse, error)

	// GetOrCreatePage resolves a page by name. Page names are global: a
	// name registered under another workspace resolves to that page.
	GetOrCreatePage(ctx context.Context, req schema.GetOrCreatePageRequest) (schema.GetOrCreatePageResponse, error)
	ListPages(ctx context.Context, req schema.ListPagesRequest) (schema.ListPagesResponse, error)
	ClosePage(ctx context.Context, req schema.ClosePageRequest) (schema.ClosePageResponse, error)
}
