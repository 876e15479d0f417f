package logx

import (
	"context"

	"pkt.systems/chromux/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	workspaceKey contextKey = iota
	pageKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithWorkspace annotates the logger with the workspace name if present.
func WithWorkspace(ctx context.Context, name schema.WorkspaceName) pslog.Logger {
	log := pslog.Ctx(ctx)
	if name != "" {
		if current, ok := ctx.Value(workspaceKey).(schema.WorkspaceName); ok && current == name {
			return log
		}
		log = log.With("workspace", name)
	}
	return log
}

// WithWorkspacePage annotates the logger with workspace and page names.
func WithWorkspacePage(ctx context.Context, name schema.WorkspaceName, page schema.PageName) pslog.Logger {
	log := WithWorkspace(ctx, name)
	if page != "" {
		if current, ok := ctx.Value(pageKey).(schema.PageName); ok && current == page {
			return log
		}
		log = log.With("page", page)
	}
	return log
}

// ContextWithWorkspace stores the workspace marker on the context for log
// de-duplication.
func ContextWithWorkspace(ctx context.Context, name schema.WorkspaceName) context.Context {
	if ctx == nil || name == "" {
		return ctx
	}
	return context.WithValue(ctx, workspaceKey, name)
}

// ContextWithPage stores the page marker on the context for log
// de-duplication.
func ContextWithPage(ctx context.Context, page schema.PageName) context.Context {
	if ctx == nil || page == "" {
		return ctx
	}
	return context.WithValue(ctx, pageKey, page)
}

// ContextWithWorkspaceLogger attaches the logger and workspace marker to
// the context.
func ContextWithWorkspaceLogger(ctx context.Context, log pslog.Logger, name schema.WorkspaceName) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithWorkspace(ctx, name)
}
