// Package web - Workspace middleware
//
// EDUCATIONAL NOTES:
// ------------------
// Middleware in Go HTTP servers wraps handlers to add cross-cutting concerns.
// Context-based dependency injection is a common pattern:
//
// 1. Outer middleware injects dependencies into request context
// 2. Handlers retrieve dependencies from context when needed
// 3. Inner middleware can require dependencies and fail fast if missing

package web

import (
	"context"
	"net/http"

	"github.com/frootlab/rian-sub004/internal/workspace"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// workspaceKey is the context key for storing the workspace.
const workspaceKey contextKey = "workspace"

// WithWorkspace returns middleware that injects the workspace into the
// request context. Handlers can retrieve it using GetWorkspace.
//
// Usage:
//
//	router.Use(WithWorkspace(ws))
//	router.Get("/tables", func(w http.ResponseWriter, r *http.Request) {
//	    ws := GetWorkspace(r)
//	    // use ws to look up tables
//	})
func WithWorkspace(ws *workspace.Workspace) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), workspaceKey, ws)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetWorkspace retrieves the workspace from the request context.
// Returns nil if the workspace was not set (middleware not applied).
func GetWorkspace(r *http.Request) *workspace.Workspace {
	ws, ok := r.Context().Value(workspaceKey).(*workspace.Workspace)
	if !ok {
		return nil
	}
	return ws
}

// RequireWorkspace returns middleware that ensures a workspace is present
// in the request context. If not found, it answers 503 Service
// Unavailable with the JSON error envelope.
//
// EDUCATIONAL NOTE:
// -----------------
// Use this middleware on routes that need tables. It prevents nil pointer
// panics in handlers that assume the workspace is available.
func RequireWorkspace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetWorkspace(r) == nil {
			writeError(w, http.StatusServiceUnavailable, "workspace not initialized", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}
