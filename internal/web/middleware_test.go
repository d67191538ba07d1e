package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/frootlab/rian-sub004/internal/workspace"
)

func TestWithWorkspaceMiddleware(t *testing.T) {
	ws := workspace.New(nil)

	// Create a handler that checks for the workspace in context
	var got *workspace.Workspace
	handler := WithWorkspace(ws)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetWorkspace(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if got != ws {
		t.Error("expected same workspace instance")
	}
}

func TestRequireWorkspaceRejects(t *testing.T) {
	// Handler that should never be reached
	handlerCalled := false
	handler := WithWorkspace(nil)(RequireWorkspace(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	})))

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if handlerCalled {
		t.Error("handler should not have been called")
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "workspace not initialized") {
		t.Errorf("expected 'workspace not initialized' in response, got %q", rec.Body.String())
	}
}

func TestRequireWorkspaceAllows(t *testing.T) {
	// Chain middlewares: WithWorkspace -> RequireWorkspace -> handler
	handlerCalled := false
	innerHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	})

	handler := WithWorkspace(workspace.New(nil))(RequireWorkspace(innerHandler))

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !handlerCalled {
		t.Error("handler should have been called with workspace present")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestGetWorkspaceWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	if GetWorkspace(req) != nil {
		t.Error("expected nil workspace when middleware not applied")
	}
}
