package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hylla/fordela/internal/adapters/storage/sqlite"
	"github.com/hylla/fordela/internal/app"
)

func newTestEngine(t *testing.T) *app.Service {
	t.Helper()
	repo, err := sqlite.Open(filepath.Join(t.TempDir(), "fordela.db"))
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return app.NewService(repo, nil, nil, nil)
}

func TestNewHandlerMountsSurfaces(t *testing.T) {
	handler, cfg, err := NewHandler(Config{}, newTestEngine(t))
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	if cfg.APIEndpoint != "/api/v1" || cfg.MCPEndpoint != "/mcp" || cfg.HTTPBind != defaultBindAddress {
		t.Fatalf("normalized config = %+v, want defaults", cfg)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("healthz = %d %q, want 200 ok payload", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/engineers", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("api mount = %d %q, want 200", rec.Code, rec.Body.String())
	}
}

func TestNewHandlerRejectsEndpointCollision(t *testing.T) {
	_, _, err := NewHandler(Config{APIEndpoint: "/same", MCPEndpoint: "same"}, newTestEngine(t))
	if err == nil {
		t.Fatalf("NewHandler() error = nil, want endpoint collision error")
	}
}

func TestNewHandlerRequiresEngine(t *testing.T) {
	_, _, err := NewHandler(Config{}, nil)
	if err == nil {
		t.Fatalf("NewHandler() error = nil, want engine required error")
	}
}
