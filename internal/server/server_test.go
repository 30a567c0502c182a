package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/NeilR2s/cold-start-marketplace/internal/api"
	"github.com/NeilR2s/cold-start-marketplace/internal/directory"
)

type noopDirectory struct{}

func (noopDirectory) Create(context.Context, directory.CreateParams) (directory.User, error) {
	return directory.User{}, nil
}

func (noopDirectory) Search(context.Context, string, int) ([]directory.Projection, error) {
	return []directory.Projection{}, nil
}

func (noopDirectory) UpdateGeneral(context.Context, string, directory.GeneralUpdate) error {
	return nil
}

func (noopDirectory) UpdateVerification(context.Context, string, bool, *int) error { return nil }

func (noopDirectory) UpdateTwist(context.Context, string, map[string]any) error { return nil }

func (noopDirectory) Delete(context.Context, string) error { return nil }

func newTestServer(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	handler := &api.Handler{Directory: noopDirectory{}, APIPrefix: "/api/v1"}
	srv, err := New(handler, cfg)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return srv.httpServer.Handler
}

func TestRoutes(t *testing.T) {
	chain := newTestServer(t, Config{})

	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	chain.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("index status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	chain.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/search?term=da", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d, want 200", rec.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	chain := newTestServer(t, Config{})

	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected generated X-Request-Id header")
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "req-123")
	chain.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "req-123" {
		t.Fatalf("X-Request-Id = %q, want req-123", got)
	}
}

func TestNormalizeOrigin(t *testing.T) {
	cases := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "http://localhost:5173", want: "http://localhost:5173"},
		{input: "HTTPS://App.Example.COM", want: "https://app.example.com"},
		{input: "  ", want: ""},
		{input: "app.example.com", wantErr: true},
	}
	for _, tc := range cases {
		got, err := normalizeOrigin(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("normalizeOrigin(%q) expected error", tc.input)
			}
			continue
		}
		if err != nil {
			t.Fatalf("normalizeOrigin(%q) error: %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("normalizeOrigin(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestCORSBlocksUnknownOrigin(t *testing.T) {
	chain := newTestServer(t, Config{CORSOrigins: []string{"http://localhost:5173"}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	chain.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	chain := newTestServer(t, Config{CORSOrigins: []string{"http://localhost:5173"}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	chain.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	chain := newTestServer(t, Config{CORSOrigins: []string{"http://localhost:5173"}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/users/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	chain.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Fatal("expected Access-Control-Allow-Methods header")
	}
}

func TestCORSAllowsSameOrigin(t *testing.T) {
	policy, err := newCORSPolicy(nil)
	if err != nil {
		t.Fatalf("newCORSPolicy error: %v", err)
	}
	if !policy.allows("http://service.local", "http://service.local") {
		t.Fatal("same-origin request should be allowed")
	}
	if policy.allows("http://other.local", "http://service.local") {
		t.Fatal("cross-origin request should be rejected")
	}
}
