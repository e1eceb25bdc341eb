package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/janisto/profile-api/internal/platform/config"
	profilesvc "github.com/janisto/profile-api/internal/service/profile"
	"github.com/janisto/profile-api/internal/store/jsonfile"
)

func testServer() http.Handler {
	return newRouter(profilesvc.NewService(profilesvc.NewMemoryStore()), nil)
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal error response: %v", err)
	}
	return body.Error
}

func TestHealth(t *testing.T) {
	srv := testServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(chimiddleware.RequestIDHeader, "test-health-req")
	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", resp.Code)
	}
	if got := strings.TrimSpace(resp.Body.String()); got != `{"status":"healthy"}` {
		t.Fatalf("unexpected body %s", got)
	}
	if rid := resp.Header().Get(chimiddleware.RequestIDHeader); rid != "test-health-req" {
		t.Fatalf("expected request id echoed, got %q", rid)
	}
	if resp.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("expected security headers")
	}
}

func TestNotFoundReturnsErrorBody(t *testing.T) {
	srv := testServer()
	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json content type, got %q", ct)
	}
	if msg := decodeError(t, resp); msg != "Recurso no encontrado" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestMethodNotAllowedReturnsErrorBody(t *testing.T) {
	srv := testServer()
	req := httptest.NewRequest(http.MethodPatch, "/profiles", nil)
	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, req)

	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 got %d", resp.Code)
	}
	allow := resp.Header().Get("Allow")
	if !strings.Contains(allow, http.MethodGet) || !strings.Contains(allow, http.MethodPost) {
		t.Fatalf("expected Allow header to list GET and POST, got %q", allow)
	}
	if msg := decodeError(t, resp); !strings.Contains(msg, "PATCH") {
		t.Fatalf("expected message to mention PATCH, got %q", msg)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newRouter(profilesvc.NewService(profilesvc.NewMemoryStore()), []string{"https://app.example.com"})
	req := httptest.NewRequest(http.MethodOptions, "/profiles", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, req)

	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("expected allowed origin, got %q", got)
	}
}

func TestFallbackToJSONForUnknownAccept(t *testing.T) {
	srv := testServer()
	req := httptest.NewRequest(http.MethodGet, "/profiles", nil)
	req.Header.Set("Accept", "text/plain")
	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 OK with JSON fallback, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json content type, got %q", ct)
	}
}

func TestProfileLifecycle(t *testing.T) {
	srv := testServer()

	req := httptest.NewRequest(http.MethodPost, "/profiles", strings.NewReader(`{"nombre_perfil":"Ana","email":"ana@x.com"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	srv.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	location := resp.Header().Get("Location")

	req = httptest.NewRequest(http.MethodGet, location, nil)
	resp = httptest.NewRecorder()
	srv.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected Location %q to resolve, got %d", location, resp.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, location, nil)
	resp = httptest.NewRecorder()
	srv.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestNewStoreMemory(t *testing.T) {
	store, closeStore, err := newStore(context.Background(), &config.Config{Storage: config.StorageMemory})
	if err != nil {
		t.Fatalf("newStore: %v", err)
	}
	defer closeStore()
	if _, ok := store.(*profilesvc.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestNewStoreFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perfiles.json")
	store, closeStore, err := newStore(context.Background(), &config.Config{Storage: config.StorageFile, DataFile: path})
	if err != nil {
		t.Fatalf("newStore: %v", err)
	}
	defer closeStore()

	fs, ok := store.(*jsonfile.Store)
	if !ok {
		t.Fatalf("expected file store, got %T", store)
	}
	if fs.Path() != path {
		t.Fatalf("expected path %s, got %s", path, fs.Path())
	}
}

func TestNewStoreFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perfiles.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := newStore(context.Background(), &config.Config{Storage: config.StorageFile, DataFile: path}); err == nil {
		t.Fatal("expected error for corrupt data file")
	}
}

func TestNewStoreUnknown(t *testing.T) {
	if _, _, err := newStore(context.Background(), &config.Config{Storage: "sqlite"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
