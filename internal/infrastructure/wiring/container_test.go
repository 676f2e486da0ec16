package wiring_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sophialabs/mimicry/internal/infrastructure/wiring"
	"github.com/sophialabs/mimicry/internal/testutil"
)

const healthYAML = `
endpoints:
  - id: health
    service: api
    path: /api/health
    method: GET
    default_response:
      status: 200
      body: '{"status":"ok"}'
`

func validParams(t *testing.T) wiring.Params {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "health.yaml"), []byte(healthYAML), 0o644); err != nil {
		t.Fatalf("failed to write definition file: %v", err)
	}

	return wiring.Params{
		RootDir:        dir,
		AuditSize:      50,
		RecordDir:      "recorded",
		TemplateEngine: "jinja2",
		RateLimiterTTL: 5 * time.Minute,
		Logger:         &testutil.NoopLogger{},
	}
}

func TestNew_Success(t *testing.T) {
	c, err := wiring.New(validParams(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	if c.Logger() == nil {
		t.Error("Logger() returned nil")
	}
	if c.Server() == nil {
		t.Error("Server() returned nil")
	}
	if c.AuditLog() == nil {
		t.Error("AuditLog() returned nil")
	}
	if c.Background() == nil {
		t.Error("Background() returned nil")
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*wiring.Params)
	}{
		{"missing root", func(p *wiring.Params) { p.RootDir = "/nonexistent/path/that/does/not/exist" }},
		{"unknown engine", func(p *wiring.Params) { p.TemplateEngine = "mustache" }},
		{"record dir outside root", func(p *wiring.Params) { p.RecordDir = "../elsewhere" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams(t)
			tt.modify(&p)
			c, err := wiring.New(p)
			if err == nil {
				c.Close()
				t.Fatal("expected error")
			}
			if c != nil {
				t.Error("expected nil container on error")
			}
		})
	}
}

func TestNew_ServesLoadedDefinitions(t *testing.T) {
	c, err := wiring.New(validParams(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	if err := c.Reload(context.Background()); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	w := httptest.NewRecorder()
	c.Server().ServeHTTP(w, httptest.NewRequest("GET", "/api/health", nil))
	if w.Code != http.StatusOK || w.Body.String() != `{"status":"ok"}` {
		t.Errorf("unexpected response: %d %s", w.Code, w.Body.String())
	}

	c.Background().Wait()
	if n := len(c.AuditLog().Last(10)); n != 1 {
		t.Errorf("expected 1 audit entry, got %d", n)
	}
}

func TestNew_AuditFile(t *testing.T) {
	p := validParams(t)
	p.AuditFile = filepath.Join(t.TempDir(), "logs", "audit.jsonl")

	c, err := wiring.New(p)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := c.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.Server().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/health", nil))
	c.Close()

	data, err := os.ReadFile(p.AuditFile)
	if err != nil {
		t.Fatalf("audit file not written: %v", err)
	}
	if !strings.Contains(string(data), `"path":"/api/health"`) {
		t.Errorf("unexpected audit file content: %s", data)
	}
}

func TestNew_MetricsExposed(t *testing.T) {
	c, err := wiring.New(validParams(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()
	if err := c.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	c.Server().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/health", nil))
	w := httptest.NewRecorder()
	c.Server().ServeHTTP(w, httptest.NewRequest("GET", "/__admin/metrics", nil))
	body, _ := io.ReadAll(w.Result().Body)
	if !strings.Contains(string(body), `mimicry_requests_total{outcome="default"} 1`) {
		t.Errorf("expected request counter in exposition:\n%s", body)
	}
}

func TestNew_LoggerIsPassedThrough(t *testing.T) {
	p := validParams(t)
	logger := &testutil.NoopLogger{}
	p.Logger = logger

	c, err := wiring.New(p)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	if c.Logger() != logger {
		t.Error("Logger() does not return the same logger instance passed in Params")
	}
}

func TestClose_IsIdempotent(t *testing.T) {
	c, err := wiring.New(validParams(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Double close must not panic.
	c.Close()
	c.Close()
}
