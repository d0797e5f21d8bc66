package netproxy

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kestrelfaas/kestrel/internal/blocklist"
	"github.com/kestrelfaas/kestrel/internal/egress"
)

func newFilterAllowingAll(t *testing.T) *egress.Filter {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "block.bin")
	if err := blocklist.WriteTRI1File(path, strings.NewReader("")); err != nil {
		t.Fatalf("WriteTRI1File: %v", err)
	}
	f := egress.New(path)
	f.EnsureLoaded()
	return f
}

func TestProxyHeaderSanitizationAndBody(t *testing.T) {
	var gotHost, gotXCustom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Header.Get("Host")
		gotXCustom = r.Header.Get("X-Custom")
		w.Header().Set("X-Reply", "ok")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("hi"))
	}))
	defer srv.Close()

	p := New(newFilterAllowingAll(t))
	resp, err := p.HTTP("get", srv.URL, "", map[string]string{
		"Host":      "evil.example",
		"X-Custom":  "value",
		"Connection": "keep-alive",
	})
	if err != nil {
		t.Fatalf("HTTP: %v", err)
	}
	if gotHost != "" {
		t.Fatalf("Host header should have been dropped, server saw %q", gotHost)
	}
	if gotXCustom != "value" {
		t.Fatalf("X-Custom header should have passed through, got %q", gotXCustom)
	}
	if resp.Status != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", resp.Status)
	}
	if resp.Body != "hi" {
		t.Fatalf("body = %q, want hi", resp.Body)
	}
	if resp.Headers["X-Reply"] != "ok" {
		t.Fatalf("flattened headers missing X-Reply: %+v", resp.Headers)
	}
}

func TestProxyUppercasesMethod(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
	}))
	defer srv.Close()

	p := New(newFilterAllowingAll(t))
	if _, err := p.HTTP("post", srv.URL, "x", nil); err != nil {
		t.Fatalf("HTTP: %v", err)
	}
	if gotMethod != "POST" {
		t.Fatalf("method = %q, want POST", gotMethod)
	}
}

func TestProxyEgressDenied(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "block.bin")
	if err := blocklist.WriteTRI1File(path, strings.NewReader("203.0.113.7/32\n")); err != nil {
		t.Fatalf("WriteTRI1File: %v", err)
	}
	f := egress.New(path)
	f.EnsureLoaded()

	p := New(f)
	_, err := p.HTTP("GET", "http://203.0.113.7/", "", nil)
	if err == nil {
		t.Fatalf("expected egress denial")
	}
}
