package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kestrelfaas/kestrel/internal/assetstore"
	"github.com/kestrelfaas/kestrel/internal/blocklist"
	"github.com/kestrelfaas/kestrel/internal/domain"
	"github.com/kestrelfaas/kestrel/internal/egress"
	"github.com/kestrelfaas/kestrel/internal/engine"
	"github.com/kestrelfaas/kestrel/internal/resourcestore"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	path := filepath.Join(dir, "blocklist.tri1")
	if err := blocklist.WriteTRI1File(path, strings.NewReader("")); err != nil {
		t.Fatalf("write blocklist: %v", err)
	}
	filter := egress.New(path)
	filter.EnsureLoaded()
	if filter.IsBlocked(0x08080808) {
		t.Fatalf("load filter: empty blocklist not loaded (8.8.8.8 blocked)")
	}

	assets := assetstore.New(dir, nil)
	resources := resourcestore.New(dir, resourcestore.KVBackendMemory, resourcestore.RedisConfig{}, "")
	eng := engine.New(filter, t.TempDir())

	return New(assets, resources, eng, dir)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), "GET", "/health", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
}

func TestCreateAndListFunctions(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := doJSON(t, h, "POST", "/functions", map[string]any{
		"languageId":   "js",
		"functionName": "handler",
		"source":       "function handler(event) { return event; }",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rec.Code, rec.Body.String())
	}
	var created map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("expected a minted id")
	}

	rec = doJSON(t, h, "GET", "/functions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status=%d", rec.Code)
	}
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("list length = %d", len(list))
	}
}

func TestInvokeRoundTrip(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := doJSON(t, h, "POST", "/functions", map[string]any{
		"languageId":   "js",
		"functionName": "handler",
		"source":       "function handler(event) { return { echoed: event.msg }; }",
	})
	var created map[string]any
	json.Unmarshal(rec.Body.Bytes(), &created)
	id := created["id"].(string)

	rec = doJSON(t, h, "POST", "/invoke/"+id, map[string]any{"msg": "hi"})
	if rec.Code != http.StatusOK {
		t.Fatalf("invoke status=%d body=%s", rec.Code, rec.Body.String())
	}
	var result map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result["echoed"] != "hi" {
		t.Fatalf("echoed = %v", result["echoed"])
	}
}

func TestInvokeMissingFunctionIs404(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), "POST", "/invoke/does-not-exist", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestInvokeMalformedBodyBecomesEmptyEvent(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := doJSON(t, h, "POST", "/functions", map[string]any{
		"languageId":   "js",
		"functionName": "handler",
		"source":       "function handler(event) { return Object.keys(event).length; }",
	})
	var created map[string]any
	json.Unmarshal(rec.Body.Bytes(), &created)
	id := created["id"].(string)

	req := httptest.NewRequest("POST", "/invoke/"+id, bytes.NewReader([]byte("not json")))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if strings.TrimSpace(rec.Body.String()) != "0" {
		t.Fatalf("body=%q, want 0", rec.Body.String())
	}
}

func TestResourceCreateListAttach(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := doJSON(t, h, "POST", "/resources", domain.CreateResourceRequest{Type: domain.ResourceKV})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status=%d", rec.Code)
	}
	var created map[string]any
	json.Unmarshal(rec.Body.Bytes(), &created)
	id := created["id"].(string)

	rec = doJSON(t, h, "POST", "/resources/"+id+"/owners", domain.AttachOwnerRequest{FunctionID: "fn-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("attach status=%d body=%s", rec.Code, rec.Body.String())
	}
	var attached map[string]any
	json.Unmarshal(rec.Body.Bytes(), &attached)
	owners, _ := attached["owners"].([]any)
	if len(owners) != 1 || owners[0] != "fn-1" {
		t.Fatalf("owners = %v", attached["owners"])
	}

	rec = doJSON(t, h, "GET", "/resources", nil)
	var list []map[string]any
	json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list) != 1 {
		t.Fatalf("list length = %d", len(list))
	}
}

func TestWrongMethodIs405(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), "DELETE", "/health", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rec.Code)
	}
}
