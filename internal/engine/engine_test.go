package engine

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kestrelfaas/kestrel/internal/blocklist"
	"github.com/kestrelfaas/kestrel/internal/domain"
	"github.com/kestrelfaas/kestrel/internal/egress"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "blocklist.tri1")
	if err := blocklist.WriteTRI1File(path, strings.NewReader("")); err != nil {
		t.Fatalf("write empty blocklist: %v", err)
	}
	filter := egress.New(path)
	filter.EnsureLoaded()
	if filter.IsBlocked(0x08080808) {
		t.Fatalf("load filter: empty blocklist not loaded (8.8.8.8 blocked)")
	}
	return New(filter, t.TempDir())
}

func TestEngineJSHelloWorld(t *testing.T) {
	e := newTestEngine(t)
	req := &domain.InvocationRequest{
		RequestID:    "r1",
		LanguageID:   domain.LanguageJS,
		FunctionName: "handler",
		SourceCode:   "function handler(event) { return { greeting: 'hello ' + event.name }; }",
		Event:        map[string]any{"name": "World"},
	}
	result, err := e.Invoke(context.Background(), req)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	m, ok := result.(map[string]interface{})
	if !ok {
		t.Fatalf("result type = %T, want map", result)
	}
	if m["greeting"] != "hello World" {
		t.Fatalf("greeting = %v", m["greeting"])
	}
}

func TestEngineJSModuleExport(t *testing.T) {
	e := newTestEngine(t)
	req := &domain.InvocationRequest{
		RequestID:      "r2",
		LanguageID:     domain.LanguageJS,
		FunctionName:   "handler",
		JsEvalAsModule: true,
		SourceCode:     "module.exports.handler = function(event) { return event.n * 2; };",
		Event:          map[string]any{"n": float64(21)},
	}
	result, err := e.Invoke(context.Background(), req)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result != float64(42) {
		t.Fatalf("result = %v, want 42", result)
	}
}

func TestEngineJSDependency(t *testing.T) {
	e := newTestEngine(t)
	req := &domain.InvocationRequest{
		RequestID:    "r3",
		LanguageID:   domain.LanguageJS,
		FunctionName: "handler",
		SourceCode:   "var add = require('mathutil').add; function handler(event) { return add(event.a, event.b); }",
		Event:        map[string]any{"a": float64(2), "b": float64(3)},
		Dependencies: []domain.Dependency{
			{Name: "mathutil", SourceCode: "module.exports.add = function(a, b) { return a + b; };"},
		},
	}
	result, err := e.Invoke(context.Background(), req)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result != float64(5) {
		t.Fatalf("result = %v, want 5", result)
	}
}

func TestEngineJSMissingDependencyRaisesModuleNotFound(t *testing.T) {
	e := newTestEngine(t)
	req := &domain.InvocationRequest{
		RequestID:    "r4",
		LanguageID:   domain.LanguageJS,
		FunctionName: "handler",
		SourceCode:   "function handler(event) { return require('absent').x; }",
		Event:        map[string]any{},
	}
	_, err := e.Invoke(context.Background(), req)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "Module not found: absent") {
		t.Fatalf("error = %v, want a Module not found error", err)
	}
}

func TestEngineJSFunctionNotFound(t *testing.T) {
	e := newTestEngine(t)
	req := &domain.InvocationRequest{
		RequestID:    "r5",
		LanguageID:   domain.LanguageJS,
		FunctionName: "missing",
		SourceCode:   "function handler(event) { return event; }",
		Event:        map[string]any{},
	}
	_, err := e.Invoke(context.Background(), req)
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := err.(*domain.FunctionNotFoundError); !ok {
		t.Fatalf("error type = %T, want *domain.FunctionNotFoundError", err)
	}
}

func TestEngineJSTimeout(t *testing.T) {
	e := newTestEngine(t)
	req := &domain.InvocationRequest{
		RequestID:     "r6",
		LanguageID:    domain.LanguageJS,
		FunctionName:  "handler",
		SourceCode:    "function handler(event) { while (true) {} }",
		Event:         map[string]any{},
		TimeoutMillis: 50,
	}
	_, err := e.Invoke(context.Background(), req)
	if _, ok := err.(*domain.InvocationTimeoutError); !ok {
		t.Fatalf("error type = %T, want *domain.InvocationTimeoutError", err)
	}
}

func TestEngineFileStaging(t *testing.T) {
	e := newTestEngine(t)
	req := &domain.InvocationRequest{
		RequestID:    "r7",
		LanguageID:   domain.LanguageJS,
		FunctionName: "handler",
		SourceCode:   "function handler(event) { return { n: event.files.length, name: event.files[0].name }; }",
		Event:        map[string]any{},
		Files: []domain.FileInput{
			{Name: "../../etc/evil.txt", ContentType: "text/plain", Bytes: []byte("hi")},
		},
	}
	result, err := e.Invoke(context.Background(), req)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	m := result.(map[string]interface{})
	if m["n"] != float64(1) {
		t.Fatalf("n = %v", m["n"])
	}
	if m["name"] == "../../etc/evil.txt" {
		t.Fatalf("file name was not sanitized: %v", m["name"])
	}
}

func TestSanitizeFileNameFallsBackToFileBin(t *testing.T) {
	for _, name := range []string{"", ".", "..", "..."} {
		if got := sanitizeFileName(name); got != "file.bin" {
			t.Fatalf("sanitizeFileName(%q) = %q, want file.bin", name, got)
		}
	}
	// filepath.Base("///") is "/", which is replaced rather than dropped.
	if got := sanitizeFileName("///"); got != "_" {
		t.Fatalf("sanitizeFileName(%q) = %q, want _", "///", got)
	}
}

func TestSanitizeFileNameCapsAt255Chars(t *testing.T) {
	long := strings.Repeat("a", 300) + ".txt"
	got := sanitizeFileName(long)
	if len(got) != 255 {
		t.Fatalf("len(sanitizeFileName(long)) = %d, want 255", len(got))
	}
	if got != strings.Repeat("a", 255) {
		t.Fatalf("sanitizeFileName(long) = %q, want 255 a's", got)
	}
}

func TestEngineKVPlatformRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	kv := &memoryKvStub{data: map[string]any{}}
	req := &domain.InvocationRequest{
		RequestID:    "r8",
		LanguageID:   domain.LanguageJS,
		FunctionName: "handler",
		SourceCode:   "function handler(event) { platform.kv.put('k', event.v); return platform.kv.get('k'); }",
		Event:        map[string]any{"v": "stored"},
		Platform:     &domain.Platform{Kv: kv, Sql: nopSQL{}},
	}
	result, err := e.Invoke(context.Background(), req)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result != "stored" {
		t.Fatalf("result = %v, want stored", result)
	}
	if kv.data["k"] != "stored" {
		t.Fatalf("kv not actually written: %v", kv.data)
	}
}

type memoryKvStub struct {
	data map[string]any
}

func (m *memoryKvStub) Get(key string) (any, bool) { v, ok := m.data[key]; return v, ok }
func (m *memoryKvStub) Put(key string, value any)  { m.data[key] = value }
func (m *memoryKvStub) Delete(key string)          { delete(m.data, key) }

type nopSQL struct{}

func (nopSQL) Query(query string, args ...any) (any, error) { return nil, domain.ErrNotImplemented }
func (nopSQL) Exec(query string, args ...any) (any, error)  { return nil, domain.ErrNotImplemented }
