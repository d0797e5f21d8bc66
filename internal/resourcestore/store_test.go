package resourcestore

import (
	"testing"

	"github.com/kestrelfaas/kestrel/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir(), KVBackendMemory, RedisConfig{}, "")
}

func TestCreateAndLoad(t *testing.T) {
	s := newTestStore(t)
	record, err := s.Create(&domain.CreateResourceRequest{Type: domain.ResourceKV, Owners: []string{"fn-1"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	loaded, ok, err := s.Load(record.ID)
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if loaded.Type != domain.ResourceKV || len(loaded.Owners) != 1 {
		t.Fatalf("loaded record mismatch: %+v", loaded)
	}
}

func TestAttachOwnerGrowsNotShrinks(t *testing.T) {
	s := newTestStore(t)
	record, err := s.Create(&domain.CreateResourceRequest{Type: domain.ResourceKV, Owners: []string{"fn-1"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	updated, err := s.AttachOwner(record.ID, "fn-2")
	if err != nil {
		t.Fatalf("AttachOwner: %v", err)
	}
	if len(updated.Owners) != 2 {
		t.Fatalf("owners = %v, want 2 entries", updated.Owners)
	}
	// Attaching an existing owner again must not duplicate it.
	again, err := s.AttachOwner(record.ID, "fn-1")
	if err != nil {
		t.Fatalf("AttachOwner: %v", err)
	}
	if len(again.Owners) != 2 {
		t.Fatalf("re-attaching an existing owner duplicated it: %v", again.Owners)
	}
}

func TestPlatformForFunctionKVRoundTrip(t *testing.T) {
	s := newTestStore(t)
	record, err := s.Create(&domain.CreateResourceRequest{Type: domain.ResourceKV, Owners: []string{"fn-1"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	platform, err := s.PlatformForFunction("fn-1")
	if err != nil {
		t.Fatalf("PlatformForFunction: %v", err)
	}
	platform.Kv.Put("foo", "bar")
	v, ok := platform.Kv.Get("foo")
	if !ok || v != "bar" {
		t.Fatalf("Get(foo) = %v, %v; want bar, true", v, ok)
	}

	// A second lookup for the same function must return the same handle.
	platform2, err := s.PlatformForFunction("fn-1")
	if err != nil {
		t.Fatalf("PlatformForFunction: %v", err)
	}
	v2, ok := platform2.Kv.Get("foo")
	if !ok || v2 != "bar" {
		t.Fatalf("second platform lookup lost data: %v, %v", v2, ok)
	}
	_ = record
}

func TestPlatformForFunctionSqlAlwaysNotImplemented(t *testing.T) {
	s := newTestStore(t)
	platform, err := s.PlatformForFunction("fn-none")
	if err != nil {
		t.Fatalf("PlatformForFunction: %v", err)
	}
	if _, err := platform.Sql.Query("select 1"); err != domain.ErrNotImplemented {
		t.Fatalf("Sql.Query error = %v, want ErrNotImplemented", err)
	}
	if _, err := platform.Sql.Exec("insert"); err != domain.ErrNotImplemented {
		t.Fatalf("Sql.Exec error = %v, want ErrNotImplemented", err)
	}
}

func TestRebuildIndexAfterRestart(t *testing.T) {
	dir := t.TempDir()
	s1 := New(dir, KVBackendMemory, RedisConfig{}, "")
	if _, err := s1.Create(&domain.CreateResourceRequest{Type: domain.ResourceKV, Owners: []string{"fn-1"}}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	s2 := New(dir, KVBackendMemory, RedisConfig{}, "")
	if err := s2.RebuildIndex(); err != nil {
		t.Fatalf("RebuildIndex: %v", err)
	}
	platform, err := s2.PlatformForFunction("fn-1")
	if err != nil {
		t.Fatalf("PlatformForFunction: %v", err)
	}
	if platform.Kv == nil {
		t.Fatalf("expected a kv handle to be present after rebuild")
	}
}
