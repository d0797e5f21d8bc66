// Package resourcestore persists ResourceRecord documents, maintains the
// in-memory function-id to resource-id ownership index, and assembles the
// per-function Platform handle injected into invocations.
package resourcestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/kestrelfaas/kestrel/internal/atomicfile"
	"github.com/kestrelfaas/kestrel/internal/domain"
	"github.com/kestrelfaas/kestrel/internal/idgen"
	"github.com/kestrelfaas/kestrel/internal/logging"
)

// KVBackend selects the runtime implementation backing newly created kv
// resources.
type KVBackend string

const (
	KVBackendMemory KVBackend = "memory"
	KVBackendRedis  KVBackend = "redis"
)

// Store persists resource records (kv and sql bindings) and their ownership links to functions.
type Store struct {
	baseDir   string
	kvBackend KVBackend
	redisCfg  RedisConfig
	sql       *SqlPlaceholder

	mu          sync.RWMutex
	index       map[string][]string     // function id -> resource ids, insertion order
	kvHandles   map[string]domain.KvApi // resource id -> runtime handle
	redisClient *redis.Client           // lazily dialed, shared by every redis-backed kv handle
}

// New constructs a Store rooted at baseDir. sqlDSN may be empty to disable
// the SQL placeholder's backing pool entirely (it still rejects calls
// either way).
func New(baseDir string, kvBackend KVBackend, redisCfg RedisConfig, sqlDSN string) *Store {
	return &Store{
		baseDir:   baseDir,
		kvBackend: kvBackend,
		redisCfg:  redisCfg,
		sql:       NewSqlPlaceholder(sqlDSN),
		index:     make(map[string][]string),
		kvHandles: make(map[string]domain.KvApi),
	}
}

func (s *Store) pathFor(id string) string {
	return filepath.Join(s.baseDir, "resources", id+".json")
}

func (s *Store) save(r *domain.ResourceRecord) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return atomicfile.Write(s.pathFor(r.ID), data, 0o644)
}

// Load reads and decodes the resource record with the given id.
func (s *Store) Load(id string) (*domain.ResourceRecord, bool, error) {
	data, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var r domain.ResourceRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, false, err
	}
	return &r, true, nil
}

// List scans the resources directory and decodes every record found there.
func (s *Store) List() ([]*domain.ResourceRecord, error) {
	dir := filepath.Join(s.baseDir, "resources")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var records []*domain.ResourceRecord
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		r, ok, err := s.Load(id)
		if err != nil {
			logging.Op().Warn("resourcestore: skipping unreadable record", "id", id, "error", err)
			continue
		}
		if ok {
			records = append(records, r)
		}
	}
	return records, nil
}

// RebuildIndex rebuilds the in-memory ownership index by scanning every
// persisted record, as required on process start.
func (s *Store) RebuildIndex() error {
	records, err := s.List()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = make(map[string][]string)
	for _, r := range records {
		for _, owner := range r.Owners {
			s.index[owner] = append(s.index[owner], r.ID)
		}
		if r.Type == domain.ResourceKV {
			s.kvHandles[r.ID] = s.newKvHandle(r.ID)
		}
	}
	return nil
}

// newKvHandle builds the runtime KvApi for a newly bound or recovered kv
// resource. Callers always hold s.mu for writing. Redis-backed handles
// share one lazily dialed client across every resource in this Store, each
// scoped to its own namespaced keyspace by resource id.
func (s *Store) newKvHandle(resourceID string) domain.KvApi {
	if s.kvBackend != KVBackendRedis || s.redisCfg.Addr == "" {
		return NewMemoryKV()
	}
	if s.redisClient == nil {
		s.redisClient = redis.NewClient(&redis.Options{
			Addr:     s.redisCfg.Addr,
			Password: s.redisCfg.Password,
			DB:       s.redisCfg.DB,
		})
	}
	return newRedisKV(s.redisClient, resourceID)
}

// Create mints an id, persists the record, inserts it into the ownership
// index for each initial owner, and (for kv) creates its runtime handle.
func (s *Store) Create(req *domain.CreateResourceRequest) (*domain.ResourceRecord, error) {
	record := &domain.ResourceRecord{
		ID:        idgen.NewV7(),
		Type:      req.Type,
		Owners:    append([]string(nil), req.Owners...),
		Config:    req.Config,
		CreatedAt: time.Now(),
	}
	if err := s.save(record); err != nil {
		return nil, err
	}

	s.mu.Lock()
	for _, owner := range record.Owners {
		s.index[owner] = append(s.index[owner], record.ID)
	}
	if record.Type == domain.ResourceKV {
		s.kvHandles[record.ID] = s.newKvHandle(record.ID)
	}
	s.mu.Unlock()

	return record, nil
}

// AttachOwner rewrites the record with owners ∪ {fnID} and updates the
// index. Owners may only grow, never shrink, via this API.
func (s *Store) AttachOwner(resID, fnID string) (*domain.ResourceRecord, error) {
	record, ok, err := s.Load(resID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if record.HasOwner(fnID) {
		return record, nil
	}
	record.Owners = append(record.Owners, fnID)
	if err := s.save(record); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.index[fnID] = append(s.index[fnID], record.ID)
	if record.Type == domain.ResourceKV {
		if _, exists := s.kvHandles[record.ID]; !exists {
			s.kvHandles[record.ID] = s.newKvHandle(record.ID)
		}
	}
	s.mu.Unlock()

	return record, nil
}

// PlatformForFunction collects every resource owned by fnID, falling back
// to a directory scan when the index has nothing for fnID (e.g.
// immediately after restart before RebuildIndex ran, or a bare process).
// The returned Platform's KvApi defaults to the first kv resource by
// iteration order when more than one is bound; the resolved open
// question.
func (s *Store) PlatformForFunction(fnID string) (*domain.Platform, error) {
	ids := s.ownedIDs(fnID)
	if len(ids) == 0 {
		scanned, err := s.scanForOwner(fnID)
		if err != nil {
			return nil, err
		}
		ids = scanned
	}

	var kv domain.KvApi
	for _, id := range ids {
		s.mu.RLock()
		handle, ok := s.kvHandles[id]
		s.mu.RUnlock()
		if ok {
			kv = handle
			break
		}
	}
	if kv == nil {
		kv = NewMemoryKV()
	}

	return &domain.Platform{Kv: kv, Sql: s.sql}, nil
}

func (s *Store) ownedIDs(fnID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.index[fnID]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

func (s *Store) scanForOwner(fnID string) ([]string, error) {
	records, err := s.List()
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, r := range records {
		if r.HasOwner(fnID) {
			ids = append(ids, r.ID)
			if r.Type == domain.ResourceKV {
				s.mu.Lock()
				if _, exists := s.kvHandles[r.ID]; !exists {
					s.kvHandles[r.ID] = s.newKvHandle(r.ID)
				}
				s.mu.Unlock()
			}
		}
	}
	return ids, nil
}

// Close releases the SQL placeholder's pool and the shared Redis client, if
// either was ever opened.
func (s *Store) Close() {
	s.sql.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.redisClient != nil {
		s.redisClient.Close()
	}
}
