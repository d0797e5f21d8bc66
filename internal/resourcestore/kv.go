package resourcestore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/kestrelfaas/kestrel/internal/domain"
)

// MemoryKV is the default in-process KvApi implementation: a single
// resource's key-value data lives only in a concurrent map for the process
// lifetime; persistence of KV data across process restarts
// non-goal.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewMemoryKV constructs an empty in-process KV handle.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]any)}
}

func (k *MemoryKV) Get(key string) (any, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	v, ok := k.data[key]
	return v, ok
}

func (k *MemoryKV) Put(key string, value any) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.data[key] = value
}

func (k *MemoryKV) Delete(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.data, key)
}

// RedisConfig holds the connection parameters for the shared Redis client
// a Store's kv resources dial when Config.KV.Backend is "redis".
type RedisConfig struct {
	Addr     string // Redis address (e.g. "localhost:6379")
	Password string // Redis password
	DB       int    // Redis database number
}

// RedisKV is the distributed KvApi implementation, selected per-deployment
// so that multiple kestrel daemon instances sharing a resource observe the
// same data. Values are JSON-encoded since the client only deals in bytes.
// Keys are namespaced by the owning resource's id so that two distinct kv
// resources sharing one Redis instance never collide on the same key.
type RedisKV struct {
	client     *redis.Client
	resourceID string
}

// newRedisKV wraps a shared Redis client as a KvApi scoped to one resource.
func newRedisKV(client *redis.Client, resourceID string) *RedisKV {
	return &RedisKV{client: client, resourceID: resourceID}
}

func (k *RedisKV) namespacedKey(key string) string {
	return "kestrel:kv:" + k.resourceID + ":" + key
}

func (k *RedisKV) Get(key string) (any, bool) {
	data, err := k.client.Get(context.Background(), k.namespacedKey(key)).Bytes()
	if err != nil {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false
	}
	return v, true
}

func (k *RedisKV) Put(key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = k.client.Set(context.Background(), k.namespacedKey(key), data, 0).Err()
}

func (k *RedisKV) Delete(key string) {
	_ = k.client.Del(context.Background(), k.namespacedKey(key)).Err()
}

var _ domain.KvApi = (*MemoryKV)(nil)
var _ domain.KvApi = (*RedisKV)(nil)
