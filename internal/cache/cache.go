/**
 * @description
 * TTL cache with an injectable storage backend.
 * Replaces the ambient, module-level caches the frontend used with an explicit
 * component: get(key) -> (value, age, ok) / put(key, value, ttl).
 *
 * Two backends are provided: an in-memory map (tests, single-node default) and
 * Redis (production, shared across restarts).
 *
 * @dependencies
 * - github.com/redis/go-redis/v9
 */

package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend is the raw storage contract. Implementations own expiry.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// envelope wraps stored values so freshness survives the backend round-trip.
type envelope struct {
	StoredAt time.Time       `json:"stored_at"`
	Value    json.RawMessage `json:"value"`
}

// Cache is the typed TTL cache used across the backend.
type Cache struct {
	backend Backend
	now     func() time.Time
}

// New creates a cache over the given backend.
func New(backend Backend) *Cache {
	return &Cache{backend: backend, now: time.Now}
}

// Put stores value under key for ttl. A ttl of zero means no expiry.
func (c *Cache) Put(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	env, err := json.Marshal(envelope{StoredAt: c.now(), Value: raw})
	if err != nil {
		return err
	}
	return c.backend.Set(ctx, key, env, ttl)
}

// Get loads key into out and reports the entry's age. ok is false on miss;
// backend errors are reported as misses with the error attached.
func (c *Cache) Get(ctx context.Context, key string, out interface{}) (age time.Duration, ok bool, err error) {
	data, found, err := c.backend.Get(ctx, key)
	if err != nil || !found {
		return 0, false, err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		// Unreadable entry: treat as a miss and clear it.
		_ = c.backend.Delete(ctx, key)
		return 0, false, nil
	}
	if err := json.Unmarshal(env.Value, out); err != nil {
		return 0, false, err
	}
	return c.now().Sub(env.StoredAt), true, nil
}

// Delete removes key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.backend.Delete(ctx, key)
}

// MemoryBackend is a process-local Backend for tests and single-node runs.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return entry.data, true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{data: value}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = entry
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// RedisBackend stores entries in Redis with native key expiry.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend wraps a Redis client. All keys are namespaced under prefix.
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

func (r *RedisBackend) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}
