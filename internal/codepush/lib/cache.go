package lib

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Default bounds for cache behaviour. The timeout is deliberately short: a
// slow cache must never hold up resolution, which can always recompute.
const (
	DefaultCacheTTL     = time.Hour
	DefaultCacheTimeout = 500 * time.Millisecond
)

// Backend stores serialized resolve results. Implementations must be safe
// for concurrent use and must honor context cancellation. All values under
// one deployment key hash are invalidated as a unit.
type Backend interface {
	Get(ctx context.Context, keyHash, field string) ([]byte, bool, error)
	Set(ctx context.Context, keyHash, field string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, keyHash string) error
}

// ResponseCache fronts the resolver with a best-effort cache of two-candidate
// resolve results. Every backend call is bounded by a timeout; a slow or
// unavailable backend degrades to a miss on reads and a silent drop on
// writes, never an error on the request path.
type ResponseCache struct {
	backend Backend
	ttl     time.Duration
	timeout time.Duration
	log     *logrus.Entry
}

// NewResponseCache wires a backend with the given TTL and per-operation
// timeout. Non-positive values fall back to the defaults.
func NewResponseCache(backend Backend, ttl, timeout time.Duration) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if timeout <= 0 {
		timeout = DefaultCacheTimeout
	}
	return &ResponseCache{
		backend: backend,
		ttl:     ttl,
		timeout: timeout,
		log:     logrus.WithField("component", "responseCache"),
	}
}

// NormalizeCacheField strips the client-identifying query parameter from an
// update-check URL so every client asking the same question shares one cache
// entry. Rollout fan-out happens after the cache read, not before.
func NormalizeCacheField(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	query := parsed.Query()
	query.Del("clientUniqueId")
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// Get returns a cached resolve result, or a miss when the entry is absent,
// corrupt, or the backend did not answer in time.
func (c *ResponseCache) Get(ctx context.Context, keyHash, field string) (ResolveResult, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, ok, err := c.backend.Get(ctx, keyHash, field)
	if err != nil {
		c.log.WithError(err).Warn("cache read failed; treating as miss")
		return ResolveResult{}, false
	}
	if !ok {
		return ResolveResult{}, false
	}

	var result ResolveResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.log.WithError(err).Warn("corrupt cache entry; treating as miss")
		return ResolveResult{}, false
	}
	return result, true
}

// Set stores a computed result. Callers invoke it off the request's critical
// path; failures are logged and dropped. Concurrent writes for the same key
// are safe because the computation is deterministic, so last-writer-wins.
func (c *ResponseCache) Set(ctx context.Context, keyHash, field string, result ResolveResult) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.backend.Set(ctx, keyHash, field, data, c.ttl); err != nil {
		c.log.WithError(err).Warn("cache write dropped")
	}
}

// Invalidate removes every cached answer for one deployment. Mutating
// operations must call this before reporting their own success so stale
// entries never outlive a mutation.
func (c *ResponseCache) Invalidate(ctx context.Context, keyHash string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.backend.Invalidate(ctx, keyHash)
}

// --- In-memory backend ---

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryBackend is the process-local Backend used when no Redis address is
// configured: a mutex-guarded two-level map keyed by deployment key hash,
// then by normalized URL.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]map[string]memoryEntry
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]map[string]memoryEntry)}
}

func (b *MemoryBackend) Get(ctx context.Context, keyHash, field string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	fields, ok := b.entries[keyHash]
	if !ok {
		return nil, false, nil
	}
	entry, ok := fields[field]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(fields, field)
		return nil, false, nil
	}
	return entry.data, true, nil
}

func (b *MemoryBackend) Set(ctx context.Context, keyHash, field string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	fields, ok := b.entries[keyHash]
	if !ok {
		fields = make(map[string]memoryEntry)
		b.entries[keyHash] = fields
	}
	fields[field] = memoryEntry{data: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (b *MemoryBackend) Invalidate(ctx context.Context, keyHash string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, keyHash)
	return nil
}

// --- Redis backend ---

// RedisBackend keeps one Redis hash per deployment key hash, so invalidation
// is a single DEL regardless of how many URL variants were cached.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend connects to a Redis server. Connection failures surface on
// first use and are absorbed by the cache's timeout handling.
func NewRedisBackend(addr string) *RedisBackend {
	return &RedisBackend{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (b *RedisBackend) Get(ctx context.Context, keyHash, field string) ([]byte, bool, error) {
	value, err := b.client.HGet(ctx, keyHash, field).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(value), true, nil
}

func (b *RedisBackend) Set(ctx context.Context, keyHash, field string, value []byte, ttl time.Duration) error {
	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, keyHash, field, value)
	pipe.Expire(ctx, keyHash, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (b *RedisBackend) Invalidate(ctx context.Context, keyHash string) error {
	return b.client.Del(ctx, keyHash).Err()
}
