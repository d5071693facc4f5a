package offline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry is one cached response, keyed by request URL.
type Entry struct {
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// Storage holds named caches of entries.
type Storage interface {
	Put(ctx context.Context, cache string, e Entry) error
	// Match looks key up across every cache, in name order.
	Match(ctx context.Context, key string) (Entry, bool, error)
	Names(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, cache string) error
}

type MemoryStorage struct {
	mu     sync.RWMutex
	caches map[string]map[string]Entry
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{caches: make(map[string]map[string]Entry)}
}

func (m *MemoryStorage) Put(_ context.Context, cache string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.caches[cache]
	if !ok {
		c = make(map[string]Entry)
		m.caches[cache] = c
	}
	c[e.URL] = e
	return nil
}

func (m *MemoryStorage) Match(_ context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, name := range m.sortedNames() {
		if e, ok := m.caches[name][key]; ok {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

func (m *MemoryStorage) Names(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedNames(), nil
}

func (m *MemoryStorage) sortedNames() []string {
	names := make([]string, 0, len(m.caches))
	for name := range m.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *MemoryStorage) Delete(_ context.Context, cache string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.caches, cache)
	return nil
}

const (
	redisCachePrefix = "panel:cache:"
	redisCacheNames  = "panel:caches"
)

// RedisStorage keeps one hash per cache (field = URL) plus a set of names.
type RedisStorage struct {
	client *redis.Client
}

func NewRedisStorage(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client}
}

func (r *RedisStorage) Put(ctx context.Context, cache string, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, redisCacheNames, cache)
	pipe.HSet(ctx, redisCachePrefix+cache, e.URL, raw)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStorage) Match(ctx context.Context, key string) (Entry, bool, error) {
	names, err := r.Names(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	for _, name := range names {
		raw, err := r.client.HGet(ctx, redisCachePrefix+name, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return Entry{}, false, err
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return Entry{}, false, err
		}
		return e, true, nil
	}
	return Entry{}, false, nil
}

func (r *RedisStorage) Names(ctx context.Context) ([]string, error) {
	names, err := r.client.SMembers(ctx, redisCacheNames).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (r *RedisStorage) Delete(ctx context.Context, cache string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, redisCachePrefix+cache)
	pipe.SRem(ctx, redisCacheNames, cache)
	_, err := pipe.Exec(ctx)
	return err
}
