package csrf

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// DefaultMemoryStorageLimit caps the tokens MemoryStorage keeps
const DefaultMemoryStorageLimit = 10000

// MemoryStorage keeps tokens in process memory. Expired tokens are
// dropped on every Set, and once the limit is reached the token closest
// to expiry is evicted.
type MemoryStorage struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	limit   int
	now     func() time.Time
}

var _ Storage = (*MemoryStorage)(nil)

type MemoryStorageOption func(*MemoryStorage)

// WithMemoryStorageLimit sets the maximum number of live tokens
func WithMemoryStorageLimit(limit int) MemoryStorageOption {
	return func(s *MemoryStorage) {
		if limit > 0 {
			s.limit = limit
		}
	}
}

// NewMemoryStorage creates an empty MemoryStorage
func NewMemoryStorage(opts ...MemoryStorageOption) *MemoryStorage {
	s := &MemoryStorage{
		entries: make(map[string]memoryEntry),
		limit:   DefaultMemoryStorageLimit,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemoryStorage) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return "", nil
	}

	if s.expired(entry, s.now()) {
		delete(s.entries, key)
		return "", nil
	}

	return entry.value, nil
}

func (s *MemoryStorage) Set(key string, value string, expiration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)

	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.limit {
		s.evictOldest()
	}

	entry := memoryEntry{value: value}
	if expiration > 0 {
		entry.expiresAt = now.Add(expiration)
	}
	s.entries[key] = entry

	return nil
}

// Len reports how many tokens are held, expired ones included
func (s *MemoryStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStorage) expired(entry memoryEntry, now time.Time) bool {
	return !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt)
}

// sweep drops expired entries, callers hold mu
func (s *MemoryStorage) sweep(now time.Time) {
	for key, entry := range s.entries {
		if s.expired(entry, now) {
			delete(s.entries, key)
		}
	}
}

// evictOldest drops the entry expiring first, entries without expiry go
// last. Callers hold mu.
func (s *MemoryStorage) evictOldest() {
	var (
		victim string
		oldest memoryEntry
		found  bool
	)
	for key, entry := range s.entries {
		if !found || expiresBefore(entry, oldest) {
			victim, oldest, found = key, entry, true
		}
	}
	if found {
		delete(s.entries, victim)
	}
}

func expiresBefore(a, b memoryEntry) bool {
	switch {
	case a.expiresAt.IsZero():
		return false
	case b.expiresAt.IsZero():
		return true
	default:
		return a.expiresAt.Before(b.expiresAt)
	}
}

func (s *MemoryStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

const redisStorageTimeout = 2 * time.Second

// RedisStorage keeps tokens in redis so every instance behind a load
// balancer validates the same token.
type RedisStorage struct {
	client redis.UniversalClient
	prefix string
}

var _ Storage = (*RedisStorage)(nil)

// NewRedisStorage stores tokens under prefix + key
func NewRedisStorage(client redis.UniversalClient, prefix string) *RedisStorage {
	return &RedisStorage{client: client, prefix: prefix}
}

func (s *RedisStorage) Get(key string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisStorageTimeout)
	defer cancel()

	value, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return value, err
}

func (s *RedisStorage) Set(key string, value string, expiration time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisStorageTimeout)
	defer cancel()

	return s.client.Set(ctx, s.prefix+key, value, expiration).Err()
}

func (s *RedisStorage) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisStorageTimeout)
	defer cancel()

	return s.client.Del(ctx, s.prefix+key).Err()
}
