package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("session not found")

type Registry interface {
	Put(ctx context.Context, sid, uid string, ttl time.Duration) error
	Lookup(ctx context.Context, sid string) (string, error)
	Delete(ctx context.Context, sid string) error
}

type memoryEntry struct {
	uid     string
	expires time.Time
}

type MemoryRegistry struct {
	mu       sync.Mutex
	now      func() time.Time
	sessions map[string]memoryEntry
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{now: time.Now, sessions: map[string]memoryEntry{}}
}

func (r *MemoryRegistry) Put(_ context.Context, sid, uid string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = memoryEntry{uid: uid, expires: r.now().Add(ttl)}
	return nil
}

func (r *MemoryRegistry) Lookup(_ context.Context, sid string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return "", ErrNotFound
	}
	if r.now().After(e.expires) {
		delete(r.sessions, sid)
		return "", ErrNotFound
	}
	return e.uid, nil
}

// Purge removes expired entries that were never looked up again.
func (r *MemoryRegistry) Purge() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	n := 0
	for sid, e := range r.sessions {
		if now.After(e.expires) {
			delete(r.sessions, sid)
			n++
		}
	}
	return n
}

func (r *MemoryRegistry) Delete(_ context.Context, sid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	return nil
}

const sessionPrefix = "session:"

type RedisRegistry struct {
	rdb *redis.Client
}

func NewRedisRegistry(rdb *redis.Client) *RedisRegistry {
	return &RedisRegistry{rdb: rdb}
}

func (r *RedisRegistry) Put(ctx context.Context, sid, uid string, ttl time.Duration) error {
	return r.rdb.Set(ctx, sessionPrefix+sid, uid, ttl).Err()
}

func (r *RedisRegistry) Lookup(ctx context.Context, sid string) (string, error) {
	uid, err := r.rdb.Get(ctx, sessionPrefix+sid).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return uid, err
}

func (r *RedisRegistry) Delete(ctx context.Context, sid string) error {
	return r.rdb.Del(ctx, sessionPrefix+sid).Err()
}
