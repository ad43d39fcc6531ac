package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ce-fello/codeclash-service/src/internal/model"
)

type memoryItem struct {
	raw     []byte
	expires time.Time
}

// Memory is a process-local cache. Values are stored encoded so callers
// cannot mutate a cached challenge through a returned slice. The bucket
// maps are never reassigned, only mutated under mu.
type Memory struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]memoryItem
	lists map[string]memoryItem
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:   ttl,
		now:   time.Now,
		items: map[string]memoryItem{},
		lists: map[string]memoryItem{},
	}
}

func (m *Memory) load(bucket map[string]memoryItem, key string, v any) bool {
	m.mu.Lock()
	it, ok := bucket[key]
	if ok && m.now().After(it.expires) {
		delete(bucket, key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	return json.Unmarshal(it.raw, v) == nil
}

func (m *Memory) store(bucket map[string]memoryItem, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	m.mu.Lock()
	bucket[key] = memoryItem{raw: raw, expires: m.now().Add(m.ttl)}
	m.mu.Unlock()
}

func (m *Memory) Get(_ context.Context, id string) (model.Challenge, bool) {
	var c model.Challenge
	if !m.load(m.items, id, &c) {
		return model.Challenge{}, false
	}
	c.Reindex()
	return c, true
}

func (m *Memory) Put(_ context.Context, c model.Challenge) {
	m.store(m.items, c.ID, c)
}

func (m *Memory) Invalidate(_ context.Context, id string) {
	m.mu.Lock()
	delete(m.items, id)
	m.mu.Unlock()
}

func (m *Memory) GetList(_ context.Context, key string) (model.ChallengePage, bool) {
	var p model.ChallengePage
	if !m.load(m.lists, key, &p) {
		return model.ChallengePage{}, false
	}
	return p, true
}

func (m *Memory) PutList(_ context.Context, key string, page model.ChallengePage) {
	m.store(m.lists, key, page)
}

func (m *Memory) InvalidateLists(context.Context) {
	m.mu.Lock()
	clear(m.lists)
	m.mu.Unlock()
}
