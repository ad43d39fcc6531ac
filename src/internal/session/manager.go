package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ce-fello/codeclash-service/src/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager owns the live session stores of this process and the shared registry.
type Manager struct {
	registry Registry
	ttl      time.Duration
	log      *zap.Logger

	mu     sync.Mutex
	stores map[string]*Store
	owners map[string]string
}

func NewManager(registry Registry, ttl time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		registry: registry,
		ttl:      ttl,
		log:      logger,
		stores:   map[string]*Store{},
		owners:   map[string]string{},
	}
}

// Open starts a session for u and returns its id.
func (m *Manager) Open(ctx context.Context, u model.User) (string, error) {
	sid := uuid.New().String()
	if err := m.registry.Put(ctx, sid, u.UID, m.ttl); err != nil {
		m.log.Error("session.Open: registry write failed", zap.String("user", u.UID), zap.Error(err))
		return "", err
	}
	m.Attach(sid, u)
	m.log.Info("session opened", zap.String("user", u.UID), zap.String("sid", sid))
	return sid, nil
}

// Resolve returns the user behind a live session. A session the registry
// no longer knows is dropped locally, which signs its subscribers out.
func (m *Manager) Resolve(ctx context.Context, sid string) (string, error) {
	uid, err := m.registry.Lookup(ctx, sid)
	if errors.Is(err, ErrNotFound) {
		m.drop(sid)
	}
	return uid, err
}

// Attach returns the local store for sid, creating it with u when this
// process has not seen the session yet.
func (m *Manager) Attach(sid string, u model.User) *Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.stores[sid]; ok {
		return s
	}
	s := NewStore()
	s.Init(u)
	m.stores[sid] = s
	m.owners[sid] = u.UID
	return s
}

func (m *Manager) Store(sid string) (*Store, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stores[sid]
	return s, ok
}

// Publish pushes a fresh copy of u to every local session of that user.
func (m *Manager) Publish(u model.User) {
	m.mu.Lock()
	var targets []*Store
	for sid, uid := range m.owners {
		if uid == u.UID {
			targets = append(targets, m.stores[sid])
		}
	}
	m.mu.Unlock()
	for _, s := range targets {
		s.SetUser(u)
	}
}

// drop tears down the local store of sid, if any.
func (m *Manager) drop(sid string) bool {
	m.mu.Lock()
	s, ok := m.stores[sid]
	delete(m.stores, sid)
	delete(m.owners, sid)
	m.mu.Unlock()
	if ok {
		s.Teardown()
		m.log.Info("session expired", zap.String("sid", sid))
	}
	return ok
}

// Sweep drops local stores whose sessions expired in the registry and purges
// expired registry entries when the registry keeps them in process. It
// returns the number of local stores dropped.
func (m *Manager) Sweep(ctx context.Context) int {
	m.mu.Lock()
	sids := make([]string, 0, len(m.stores))
	for sid := range m.stores {
		sids = append(sids, sid)
	}
	m.mu.Unlock()

	dropped := 0
	for _, sid := range sids {
		_, err := m.registry.Lookup(ctx, sid)
		switch {
		case errors.Is(err, ErrNotFound):
			if m.drop(sid) {
				dropped++
			}
		case err != nil:
			m.log.Warn("session sweep: lookup failed", zap.String("sid", sid), zap.Error(err))
		}
	}
	if p, ok := m.registry.(interface{ Purge() int }); ok {
		if n := p.Purge(); n > 0 {
			m.log.Debug("session sweep: registry purged", zap.Int("entries", n))
		}
	}
	return dropped
}

// Close ends the session everywhere and tears down the local store.
func (m *Manager) Close(ctx context.Context, sid string) error {
	err := m.registry.Delete(ctx, sid)
	m.mu.Lock()
	s, ok := m.stores[sid]
	delete(m.stores, sid)
	delete(m.owners, sid)
	m.mu.Unlock()
	if ok {
		s.Teardown()
	}
	if err != nil {
		m.log.Error("session.Close: registry delete failed", zap.String("sid", sid), zap.Error(err))
		return err
	}
	m.log.Info("session closed", zap.String("sid", sid))
	return nil
}
