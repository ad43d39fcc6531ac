// Package memstore is an in-process implementation of store.Repository.
// Documents are copied through JSON on every read and write so callers never
// share memory with the store, the same way they would with a remote backend.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/ce-fello/codeclash-service/src/internal/model"
	"github.com/ce-fello/codeclash-service/src/internal/store"

	"github.com/google/uuid"
)

type entry[T any] struct {
	doc T
	seq int64
}

var _ store.Repository = (*Store)(nil)

type Store struct {
	mu           sync.RWMutex
	seq          int64
	users        map[string]entry[model.User]
	challenges   map[string]entry[model.Challenge]
	teams        map[string]entry[model.Team]
	applications map[string]entry[model.Application]
}

func New() *Store {
	return &Store{
		users:        map[string]entry[model.User]{},
		challenges:   map[string]entry[model.Challenge]{},
		teams:        map[string]entry[model.Team]{},
		applications: map[string]entry[model.Application]{},
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func clone[T any](v T) T {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return out
}

func (s *Store) next() int64 {
	s.seq++
	return s.seq
}

// put stores doc when the stored version still equals prev and returns the stored copy.
func put[T any](m map[string]entry[T], id string, prev int64, version func(T) int64, doc T) error {
	cur, ok := m[id]
	if !ok {
		return model.ErrNotFound
	}
	if version(cur.doc) != prev {
		return model.ErrConflict
	}
	m[id] = entry[T]{doc: clone(doc), seq: cur.seq}
	return nil
}

// sorted returns the entries matching keep, newest first unless asc.
func sorted[T any](m map[string]entry[T], created func(T) int64, keep func(T) bool, asc bool) []T {
	list := make([]entry[T], 0, len(m))
	for _, e := range m {
		if keep(e.doc) {
			list = append(list, e)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		ci, cj := created(list[i].doc), created(list[j].doc)
		if ci == cj {
			ci, cj = list[i].seq, list[j].seq
		}
		if asc {
			return ci < cj
		}
		return ci > cj
	})
	out := make([]T, 0, len(list))
	for _, e := range list {
		out = append(out, clone(e.doc))
	}
	return out
}

func (s *Store) GetUser(_ context.Context, uid string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.users[uid]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return clone(e.doc), nil
}

func (s *Store) CreateUser(_ context.Context, u model.User) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.UID]; ok {
		return model.User{}, model.ErrConflict
	}
	u.Version = 1
	s.users[u.UID] = entry[model.User]{doc: clone(u), seq: s.next()}
	return clone(u), nil
}

func (s *Store) UpdateUser(_ context.Context, u model.User) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := u.Version
	u.Version++
	if err := put(s.users, u.UID, prev, func(v model.User) int64 { return v.Version }, u); err != nil {
		return model.User{}, err
	}
	return clone(u), nil
}

func (s *Store) ListTopUsers(_ context.Context, limit int) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := sorted(s.users, func(u model.User) int64 { return u.CreatedAt.UnixNano() }, func(model.User) bool { return true }, true)
	sort.SliceStable(users, func(i, j int) bool { return users[i].Platform.Rating > users[j].Platform.Rating })
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func challengeCreated(c model.Challenge) int64 { return c.CreatedAt.UnixNano() }

func (s *Store) CreateChallenge(_ context.Context, c model.Challenge) (model.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.Version = 1
	c.Reindex()
	s.challenges[c.ID] = entry[model.Challenge]{doc: clone(c), seq: s.next()}
	return s.readChallenge(c.ID), nil
}

func (s *Store) readChallenge(id string) model.Challenge {
	c := clone(s.challenges[id].doc)
	c.ID = id
	c.Reindex()
	return c
}

func (s *Store) GetChallenge(_ context.Context, id string) (model.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.challenges[id]; !ok {
		return model.Challenge{}, model.ErrNotFound
	}
	return s.readChallenge(id), nil
}

func (s *Store) UpdateChallenge(_ context.Context, c model.Challenge) (model.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := c.Version
	c.Version++
	if err := put(s.challenges, c.ID, prev, func(v model.Challenge) int64 { return v.Version }, c); err != nil {
		return model.Challenge{}, err
	}
	return s.readChallenge(c.ID), nil
}

func (s *Store) DeleteChallenge(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[id]; !ok {
		return model.ErrNotFound
	}
	delete(s.challenges, id)
	return nil
}

func (s *Store) ListChallenges(_ context.Context, f model.ChallengeFilter) (model.ChallengePage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := sorted(s.challenges, challengeCreated, func(c model.Challenge) bool {
		return (f.Type == "" || c.Type == f.Type) &&
			(f.Difficulty == "" || c.Difficulty == f.Difficulty) &&
			(f.Status == "" || c.Status == f.Status) &&
			(f.CreatorUID == "" || c.CreatorUID == f.CreatorUID) &&
			(f.Privacy == "" || c.Privacy == f.Privacy)
	}, false)

	start := 0
	if f.Cursor != "" {
		start = len(all)
		for i, c := range all {
			if c.ID == f.Cursor {
				start = i + 1
				break
			}
		}
	}
	items := all[start:]
	size := f.PageSize()
	page := model.ChallengePage{Items: items}
	if len(items) > size {
		page.Items = items[:size]
		page.NextCursor = items[size-1].ID
	}
	for i := range page.Items {
		page.Items[i].Reindex()
	}
	return page, nil
}

func (s *Store) ListChallengesByParticipant(_ context.Context, uid string) ([]model.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := sorted(s.challenges, challengeCreated, func(c model.Challenge) bool {
		_, ok := c.Participant(uid)
		return ok
	}, false)
	for i := range list {
		list[i].Reindex()
	}
	return list, nil
}

func teamCreated(t model.Team) int64 { return t.CreatedAt.UnixNano() }

func (s *Store) CreateTeam(_ context.Context, t model.Team) (model.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.Version = 1
	s.teams[t.ID] = entry[model.Team]{doc: clone(t), seq: s.next()}
	return s.readTeam(t.ID), nil
}

func (s *Store) readTeam(id string) model.Team {
	t := clone(s.teams[id].doc)
	t.ID = id
	t.Reindex()
	return t
}

func (s *Store) GetTeam(_ context.Context, id string) (model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.teams[id]; !ok {
		return model.Team{}, model.ErrNotFound
	}
	return s.readTeam(id), nil
}

func (s *Store) UpdateTeam(_ context.Context, t model.Team) (model.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := t.Version
	t.Version++
	if err := put(s.teams, t.ID, prev, func(v model.Team) int64 { return v.Version }, t); err != nil {
		return model.Team{}, err
	}
	return s.readTeam(t.ID), nil
}

func (s *Store) DeleteTeam(_ context.Context, id string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.teams[id]
	if !ok {
		return model.ErrNotFound
	}
	if cur.doc.Version != version {
		return model.ErrConflict
	}
	delete(s.teams, id)
	return nil
}

func (s *Store) ListTeamsByChallenge(_ context.Context, challengeID string) ([]model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	teams := sorted(s.teams, teamCreated, func(t model.Team) bool { return t.ChallengeID == challengeID }, true)
	for i := range teams {
		teams[i].Reindex()
	}
	return teams, nil
}

func (s *Store) ListTeamsByMember(_ context.Context, uid string) ([]model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	teams := sorted(s.teams, teamCreated, func(t model.Team) bool { return t.ActiveIndex(uid) >= 0 }, false)
	for i := range teams {
		teams[i].Reindex()
	}
	return teams, nil
}

func applicationCreated(a model.Application) int64 { return a.CreatedAt.UnixNano() }

func (s *Store) CreateApplication(_ context.Context, a model.Application) (model.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.Version = 1
	s.applications[a.ID] = entry[model.Application]{doc: clone(a), seq: s.next()}
	return clone(a), nil
}

func (s *Store) GetApplication(_ context.Context, id string) (model.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.applications[id]
	if !ok {
		return model.Application{}, model.ErrNotFound
	}
	a := clone(e.doc)
	a.ID = id
	return a, nil
}

func (s *Store) UpdateApplication(_ context.Context, a model.Application) (model.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := a.Version
	a.Version++
	if err := put(s.applications, a.ID, prev, func(v model.Application) int64 { return v.Version }, a); err != nil {
		return model.Application{}, err
	}
	return clone(a), nil
}

func (s *Store) ListApplicationsByChallenge(_ context.Context, challengeID string) ([]model.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sorted(s.applications, applicationCreated, func(a model.Application) bool { return a.ChallengeID == challengeID }, false), nil
}

func (s *Store) ListApplicationsByApplicant(_ context.Context, uid string) ([]model.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sorted(s.applications, applicationCreated, func(a model.Application) bool { return a.ApplicantUID == uid }, false), nil
}

func (s *Store) FindApplication(_ context.Context, challengeID, uid string) (model.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := sorted(s.applications, applicationCreated, func(a model.Application) bool {
		return a.ChallengeID == challengeID && a.ApplicantUID == uid
	}, true)
	if len(list) == 0 {
		return model.Application{}, model.ErrNotFound
	}
	return list[0], nil
}
