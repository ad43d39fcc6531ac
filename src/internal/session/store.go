// Package session tracks signed-in users. A Store is the auth state of one
// session: views subscribe to it and are told about every change, starting
// with the current state. A Registry maps session ids to users so any
// instance can authenticate a request.
package session

import (
	"sync"

	"github.com/ce-fello/codeclash-service/src/internal/model"
)

// Listener receives the signed-in user, or nil once the session ended.
type Listener func(*model.User)

type Store struct {
	mu     sync.Mutex
	user   *model.User
	subs   map[int]Listener
	nextID int
	closed bool
}

// NewStore returns a signed-out store; Init fills it once the login completes.
func NewStore() *Store {
	return &Store{subs: map[int]Listener{}}
}

func (s *Store) Init(u model.User) {
	s.SetUser(u)
}

func (s *Store) Current() (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return model.User{}, false
	}
	return *s.user, true
}

// SetUser replaces the user and notifies subscribers.
func (s *Store) SetUser(u model.User) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.user = &u
	subs := s.snapshot()
	s.mu.Unlock()
	deliver(subs, &u)
}

// UpdateUser edits the user in place and notifies subscribers.
func (s *Store) UpdateUser(fn func(*model.User)) {
	s.mu.Lock()
	if s.closed || s.user == nil {
		s.mu.Unlock()
		return
	}
	u := *s.user
	fn(&u)
	s.user = &u
	subs := s.snapshot()
	s.mu.Unlock()
	deliver(subs, &u)
}

// Subscribe calls l with the current state right away and on every change.
// Subscribing to a torn down store delivers nil once.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		l(nil)
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = l
	var cur *model.User
	if s.user != nil {
		u := *s.user
		cur = &u
	}
	s.mu.Unlock()

	l(cur)
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Teardown signs the session out: subscribers get nil and are dropped.
func (s *Store) Teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.user = nil
	subs := s.snapshot()
	s.subs = map[int]Listener{}
	s.mu.Unlock()
	deliver(subs, nil)
}

func (s *Store) snapshot() []Listener {
	out := make([]Listener, 0, len(s.subs))
	for i := 0; i < s.nextID; i++ {
		if l, ok := s.subs[i]; ok {
			out = append(out, l)
		}
	}
	return out
}

func deliver(subs []Listener, u *model.User) {
	for _, l := range subs {
		if u == nil {
			l(nil)
			continue
		}
		cp := *u
		l(&cp)
	}
}
