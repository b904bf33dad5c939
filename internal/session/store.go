package session

import (
	"slices"
	"sync"
)

type Store struct {
	mu       sync.RWMutex
	sessions map[string]*SessionState
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*SessionState),
	}
}

func (s *Store) Get(id string) (*SessionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return st.Clone(), true
}

// GetAll returns copies of every session, oldest connection first.
func (s *Store) GetAll() []*SessionState {
	s.mu.RLock()
	result := make([]*SessionState, 0, len(s.sessions))
	for _, st := range s.sessions {
		result = append(result, st.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(result, func(a, b *SessionState) int {
		if c := a.ConnectedAt.Compare(b.ConnectedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return result
}

func (s *Store) Update(state *SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[state.ID] = state.Clone()
}

// Modify applies fn to the stored session under the write lock and returns
// a copy of the result. It reports false if id is unknown.
func (s *Store) Modify(id string, fn func(*SessionState)) (*SessionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	fn(st)
	return st.Clone(), true
}

func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ReadyCount counts sessions that completed the handshake.
func (s *Store) ReadyCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, st := range s.sessions {
		if st.IsReady() {
			count++
		}
	}
	return count
}
