package memory

import (
	"context"
	"sync"
	"time"

	"green-assessment-service/internal/app"
	"green-assessment-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Save(session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID()] = session
}

func (s *SessionStore) Get(id string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// SaveSnapshot is a no-op; the session itself is the state.
func (s *SessionStore) SaveSnapshot(context.Context, domain.SessionSnapshot) error {
	return nil
}

// Sweep drops sessions idle since before cutoff, ends their subscriptions
// and returns how many were removed.
func (s *SessionStore) Sweep(cutoff time.Time) int {
	s.mu.Lock()
	var evicted []*app.Session
	for id, session := range s.sessions {
		if session.UpdatedAt().Before(cutoff) {
			delete(s.sessions, id)
			evicted = append(evicted, session)
		}
	}
	s.mu.Unlock()

	for _, session := range evicted {
		session.Close()
	}
	return len(evicted)
}

// Len reports the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
