package memory

import (
	"sync"

	"llm-quiz-service/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository,
// keyed by username.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(user string) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[user]; ok {
		return session
	}
	session := app.NewSession(user)
	s.sessions[user] = session
	return session
}

func (s *SessionStore) Get(user string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[user]
	return session, ok
}

func (s *SessionStore) DeleteIfIdle(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[user]
	if !ok {
		return
	}
	if session.IsIdle() {
		delete(s.sessions, user)
	}
}
