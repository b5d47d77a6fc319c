package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"llm-quiz-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Session objects (answers in progress, chat history) stay in a local
//     in-memory map; only ScoreStore content is durable.
//   - Redis marks session liveness per user, so operators can see who is
//     active across instances and TTLs reap stale markers.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
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
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(user), "1", s.ttl).Err()
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
		_ = s.client.Del(context.Background(), s.key(user)).Err()
	}
}

func (s *SessionStore) key(user string) string {
	return "quiz:session:" + user
}
