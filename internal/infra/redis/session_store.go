package redis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Session actors stay in-process (they own live connection fan-out);
//     the local map routes join codes to them.
//   - Redis marks session liveness so monitors and other instances can see
//     which join codes are active.
//   - For true distribution you'd pair this with a pub/sub projector that
//     fans events out across instances.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	opts     app.Options
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration, opts app.Options) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		opts:     opts,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(quiz domain.Quiz) *app.Session {
	code := app.NormalizeCode(quiz.JoinCode)
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[code]; ok {
		return session
	}
	return s.createLocked(code, quiz)
}

func (s *SessionStore) Get(joinCode string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[app.NormalizeCode(joinCode)]
	return session, ok
}

func (s *SessionStore) Replace(quiz domain.Quiz) *app.Session {
	code := app.NormalizeCode(quiz.JoinCode)
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.sessions[code]; ok {
		old.Close()
	}
	return s.createLocked(code, quiz)
}

func (s *SessionStore) createLocked(code string, quiz domain.Quiz) *app.Session {
	session := app.NewSession(uuid.NewString(), quiz, s.opts)
	s.sessions[code] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(code), session.ID(), s.ttl).Err()
	return session
}

func (s *SessionStore) DeleteIfIdle(joinCode string) {
	code := app.NormalizeCode(joinCode)
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[code]
	if !ok {
		return
	}
	if session.Idle() {
		delete(s.sessions, code)
		session.Close()
		_ = s.client.Del(context.Background(), s.key(code)).Err()
	}
}

func (s *SessionStore) key(code string) string {
	return "quiz:session:" + code
}
