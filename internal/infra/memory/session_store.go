package memory

import (
	"sync"

	"github.com/google/uuid"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// The map only routes join codes to actors; all session state lives inside
// the actor itself.
type SessionStore struct {
	opts     app.Options
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(opts app.Options) *SessionStore {
	return &SessionStore{
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
	session := app.NewSession(uuid.NewString(), quiz, s.opts)
	s.sessions[code] = session
	return session
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
	session := app.NewSession(uuid.NewString(), quiz, s.opts)
	s.sessions[code] = session
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
	}
}
