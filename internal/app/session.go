package app

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"livequiz-service/internal/domain"
)

// Options tunes a session actor. Zero values fall back to defaults.
type Options struct {
	// TickInterval is how often the question countdown emits a time_tick.
	TickInterval time.Duration
	// MailboxSize bounds the actor inbox.
	MailboxSize int
	// Clock is test-only for deterministic timestamps.
	Clock func() time.Time
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.MailboxSize <= 0 {
		o.MailboxSize = 64
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Session is the authoritative state machine for one quiz instance. All
// mutations funnel through a single mailbox goroutine, so no two operations
// for the same session ever run concurrently; sessions are fully
// independent of each other.
type Session struct {
	id   string
	quiz domain.Quiz
	opts Options

	inbox     chan func()
	done      chan struct{}
	closeOnce sync.Once

	ended atomic.Bool
	subs  atomic.Int32

	// Everything below is owned by the mailbox goroutine.
	status         domain.SessionStatus
	currentIndex   int
	currentStarted time.Time
	questionClosed bool
	timer          *questionTimer
	participants   map[string]*domain.Participant
	byUser         map[string]string
	responses      map[string]map[string]*domain.Response
	violations     []domain.ViolationEvent
	subscribers    map[*subscriber]struct{}
	finalResults   *domain.SessionResults
	onEnd          func(domain.SessionResults)
	rnd            *rand.Rand
}

type subscriber struct {
	ch            chan Event
	instructor    bool
	participantID string
}

func (sub *subscriber) wants(ev Event) bool {
	switch ev.Scope {
	case ScopeInstructors:
		return sub.instructor
	case ScopeParticipant:
		return sub.participantID != "" && sub.participantID == ev.ParticipantID
	default:
		return true
	}
}

// NewSession builds and starts the actor for one quiz instance. Self-paced
// quizzes begin in_progress; live quizzes wait in the lobby for the
// instructor's start.
func NewSession(id string, quiz domain.Quiz, opts Options) *Session {
	opts = opts.withDefaults()
	status := domain.StatusLobby
	if quiz.Mode == domain.ModeSelfPaced {
		status = domain.StatusInProgress
	}
	s := &Session{
		id:           id,
		quiz:         quiz,
		opts:         opts,
		inbox:        make(chan func(), opts.MailboxSize),
		done:         make(chan struct{}),
		status:       status,
		currentIndex: -1,
		participants: make(map[string]*domain.Participant),
		byUser:       make(map[string]string),
		responses:    make(map[string]map[string]*domain.Response),
		subscribers:  make(map[*subscriber]struct{}),
		rnd:          rand.New(rand.NewSource(opts.Clock().UnixNano())),
	}
	go s.run()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Quiz returns the immutable quiz configuration this session runs against.
func (s *Session) Quiz() domain.Quiz { return s.quiz }

// SetOnEnd registers a callback run once, on the actor goroutine, when the
// session transitions to ended. This covers every ending path, including a
// timer expiry on the last question. A later registration replaces the
// previous one.
func (s *Session) SetOnEnd(fn func(domain.SessionResults)) {
	s.post(func() { s.onEnd = fn })
}

func (s *Session) run() {
	defer func() {
		if s.timer != nil {
			s.timer.Stop()
		}
		for sub := range s.subscribers {
			close(sub.ch)
		}
		s.subscribers = nil
	}()
	for {
		select {
		case fn := <-s.inbox:
			fn()
		case <-s.done:
			return
		}
	}
}

// Close stops the actor goroutine. Pending operations fail with
// ErrSessionClosed; subscriber channels are closed.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Idle reports whether the session can be dropped from its store: the quiz
// has ended and no connections subscribe to it anymore.
func (s *Session) Idle() bool {
	return s.ended.Load() && s.subs.Load() == 0
}

func (s *Session) post(fn func()) bool {
	select {
	case s.inbox <- fn:
		return true
	case <-s.done:
		return false
	}
}

// do runs fn on the actor goroutine and waits for it to complete.
func (s *Session) do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	wrapped := func() {
		fn()
		close(ran)
	}
	select {
	case s.inbox <- wrapped:
	case <-s.done:
		return domain.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ran:
		return nil
	case <-s.done:
		return domain.ErrSessionClosed
	}
}

// Subscribe registers a connection for this session's outbound events.
// Instructor subscribers additionally receive instructor-scoped events;
// participantID routes private events. The caller must invoke the returned
// cancel function to avoid leaks.
func (s *Session) Subscribe(instructor bool, participantID string) (<-chan Event, func(), error) {
	sub := &subscriber{
		ch:            make(chan Event, 32),
		instructor:    instructor,
		participantID: participantID,
	}
	if !s.post(func() {
		s.subscribers[sub] = struct{}{}
		s.subs.Add(1)
	}) {
		return nil, nil, domain.ErrSessionClosed
	}
	cancel := func() {
		s.post(func() {
			if _, ok := s.subscribers[sub]; ok {
				delete(s.subscribers, sub)
				s.subs.Add(-1)
				close(sub.ch)
			}
		})
	}
	return sub.ch, cancel, nil
}

// emit fans one event out to all matching subscribers. Slow consumers have
// their oldest pending event dropped rather than blocking the actor.
func (s *Session) emit(ev Event) {
	for sub := range s.subscribers {
		if !sub.wants(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- ev:
			default:
			}
		}
	}
}

func (s *Session) now() time.Time { return s.opts.Clock() }

func (s *Session) currentQuestion() *domain.Question {
	if s.currentIndex < 0 || s.currentIndex >= len(s.quiz.Questions) {
		return nil
	}
	return &s.quiz.Questions[s.currentIndex]
}

func (s *Session) activeCount() int {
	n := 0
	for _, p := range s.participants {
		if p.IsActive {
			n++
		}
	}
	return n
}

func (s *Session) hasResponse(participantID, questionID string) bool {
	byQ, ok := s.responses[participantID]
	if !ok {
		return false
	}
	_, ok = byQ[questionID]
	return ok
}

func (s *Session) recordResponse(r *domain.Response) {
	byQ, ok := s.responses[r.ParticipantID]
	if !ok {
		byQ = make(map[string]*domain.Response)
		s.responses[r.ParticipantID] = byQ
	}
	byQ[r.QuestionID] = r
}

// rosterSnapshot copies all participants for broadcast.
func (s *Session) rosterSnapshot() ParticipantUpdatePayload {
	parts := make([]domain.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		parts = append(parts, *p)
	}
	sort.Slice(parts, func(i, j int) bool {
		if !parts[i].JoinedAt.Equal(parts[j].JoinedAt) {
			return parts[i].JoinedAt.Before(parts[j].JoinedAt)
		}
		return parts[i].Nickname < parts[j].Nickname
	})
	return ParticipantUpdatePayload{Participants: parts, Count: len(parts)}
}

// leaderboardSnapshot orders participants by score desc, then fastest
// average response, then nickname.
func (s *Session) leaderboardSnapshot() domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, 0, len(s.participants))
	for _, p := range s.participants {
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID:   p.ID,
			Nickname:        p.Nickname,
			Score:           p.Score,
			Correct:         p.Correct,
			Attempted:       p.Attempted,
			AvgResponseTime: p.AvgResponseTime,
			Violations:      p.Violations.Total(),
			IsFlagged:       p.IsFlagged,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].AvgResponseTime != entries[j].AvgResponseTime {
			return entries[i].AvgResponseTime < entries[j].AvgResponseTime
		}
		return entries[i].Nickname < entries[j].Nickname
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return domain.Leaderboard{
		SessionID: s.id,
		QuizID:    s.quiz.ID,
		Entries:   entries,
		UpdatedAt: s.now(),
	}
}

func (s *Session) broadcastRoster() {
	s.emit(Event{Type: EventParticipantUpdate, Payload: s.rosterSnapshot(), Scope: ScopeAll})
}

func (s *Session) broadcastLeaderboard() {
	if !s.quiz.Settings.ShowLeaderboard {
		return
	}
	s.emit(Event{Type: EventLeaderboard, Payload: s.leaderboardSnapshot(), Scope: ScopeAll})
}
