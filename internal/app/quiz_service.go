package app

import (
	"context"
	"errors"
	"log"
	"strings"

	"livequiz-service/internal/domain"
)

// SessionRepository abstracts how live sessions are tracked (in-memory,
// Redis-backed, etc). Sessions are keyed by normalized join code.
type SessionRepository interface {
	GetOrCreate(quiz domain.Quiz) *Session
	Get(joinCode string) (*Session, bool)
	// Replace discards any existing session for the quiz and starts a
	// fresh one. Used when a self-paced quiz is re-entered after ending.
	Replace(quiz domain.Quiz) *Session
	DeleteIfIdle(joinCode string)
}

// QuizRepository loads quiz content (from cache/backing store) by join code.
type QuizRepository interface {
	GetQuiz(ctx context.Context, joinCode string) (domain.Quiz, error)
}

// ResultsArchiver writes final session results to the external store.
type ResultsArchiver interface {
	ArchiveResults(ctx context.Context, res domain.SessionResults) error
}

// CodeRunner is the external code-execution collaborator for coding
// questions. The engine only records the verdict it is given.
type CodeRunner interface {
	Run(ctx context.Context, language, code string, tests []domain.TestCase) (domain.CodeVerdict, error)
}

// PendingReviewRunner is the bundled CodeRunner: it marks every submission
// for manual review instead of executing it.
type PendingReviewRunner struct{}

func (PendingReviewRunner) Run(context.Context, string, string, []domain.TestCase) (domain.CodeVerdict, error) {
	return domain.CodeVerdict{PendingReview: true, Detail: "execution disabled, pending manual review"}, nil
}

// QuizService is the entry point both transports share. It resolves join
// codes to session actors and forwards operations; scoring and violation
// outcomes are therefore identical on the live and self-paced paths.
type QuizService struct {
	sessions SessionRepository
	quizzes  QuizRepository
	archiver ResultsArchiver
	runner   CodeRunner
}

func NewQuizService(sessions SessionRepository, quizzes QuizRepository) *QuizService {
	return &QuizService{
		sessions: sessions,
		quizzes:  quizzes,
		runner:   PendingReviewRunner{},
	}
}

// WithArchiver sets the external store final results are flushed to.
func (s *QuizService) WithArchiver(a ResultsArchiver) *QuizService {
	s.archiver = a
	return s
}

// WithCodeRunner swaps the code execution collaborator.
func (s *QuizService) WithCodeRunner(r CodeRunner) *QuizService {
	s.runner = r
	return s
}

// NormalizeCode canonicalizes a join code: codes are short and
// case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// QuizInfo loads the quiz configuration for a join code (pre-join screen).
func (s *QuizService) QuizInfo(ctx context.Context, joinCode string) (domain.Quiz, error) {
	return s.quizzes.GetQuiz(ctx, NormalizeCode(joinCode))
}

// Join registers or re-attaches a participant, creating the session on
// first join. A self-paced join on an ended session starts a fresh one.
func (s *QuizService) Join(ctx context.Context, joinCode string, req JoinRequest) (JoinResult, error) {
	code := NormalizeCode(joinCode)
	quiz, err := s.quizzes.GetQuiz(ctx, code)
	if err != nil {
		return JoinResult{}, err
	}
	session := s.attach(s.sessions.GetOrCreate(quiz))
	res, err := session.Join(ctx, req)
	if errors.Is(err, domain.ErrSessionClosed) && quiz.Mode == domain.ModeSelfPaced {
		session = s.attach(s.sessions.Replace(quiz))
		return session.Join(ctx, req)
	}
	return res, err
}

// attach hooks the archiver to the session's end transition so every ending
// path flushes results, timer-driven ones included.
func (s *QuizService) attach(session *Session) *Session {
	session.SetOnEnd(s.archiveResults)
	return session
}

// OpenSession ensures a session exists for the join code, creating it if
// needed. Used by instructor connections that arrive before any participant.
func (s *QuizService) OpenSession(ctx context.Context, joinCode string) (*Session, error) {
	code := NormalizeCode(joinCode)
	quiz, err := s.quizzes.GetQuiz(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.attach(s.sessions.GetOrCreate(quiz)), nil
}

// Session resolves an already-created session by join code.
func (s *QuizService) Session(joinCode string) (*Session, error) {
	session, ok := s.sessions.Get(NormalizeCode(joinCode))
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Subscribe attaches a connection to a session's event stream.
func (s *QuizService) Subscribe(joinCode string, instructor bool, participantID string) (<-chan Event, func(), error) {
	session, err := s.Session(joinCode)
	if err != nil {
		return nil, nil, err
	}
	return session.Subscribe(instructor, participantID)
}

// Start begins the quiz for everyone in the lobby.
func (s *QuizService) Start(ctx context.Context, joinCode string) error {
	session, err := s.Session(joinCode)
	if err != nil {
		return err
	}
	return session.Start(ctx)
}

// NextQuestion advances the session, ending it when questions run out.
func (s *QuizService) NextQuestion(ctx context.Context, joinCode string) (ClientQuestion, bool, error) {
	session, err := s.Session(joinCode)
	if err != nil {
		return ClientQuestion{}, false, err
	}
	return session.AdvanceQuestion(ctx)
}

// End finalizes a session and reports its results. Archiving runs on the
// session's end hook.
func (s *QuizService) End(ctx context.Context, joinCode string) (domain.SessionResults, error) {
	session, err := s.Session(joinCode)
	if err != nil {
		return domain.SessionResults{}, err
	}
	return session.End(ctx)
}

// archiveResults flushes final results to the external store. Registered as
// the end hook on every session the service opens, so it fires exactly once
// per session no matter how the session ended.
func (s *QuizService) archiveResults(res domain.SessionResults) {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.ArchiveResults(context.Background(), res); err != nil {
		log.Printf("archive results for session %s: %v", res.SessionID, err)
	}
}

// SubmitAnswer scores one answer through the session actor.
func (s *QuizService) SubmitAnswer(ctx context.Context, joinCode string, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	session, err := s.Session(joinCode)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	return session.SubmitAnswer(ctx, sub)
}

// SubmitCode runs the code-execution collaborator, then funnels the verdict
// into the actor as a regular submission. Execution happens on the calling
// goroutine so a slow run never blocks the session mailbox.
func (s *QuizService) SubmitCode(ctx context.Context, joinCode, language string, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	session, err := s.Session(joinCode)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	q := session.Quiz().QuestionByID(sub.QuestionID)
	if q == nil {
		return domain.AnswerResult{}, domain.ErrQuestionNotFound
	}
	if language == "" {
		language = q.Language
	}
	verdict, err := s.runner.Run(ctx, language, sub.CodeSubmission, q.TestCases)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	sub.CodeVerdict = &verdict
	return session.SubmitAnswer(ctx, sub)
}

// ReportViolation applies the violation policy for one detected event.
func (s *QuizService) ReportViolation(ctx context.Context, joinCode, participantID string, vtype domain.ViolationType) (domain.ViolationOutcome, error) {
	session, err := s.Session(joinCode)
	if err != nil {
		return domain.ViolationOutcome{}, err
	}
	return session.ReportViolation(ctx, participantID, vtype)
}

// PauseParticipant suspends one participant (instructor control).
func (s *QuizService) PauseParticipant(ctx context.Context, joinCode, participantID, reason string) error {
	session, err := s.Session(joinCode)
	if err != nil {
		return err
	}
	return session.PauseParticipant(ctx, participantID, reason)
}

// ResumeParticipant clears a pause (instructor control or fullscreen re-entry).
func (s *QuizService) ResumeParticipant(ctx context.Context, joinCode, participantID string) error {
	session, err := s.Session(joinCode)
	if err != nil {
		return err
	}
	return session.ResumeParticipant(ctx, participantID)
}

// Complete finalizes one self-paced participant and returns their summary.
func (s *QuizService) Complete(ctx context.Context, joinCode, participantID string) (domain.ParticipantSummary, error) {
	session, err := s.Session(joinCode)
	if err != nil {
		return domain.ParticipantSummary{}, err
	}
	return session.CompleteParticipant(ctx, participantID)
}

// Leaderboard returns the session's current ordered scoreboard.
func (s *QuizService) Leaderboard(ctx context.Context, joinCode string) (domain.Leaderboard, error) {
	session, err := s.Session(joinCode)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return session.Leaderboard(ctx)
}

// Disconnect marks a dropped connection's participant inactive (state is
// retained for reconnection) and garbage-collects ended idle sessions.
func (s *QuizService) Disconnect(joinCode, participantID string) {
	code := NormalizeCode(joinCode)
	session, ok := s.sessions.Get(code)
	if !ok {
		return
	}
	if participantID != "" {
		session.MarkDisconnected(participantID)
	}
	s.sessions.DeleteIfIdle(code)
}
