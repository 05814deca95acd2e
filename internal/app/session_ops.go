package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"livequiz-service/internal/domain"
)

// JoinRequest identifies who is joining. ExistingParticipantID turns the
// call into a reconnect that re-attaches to retained state.
type JoinRequest struct {
	Nickname              string
	UserID                string
	ExistingParticipantID string
}

// JoinResult is what both transports hand back on a successful join.
type JoinResult struct {
	SessionID   string               `json:"sessionId"`
	QuizID      string               `json:"quizId"`
	QuizTitle   string               `json:"quizTitle"`
	Mode        domain.QuizMode      `json:"mode"`
	Status      domain.SessionStatus `json:"status"`
	Participant domain.Participant   `json:"participant"`
	Reconnected bool                 `json:"reconnected"`
	// Questions is populated for self-paced joins only, answer keys stripped.
	Questions []ClientQuestion `json:"questions,omitempty"`
}

// Join registers a new participant or re-attaches an existing one.
func (s *Session) Join(ctx context.Context, req JoinRequest) (JoinResult, error) {
	var (
		res JoinResult
		err error
	)
	if derr := s.do(ctx, func() { res, err = s.join(req) }); derr != nil {
		return JoinResult{}, derr
	}
	return res, err
}

func (s *Session) join(req JoinRequest) (JoinResult, error) {
	if p := s.reconnectTarget(req); p != nil {
		p.IsActive = true
		p.LeftAt = nil
		if req.Nickname != "" {
			p.Nickname = req.Nickname
		}
		s.broadcastRoster()
		return s.joinResult(*p, true), nil
	}

	if s.status == domain.StatusEnded {
		return JoinResult{}, domain.ErrSessionClosed
	}
	if d := s.quiz.Settings.Deadline; d != nil && s.now().After(*d) {
		return JoinResult{}, domain.ErrSessionClosed
	}
	if s.quiz.Mode == domain.ModeLive && s.status == domain.StatusInProgress && !s.quiz.Settings.AllowLateJoin {
		return JoinResult{}, domain.ErrSessionClosed
	}
	if max := s.quiz.Settings.MaxParticipants; max > 0 && s.activeCount() >= max {
		return JoinResult{}, domain.ErrSessionFull
	}

	p := &domain.Participant{
		ID:        uuid.NewString(),
		SessionID: s.id,
		Nickname:  req.Nickname,
		UserID:    req.UserID,
		IsActive:  true,
		JoinedAt:  s.now(),
	}
	s.participants[p.ID] = p
	if req.UserID != "" {
		s.byUser[req.UserID] = p.ID
	}
	s.broadcastRoster()
	return s.joinResult(*p, false), nil
}

func (s *Session) reconnectTarget(req JoinRequest) *domain.Participant {
	if req.ExistingParticipantID != "" {
		if p, ok := s.participants[req.ExistingParticipantID]; ok {
			return p
		}
	}
	if req.UserID != "" {
		if id, ok := s.byUser[req.UserID]; ok {
			return s.participants[id]
		}
	}
	return nil
}

func (s *Session) joinResult(p domain.Participant, reconnected bool) JoinResult {
	res := JoinResult{
		SessionID:   s.id,
		QuizID:      s.quiz.ID,
		QuizTitle:   s.quiz.Title,
		Mode:        s.quiz.Mode,
		Status:      s.status,
		Participant: p,
		Reconnected: reconnected,
	}
	if s.quiz.Mode == domain.ModeSelfPaced {
		res.Questions = make([]ClientQuestion, 0, len(s.quiz.Questions))
		for _, q := range s.quiz.Questions {
			res.Questions = append(res.Questions, toClientQuestion(q))
		}
	}
	return res
}

// Start moves the session from lobby to in_progress and announces it.
func (s *Session) Start(ctx context.Context) error {
	var err error
	if derr := s.do(ctx, func() { err = s.start() }); derr != nil {
		return derr
	}
	return err
}

func (s *Session) start() error {
	if s.status != domain.StatusLobby {
		return domain.ErrInvalidTransition
	}
	s.status = domain.StatusInProgress
	s.emit(Event{Type: EventQuizStarted, Scope: ScopeAll})
	s.broadcastRoster()
	return nil
}

// AdvanceQuestion closes out the current question (if any) and either
// broadcasts the next one or, when none remain, ends the session. The
// returned bool reports whether a question was emitted.
func (s *Session) AdvanceQuestion(ctx context.Context) (ClientQuestion, bool, error) {
	var (
		q   ClientQuestion
		ok  bool
		err error
	)
	if derr := s.do(ctx, func() { q, ok, err = s.advance() }); derr != nil {
		return ClientQuestion{}, false, derr
	}
	return q, ok, err
}

func (s *Session) advance() (ClientQuestion, bool, error) {
	if s.status != domain.StatusInProgress {
		return ClientQuestion{}, false, domain.ErrInvalidTransition
	}
	s.stopTimer()
	if cur := s.currentQuestion(); cur != nil && !s.questionClosed {
		s.emitQuestionEnd(cur)
	}

	next := s.currentIndex + 1
	if next >= len(s.quiz.Questions) {
		s.end()
		return ClientQuestion{}, false, nil
	}

	s.currentIndex = next
	s.currentStarted = s.now()
	s.questionClosed = false
	q := s.quiz.Questions[next]

	if s.quiz.Mode == domain.ModeLive && q.TimeLimitSeconds > 0 {
		limit := time.Duration(q.TimeLimitSeconds) * time.Second
		s.timer = startQuestionTimer(q.ID, limit, s.opts.TickInterval, func(sig timerSignal) bool {
			return s.post(func() { s.onTimer(sig) })
		})
	}

	cq := toClientQuestion(q)
	s.emit(Event{
		Type: EventQuestionStart,
		Payload: QuestionStartPayload{
			Question:  cq,
			TimeLimit: q.TimeLimitSeconds,
			Index:     next + 1,
			Total:     len(s.quiz.Questions),
			StartedAt: s.currentStarted,
		},
		Scope: ScopeAll,
	})
	return cq, true, nil
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) emitQuestionEnd(q *domain.Question) {
	payload := QuestionEndPayload{QuestionID: q.ID, Points: q.Points}
	if s.quiz.Settings.ShowCorrectAnswers {
		payload.CorrectAnswer = q.CorrectAnswer
	}
	s.emit(Event{Type: EventQuestionEnd, Payload: payload, Scope: ScopeAll})
}

func (s *Session) onTimer(sig timerSignal) {
	cur := s.currentQuestion()
	if s.status != domain.StatusInProgress || cur == nil || cur.ID != sig.questionID {
		return // stale signal from a cancelled countdown
	}
	if !sig.expired {
		s.emit(Event{
			Type:    EventTimeTick,
			Payload: TimeTickPayload{QuestionID: cur.ID, SecondsRemaining: sig.remaining},
			Scope:   ScopeAll,
		})
		return
	}

	s.stopTimer()
	s.autoSubmitMissing(cur)
	s.questionClosed = true
	s.emitQuestionEnd(cur)
	s.broadcastLeaderboard()

	if s.quiz.Settings.AutoAdvance {
		s.advance()
	}
}

// autoSubmitMissing records the server-generated empty response for every
// participant who has not answered the expiring question, disconnected ones
// included. Paused participants are skipped: their timer effects are
// suspended.
func (s *Session) autoSubmitMissing(q *domain.Question) {
	for _, p := range s.participants {
		if p.IsPaused || p.IsClosed {
			continue
		}
		if s.hasResponse(p.ID, q.ID) {
			continue
		}
		s.recordResponse(&domain.Response{
			ParticipantID:       p.ID,
			QuestionID:          q.ID,
			ResponseTimeSeconds: float64(q.TimeLimitSeconds),
			IsCorrect:           false,
			PointsEarned:        0,
			AutoSubmitted:       true,
			SubmittedAt:         s.now(),
		})
		s.bumpParticipantStats(p, false, 0, float64(q.TimeLimitSeconds))
	}
}

// SubmitAnswer scores one submission. The result goes back to the submitter
// only; instructors get an aggregate answer_progress event.
func (s *Session) SubmitAnswer(ctx context.Context, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	var (
		res domain.AnswerResult
		err error
	)
	if derr := s.do(ctx, func() { res, err = s.submit(sub) }); derr != nil {
		return domain.AnswerResult{}, derr
	}
	return res, err
}

func (s *Session) submit(sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	p, ok := s.participants[sub.ParticipantID]
	if !ok {
		return domain.AnswerResult{}, domain.ErrParticipantNotFound
	}
	if p.IsClosed {
		return domain.AnswerResult{}, domain.ErrParticipantClosed
	}
	if p.IsPaused {
		return domain.AnswerResult{}, domain.ErrParticipantPaused
	}
	if s.status != domain.StatusInProgress {
		if s.status == domain.StatusEnded {
			return domain.AnswerResult{}, domain.ErrSessionClosed
		}
		return domain.AnswerResult{}, domain.ErrInvalidTransition
	}

	var q *domain.Question
	if s.quiz.Mode == domain.ModeSelfPaced {
		if q = s.quiz.QuestionByID(sub.QuestionID); q == nil {
			return domain.AnswerResult{}, domain.ErrQuestionNotFound
		}
	} else {
		q = s.currentQuestion()
		if q == nil || q.ID != sub.QuestionID {
			return domain.AnswerResult{}, domain.ErrStaleQuestion
		}
		if s.questionClosed {
			return domain.AnswerResult{}, domain.ErrTimeExpired
		}
	}
	if s.hasResponse(p.ID, q.ID) {
		return domain.AnswerResult{}, domain.ErrDuplicateSubmission
	}

	correct, points := ScoreAnswer(*q, sub)
	s.recordResponse(&domain.Response{
		ParticipantID:       p.ID,
		QuestionID:          q.ID,
		Value:               sub.Value,
		CodeSubmission:      sub.CodeSubmission,
		ResponseTimeSeconds: sub.ResponseTimeSeconds,
		IsCorrect:           correct,
		PointsEarned:        points,
		SubmittedAt:         s.now(),
	})
	s.bumpParticipantStats(p, correct, points, sub.ResponseTimeSeconds)
	s.notifyAnswerProgress(q)
	s.broadcastLeaderboard()

	res := domain.AnswerResult{
		QuestionID:   q.ID,
		IsCorrect:    correct,
		PointsEarned: points,
		TotalScore:   p.Score,
		Correct:      p.Correct,
		Attempted:    p.Attempted,
		Verdict:      sub.CodeVerdict,
	}
	if !correct && s.quiz.Settings.ShowCorrectAnswers {
		res.CorrectAnswer = q.CorrectAnswer
		res.Explanation = q.Explanation
	}
	return res, nil
}

func (s *Session) bumpParticipantStats(p *domain.Participant, correct bool, points int, responseTime float64) {
	p.Attempted++
	if correct {
		p.Correct++
	}
	p.Score += points
	total := p.AvgResponseTime*float64(p.Attempted-1) + responseTime
	p.AvgResponseTime = total / float64(p.Attempted)
}

func (s *Session) notifyAnswerProgress(q *domain.Question) {
	if s.quiz.Mode != domain.ModeLive {
		return
	}
	answered := 0
	for id := range s.participants {
		if s.hasResponse(id, q.ID) {
			answered++
		}
	}
	s.emit(Event{
		Type:    EventAnswerProgress,
		Payload: AnswerProgressPayload{QuestionID: q.ID, Answered: answered, Total: s.activeCount()},
		Scope:   ScopeInstructors,
	})
}

// ReportViolation evaluates one client- or server-detected integrity event
// and applies the resulting action to the participant.
func (s *Session) ReportViolation(ctx context.Context, participantID string, vtype domain.ViolationType) (domain.ViolationOutcome, error) {
	var (
		out domain.ViolationOutcome
		err error
	)
	if derr := s.do(ctx, func() { out, err = s.reportViolation(participantID, vtype) }); derr != nil {
		return domain.ViolationOutcome{}, derr
	}
	return out, err
}

func (s *Session) reportViolation(participantID string, vtype domain.ViolationType) (domain.ViolationOutcome, error) {
	p, ok := s.participants[participantID]
	if !ok {
		return domain.ViolationOutcome{}, domain.ErrParticipantNotFound
	}
	if p.IsClosed {
		return domain.ViolationOutcome{}, domain.ErrParticipantClosed
	}

	d := DecideViolation(p.Violations, vtype, s.quiz.Settings)
	p.Violations = d.Counts
	p.Score = ApplyPenalty(p.Score, d.PenaltyPoints)
	if d.Flagged {
		p.IsFlagged = true
	}

	out := domain.ViolationOutcome{
		Action:          d.Action,
		TotalViolations: d.Total,
		PenaltyApplied:  d.PenaltyPoints,
		IsFlagged:       p.IsFlagged,
		Nickname:        p.Nickname,
	}

	switch d.Action {
	case domain.ActionPause:
		p.IsPaused = true
		p.PauseReason = pauseReason(vtype)
		out.Reason = p.PauseReason
		s.emit(Event{Type: EventQuizPaused, Payload: ParticipantPausePayload{ParticipantID: p.ID, Reason: p.PauseReason}, Scope: ScopeParticipant, ParticipantID: p.ID})
		s.emit(Event{Type: EventParticipantPaused, Payload: ParticipantPausePayload{ParticipantID: p.ID, Reason: p.PauseReason}, Scope: ScopeAll})
	case domain.ActionClose:
		p.IsClosed = true
		p.IsActive = false
		out.Reason = "Session closed: violation limit exceeded."
		s.emit(Event{Type: EventQuizClosed, Payload: QuizClosedPayload{Reason: out.Reason}, Scope: ScopeParticipant, ParticipantID: p.ID})
		s.broadcastRoster()
	case domain.ActionShuffle:
		if q := s.randomUnanswered(p.ID); q != nil {
			s.emit(Event{Type: EventQuestionShuffle, Payload: QuestionShufflePayload{Question: toClientQuestion(*q)}, Scope: ScopeParticipant, ParticipantID: p.ID})
		}
	}

	s.violations = append(s.violations, domain.ViolationEvent{
		ParticipantID:  p.ID,
		Type:           vtype,
		At:             s.now(),
		TotalAfter:     d.Total,
		PenaltyApplied: d.PenaltyPoints,
		Flagged:        p.IsFlagged,
	})
	s.emit(Event{
		Type: EventViolationAlert,
		Payload: ViolationAlertPayload{
			ParticipantID:   p.ID,
			Nickname:        p.Nickname,
			ViolationType:   vtype,
			TotalViolations: d.Total,
			IsFlagged:       p.IsFlagged,
			PenaltyApplied:  d.PenaltyPoints,
		},
		Scope: ScopeInstructors,
	})
	return out, nil
}

func pauseReason(vtype domain.ViolationType) string {
	if vtype == domain.ViolationFullscreenExit {
		return "You exited fullscreen. Re-enter to continue."
	}
	return "Paused after a detected integrity violation."
}

// randomUnanswered picks a random question the participant has not yet
// answered; nil when every question is answered.
func (s *Session) randomUnanswered(participantID string) *domain.Question {
	candidates := make([]*domain.Question, 0, len(s.quiz.Questions))
	for i := range s.quiz.Questions {
		if !s.hasResponse(participantID, s.quiz.Questions[i].ID) {
			candidates = append(candidates, &s.quiz.Questions[i])
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	return candidates[s.rnd.Intn(len(candidates))]
}

// PauseParticipant suspends one participant; the session-wide clock keeps
// running. Instructor-only at the transport layer.
func (s *Session) PauseParticipant(ctx context.Context, participantID, reason string) error {
	var err error
	if derr := s.do(ctx, func() { err = s.setPaused(participantID, true, reason) }); derr != nil {
		return derr
	}
	return err
}

// ResumeParticipant clears a pause. A flagged participant stays flagged.
func (s *Session) ResumeParticipant(ctx context.Context, participantID string) error {
	var err error
	if derr := s.do(ctx, func() { err = s.setPaused(participantID, false, "") }); derr != nil {
		return derr
	}
	return err
}

func (s *Session) setPaused(participantID string, paused bool, reason string) error {
	p, ok := s.participants[participantID]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	if p.IsClosed {
		return domain.ErrParticipantClosed
	}
	p.IsPaused = paused
	if paused {
		if reason == "" {
			reason = "Paused by instructor"
		}
		p.PauseReason = reason
		s.emit(Event{Type: EventQuizPaused, Payload: ParticipantPausePayload{ParticipantID: p.ID, Reason: reason}, Scope: ScopeParticipant, ParticipantID: p.ID})
		s.emit(Event{Type: EventParticipantPaused, Payload: ParticipantPausePayload{ParticipantID: p.ID, Reason: reason}, Scope: ScopeAll})
	} else {
		p.PauseReason = ""
		s.emit(Event{Type: EventQuizResumed, Payload: ParticipantPausePayload{ParticipantID: p.ID}, Scope: ScopeParticipant, ParticipantID: p.ID})
		s.emit(Event{Type: EventParticipantResumed, Payload: ParticipantPausePayload{ParticipantID: p.ID}, Scope: ScopeAll})
	}
	return nil
}

// End finalizes the session and flushes the final leaderboard. Idempotent:
// a second call returns the same results with no duplicate side effects.
func (s *Session) End(ctx context.Context) (domain.SessionResults, error) {
	var res domain.SessionResults
	if derr := s.do(ctx, func() { res = s.end() }); derr != nil {
		return domain.SessionResults{}, derr
	}
	return res, nil
}

func (s *Session) end() domain.SessionResults {
	if s.finalResults != nil {
		return *s.finalResults
	}
	s.stopTimer()
	s.status = domain.StatusEnded
	s.ended.Store(true)

	lb := s.leaderboardSnapshot()
	total := len(s.quiz.Questions)
	completed, sum := 0, 0
	for _, e := range lb.Entries {
		sum += e.Score
		if e.Attempted >= total {
			completed++
		}
	}
	res := domain.SessionResults{
		SessionID:         s.id,
		QuizID:            s.quiz.ID,
		QuizTitle:         s.quiz.Title,
		TotalQuestions:    total,
		TotalParticipants: len(lb.Entries),
		Leaderboard:       lb.Entries,
		Violations:        append([]domain.ViolationEvent(nil), s.violations...),
		EndedAt:           s.now(),
	}
	if n := len(lb.Entries); n > 0 {
		res.AverageScore = float64(sum) / float64(n)
		res.CompletionRate = float64(completed) / float64(n) * 100
	}
	s.finalResults = &res
	s.emit(Event{Type: EventQuizEnd, Payload: res, Scope: ScopeAll})
	if s.onEnd != nil {
		s.onEnd(res)
	}
	return res
}

// MarkDisconnected flags a dropped connection's participant inactive while
// retaining all accumulated state for reconnection.
func (s *Session) MarkDisconnected(participantID string) {
	s.post(func() {
		p, ok := s.participants[participantID]
		if !ok || !p.IsActive {
			return
		}
		p.IsActive = false
		s.broadcastRoster()
	})
}

// CompleteParticipant finalizes one self-paced run and returns the
// participant's per-question breakdown and rank.
func (s *Session) CompleteParticipant(ctx context.Context, participantID string) (domain.ParticipantSummary, error) {
	var (
		sum domain.ParticipantSummary
		err error
	)
	if derr := s.do(ctx, func() { sum, err = s.completeParticipant(participantID) }); derr != nil {
		return domain.ParticipantSummary{}, derr
	}
	return sum, err
}

func (s *Session) completeParticipant(participantID string) (domain.ParticipantSummary, error) {
	p, ok := s.participants[participantID]
	if !ok {
		return domain.ParticipantSummary{}, domain.ErrParticipantNotFound
	}
	now := s.now()
	p.IsActive = false
	p.LeftAt = &now

	summary := domain.ParticipantSummary{
		QuizTitle:       s.quiz.Title,
		ParticipantID:   p.ID,
		TotalScore:      p.Score,
		TotalCorrect:    p.Correct,
		TotalAttempted:  p.Attempted,
		TotalQuestions:  len(s.quiz.Questions),
		AvgResponseTime: p.AvgResponseTime,
	}
	if p.Attempted > 0 {
		summary.Accuracy = float64(p.Correct) / float64(p.Attempted) * 100
	}
	for _, q := range s.quiz.Questions {
		r, ok := s.responses[p.ID][q.ID]
		if !ok {
			continue
		}
		answer := r.Value
		if answer == "" {
			answer = r.CodeSubmission
		}
		summary.Questions = append(summary.Questions, domain.QuestionResult{
			QuestionID:   q.ID,
			QuestionText: q.Text,
			Type:         q.Type,
			AnswerGiven:  answer,
			IsCorrect:    r.IsCorrect,
			PointsEarned: r.PointsEarned,
			PointsMax:    q.Points,
			ResponseTime: r.ResponseTimeSeconds,
			Explanation:  q.Explanation,
		})
	}

	lb := s.leaderboardSnapshot()
	summary.TotalParticipants = len(lb.Entries)
	for _, e := range lb.Entries {
		if e.ParticipantID == p.ID {
			summary.Rank = e.Rank
			break
		}
	}
	s.broadcastRoster()
	return summary, nil
}

// Status returns the current lifecycle state.
func (s *Session) Status(ctx context.Context) (domain.SessionStatus, error) {
	var st domain.SessionStatus
	if err := s.do(ctx, func() { st = s.status }); err != nil {
		return "", err
	}
	return st, nil
}

// Leaderboard returns the current ordered scoreboard.
func (s *Session) Leaderboard(ctx context.Context) (domain.Leaderboard, error) {
	var lb domain.Leaderboard
	if err := s.do(ctx, func() { lb = s.leaderboardSnapshot() }); err != nil {
		return domain.Leaderboard{}, err
	}
	return lb, nil
}

// Roster returns a snapshot of all participants.
func (s *Session) Roster(ctx context.Context) (ParticipantUpdatePayload, error) {
	var r ParticipantUpdatePayload
	if err := s.do(ctx, func() { r = s.rosterSnapshot() }); err != nil {
		return ParticipantUpdatePayload{}, err
	}
	return r, nil
}
