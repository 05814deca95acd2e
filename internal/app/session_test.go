package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
)

func liveQuiz() domain.Quiz {
	return domain.Quiz{
		ID:       "quiz-live",
		Title:    "Live Quiz",
		JoinCode: "LIVE01",
		Mode:     domain.ModeLive,
		Questions: []domain.Question{
			{
				ID:            "q1",
				Type:          domain.QuestionMultipleChoice,
				Text:          "Pick b",
				Choices:       []domain.Choice{{Key: "a", Text: "no"}, {Key: "b", Text: "yes"}},
				CorrectAnswer: "b",
				Points:        100,
			},
			{
				ID:            "q2",
				Type:          domain.QuestionTrueFalse,
				Text:          "True?",
				CorrectAnswer: "TRUE",
				Points:        50,
			},
		},
		Settings: domain.Settings{
			MaxViolations:          3,
			ViolationPenaltyPoints: 10,
			FullscreenExitAction:   domain.ActionPause,
			AltTabAction:           domain.ActionWarn,
			ShowLeaderboard:        true,
			ShowCorrectAnswers:     true,
		},
	}
}

func selfPacedQuiz() domain.Quiz {
	q := liveQuiz()
	q.ID = "quiz-paced"
	q.JoinCode = "PACE01"
	q.Mode = domain.ModeSelfPaced
	q.Settings.AllowLateJoin = true
	return q
}

func newLiveSession(t *testing.T) *app.Session {
	t.Helper()
	s := app.NewSession("sess-1", liveQuiz(), app.Options{TickInterval: 10 * time.Millisecond})
	t.Cleanup(s.Close)
	return s
}

func join(t *testing.T, s *app.Session, nickname string) domain.Participant {
	t.Helper()
	res, err := s.Join(context.Background(), app.JoinRequest{Nickname: nickname})
	if err != nil {
		t.Fatalf("join %s: %v", nickname, err)
	}
	return res.Participant
}

func startAndAdvance(t *testing.T, s *app.Session) app.ClientQuestion {
	t.Helper()
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	q, more, err := s.AdvanceQuestion(ctx)
	if err != nil || !more {
		t.Fatalf("advance: more=%v err=%v", more, err)
	}
	return q
}

// waitEvent drains the subscription until an event of the wanted type shows
// up or the timeout hits.
func waitEvent(t *testing.T, ch <-chan app.Event, want app.EventType) app.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed while waiting for %s", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestLifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	s := newLiveSession(t)
	p := join(t, s, "Alice")

	// No submissions before the quiz starts.
	_, err := s.SubmitAnswer(ctx, domain.AnswerSubmission{ParticipantID: p.ID, QuestionID: "q1", Value: "b"})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(ctx); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("second start should fail, got %v", err)
	}

	if _, err := s.End(ctx); err != nil {
		t.Fatalf("end: %v", err)
	}
	_, err = s.SubmitAnswer(ctx, domain.AnswerSubmission{ParticipantID: p.ID, QuestionID: "q1", Value: "b"})
	if !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed after end, got %v", err)
	}
}

func TestSubmitScoresAndRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := newLiveSession(t)
	p := join(t, s, "Alice")
	q := startAndAdvance(t, s)

	res, err := s.SubmitAnswer(ctx, domain.AnswerSubmission{ParticipantID: p.ID, QuestionID: q.ID, Value: "b"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.IsCorrect || res.PointsEarned != 100 || res.TotalScore != 100 {
		t.Fatalf("unexpected result %+v", res)
	}

	_, err = s.SubmitAnswer(ctx, domain.AnswerSubmission{ParticipantID: p.ID, QuestionID: q.ID, Value: "b"})
	if !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Fatalf("expected ErrDuplicateSubmission, got %v", err)
	}

	_, err = s.SubmitAnswer(ctx, domain.AnswerSubmission{ParticipantID: p.ID, QuestionID: "q2", Value: "TRUE"})
	if !errors.Is(err, domain.ErrStaleQuestion) {
		t.Fatalf("expected ErrStaleQuestion for a non-current question, got %v", err)
	}
}

func TestWrongAnswerReturnsCorrection(t *testing.T) {
	ctx := context.Background()
	s := newLiveSession(t)
	p := join(t, s, "Alice")
	q := startAndAdvance(t, s)

	res, err := s.SubmitAnswer(ctx, domain.AnswerSubmission{ParticipantID: p.ID, QuestionID: q.ID, Value: "a"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.IsCorrect || res.PointsEarned != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.CorrectAnswer != "b" {
		t.Fatalf("expected correct answer echoed back, got %q", res.CorrectAnswer)
	}
}

func TestJoinCapacityAndLateJoin(t *testing.T) {
	ctx := context.Background()
	quiz := liveQuiz()
	quiz.Settings.MaxParticipants = 1
	s := app.NewSession("sess-cap", quiz, app.Options{})
	t.Cleanup(s.Close)

	join(t, s, "Alice")
	_, err := s.Join(ctx, app.JoinRequest{Nickname: "Bob"})
	if !errors.Is(err, domain.ErrSessionFull) {
		t.Fatalf("expected ErrSessionFull, got %v", err)
	}

	quiz2 := liveQuiz()
	s2 := app.NewSession("sess-late", quiz2, app.Options{})
	t.Cleanup(s2.Close)
	join(t, s2, "Alice")
	if err := s2.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err = s2.Join(ctx, app.JoinRequest{Nickname: "Late"})
	if !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected late join rejection, got %v", err)
	}
}

func TestJoinAfterDeadline(t *testing.T) {
	ctx := context.Background()
	quiz := selfPacedQuiz()
	past := time.Now().Add(-time.Hour)
	quiz.Settings.Deadline = &past
	s := app.NewSession("sess-deadline", quiz, app.Options{})
	t.Cleanup(s.Close)

	_, err := s.Join(ctx, app.JoinRequest{Nickname: "Tardy"})
	if !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed past the deadline, got %v", err)
	}
}

func TestReconnectRetainsState(t *testing.T) {
	ctx := context.Background()
	s := newLiveSession(t)
	res, err := s.Join(ctx, app.JoinRequest{Nickname: "Alice", UserID: "user-1"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	p := res.Participant
	q := startAndAdvance(t, s)
	if _, err := s.SubmitAnswer(ctx, domain.AnswerSubmission{ParticipantID: p.ID, QuestionID: q.ID, Value: "b"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	s.MarkDisconnected(p.ID)

	back, err := s.Join(ctx, app.JoinRequest{Nickname: "Alice", UserID: "user-1"})
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if !back.Reconnected {
		t.Fatal("expected a reconnect")
	}
	if back.Participant.ID != p.ID || back.Participant.Score != 100 {
		t.Fatalf("state not retained: %+v", back.Participant)
	}

	// Reconnect also works by participant id without a user id.
	s.MarkDisconnected(p.ID)
	back, err = s.Join(ctx, app.JoinRequest{ExistingParticipantID: p.ID})
	if err != nil || !back.Reconnected {
		t.Fatalf("rejoin by participant id: reconnected=%v err=%v", back.Reconnected, err)
	}
}

func TestViolationPauseAndResume(t *testing.T) {
	ctx := context.Background()
	s := newLiveSession(t)
	p := join(t, s, "Alice")
	q := startAndAdvance(t, s)

	out, err := s.ReportViolation(ctx, p.ID, domain.ViolationFullscreenExit)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if out.Action != domain.ActionPause || out.TotalViolations != 1 {
		t.Fatalf("unexpected outcome %+v", out)
	}

	_, err = s.SubmitAnswer(ctx, domain.AnswerSubmission{ParticipantID: p.ID, QuestionID: q.ID, Value: "b"})
	if !errors.Is(err, domain.ErrParticipantPaused) {
		t.Fatalf("expected ErrParticipantPaused, got %v", err)
	}

	if err := s.ResumeParticipant(ctx, p.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := s.SubmitAnswer(ctx, domain.AnswerSubmission{ParticipantID: p.ID, QuestionID: q.ID, Value: "b"}); err != nil {
		t.Fatalf("submit after resume: %v", err)
	}
}

func TestViolationPenaltyAndLimit(t *testing.T) {
	ctx := context.Background()
	s := newLiveSession(t)
	p := join(t, s, "Alice")
	q := startAndAdvance(t, s)
	if _, err := s.SubmitAnswer(ctx, domain.AnswerSubmission{ParticipantID: p.ID, QuestionID: q.ID, Value: "b"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Three tab switches: warn, warn, then the aggregate cap closes the run.
	for i := 0; i < 2; i++ {
		out, err := s.ReportViolation(ctx, p.ID, domain.ViolationTabSwitch)
		if err != nil {
			t.Fatalf("report %d: %v", i, err)
		}
		if out.Action != domain.ActionWarn {
			t.Fatalf("report %d: expected warn, got %s", i, out.Action)
		}
	}
	out, err := s.ReportViolation(ctx, p.ID, domain.ViolationTabSwitch)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if out.Action != domain.ActionClose || !out.IsFlagged {
		t.Fatalf("expected close+flag at the limit, got %+v", out)
	}

	lb, err := s.Leaderboard(ctx)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	// 100 scored, minus 10 per violation event.
	if lb.Entries[0].Score != 70 || !lb.Entries[0].IsFlagged {
		t.Fatalf("unexpected entry %+v", lb.Entries[0])
	}

	_, err = s.SubmitAnswer(ctx, domain.AnswerSubmission{ParticipantID: p.ID, QuestionID: q.ID, Value: "b"})
	if !errors.Is(err, domain.ErrParticipantClosed) {
		t.Fatalf("expected ErrParticipantClosed, got %v", err)
	}
	_, err = s.ReportViolation(ctx, p.ID, domain.ViolationTabSwitch)
	if !errors.Is(err, domain.ErrParticipantClosed) {
		t.Fatalf("expected ErrParticipantClosed on further reports, got %v", err)
	}
}

func TestTimerExpiryAutoSubmits(t *testing.T) {
	ctx := context.Background()
	quiz := liveQuiz()
	quiz.Questions[0].TimeLimitSeconds = 1
	s := app.NewSession("sess-timer", quiz, app.Options{TickInterval: 50 * time.Millisecond})
	t.Cleanup(s.Close)

	p := join(t, s, "Alice")
	events, cancel, err := s.Subscribe(false, p.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	q := startAndAdvance(t, s)
	waitEvent(t, events, app.EventTimeTick)
	waitEvent(t, events, app.EventQuestionEnd)

	_, err = s.SubmitAnswer(ctx, domain.AnswerSubmission{ParticipantID: p.ID, QuestionID: q.ID, Value: "b"})
	if !errors.Is(err, domain.ErrTimeExpired) {
		t.Fatalf("expected ErrTimeExpired, got %v", err)
	}

	lb, err := s.Leaderboard(ctx)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if lb.Entries[0].Attempted != 1 || lb.Entries[0].Score != 0 {
		t.Fatalf("expected an auto-submitted zero answer, got %+v", lb.Entries[0])
	}
}

func TestTimerExpiryAutoSubmitsDisconnected(t *testing.T) {
	ctx := context.Background()
	quiz := liveQuiz()
	quiz.Questions[0].TimeLimitSeconds = 1
	s := app.NewSession("sess-timer-dc", quiz, app.Options{TickInterval: 50 * time.Millisecond})
	t.Cleanup(s.Close)

	alice := join(t, s, "Alice")
	bob := join(t, s, "Bob")
	events, cancel, err := s.Subscribe(false, alice.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	startAndAdvance(t, s)
	s.MarkDisconnected(bob.ID)
	waitEvent(t, events, app.EventQuestionEnd)

	// Both the idle and the disconnected participant get the empty answer.
	lb, err := s.Leaderboard(ctx)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	for _, e := range lb.Entries {
		if e.Attempted != 1 || e.Score != 0 {
			t.Fatalf("expected an auto-submitted zero answer for %s, got %+v", e.Nickname, e)
		}
	}
}

func TestSubscribeScopes(t *testing.T) {
	ctx := context.Background()
	s := newLiveSession(t)
	p := join(t, s, "Alice")

	instructor, cancelI, err := s.Subscribe(true, "")
	if err != nil {
		t.Fatalf("subscribe instructor: %v", err)
	}
	defer cancelI()
	participant, cancelP, err := s.Subscribe(false, p.ID)
	if err != nil {
		t.Fatalf("subscribe participant: %v", err)
	}
	defer cancelP()

	q := startAndAdvance(t, s)
	if _, err := s.SubmitAnswer(ctx, domain.AnswerSubmission{ParticipantID: p.ID, QuestionID: q.ID, Value: "b"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	ev := waitEvent(t, instructor, app.EventAnswerProgress)
	progress, ok := ev.Payload.(app.AnswerProgressPayload)
	if !ok || progress.Answered != 1 {
		t.Fatalf("unexpected progress payload %+v", ev.Payload)
	}

	// The participant stream gets the broadcast leaderboard but never the
	// instructor-only answer_progress.
	waitEvent(t, participant, app.EventLeaderboard)
	select {
	case ev := <-participant:
		if ev.Type == app.EventAnswerProgress {
			t.Fatal("participant received instructor-scoped event")
		}
	default:
	}
}

func TestEndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newLiveSession(t)
	p := join(t, s, "Alice")
	q := startAndAdvance(t, s)
	if _, err := s.SubmitAnswer(ctx, domain.AnswerSubmission{ParticipantID: p.ID, QuestionID: q.ID, Value: "b"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	first, err := s.End(ctx)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	second, err := s.End(ctx)
	if err != nil {
		t.Fatalf("second end: %v", err)
	}
	if !first.EndedAt.Equal(second.EndedAt) || first.TotalParticipants != second.TotalParticipants {
		t.Fatalf("end not idempotent: %+v vs %+v", first, second)
	}
	if first.AverageScore != 100 {
		t.Fatalf("unexpected average score %v", first.AverageScore)
	}
}

func TestAdvanceThroughAllQuestionsEndsSession(t *testing.T) {
	ctx := context.Background()
	s := newLiveSession(t)
	join(t, s, "Alice")
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, more, err := s.AdvanceQuestion(ctx); err != nil || !more {
			t.Fatalf("advance %d: more=%v err=%v", i, more, err)
		}
	}
	if _, more, err := s.AdvanceQuestion(ctx); err != nil || more {
		t.Fatalf("final advance should end: more=%v err=%v", more, err)
	}
	status, err := s.Status(ctx)
	if err != nil || status != domain.StatusEnded {
		t.Fatalf("expected ended, got %s (%v)", status, err)
	}
}

func TestSelfPacedFlow(t *testing.T) {
	ctx := context.Background()
	s := app.NewSession("sess-paced", selfPacedQuiz(), app.Options{})
	t.Cleanup(s.Close)

	res, err := s.Join(ctx, app.JoinRequest{Nickname: "Solo"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if res.Status != domain.StatusInProgress {
		t.Fatalf("self-paced should start in progress, got %s", res.Status)
	}
	if len(res.Questions) != 2 {
		t.Fatalf("expected the full question list, got %d", len(res.Questions))
	}

	p := res.Participant
	// Any question, any order.
	if _, err := s.SubmitAnswer(ctx, domain.AnswerSubmission{ParticipantID: p.ID, QuestionID: "q2", Value: "true", ResponseTimeSeconds: 3}); err != nil {
		t.Fatalf("submit q2: %v", err)
	}
	if _, err := s.SubmitAnswer(ctx, domain.AnswerSubmission{ParticipantID: p.ID, QuestionID: "q1", Value: "b", ResponseTimeSeconds: 5}); err != nil {
		t.Fatalf("submit q1: %v", err)
	}
	_, err = s.SubmitAnswer(ctx, domain.AnswerSubmission{ParticipantID: p.ID, QuestionID: "missing", Value: "x"})
	if !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}

	summary, err := s.CompleteParticipant(ctx, p.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if summary.TotalScore != 150 || summary.TotalCorrect != 2 || summary.Rank != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Accuracy != 100 {
		t.Fatalf("unexpected accuracy %v", summary.Accuracy)
	}
	if len(summary.Questions) != 2 || summary.Questions[0].QuestionID != "q1" {
		t.Fatalf("unexpected per-question results %+v", summary.Questions)
	}
}

func TestIdleAfterEnd(t *testing.T) {
	ctx := context.Background()
	s := newLiveSession(t)
	p := join(t, s, "Alice")
	events, cancel, err := s.Subscribe(false, p.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	_ = events

	if s.Idle() {
		t.Fatal("live session should not be idle")
	}
	if _, err := s.End(ctx); err != nil {
		t.Fatalf("end: %v", err)
	}
	if s.Idle() {
		t.Fatal("session with a subscriber is not idle")
	}
	cancel()

	deadline := time.After(time.Second)
	for !s.Idle() {
		select {
		case <-deadline:
			t.Fatal("session never became idle")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
