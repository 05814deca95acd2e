package app

import (
	"strings"

	"livequiz-service/internal/domain"
)

// Time bonus rates from the grading policy: a correct answer faster than the
// question's time limit earns up to rate*points extra, linearly more for
// faster answers. Coding questions earn a smaller bonus.
const (
	timeBonusRate       = 0.5
	timeBonusRateCoding = 0.3
)

// ScoreAnswer computes correctness and point award for one submission
// against one question. Pure; shared read-only across all sessions.
//
// Empty submissions always score {false, 0}. Coding correctness comes from
// the verdict supplied by the execution collaborator; everything else is a
// normalized string match against the stored correct answer.
func ScoreAnswer(q domain.Question, sub domain.AnswerSubmission) (bool, int) {
	points := q.Points
	if points == 0 {
		points = 1
	}

	if q.Type == domain.QuestionCoding {
		return scoreCoding(q, points, sub)
	}

	if strings.TrimSpace(sub.Value) == "" {
		return false, 0
	}
	if !answerMatches(q, sub.Value) {
		return false, 0
	}
	return true, points + timeBonus(q, points, timeBonusRate, sub.ResponseTimeSeconds)
}

func answerMatches(q domain.Question, value string) bool {
	given := strings.ToUpper(strings.TrimSpace(value))
	want := strings.ToUpper(strings.TrimSpace(q.CorrectAnswer))
	return given == want
}

func scoreCoding(q domain.Question, points int, sub domain.AnswerSubmission) (bool, int) {
	v := sub.CodeVerdict
	if v == nil || v.PendingReview || v.Total == 0 {
		return false, 0
	}
	// Partial credit proportional to tests passed.
	earned := points * v.Passed / v.Total
	if !v.AllPassed {
		return false, earned
	}
	return true, points + timeBonus(q, points, timeBonusRateCoding, sub.ResponseTimeSeconds)
}

// timeBonus returns the extra points for answering within the time limit,
// monotonically decreasing in responseTime and capped at rate*points.
func timeBonus(q domain.Question, points int, rate, responseTime float64) int {
	if !q.TimeBonus || q.TimeLimitSeconds <= 0 {
		return 0
	}
	limit := float64(q.TimeLimitSeconds)
	if responseTime < 0 || responseTime >= limit {
		return 0
	}
	return int(float64(points) * rate * (1 - responseTime/limit))
}
