package app

import (
	"time"

	"livequiz-service/internal/domain"
)

// EventType names a server-to-client frame. Transports pass these through
// as the wire `type` field.
type EventType string

const (
	EventQuizStarted        EventType = "quiz_started"
	EventQuestionStart      EventType = "question_start"
	EventTimeTick           EventType = "time_tick"
	EventQuestionEnd        EventType = "question_end"
	EventQuizEnd            EventType = "quiz_end"
	EventParticipantUpdate  EventType = "participant_update"
	EventParticipantPaused  EventType = "participant_paused"
	EventParticipantResumed EventType = "participant_resumed"
	EventViolationAlert     EventType = "violation_alert"
	EventAnswerProgress     EventType = "answer_progress"
	EventLeaderboard        EventType = "leaderboard"
	EventQuizPaused         EventType = "quiz_paused"
	EventQuizResumed        EventType = "quiz_resumed"
	EventQuizClosed         EventType = "quiz_closed"
	EventQuestionShuffle    EventType = "question_shuffle"
)

// EventScope selects which connections of a session receive an event.
type EventScope int

const (
	// ScopeAll fans out to every connection in the session group.
	ScopeAll EventScope = iota
	// ScopeInstructors delivers to instructor connections only.
	ScopeInstructors
	// ScopeParticipant delivers to one participant's connections only.
	ScopeParticipant
)

// Event is one outbound message emitted by a session actor. Delivery order
// per subscriber follows the actor's emission order.
type Event struct {
	Type          EventType
	Payload       any
	Scope         EventScope
	ParticipantID string // set when Scope == ScopeParticipant
}

// ClientQuestion is a question as shown to quiz takers: the answer key,
// explanation, and test expectations are stripped.
type ClientQuestion struct {
	ID               string              `json:"id"`
	Order            int                 `json:"order"`
	Type             domain.QuestionType `json:"type"`
	Text             string              `json:"text"`
	Choices          []domain.Choice     `json:"choices,omitempty"`
	Language         string              `json:"language,omitempty"`
	StarterCode      string              `json:"starterCode,omitempty"`
	Points           int                 `json:"points"`
	TimeLimitSeconds int                 `json:"timeLimitSeconds"`
	TimeBonus        bool                `json:"timeBonus"`
}

func toClientQuestion(q domain.Question) ClientQuestion {
	return ClientQuestion{
		ID:               q.ID,
		Order:            q.Order,
		Type:             q.Type,
		Text:             q.Text,
		Choices:          q.Choices,
		Language:         q.Language,
		StarterCode:      q.StarterCode,
		Points:           q.Points,
		TimeLimitSeconds: q.TimeLimitSeconds,
		TimeBonus:        q.TimeBonus,
	}
}

type QuestionStartPayload struct {
	Question  ClientQuestion `json:"question"`
	TimeLimit int            `json:"timeLimit"`
	Index     int            `json:"index"`
	Total     int            `json:"total"`
	StartedAt time.Time      `json:"startedAt"`
}

type TimeTickPayload struct {
	QuestionID       string `json:"questionId"`
	SecondsRemaining int    `json:"secondsRemaining"`
}

type QuestionEndPayload struct {
	QuestionID    string `json:"questionId"`
	CorrectAnswer string `json:"correctAnswer,omitempty"`
	Points        int    `json:"points"`
}

type ParticipantUpdatePayload struct {
	Participants []domain.Participant `json:"participants"`
	Count        int                  `json:"count"`
}

type ParticipantPausePayload struct {
	ParticipantID string `json:"participantId"`
	Reason        string `json:"reason,omitempty"`
}

type ViolationAlertPayload struct {
	ParticipantID   string               `json:"participantId"`
	Nickname        string               `json:"nickname"`
	ViolationType   domain.ViolationType `json:"violationType"`
	TotalViolations int                  `json:"totalViolations"`
	IsFlagged       bool                 `json:"isFlagged"`
	PenaltyApplied  int                  `json:"penaltyApplied"`
}

type AnswerProgressPayload struct {
	QuestionID string `json:"questionId"`
	Answered   int    `json:"answered"`
	Total      int    `json:"total"`
}

type QuizClosedPayload struct {
	Reason string `json:"reason"`
}

type QuestionShufflePayload struct {
	Question ClientQuestion `json:"question"`
}
