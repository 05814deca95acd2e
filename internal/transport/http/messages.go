package http

import "encoding/json"

// MessageType is the wire `type` field of a websocket frame. Server-to-client
// session events reuse app.EventType values directly; the types below cover
// the request/ack traffic on top of them.
type MessageType string

const (
	// Client -> Server
	MessageTypeJoin               MessageType = "join"
	MessageTypeInstructorJoin     MessageType = "instructor_join"
	MessageTypeStartQuiz          MessageType = "start_quiz"
	MessageTypeNextQuestion       MessageType = "next_question"
	MessageTypeEndQuiz            MessageType = "end_quiz"
	MessageTypeSubmitAnswer       MessageType = "submit_answer"
	MessageTypeSubmitCode         MessageType = "submit_code"
	MessageTypeReportViolation    MessageType = "report_violation"
	MessageTypePauseParticipant   MessageType = "pause_participant"
	MessageTypeResumeParticipant  MessageType = "resume_participant"
	MessageTypeResumeFromFull     MessageType = "resume_from_fullscreen"
	MessageTypeGetLeaderboard     MessageType = "get_leaderboard"
	MessageTypeCompleteQuiz       MessageType = "complete_quiz"
	MessageTypePing               MessageType = "ping"

	// Server -> Client
	MessageTypeJoined               MessageType = "joined"
	MessageTypeInstructorRegistered MessageType = "instructor_registered"
	MessageTypeAnswerSubmitted      MessageType = "answer_submitted"
	MessageTypeCodeSubmitted        MessageType = "code_submitted"
	MessageTypeViolationRecorded    MessageType = "violation_recorded"
	MessageTypeSessionResults       MessageType = "session_results"
	MessageTypeCompleted            MessageType = "completed"
	MessageTypePong                 MessageType = "pong"
	MessageTypeError                MessageType = "error"
)

type inboundMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload,omitempty"`
}

type joinPayload struct {
	Nickname      string `json:"nickname"`
	ParticipantID string `json:"participantId,omitempty"`
}

type submitAnswerPayload struct {
	QuestionID          string  `json:"questionId"`
	Answer              string  `json:"answer"`
	ResponseTimeSeconds float64 `json:"responseTimeSeconds"`
}

type submitCodePayload struct {
	QuestionID          string  `json:"questionId"`
	Language            string  `json:"language,omitempty"`
	Code                string  `json:"code"`
	ResponseTimeSeconds float64 `json:"responseTimeSeconds"`
}

type reportViolationPayload struct {
	ViolationType string `json:"violationType"`
}

type pauseParticipantPayload struct {
	ParticipantID string `json:"participantId"`
	Reason        string `json:"reason,omitempty"`
}

type resumeParticipantPayload struct {
	ParticipantID string `json:"participantId"`
}

type errorPayload struct {
	Message string `json:"message"`
}
