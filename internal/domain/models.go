package domain

import "time"

// SessionStatus is the lifecycle state of one live quiz instance.
// Transitions are monotonic: lobby -> in_progress -> ended.
type SessionStatus string

const (
	StatusLobby      SessionStatus = "lobby"
	StatusInProgress SessionStatus = "in_progress"
	StatusEnded      SessionStatus = "ended"
)

// QuizMode selects the delivery path: live (instructor-paced over a
// persistent connection) or self_paced (REST, one request per step).
type QuizMode string

const (
	ModeLive      QuizMode = "live"
	ModeSelfPaced QuizMode = "self_paced"
)

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionShortAnswer    QuestionType = "short_answer"
	QuestionCoding         QuestionType = "coding"
)

type ViolationType string

const (
	ViolationFullscreenExit ViolationType = "fullscreen_exit"
	ViolationTabSwitch      ViolationType = "tab_switch"
	ViolationCopyPaste      ViolationType = "copy_paste"
)

// ViolationAction is what the engine does about a detected violation.
type ViolationAction string

const (
	ActionWarn    ViolationAction = "warn"
	ActionPause   ViolationAction = "pause"
	ActionShuffle ViolationAction = "shuffle"
	ActionClose   ViolationAction = "close"
)

// Settings is the per-quiz proctoring and pacing configuration.
// Immutable for the lifetime of a session.
type Settings struct {
	RequireFullscreen      bool            `json:"requireFullscreen"`
	MaxViolations          int             `json:"maxViolations"`
	ViolationPenaltyPoints int             `json:"violationPenaltyPoints"`
	FullscreenExitAction   ViolationAction `json:"fullscreenExitAction"`
	AltTabAction           ViolationAction `json:"altTabAction"`
	AllowLateJoin          bool            `json:"allowLateJoin"`
	ShowLeaderboard        bool            `json:"showLeaderboard"`
	ShowCorrectAnswers     bool            `json:"showCorrectAnswers"`
	AutoAdvance            bool            `json:"autoAdvance"`
	MaxParticipants        int             `json:"maxParticipants"`
	// Deadline closes joining after the given instant (self-paced quizzes).
	Deadline *time.Time `json:"deadline,omitempty"`
}

// Choice is one selectable option of a multiple-choice question.
type Choice struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// TestCase is one input/expected pair for a coding question.
type TestCase struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
}

// Question is one question of a quiz. CorrectAnswer holds the choice key
// for multiple_choice, "TRUE"/"FALSE" for true_false, and the expected
// string for short_answer. Coding questions carry TestCases instead.
type Question struct {
	ID               string       `json:"id"`
	Order            int          `json:"order"`
	Type             QuestionType `json:"type"`
	Text             string       `json:"text"`
	Choices          []Choice     `json:"choices,omitempty"`
	CorrectAnswer    string       `json:"correctAnswer,omitempty"`
	Explanation      string       `json:"explanation,omitempty"`
	Language         string       `json:"language,omitempty"`
	StarterCode      string       `json:"starterCode,omitempty"`
	TestCases        []TestCase   `json:"testCases,omitempty"`
	Points           int          `json:"points"` // defaults to 1 if zero
	TimeLimitSeconds int          `json:"timeLimitSeconds"`
	TimeBonus        bool         `json:"timeBonus"`
}

// Quiz is the immutable configuration a session runs against.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	JoinCode  string     `json:"joinCode"`
	Mode      QuizMode   `json:"mode"`
	Questions []Question `json:"questions"`
	Settings  Settings   `json:"settings"`
}

// QuestionByID returns the question with the given id, or nil.
func (q Quiz) QuestionByID(id string) *Question {
	for i := range q.Questions {
		if q.Questions[i].ID == id {
			return &q.Questions[i]
		}
	}
	return nil
}

// ViolationCounts tracks per-type violation counters for one participant.
type ViolationCounts struct {
	FullscreenExit int `json:"fullscreenExit"`
	TabSwitch      int `json:"tabSwitch"`
	CopyPaste      int `json:"copyPaste"`
}

// Total is the aggregate count across all violation types.
func (c ViolationCounts) Total() int {
	return c.FullscreenExit + c.TabSwitch + c.CopyPaste
}

// Participant is the per-user runtime record. Mutated only by the
// owning session actor.
type Participant struct {
	ID              string          `json:"id"`
	SessionID       string          `json:"sessionId"`
	Nickname        string          `json:"nickname"`
	UserID          string          `json:"userId,omitempty"`
	Score           int             `json:"score"`
	Correct         int             `json:"correct"`
	Attempted       int             `json:"attempted"`
	AvgResponseTime float64         `json:"avgResponseTime"`
	Violations      ViolationCounts `json:"violations"`
	IsFlagged       bool            `json:"isFlagged"`
	IsPaused        bool            `json:"isPaused"`
	PauseReason     string          `json:"pauseReason,omitempty"`
	IsClosed        bool            `json:"isClosed"`
	IsActive        bool            `json:"isActive"`
	JoinedAt        time.Time       `json:"joinedAt"`
	LeftAt          *time.Time      `json:"leftAt,omitempty"`
}

// Response is one accepted answer. At most one per (participant, question).
type Response struct {
	ParticipantID       string    `json:"participantId"`
	QuestionID          string    `json:"questionId"`
	Value               string    `json:"value"`
	CodeSubmission      string    `json:"codeSubmission,omitempty"`
	ResponseTimeSeconds float64   `json:"responseTimeSeconds"`
	IsCorrect           bool      `json:"isCorrect"`
	PointsEarned        int       `json:"pointsEarned"`
	AutoSubmitted       bool      `json:"autoSubmitted"`
	SubmittedAt         time.Time `json:"submittedAt"`
}

// ViolationEvent is an immutable record of one detected violation.
type ViolationEvent struct {
	ParticipantID  string        `json:"participantId"`
	Type           ViolationType `json:"type"`
	At             time.Time     `json:"at"`
	TotalAfter     int           `json:"totalAfter"`
	PenaltyApplied int           `json:"penaltyApplied"`
	Flagged        bool          `json:"flagged"`
}

// AnswerSubmission is the scoring signal coming in from either transport.
type AnswerSubmission struct {
	ParticipantID       string
	QuestionID          string
	Value               string
	CodeSubmission      string
	ResponseTimeSeconds float64
	CodeVerdict         *CodeVerdict
}

// CodeVerdict is the outcome reported by the external code execution
// collaborator for a coding submission.
type CodeVerdict struct {
	Passed        int    `json:"passed"`
	Total         int    `json:"total"`
	AllPassed     bool   `json:"allPassed"`
	PendingReview bool   `json:"pendingReview"`
	Detail        string `json:"detail,omitempty"`
}

// AnswerResult is the private ack returned to the submitter.
type AnswerResult struct {
	QuestionID    string       `json:"questionId"`
	IsCorrect     bool         `json:"isCorrect"`
	PointsEarned  int          `json:"pointsEarned"`
	TotalScore    int          `json:"totalScore"`
	Correct       int          `json:"correct"`
	Attempted     int          `json:"attempted"`
	CorrectAnswer string       `json:"correctAnswer,omitempty"`
	Explanation   string       `json:"explanation,omitempty"`
	Verdict       *CodeVerdict `json:"verdict,omitempty"`
}

// ViolationOutcome is what the violation policy decided and the actor applied.
type ViolationOutcome struct {
	Action          ViolationAction `json:"action"`
	TotalViolations int             `json:"totalViolations"`
	PenaltyApplied  int             `json:"penaltyApplied"`
	IsFlagged       bool            `json:"isFlagged"`
	Reason          string          `json:"reason,omitempty"`
	Nickname        string          `json:"nickname,omitempty"`
}

// LeaderboardEntry is a snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	Rank            int     `json:"rank"`
	ParticipantID   string  `json:"participantId"`
	Nickname        string  `json:"nickname"`
	Score           int     `json:"score"`
	Correct         int     `json:"correct"`
	Attempted       int     `json:"attempted"`
	AvgResponseTime float64 `json:"avgResponseTime"`
	Violations      int     `json:"violations"`
	IsFlagged       bool    `json:"isFlagged"`
}

// Leaderboard is the ordered scoreboard for a session.
type Leaderboard struct {
	SessionID string             `json:"sessionId"`
	QuizID    string             `json:"quizId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// SessionResults is the final tally flushed when a session ends.
type SessionResults struct {
	SessionID         string             `json:"sessionId"`
	QuizID            string             `json:"quizId"`
	QuizTitle         string             `json:"quizTitle"`
	TotalQuestions    int                `json:"totalQuestions"`
	TotalParticipants int                `json:"totalParticipants"`
	Leaderboard       []LeaderboardEntry `json:"leaderboard"`
	AverageScore      float64            `json:"averageScore"`
	CompletionRate    float64            `json:"completionRate"`
	Violations        []ViolationEvent   `json:"violations,omitempty"`
	EndedAt           time.Time          `json:"endedAt"`
}

// QuestionResult is one line of a participant's per-question breakdown.
type QuestionResult struct {
	QuestionID   string       `json:"questionId"`
	QuestionText string       `json:"questionText"`
	Type         QuestionType `json:"type"`
	AnswerGiven  string       `json:"answerGiven"`
	IsCorrect    bool         `json:"isCorrect"`
	PointsEarned int          `json:"pointsEarned"`
	PointsMax    int          `json:"pointsMax"`
	ResponseTime float64      `json:"responseTime"`
	Explanation  string       `json:"explanation,omitempty"`
}

// ParticipantSummary is the aggregate returned when a self-paced
// participant completes their run.
type ParticipantSummary struct {
	QuizTitle         string           `json:"quizTitle"`
	ParticipantID     string           `json:"participantId"`
	TotalScore        int              `json:"totalScore"`
	TotalCorrect      int              `json:"totalCorrect"`
	TotalAttempted    int              `json:"totalAttempted"`
	TotalQuestions    int              `json:"totalQuestions"`
	Accuracy          float64          `json:"accuracy"`
	AvgResponseTime   float64          `json:"avgResponseTime"`
	Rank              int              `json:"rank"`
	TotalParticipants int              `json:"totalParticipants"`
	Questions         []QuestionResult `json:"questions"`
}
