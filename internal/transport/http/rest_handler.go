package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"livequiz-service/internal/app"
	"livequiz-service/internal/auth"
	"livequiz-service/internal/domain"
)

// RESTHandler serves the request/response surface used by self-paced quizzes
// and monitoring dashboards. Live quizzes use the websocket path instead.
type RESTHandler struct {
	service  *app.QuizService
	verifier auth.Verifier
}

func NewRESTHandler(service *app.QuizService, verifier auth.Verifier) *RESTHandler {
	return &RESTHandler{service: service, verifier: verifier}
}

// Register attaches all REST routes to the mux.
func (h *RESTHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/quizzes/info", h.QuizInfo)
	mux.HandleFunc("/api/quizzes/join", h.Join)
	mux.HandleFunc("/api/responses", h.SubmitResponse)
	mux.HandleFunc("/api/violations", h.ReportViolation)
	mux.HandleFunc("/api/sessions/complete", h.Complete)
	mux.HandleFunc("/api/sessions/leaderboard", h.Leaderboard)
}

type joinRequestBody struct {
	JoinCode      string `json:"join_code"`
	Nickname      string `json:"nickname"`
	ParticipantID string `json:"participant_id,omitempty"`
}

type responseBody struct {
	JoinCode            string  `json:"join_code"`
	ParticipantID       string  `json:"participant_id"`
	QuestionID          string  `json:"question_id"`
	Answer              string  `json:"answer,omitempty"`
	Code                string  `json:"code,omitempty"`
	Language            string  `json:"language,omitempty"`
	ResponseTimeSeconds float64 `json:"response_time_seconds"`
}

type violationBody struct {
	JoinCode      string `json:"join_code"`
	ParticipantID string `json:"participant_id"`
	ViolationType string `json:"violation_type"`
}

type completeBody struct {
	JoinCode      string `json:"join_code"`
	ParticipantID string `json:"participant_id"`
}

type quizInfoResponse struct {
	ID                string          `json:"id"`
	Title             string          `json:"title"`
	Mode              domain.QuizMode `json:"mode"`
	QuestionCount     int             `json:"questionCount"`
	RequireFullscreen bool            `json:"requireFullscreen"`
	MaxViolations     int             `json:"maxViolations"`
	AllowLateJoin     bool            `json:"allowLateJoin"`
	ShowLeaderboard   bool            `json:"showLeaderboard"`
}

// QuizInfo returns pre-join metadata for a join code. Answer keys never
// leave this endpoint.
func (h *RESTHandler) QuizInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing code")
		return
	}
	quiz, err := h.service.QuizInfo(r.Context(), code)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quizInfoResponse{
		ID:                quiz.ID,
		Title:             quiz.Title,
		Mode:              quiz.Mode,
		QuestionCount:     len(quiz.Questions),
		RequireFullscreen: quiz.Settings.RequireFullscreen,
		MaxViolations:     quiz.Settings.MaxViolations,
		AllowLateJoin:     quiz.Settings.AllowLateJoin,
		ShowLeaderboard:   quiz.Settings.ShowLeaderboard,
	})
}

func (h *RESTHandler) Join(w http.ResponseWriter, r *http.Request) {
	var body joinRequestBody
	if !h.decodePost(w, r, &body) {
		return
	}
	if body.JoinCode == "" || body.Nickname == "" && body.ParticipantID == "" {
		writeError(w, http.StatusBadRequest, "join_code and nickname are required")
		return
	}
	res, err := h.service.Join(r.Context(), body.JoinCode, app.JoinRequest{
		Nickname:              body.Nickname,
		UserID:                h.identity(r).UserID,
		ExistingParticipantID: body.ParticipantID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SubmitResponse records one answer. A body carrying `code` is routed
// through the code-execution collaborator first.
func (h *RESTHandler) SubmitResponse(w http.ResponseWriter, r *http.Request) {
	var body responseBody
	if !h.decodePost(w, r, &body) {
		return
	}
	if body.JoinCode == "" || body.ParticipantID == "" || body.QuestionID == "" {
		writeError(w, http.StatusBadRequest, "join_code, participant_id and question_id are required")
		return
	}
	sub := domain.AnswerSubmission{
		ParticipantID:       body.ParticipantID,
		QuestionID:          body.QuestionID,
		Value:               body.Answer,
		CodeSubmission:      body.Code,
		ResponseTimeSeconds: body.ResponseTimeSeconds,
	}
	var (
		res domain.AnswerResult
		err error
	)
	if body.Code != "" {
		res, err = h.service.SubmitCode(r.Context(), body.JoinCode, body.Language, sub)
	} else {
		res, err = h.service.SubmitAnswer(r.Context(), body.JoinCode, sub)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *RESTHandler) ReportViolation(w http.ResponseWriter, r *http.Request) {
	var body violationBody
	if !h.decodePost(w, r, &body) {
		return
	}
	vtype, ok := parseViolationType(body.ViolationType)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown violation type")
		return
	}
	outcome, err := h.service.ReportViolation(r.Context(), body.JoinCode, body.ParticipantID, vtype)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *RESTHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var body completeBody
	if !h.decodePost(w, r, &body) {
		return
	}
	summary, err := h.service.Complete(r.Context(), body.JoinCode, body.ParticipantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *RESTHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing code")
		return
	}
	lb, err := h.service.Leaderboard(r.Context(), code)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *RESTHandler) decodePost(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *RESTHandler) identity(r *http.Request) auth.Identity {
	token := bearerToken(r)
	if token == "" {
		return auth.Identity{}
	}
	id, err := h.verifier.Verify(token)
	if err != nil {
		return auth.Identity{}
	}
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrParticipantNotFound),
		errors.Is(err, domain.ErrQuestionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrSessionFull),
		errors.Is(err, domain.ErrSessionClosed),
		errors.Is(err, domain.ErrDuplicateSubmission),
		errors.Is(err, domain.ErrStaleQuestion),
		errors.Is(err, domain.ErrTimeExpired),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrParticipantPaused),
		errors.Is(err, domain.ErrParticipantClosed):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
