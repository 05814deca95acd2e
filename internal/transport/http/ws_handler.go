package http

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"livequiz-service/internal/app"
	"livequiz-service/internal/auth"
	"livequiz-service/internal/domain"
)

// WSHandler serves the persistent connection for live quizzes. One
// connection maps to one participant (or instructor) in one session.
type WSHandler struct {
	service  *app.QuizService
	verifier auth.Verifier
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, verifier auth.Verifier) *WSHandler {
	return &WSHandler{
		service:  service,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// connState is the per-connection state built up as the client identifies
// itself. Mutated only by the read loop.
type connState struct {
	identity      auth.Identity
	participantID string
	instructor    bool
	cancel        func()
}

// ServeWS upgrades the request and runs the connection's read loop until
// the client disconnects.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	var identity auth.Identity
	if token := bearerToken(r); token != "" {
		var err error
		identity, err = h.verifier.Verify(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	client := newWSClient(conn)
	go client.writePump()

	state := &connState{identity: identity}
	defer func() {
		if state.cancel != nil {
			state.cancel()
		}
		h.service.Disconnect(code, state.participantID)
		client.close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws read: %v", err)
			}
			return
		}
		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			client.sendError("invalid message format")
			continue
		}
		h.dispatch(r, code, client, state, msg)
	}
}

func (h *WSHandler) dispatch(r *http.Request, code string, client *wsClient, state *connState, msg inboundMessage) {
	ctx := r.Context()

	switch msg.Type {
	case MessageTypePing:
		client.sendMessage(MessageTypePong, nil)

	case MessageTypeJoin:
		var payload joinPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Nickname == "" && payload.ParticipantID == "" {
			client.sendError("invalid join payload")
			return
		}
		res, err := h.service.Join(ctx, code, app.JoinRequest{
			Nickname:              payload.Nickname,
			UserID:                state.identity.UserID,
			ExistingParticipantID: payload.ParticipantID,
		})
		if err != nil {
			client.sendError(err.Error())
			return
		}
		if state.cancel != nil {
			state.cancel()
		}
		events, cancel, err := h.service.Subscribe(code, false, res.Participant.ID)
		if err != nil {
			client.sendError(err.Error())
			return
		}
		state.participantID = res.Participant.ID
		state.cancel = cancel
		go forwardEvents(client, events)
		client.sendMessage(MessageTypeJoined, res)

	case MessageTypeInstructorJoin:
		if state.identity.Role != "" && !state.identity.Instructor() {
			client.sendError("instructor role required")
			return
		}
		session, err := h.service.OpenSession(ctx, code)
		if err != nil {
			client.sendError(err.Error())
			return
		}
		if state.cancel != nil {
			state.cancel()
		}
		events, cancel, err := session.Subscribe(true, "")
		if err != nil {
			client.sendError(err.Error())
			return
		}
		state.instructor = true
		state.cancel = cancel
		go forwardEvents(client, events)
		status, _ := session.Status(ctx)
		client.sendMessage(MessageTypeInstructorRegistered, map[string]any{
			"sessionId": session.ID(),
			"status":    status,
		})

	case MessageTypeStartQuiz:
		if !h.requireInstructor(client, state) {
			return
		}
		if err := h.service.Start(ctx, code); err != nil {
			client.sendError(err.Error())
		}

	case MessageTypeNextQuestion:
		if !h.requireInstructor(client, state) {
			return
		}
		if _, _, err := h.service.NextQuestion(ctx, code); err != nil {
			client.sendError(err.Error())
		}

	case MessageTypeEndQuiz:
		if !h.requireInstructor(client, state) {
			return
		}
		res, err := h.service.End(ctx, code)
		if err != nil {
			client.sendError(err.Error())
			return
		}
		client.sendMessage(MessageTypeSessionResults, res)

	case MessageTypeSubmitAnswer:
		if !h.requireParticipant(client, state) {
			return
		}
		var payload submitAnswerPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.QuestionID == "" {
			client.sendError("invalid answer payload")
			return
		}
		res, err := h.service.SubmitAnswer(ctx, code, domain.AnswerSubmission{
			ParticipantID:       state.participantID,
			QuestionID:          payload.QuestionID,
			Value:               payload.Answer,
			ResponseTimeSeconds: payload.ResponseTimeSeconds,
		})
		if err != nil {
			client.sendError(err.Error())
			return
		}
		client.sendMessage(MessageTypeAnswerSubmitted, res)

	case MessageTypeSubmitCode:
		if !h.requireParticipant(client, state) {
			return
		}
		var payload submitCodePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.QuestionID == "" {
			client.sendError("invalid code payload")
			return
		}
		res, err := h.service.SubmitCode(ctx, code, payload.Language, domain.AnswerSubmission{
			ParticipantID:       state.participantID,
			QuestionID:          payload.QuestionID,
			CodeSubmission:      payload.Code,
			ResponseTimeSeconds: payload.ResponseTimeSeconds,
		})
		if err != nil {
			client.sendError(err.Error())
			return
		}
		client.sendMessage(MessageTypeCodeSubmitted, res)

	case MessageTypeReportViolation:
		if !h.requireParticipant(client, state) {
			return
		}
		var payload reportViolationPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			client.sendError("invalid violation payload")
			return
		}
		vtype, ok := parseViolationType(payload.ViolationType)
		if !ok {
			client.sendError("unknown violation type")
			return
		}
		outcome, err := h.service.ReportViolation(ctx, code, state.participantID, vtype)
		if err != nil {
			client.sendError(err.Error())
			return
		}
		client.sendMessage(MessageTypeViolationRecorded, outcome)

	case MessageTypePauseParticipant:
		if !h.requireInstructor(client, state) {
			return
		}
		var payload pauseParticipantPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.ParticipantID == "" {
			client.sendError("invalid pause payload")
			return
		}
		if err := h.service.PauseParticipant(ctx, code, payload.ParticipantID, payload.Reason); err != nil {
			client.sendError(err.Error())
		}

	case MessageTypeResumeParticipant:
		if !h.requireInstructor(client, state) {
			return
		}
		var payload resumeParticipantPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.ParticipantID == "" {
			client.sendError("invalid resume payload")
			return
		}
		if err := h.service.ResumeParticipant(ctx, code, payload.ParticipantID); err != nil {
			client.sendError(err.Error())
		}

	case MessageTypeResumeFromFull:
		if !h.requireParticipant(client, state) {
			return
		}
		if err := h.service.ResumeParticipant(ctx, code, state.participantID); err != nil {
			client.sendError(err.Error())
		}

	case MessageTypeGetLeaderboard:
		lb, err := h.service.Leaderboard(ctx, code)
		if err != nil {
			client.sendError(err.Error())
			return
		}
		client.sendMessage(MessageType(app.EventLeaderboard), lb)

	case MessageTypeCompleteQuiz:
		if !h.requireParticipant(client, state) {
			return
		}
		summary, err := h.service.Complete(ctx, code, state.participantID)
		if err != nil {
			client.sendError(err.Error())
			return
		}
		client.sendMessage(MessageTypeCompleted, summary)

	default:
		client.sendError("unsupported message type")
	}
}

func (h *WSHandler) requireInstructor(client *wsClient, state *connState) bool {
	if !state.instructor {
		client.sendError("instructor access required")
		return false
	}
	return true
}

func (h *WSHandler) requireParticipant(client *wsClient, state *connState) bool {
	if state.participantID == "" {
		client.sendError("join the quiz first")
		return false
	}
	return true
}

// forwardEvents drains one subscription onto the connection. The channel is
// closed by the subscription's cancel func or by session shutdown.
func forwardEvents(client *wsClient, events <-chan app.Event) {
	for ev := range events {
		client.sendMessage(MessageType(ev.Type), ev.Payload)
	}
}

func parseViolationType(s string) (domain.ViolationType, bool) {
	switch domain.ViolationType(s) {
	case domain.ViolationFullscreenExit, domain.ViolationTabSwitch, domain.ViolationCopyPaste:
		return domain.ViolationType(s), true
	}
	return "", false
}

func bearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
