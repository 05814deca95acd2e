package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"livequiz-service/internal/app"
	"livequiz-service/internal/auth"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/infra/memory"
)

func newTestServer(t *testing.T, quizzes []domain.Quiz) *httptest.Server {
	t.Helper()
	store := memory.NewSessionStore(app.Options{TickInterval: 10 * time.Millisecond})
	repo := memory.NewQuizRepository(memory.NewStaticQuizLoader(quizzes), time.Minute)
	service := app.NewQuizService(store, repo)

	wsHandler := NewWSHandler(service, auth.NoopVerifier{})
	restHandler := NewRESTHandler(service, auth.NoopVerifier{})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	restHandler.Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func dialWS(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType MessageType, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": msgType, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

// readUntil drains frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want MessageType) map[string]any {
	t.Helper()
	for i := 0; i < 20; i++ {
		var msg struct {
			Type    MessageType    `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read while waiting for %s: %v", want, err)
		}
		if msg.Type == MessageTypeError && want != MessageTypeError {
			t.Fatalf("error frame while waiting for %s: %v", want, msg.Payload)
		}
		if msg.Type == want {
			return msg.Payload
		}
	}
	t.Fatalf("never received %s", want)
	return nil
}

func wsQuiz() []domain.Quiz {
	return []domain.Quiz{{
		ID:       "quiz-1",
		Title:    "Live Quiz",
		JoinCode: "LIVE01",
		Mode:     domain.ModeLive,
		Questions: []domain.Question{
			{
				ID:   "q1",
				Type: domain.QuestionMultipleChoice,
				Text: "What is 2 + 2?",
				Choices: []domain.Choice{
					{Key: "a", Text: "3"},
					{Key: "b", Text: "4"},
				},
				CorrectAnswer: "b",
				Points:        100,
			},
		},
		Settings: domain.Settings{
			MaxViolations:          3,
			ViolationPenaltyPoints: 10,
			FullscreenExitAction:   domain.ActionPause,
			ShowLeaderboard:        true,
			ShowCorrectAnswers:     true,
		},
	}}
}

func TestWebSocketLiveFlow(t *testing.T) {
	server := newTestServer(t, wsQuiz())

	instructor := dialWS(t, server, "code=LIVE01")
	send(t, instructor, MessageTypeInstructorJoin, nil)
	readUntil(t, instructor, MessageTypeInstructorRegistered)

	participant := dialWS(t, server, "code=LIVE01")
	send(t, participant, MessageTypeJoin, joinPayload{Nickname: "Alice"})
	joined := readUntil(t, participant, MessageTypeJoined)
	if joined["quizTitle"] != "Live Quiz" {
		t.Fatalf("unexpected join payload %v", joined)
	}

	send(t, instructor, MessageTypeStartQuiz, nil)
	readUntil(t, participant, MessageType(app.EventQuizStarted))

	send(t, instructor, MessageTypeNextQuestion, nil)
	qs := readUntil(t, participant, MessageType(app.EventQuestionStart))
	question, _ := qs["question"].(map[string]any)
	if question["correctAnswer"] != nil {
		t.Fatal("answer key leaked to participants")
	}

	send(t, participant, MessageTypeSubmitAnswer, submitAnswerPayload{QuestionID: "q1", Answer: "b"})
	ack := readUntil(t, participant, MessageTypeAnswerSubmitted)
	if ack["isCorrect"] != true || ack["totalScore"] != float64(100) {
		t.Fatalf("unexpected ack %v", ack)
	}

	// Instructors see the aggregate answer progress.
	progress := readUntil(t, instructor, MessageType(app.EventAnswerProgress))
	if progress["answered"] != float64(1) {
		t.Fatalf("unexpected progress %v", progress)
	}

	send(t, instructor, MessageTypeEndQuiz, nil)
	results := readUntil(t, instructor, MessageTypeSessionResults)
	if results["totalParticipants"] != float64(1) {
		t.Fatalf("unexpected results %v", results)
	}
}

func TestWebSocketViolationPause(t *testing.T) {
	server := newTestServer(t, wsQuiz())

	instructor := dialWS(t, server, "code=LIVE01")
	send(t, instructor, MessageTypeInstructorJoin, nil)
	readUntil(t, instructor, MessageTypeInstructorRegistered)

	participant := dialWS(t, server, "code=LIVE01")
	send(t, participant, MessageTypeJoin, joinPayload{Nickname: "Alice"})
	readUntil(t, participant, MessageTypeJoined)

	send(t, instructor, MessageTypeStartQuiz, nil)
	send(t, instructor, MessageTypeNextQuestion, nil)
	readUntil(t, participant, MessageType(app.EventQuestionStart))

	send(t, participant, MessageTypeReportViolation, reportViolationPayload{ViolationType: "fullscreen_exit"})
	recorded := readUntil(t, participant, MessageTypeViolationRecorded)
	if recorded["action"] != "pause" {
		t.Fatalf("expected pause, got %v", recorded)
	}

	alert := readUntil(t, instructor, MessageType(app.EventViolationAlert))
	if alert["violationType"] != "fullscreen_exit" || alert["nickname"] != "Alice" {
		t.Fatalf("unexpected alert %v", alert)
	}

	// Re-entering fullscreen clears the pause.
	send(t, participant, MessageTypeResumeFromFull, nil)
	readUntil(t, participant, MessageType(app.EventQuizResumed))

	send(t, participant, MessageTypeSubmitAnswer, submitAnswerPayload{QuestionID: "q1", Answer: "b"})
	readUntil(t, participant, MessageTypeAnswerSubmitted)
}

func TestWebSocketRequiresRoles(t *testing.T) {
	server := newTestServer(t, wsQuiz())

	conn := dialWS(t, server, "code=LIVE01")

	// A connection that never joined cannot submit.
	send(t, conn, MessageTypeSubmitAnswer, submitAnswerPayload{QuestionID: "q1", Answer: "b"})
	readUntil(t, conn, MessageTypeError)

	// A participant is not an instructor.
	send(t, conn, MessageTypeJoin, joinPayload{Nickname: "Alice"})
	readUntil(t, conn, MessageTypeJoined)
	send(t, conn, MessageTypeStartQuiz, nil)
	readUntil(t, conn, MessageTypeError)
}

func TestWebSocketRejectsMissingCode(t *testing.T) {
	server := newTestServer(t, wsQuiz())

	u := "ws" + server.URL[len("http"):] + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatal("expected dial to fail without a code")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %+v", resp)
	}
}

func TestWebSocketPingPong(t *testing.T) {
	server := newTestServer(t, wsQuiz())

	conn := dialWS(t, server, "code=LIVE01")
	send(t, conn, MessageTypePing, nil)
	readUntil(t, conn, MessageTypePong)
}
