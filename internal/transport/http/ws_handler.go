package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"llm-quiz-service/internal/app"
	"llm-quiz-service/internal/domain"
)

type WSHandler struct {
	quiz     *app.QuizService
	chat     *app.ChatService
	upgrader websocket.Upgrader
}

func NewWSHandler(quiz *app.QuizService, chat *app.ChatService) *WSHandler {
	return &WSHandler{
		quiz: quiz,
		chat: chat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Level      string        `json:"level"`
	QuestionID string        `json:"questionId"`
	Value      domain.Answer `json:"value"`
}

type levelPayload struct {
	Level string `json:"level"`
}

type chatPayload struct {
	Provider string `json:"provider,omitempty"`
	Content  string `json:"content"`
}

type helpPayload struct {
	Provider   string `json:"provider,omitempty"`
	Level      string `json:"level"`
	QuestionID string `json:"questionId"`
}

type joinedPayload struct {
	User     string                `json:"user"`
	Scores   []domain.ScoreSummary `json:"scores"`
	Messages []domain.ChatMessage  `json:"messages"`
}

type finalizedPayload struct {
	Level string             `json:"level"`
	Max   int                `json:"max"`
	Score domain.ScoreRecord `json:"record"`
}

type reviewQuestion struct {
	ID          string              `json:"id"`
	Kind        domain.QuestionKind `json:"kind"`
	Prompt      string              `json:"prompt"`
	Memo        string              `json:"memo"`
	Options     map[string]string   `json:"options,omitempty"`
	OptionOrder []string            `json:"optionOrder,omitempty"`
	Correct     []string            `json:"correct,omitempty"`
	Submitted   domain.Answer       `json:"submitted"`
	Help        string              `json:"help,omitempty"`
}

type reviewPayload struct {
	Level     string             `json:"level"`
	Record    domain.ScoreRecord `json:"record"`
	Max       int                `json:"max"`
	Questions []reviewQuestion   `json:"questions"`
}

type chatChunkPayload struct {
	Content string `json:"content"`
}

type helpResult struct {
	Level      string `json:"level"`
	QuestionID string `json:"questionId"`
	Content    string `json:"content"`
	Err        string `json:"error,omitempty"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the quiz
// and chat use cases. Every failure is rendered as an inline error message;
// nothing here is fatal to the process.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		http.Error(w, "missing user", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	session, scores, joinErr := h.quiz.Join(r.Context(), user)
	defer h.quiz.Leave(r.Context(), user)
	h.chat.Greet(session)

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "joined", Payload: joinedPayload{
		User:     user,
		Scores:   scores,
		Messages: session.History(),
	}}
	if joinErr != nil {
		// Quiz views are unavailable (missing/malformed catalog); chat still works.
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: joinErr.Error()}}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(r, session, user, inbound, send)
	}

	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(r *http.Request, session *app.Session, user string, inbound inboundMessage, send chan outboundMessage[any]) {
	fail := func(message string) {
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: message}}
	}

	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			fail("invalid answer payload")
			return
		}
		if err := h.quiz.SetAnswer(r.Context(), user, payload.Level, payload.QuestionID, payload.Value); err != nil {
			fail(err.Error())
			return
		}
		send <- outboundMessage[any]{Type: "answerAck", Payload: levelPayload{Level: payload.Level}}

	case "finalize":
		var payload levelPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			fail("invalid finalize payload")
			return
		}
		record, max, err := h.quiz.Finalize(r.Context(), user, payload.Level)
		if err != nil {
			fail(err.Error())
			return
		}
		send <- outboundMessage[any]{Type: "finalized", Payload: finalizedPayload{
			Level: payload.Level,
			Max:   max,
			Score: record,
		}}

	case "review":
		var payload levelPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			fail("invalid review payload")
			return
		}
		record, level, err := h.quiz.Review(r.Context(), user, payload.Level)
		if err != nil {
			fail(err.Error())
			return
		}
		send <- outboundMessage[any]{Type: "review", Payload: buildReview(session, payload.Level, record, level)}

	case "scores":
		scores, err := h.quiz.Scores(r.Context(), user)
		if err != nil {
			fail(err.Error())
			return
		}
		send <- outboundMessage[any]{Type: "scores", Payload: scores}

	case "chat":
		var payload chatPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			fail("invalid chat payload")
			return
		}
		result := h.chat.Chat(r.Context(), session, payload.Provider, payload.Content, func(chunk string) {
			send <- outboundMessage[any]{Type: "chatChunk", Payload: chatChunkPayload{Content: chunk}}
		})
		send <- outboundMessage[any]{Type: "chatDone", Payload: result}

	case "help":
		var payload helpPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			fail("invalid help payload")
			return
		}
		result := h.chat.Help(r.Context(), session, payload.Provider, payload.Level, payload.QuestionID)
		send <- outboundMessage[any]{Type: "help", Payload: helpResult{
			Level:      payload.Level,
			QuestionID: payload.QuestionID,
			Content:    result.Reply,
			Err:        result.Err,
		}}

	case "clearChat":
		session.ClearChat()
		h.chat.Greet(session)
		send <- outboundMessage[any]{Type: "chatCleared", Payload: struct{}{}}

	default:
		fail("unsupported message type")
	}
}

func buildReview(session *app.Session, levelName string, record domain.ScoreRecord, level domain.QuizLevel) reviewPayload {
	questions := make([]reviewQuestion, 0, len(level.Questions))
	for _, q := range level.Questions {
		rq := reviewQuestion{
			ID:          q.ID,
			Kind:        q.Kind,
			Prompt:      q.Prompt,
			Memo:        q.Memo,
			Options:     q.Options,
			OptionOrder: q.OptionOrder,
			Correct:     q.Correct,
			Submitted:   record.Answers[q.ID],
		}
		if help, ok := session.Help(levelName, q.ID); ok {
			rq.Help = help
		}
		questions = append(questions, rq)
	}
	return reviewPayload{
		Level:     levelName,
		Record:    record,
		Max:       level.MaxScore(),
		Questions: questions,
	}
}
