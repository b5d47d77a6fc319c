package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"llm-quiz-service/internal/app"
	"llm-quiz-service/internal/domain"
	"llm-quiz-service/internal/infra/file"
	"llm-quiz-service/internal/infra/memory"
)

func TestWebSocketQuizFlow(t *testing.T) {
	server := startTestServer(t)
	defer server.Close()

	conn := dial(t, server, "Alice")
	defer conn.Close()

	_, payload := readNext(conn, t, "joined")
	if payload["user"] != "Alice" {
		t.Fatalf("joined payload user = %v", payload["user"])
	}

	writeJSON(t, conn, map[string]any{
		"type": "answer",
		"payload": map[string]any{
			"level":      "Level 1",
			"questionId": "Q1_Single",
			"value":      "B",
		},
	})
	readNext(conn, t, "answerAck")

	writeJSON(t, conn, map[string]any{
		"type":    "finalize",
		"payload": map[string]any{"level": "Level 1"},
	})
	_, payload = readNext(conn, t, "finalized")
	record, ok := payload["record"].(map[string]any)
	if !ok {
		t.Fatalf("finalized payload missing record: %v", payload)
	}
	// Q1 correct plus completion credit for the open question.
	if record["score_value"] != float64(2) {
		t.Fatalf("score_value = %v, want 2", record["score_value"])
	}
	if payload["max"] != float64(2) {
		t.Fatalf("max = %v, want 2", payload["max"])
	}

	writeJSON(t, conn, map[string]any{
		"type":    "review",
		"payload": map[string]any{"level": "Level 1"},
	})
	_, payload = readNext(conn, t, "review")
	questions, ok := payload["questions"].([]any)
	if !ok || len(questions) != 2 {
		t.Fatalf("expected 2 review questions, got %v", payload["questions"])
	}

	writeJSON(t, conn, map[string]any{"type": "scores"})
	_, _ = readNext(conn, t, "scores")
}

func TestWebSocketFinalizeLocksLevel(t *testing.T) {
	server := startTestServer(t)
	defer server.Close()

	conn := dial(t, server, "Bob")
	defer conn.Close()
	readNext(conn, t, "joined")

	writeJSON(t, conn, map[string]any{
		"type":    "finalize",
		"payload": map[string]any{"level": "Level 1"},
	})
	readNext(conn, t, "finalized")

	writeJSON(t, conn, map[string]any{
		"type": "answer",
		"payload": map[string]any{
			"level":      "Level 1",
			"questionId": "Q1_Single",
			"value":      "B",
		},
	})
	_, payload := readNext(conn, t, "error")
	if msg, _ := payload["message"].(string); !strings.Contains(msg, "finalized") {
		t.Fatalf("expected finalized-level error, got %v", payload)
	}
}

func TestWebSocketChatStreaming(t *testing.T) {
	server := startTestServer(t)
	defer server.Close()

	conn := dial(t, server, "Carol")
	defer conn.Close()
	readNext(conn, t, "joined")

	writeJSON(t, conn, map[string]any{
		"type":    "chat",
		"payload": map[string]any{"content": "hello"},
	})

	var chunks []string
	for {
		typ, payload := readNext(conn, t, "")
		if typ == "chatChunk" {
			chunks = append(chunks, payload["content"].(string))
			continue
		}
		if typ != "chatDone" {
			t.Fatalf("unexpected message type %s", typ)
		}
		if payload["reply"] != "Hi there" {
			t.Fatalf("chatDone reply = %v", payload["reply"])
		}
		break
	}
	if strings.Join(chunks, "") != "Hi there" {
		t.Fatalf("chunks out of order or missing: %v", chunks)
	}
}

func TestWebSocketRejectsMissingUser(t *testing.T) {
	server := startTestServer(t)
	defer server.Close()

	resp, err := http.Get(server.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func startTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	catalog := memory.NewCatalogRepository(memory.NewStaticCatalogLoader(handlerCatalog()), time.Minute)
	scores := file.NewScoreStore(filepath.Join(t.TempDir(), "scores.json"))
	quiz := app.NewQuizService(memory.NewSessionStore(), catalog, scores)
	chat := app.NewChatService(scriptedRegistry{}, domain.ProviderOpenAI, nil, time.Minute, catalog)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", NewWSHandler(quiz, chat).ServeWS)
	return httptest.NewServer(mux)
}

func dial(t *testing.T, server *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func writeJSON(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %v: %v", msg["type"], err)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s (payload %v)", expect, msg.Type, msg.Payload)
	}
	return msg.Type, msg.Payload
}

type scriptedRegistry struct{}

func (scriptedRegistry) Get(context.Context, domain.ProviderID) (app.ChatProvider, error) {
	return scriptedProvider{}, nil
}

type scriptedProvider struct{}

func (scriptedProvider) Send(_ context.Context, _ []domain.ChatMessage, _ domain.SamplingParams, onChunk func(string)) (string, error) {
	for _, chunk := range []string{"Hi ", "there"} {
		if onChunk != nil {
			onChunk(chunk)
		}
	}
	return "Hi there", nil
}

func handlerCatalog() domain.Catalog {
	level := domain.QuizLevel{
		Name: "Level 1",
		Questions: []domain.Question{
			{
				ID:          "Q1_Single",
				Kind:        domain.QuestionSingleSelect,
				Prompt:      "Pick the right option.",
				Memo:        "B is right.",
				Options:     map[string]string{"A": "wrong", "B": "right"},
				OptionOrder: []string{"A", "B"},
				Correct:     []string{"B"},
			},
			{
				ID:     "Q2_Open",
				Kind:   domain.QuestionOpen,
				Prompt: "Explain in your own words.",
				Memo:   "Any thoughtful answer counts.",
			},
		},
	}
	return domain.Catalog{
		Levels: map[string]domain.QuizLevel{"Level 1": level},
		Order:  []string{"Level 1"},
	}
}
