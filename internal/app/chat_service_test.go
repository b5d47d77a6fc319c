package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"llm-quiz-service/internal/app"
	"llm-quiz-service/internal/domain"
	"llm-quiz-service/internal/infra/memory"
)

type scriptedProvider struct {
	chunks     []string
	err        error
	gotHistory []domain.ChatMessage
	gotParams  domain.SamplingParams
}

func (p *scriptedProvider) Send(_ context.Context, history []domain.ChatMessage, params domain.SamplingParams, onChunk func(string)) (string, error) {
	p.gotHistory = history
	p.gotParams = params
	var full strings.Builder
	for _, chunk := range p.chunks {
		full.WriteString(chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
	}
	return full.String(), p.err
}

type stubRegistry struct {
	provider app.ChatProvider
	err      error
}

func (r *stubRegistry) Get(_ context.Context, _ domain.ProviderID) (app.ChatProvider, error) {
	return r.provider, r.err
}

func newChatService(registry app.ProviderRegistry, profiles map[domain.ProviderID]domain.SamplingParams) *app.ChatService {
	catalogRepo := memory.NewCatalogRepository(memory.NewStaticCatalogLoader(sampleCatalog()), 5*time.Minute)
	return app.NewChatService(registry, domain.ProviderOpenAI, profiles, 30*time.Second, catalogRepo)
}

func TestChatStreamsChunksInOrder(t *testing.T) {
	provider := &scriptedProvider{chunks: []string{"Hel", "lo ", "there"}}
	service := newChatService(&stubRegistry{provider: provider}, nil)
	session := app.NewSession("alice")

	var received []string
	result := service.Chat(context.Background(), session, "", "hi", func(chunk string) {
		received = append(received, chunk)
	})

	if result.Err != "" {
		t.Fatalf("unexpected error: %s", result.Err)
	}
	if result.Reply != "Hello there" {
		t.Fatalf("reply = %q, want %q", result.Reply, "Hello there")
	}
	if strings.Join(received, "") != "Hello there" {
		t.Fatalf("chunks out of order or lost: %v", received)
	}

	history := session.History()
	if len(history) != 2 {
		t.Fatalf("expected user+assistant in history, got %d messages", len(history))
	}
	if history[0].Role != domain.RoleUser || history[0].Content != "hi" {
		t.Fatalf("unexpected user turn: %+v", history[0])
	}
	if history[1].Role != domain.RoleAssistant || history[1].Content != "Hello there" {
		t.Fatalf("unexpected assistant turn: %+v", history[1])
	}
}

func TestChatKeepsPartialTextOnAbort(t *testing.T) {
	provider := &scriptedProvider{chunks: []string{"par", "tial"}, err: errors.New("connection reset")}
	service := newChatService(&stubRegistry{provider: provider}, nil)
	session := app.NewSession("alice")

	result := service.Chat(context.Background(), session, "", "hi", nil)
	if result.Reply != "partial" {
		t.Fatalf("partial text discarded: reply = %q", result.Reply)
	}
	if !strings.Contains(result.Err, "connection reset") {
		t.Fatalf("expected normalized error, got %q", result.Err)
	}

	history := session.History()
	if history[len(history)-1].Content != "partial" {
		t.Fatalf("partial text not recorded: %+v", history[len(history)-1])
	}
}

func TestChatNormalizesMissingKey(t *testing.T) {
	service := newChatService(&stubRegistry{err: domain.ErrAPIKeyMissing}, nil)
	session := app.NewSession("alice")

	result := service.Chat(context.Background(), session, "", "hi", nil)
	if !strings.Contains(result.Err, "LLM API Error") || !strings.Contains(result.Err, "api key missing") {
		t.Fatalf("expected display string, got %q", result.Err)
	}

	// The error text stands in for the assistant turn, as the UI renders it.
	history := session.History()
	if history[len(history)-1].Role != domain.RoleAssistant || history[len(history)-1].Content != result.Err {
		t.Fatalf("error text not recorded as assistant turn: %+v", history[len(history)-1])
	}
}

func TestChatRejectsUnknownProvider(t *testing.T) {
	service := newChatService(&stubRegistry{provider: &scriptedProvider{}}, nil)
	session := app.NewSession("alice")

	result := service.Chat(context.Background(), session, "mistral", "hi", nil)
	if !strings.Contains(result.Err, "unknown chat provider") {
		t.Fatalf("expected unknown provider error, got %q", result.Err)
	}
	if len(session.History()) != 0 {
		t.Fatalf("history should be untouched on provider resolution failure")
	}
}

func TestChatAppliesSamplingProfile(t *testing.T) {
	topK := 30
	provider := &scriptedProvider{chunks: []string{"ok"}}
	profiles := map[domain.ProviderID]domain.SamplingParams{
		domain.ProviderOpenAI: {Temperature: 0.3, TopP: 0.95, TopK: &topK},
	}
	service := newChatService(&stubRegistry{provider: provider}, profiles)

	service.Chat(context.Background(), app.NewSession("alice"), "", "hi", nil)

	if provider.gotParams.Temperature != 0.3 || provider.gotParams.TopP != 0.95 {
		t.Fatalf("profile not applied: %+v", provider.gotParams)
	}
	if provider.gotParams.TopK == nil || *provider.gotParams.TopK != 30 {
		t.Fatalf("top_k not passed through: %+v", provider.gotParams.TopK)
	}
}

func TestHelpBuildsTutorPrompt(t *testing.T) {
	provider := &scriptedProvider{chunks: []string{"Good start, revisit subword units."}}
	service := newChatService(&stubRegistry{provider: provider}, nil)
	session := app.NewSession("alice")

	result := service.Help(context.Background(), session, "", "Level 1: Fundamentals", "Q1")
	if result.Err != "" {
		t.Fatalf("help failed: %s", result.Err)
	}

	if len(provider.gotHistory) != 2 || provider.gotHistory[0].Role != domain.RoleSystem {
		t.Fatalf("expected system+user prompt, got %+v", provider.gotHistory)
	}
	prompt := provider.gotHistory[1].Content
	if !strings.Contains(prompt, "What is a token?") || !strings.Contains(prompt, "Tokens are subword units.") {
		t.Fatalf("prompt missing question or memo: %q", prompt)
	}

	if help, ok := session.Help("Level 1: Fundamentals", "Q1"); !ok || help != result.Reply {
		t.Fatalf("help not recorded in session: %q %v", help, ok)
	}
	if len(session.History()) != 0 {
		t.Fatalf("help must not pollute chat history")
	}
}

func TestGreetSeedsOnce(t *testing.T) {
	service := newChatService(&stubRegistry{provider: &scriptedProvider{}}, nil)
	session := app.NewSession("alice")

	service.Greet(session)
	service.Greet(session)

	history := session.History()
	if len(history) != 1 || history[0].Role != domain.RoleAssistant {
		t.Fatalf("expected a single greeting, got %+v", history)
	}
}
