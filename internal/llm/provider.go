// Package llm adapts the supported chat providers (OpenAI, Google Gemini,
// xAI Grok) behind the app.ChatProvider capability, built on langchaingo.
// Grok speaks the OpenAI wire protocol from a different base URL.
package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"llm-quiz-service/internal/app"
	"llm-quiz-service/internal/domain"
)

// Default model names per provider.
const (
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultGrokModel   = "grok-1"
	GrokBaseURL        = "https://api.x.ai/v1"
)

// Config holds per-provider client settings. The API key comes from the
// environment and is never persisted anywhere.
type Config struct {
	Model   string
	APIKey  string
	BaseURL string
}

// Registry builds and caches one client per configured provider. Clients
// are built lazily so a missing key only fails the provider that needs it.
type Registry struct {
	mu      sync.Mutex
	configs map[domain.ProviderID]Config
	built   map[domain.ProviderID]app.ChatProvider
}

func NewRegistry(configs map[domain.ProviderID]Config) *Registry {
	return &Registry{
		configs: configs,
		built:   make(map[domain.ProviderID]app.ChatProvider),
	}
}

// Get returns the provider client for id, constructing it on first use.
func (r *Registry) Get(ctx context.Context, id domain.ProviderID) (app.ChatProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if provider, ok := r.built[id]; ok {
		return provider, nil
	}
	cfg, ok := r.configs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, id)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrAPIKeyMissing, id)
	}

	provider, err := build(ctx, id, cfg)
	if err != nil {
		return nil, fmt.Errorf("build %s client: %w", id, err)
	}
	r.built[id] = provider
	return provider, nil
}

func build(ctx context.Context, id domain.ProviderID, cfg Config) (app.ChatProvider, error) {
	switch id {
	case domain.ProviderOpenAI:
		model, err := openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithModel(orDefault(cfg.Model, DefaultOpenAIModel)),
		)
		if err != nil {
			return nil, err
		}
		return newChatModel(id, model, true), nil

	case domain.ProviderGrok:
		model, err := openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithModel(orDefault(cfg.Model, DefaultGrokModel)),
			openai.WithBaseURL(orDefault(cfg.BaseURL, GrokBaseURL)),
		)
		if err != nil {
			return nil, err
		}
		return newChatModel(id, model, true), nil

	case domain.ProviderGemini:
		model, err := googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey),
			googleai.WithDefaultModel(orDefault(cfg.Model, DefaultGeminiModel)),
		)
		if err != nil {
			return nil, err
		}
		// Gemini responses arrive as one blob, delivered as a single chunk.
		return newChatModel(id, model, false), nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, id)
}

// chatModel is the common Send implementation over any langchaingo model.
type chatModel struct {
	id        domain.ProviderID
	model     llms.Model
	streaming bool
}

func newChatModel(id domain.ProviderID, model llms.Model, streaming bool) *chatModel {
	return &chatModel{id: id, model: model, streaming: streaming}
}

// Send forwards the history with the given sampling parameters. Chunks are
// delivered to onChunk strictly in arrival order; when the provider aborts
// mid-stream the text accumulated so far is returned alongside the error.
func (m *chatModel) Send(ctx context.Context, history []domain.ChatMessage, params domain.SamplingParams, onChunk func(string)) (string, error) {
	messages := make([]llms.MessageContent, 0, len(history))
	for _, msg := range history {
		messages = append(messages, llms.TextParts(roleType(msg.Role), msg.Content))
	}

	opts := []llms.CallOption{
		llms.WithTemperature(params.Temperature),
		llms.WithTopP(params.TopP),
	}
	if params.TopK != nil {
		opts = append(opts, llms.WithTopK(*params.TopK))
	}

	var buf strings.Builder
	if m.streaming && onChunk != nil {
		opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			buf.Write(chunk)
			onChunk(string(chunk))
			return nil
		}))
	}

	resp, err := m.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return buf.String(), err
	}
	if len(resp.Choices) == 0 {
		if buf.Len() > 0 {
			return buf.String(), nil
		}
		return "", fmt.Errorf("empty response from %s", m.id)
	}

	text := resp.Choices[0].Content
	if text == "" {
		text = buf.String()
	}
	if onChunk != nil && buf.Len() == 0 {
		onChunk(text)
	}
	return text, nil
}

func roleType(role string) llms.ChatMessageType {
	switch role {
	case domain.RoleSystem:
		return llms.ChatMessageTypeSystem
	case domain.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
