package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"llm-quiz-service/internal/domain"
)

// ChatProvider is the capability consumed, not reimplemented, here: given an
// ordered message history and sampling parameters it returns the full
// response text, delivering incremental chunks through onChunk in arrival
// order when the provider streams. On a mid-stream abort it returns the text
// accumulated so far together with the error.
type ChatProvider interface {
	Send(ctx context.Context, history []domain.ChatMessage, params domain.SamplingParams, onChunk func(string)) (string, error)
}

// ProviderRegistry resolves one of the closed set of providers.
type ProviderRegistry interface {
	Get(ctx context.Context, id domain.ProviderID) (ChatProvider, error)
}

// ChatResult is what the UI renders for one chat turn. Err is a
// human-readable display string; provider failures are never surfaced as
// structured errors.
type ChatResult struct {
	Provider domain.ProviderID `json:"provider"`
	Reply    string            `json:"reply"`
	Err      string            `json:"error,omitempty"`
}

// ChatService runs the chat and question-help use cases against the
// configured providers.
type ChatService struct {
	providers       ProviderRegistry
	defaultProvider domain.ProviderID
	profiles        map[domain.ProviderID]domain.SamplingParams
	timeout         time.Duration
	catalog         CatalogRepository
}

func NewChatService(
	providers ProviderRegistry,
	defaultProvider domain.ProviderID,
	profiles map[domain.ProviderID]domain.SamplingParams,
	timeout time.Duration,
	catalog CatalogRepository,
) *ChatService {
	return &ChatService{
		providers:       providers,
		defaultProvider: defaultProvider,
		profiles:        profiles,
		timeout:         timeout,
		catalog:         catalog,
	}
}

// Params returns the sampling profile for a provider, falling back to the
// baseline defaults (temperature 0.7, top_p 1.0, provider-default top_k).
func (c *ChatService) Params(id domain.ProviderID) domain.SamplingParams {
	if params, ok := c.profiles[id]; ok {
		return params
	}
	return domain.SamplingParams{Temperature: 0.7, TopP: 1.0}
}

// Greet seeds the opening assistant message for a fresh session.
func (c *ChatService) Greet(session *Session) {
	if len(session.History()) > 0 {
		return
	}
	session.appendMessage(domain.ChatMessage{
		Role:    domain.RoleAssistant,
		Content: fmt.Sprintf("Hello! Chat is powered by %s. Ask me anything about LLMs!", c.defaultProvider),
	})
}

// Chat appends the user message to the session history, calls the provider,
// and records the reply. Partial text accumulated before an abort is kept
// and recorded; any failure is normalized into ChatResult.Err.
func (c *ChatService) Chat(ctx context.Context, session *Session, providerRaw, content string, onChunk func(string)) ChatResult {
	id, err := c.resolveProvider(providerRaw)
	if err != nil {
		return ChatResult{Err: normalizeProviderError(err)}
	}

	session.appendMessage(domain.ChatMessage{Role: domain.RoleUser, Content: content})

	reply, err := c.send(ctx, id, session.History(), onChunk)
	result := ChatResult{Provider: id, Reply: reply}
	if err != nil {
		result.Err = normalizeProviderError(err)
		if reply == "" {
			// Mirror the UI contract: the error text becomes the
			// assistant turn so the conversation stays coherent.
			session.appendMessage(domain.ChatMessage{Role: domain.RoleAssistant, Content: result.Err})
			return result
		}
	}
	session.appendMessage(domain.ChatMessage{Role: domain.RoleAssistant, Content: reply})
	return result
}

const helpSystemPrompt = "You are an objective tutor and expert on the topic. " +
	"The user attempted to answer a question. Analyze the user's answer, provide encouraging, constructive feedback, " +
	"and gently guide them toward the key concepts from the official memo, without simply giving away the full memo. " +
	"Focus on the missing or incorrect concepts in the user's response. Be concise."

// Help asks the active provider for guided feedback on one question, using
// the session's in-progress answer and the official memo. The response is
// recorded in the session only; it never reaches the score file.
func (c *ChatService) Help(ctx context.Context, session *Session, providerRaw, levelName, questionID string) ChatResult {
	id, err := c.resolveProvider(providerRaw)
	if err != nil {
		return ChatResult{Err: normalizeProviderError(err)}
	}

	level, err := c.catalog.GetLevel(ctx, levelName)
	if err != nil {
		return ChatResult{Provider: id, Err: err.Error()}
	}
	question, ok := level.Question(questionID)
	if !ok {
		return ChatResult{Provider: id, Err: domain.ErrQuestionNotFound.Error()}
	}

	answer, _ := session.Answer(levelName, questionID)
	prompt := fmt.Sprintf(
		"--- Question ---\n%s\n--- User's Answer ---\n%s\n--- Official Memo (for your reference) ---\n%s\n\nPlease provide your constructive feedback now.",
		question.Prompt, renderAnswer(answer), question.Memo,
	)

	history := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: helpSystemPrompt},
		{Role: domain.RoleUser, Content: prompt},
	}
	reply, err := c.send(ctx, id, history, nil)
	result := ChatResult{Provider: id, Reply: reply}
	if err != nil {
		result.Err = normalizeProviderError(err)
		if reply == "" {
			return result
		}
	}
	session.setHelp(levelName, questionID, reply)
	return result
}

func (c *ChatService) send(ctx context.Context, id domain.ProviderID, history []domain.ChatMessage, onChunk func(string)) (string, error) {
	provider, err := c.providers.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return provider.Send(ctx, history, c.Params(id), onChunk)
}

func (c *ChatService) resolveProvider(raw string) (domain.ProviderID, error) {
	if raw == "" {
		return c.defaultProvider, nil
	}
	return domain.ParseProvider(raw)
}

func renderAnswer(answer domain.Answer) string {
	if answer.Multi {
		if len(answer.Keys) == 0 {
			return "(no selection)"
		}
		return strings.Join(answer.Keys, ", ")
	}
	if answer.Text == "" {
		return "(no answer provided)"
	}
	return answer.Text
}

func normalizeProviderError(err error) string {
	return fmt.Sprintf("LLM API Error: %v", err)
}
