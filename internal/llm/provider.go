// Package llm wraps the OpenAI-compatible completion providers behind a
// narrow Completer contract and a failover Router. Clients are created once
// at process start and injected into the services that need them, so tests
// can substitute doubles without touching process-global state.
package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/velora-ai/dealer-chat-backend/internal/config"
)

// Chat history roles accepted by Complete.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider names used in price-list keys and usage records.
const (
	ProviderPrimary   = "openai"
	ProviderSecondary = "secondary"
)

// ErrUnconfigured is returned by a provider that has no API key set.
var ErrUnconfigured = errors.New("provider not configured")

// Turn is one prior exchange message fed back into the prompt.
type Turn struct {
	Role    string // RoleUser or RoleAssistant
	Content string
}

// Completion is the provider output: reply text plus token usage for
// billing and margin analytics.
type Completion struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Completer produces one chat completion from a system prompt and history.
// Implementations must honor ctx for cancellation and timeouts.
type Completer interface {
	// Name identifies the provider in usage records and price-list keys.
	Name() string
	// Configured reports whether the provider can accept calls at all.
	Configured() bool
	// Complete runs one completion. model may be empty to use the
	// provider's default model.
	Complete(ctx context.Context, model, systemPrompt string, history []Turn) (*Completion, error)
}

// OpenAIProvider is a Completer backed by any OpenAI-compatible endpoint
// (base URL + key), the same client shape for the primary and secondary
// providers.
type OpenAIProvider struct {
	name         string
	client       *openai.Client
	defaultModel string
	configured   bool
}

// NewOpenAIProvider builds a provider from config. An empty API key yields a
// provider that reports unconfigured and fails fast on Complete.
func NewOpenAIProvider(name string, cfg config.ProviderConfig) *OpenAIProvider {
	p := &OpenAIProvider{
		name:         name,
		defaultModel: cfg.Model,
		configured:   strings.TrimSpace(cfg.APIKey) != "",
	}
	if p.configured {
		p.client = openai.NewClient(
			option.WithBaseURL(cfg.BaseURL),
			option.WithAPIKey(cfg.APIKey),
		)
	}
	return p
}

// Name implements Completer.
func (p *OpenAIProvider) Name() string { return p.name }

// Configured implements Completer.
func (p *OpenAIProvider) Configured() bool { return p.configured }

// DefaultModel returns the model used when callers pass an empty model.
func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }

// Complete implements Completer using the chat completions endpoint.
func (p *OpenAIProvider) Complete(ctx context.Context, model, systemPrompt string, history []Turn) (*Completion, error) {
	if !p.configured {
		return nil, ErrUnconfigured
	}
	if model == "" {
		model = p.defaultModel
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	msgs = append(msgs, openai.SystemMessage(systemPrompt))
	for _, t := range history {
		switch t.Role {
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(t.Content))
		default:
			msgs = append(msgs, openai.UserMessage(t.Content))
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F(msgs),
		Model:    openai.F(model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty completion choices")
	}
	return &Completion{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
