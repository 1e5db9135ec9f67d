// Package llm provides the language model clients agents use to phrase
// responses and summarize meetings.
package llm

import (
	"context"
	"time"

	"github.com/capitalize-ai/meeting-agents/pkg/metrics"
)

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// NewClient creates a metered LLM client for provider.
func NewClient(provider Provider, apiKey string) (Client, error) {
	var (
		c   Client
		err error
	)
	switch provider {
	case ProviderOpenAI:
		c, err = NewOpenAIClient(apiKey)
	case ProviderAnthropic:
		c, err = NewAnthropicClient(apiKey)
	default:
		c, err = NewAnthropicClient(apiKey)
	}
	if err != nil {
		return nil, err
	}
	return Metered(c), nil
}

type meteredClient struct {
	Client
}

// Metered wraps c so every completion is recorded in the LLM metrics.
func Metered(c Client) Client {
	return &meteredClient{Client: c}
}

func (m *meteredClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	resp, err := m.Client.Complete(ctx, req)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		metrics.RecordLLMCompletion(req.Model, "error", elapsed, 0, 0)
		return nil, err
	}
	metrics.RecordLLMCompletion(resp.Model, "ok", elapsed, resp.TokensIn, resp.TokensOut)
	return resp, nil
}
