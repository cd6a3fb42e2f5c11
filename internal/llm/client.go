// Package llm provides single-shot chat-completion clients used for intent
// classification.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Request is one system instruction plus one user prompt.
type Request struct {
	Model     string
	System    string
	Prompt    string
	MaxTokens int

	// JSON asks the provider to answer with a bare JSON object.
	JSON bool
}

// Response is the completion text and its usage.
type Response struct {
	Content   string
	Model     string
	TokensIn  int
	TokensOut int
	Latency   time.Duration
}

// Client is the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	Name() string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

const defaultMaxTokens = 64

// NewClient creates a client for the provider.
func NewClient(provider Provider, apiKey string) (Client, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey)
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", provider)
	}
}

func maxTokensOf(req *Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return defaultMaxTokens
}
