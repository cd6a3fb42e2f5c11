package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-3-5-haiku-20241022"

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey string, opts ...option.RequestOption) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("llm: anthropic API key is required")
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicClient{client: anthropic.NewClient(opts...)}, nil
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string {
	return string(ProviderAnthropic)
}

// Complete sends the prompt as a single user turn with the system text in
// front of it. JSON requests prefill the assistant turn with "{" and the
// brace is restored on the returned content.
func (c *AnthropicClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + prompt
	}
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
	}
	if req.JSON {
		messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock("{")))
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(model),
		MaxTokens: anthropic.F(int64(maxTokensOf(req))),
		Messages:  anthropic.F(messages),
	})
	if err != nil {
		return nil, fmt.Errorf("llm: anthropic: %w", err)
	}

	var b strings.Builder
	if req.JSON {
		b.WriteString("{")
	}
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			b.WriteString(block.Text)
		}
	}

	return &Response{
		Content:   b.String(),
		Model:     resp.Model,
		TokensIn:  int(resp.Usage.InputTokens),
		TokensOut: int(resp.Usage.OutputTokens),
		Latency:   time.Since(start),
	}, nil
}
