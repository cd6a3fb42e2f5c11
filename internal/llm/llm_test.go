package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/require"
)

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := NewClient("mistral", "key")
	require.ErrorContains(t, err, "unknown provider")
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(ProviderOpenAI, "")
	require.Error(t, err)
	_, err = NewClient(ProviderAnthropic, "")
	require.Error(t, err)
}

type openAIRequest struct {
	Model          string `json:"model"`
	MaxTokens      int    `json:"max_tokens"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestOpenAIClient_Complete(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id":"c1","object":"chat.completion","model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"{\"intent\":\"StoreHours\",\"score\":0.9}"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":12,"completion_tokens":8,"total_tokens":20}
		}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClientWithBaseURL("sk-test", srv.URL)
	require.NoError(t, err)
	require.Equal(t, "openai", c.Name())

	resp, err := c.Complete(context.Background(), &Request{System: "classify", Prompt: "hola", JSON: true})
	require.NoError(t, err)
	require.Contains(t, resp.Content, "StoreHours")
	require.Equal(t, 12, resp.TokensIn)
	require.Equal(t, 8, resp.TokensOut)

	require.Equal(t, defaultOpenAIModel, got.Model)
	require.Equal(t, defaultMaxTokens, got.MaxTokens)
	require.NotNil(t, got.ResponseFormat)
	require.Equal(t, "json_object", got.ResponseFormat.Type)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "system", got.Messages[0].Role)
	require.Equal(t, "hola", got.Messages[1].Content)
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"m","choices":[]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClientWithBaseURL("sk-test", srv.URL)
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), &Request{Prompt: "hola"})
	require.ErrorContains(t, err, "empty choices")
}

func TestAnthropicClient_PrefillsJSON(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-20241022",
			"content":[{"type":"text","text":"\"intent\":\"Products\",\"score\":0.7}"}],
			"stop_reason":"end_turn","usage":{"input_tokens":20,"output_tokens":9}
		}`))
	}))
	defer srv.Close()

	c, err := NewAnthropicClient("key", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), &Request{System: "classify", Prompt: "zapatos", JSON: true})
	require.NoError(t, err)
	require.Equal(t, `{"intent":"Products","score":0.7}`, resp.Content)
	require.Equal(t, 20, resp.TokensIn)

	require.Equal(t, defaultAnthropicModel, got.Model)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "user", got.Messages[0].Role)
	require.Equal(t, "classify\n\nzapatos", got.Messages[0].Content[0].Text)
	require.Equal(t, "assistant", got.Messages[1].Role)
	require.Equal(t, "{", got.Messages[1].Content[0].Text)
}
