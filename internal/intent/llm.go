package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/capitalize-ai/chopibot/internal/llm"
	"github.com/capitalize-ai/chopibot/internal/model"
)

const classifyInstructions = `You classify customer messages sent to an online store's assistant.
Valid intents: %s.
Answer "None" when no intent clearly applies.
Reply with a single JSON object and nothing else: {"intent": "<intent>", "score": <confidence between 0 and 1>}`

// LLMRecognizer classifies text into a fixed intent list with a chat model.
type LLMRecognizer struct {
	client  llm.Client
	model   string
	intents []string
}

// NewLLMRecognizer creates a recognizer limited to the given intents.
func NewLLMRecognizer(client llm.Client, modelName string, intents []string) (*LLMRecognizer, error) {
	if client == nil {
		return nil, errors.New("intent: llm client is required")
	}
	if len(intents) == 0 {
		return nil, errors.New("intent: at least one intent is required")
	}
	return &LLMRecognizer{client: client, model: modelName, intents: intents}, nil
}

// Recognize classifies the activity text.
func (r *LLMRecognizer) Recognize(ctx context.Context, activity *model.Activity) (*model.RecognizerResult, error) {
	text := strings.TrimSpace(activity.Text)
	if text == "" {
		return noneResult(text), nil
	}

	resp, err := r.client.Complete(ctx, &llm.Request{
		Model:     r.model,
		System:    fmt.Sprintf(classifyInstructions, strings.Join(r.intents, ", ")),
		Prompt:    text,
		MaxTokens: 64,
		JSON:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("intent: %s completion: %w", r.client.Name(), err)
	}

	top, err := r.parse(resp.Content)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(map[string]any{
		"provider": r.client.Name(),
		"model":    resp.Model,
		"content":  resp.Content,
		"latency":  resp.Latency.Milliseconds(),
	})
	if err != nil {
		return nil, fmt.Errorf("intent: marshal raw result: %w", err)
	}

	return &model.RecognizerResult{
		Text:             text,
		TopScoringIntent: top,
		Intents:          []model.IntentScore{top},
		Raw:              raw,
	}, nil
}

func (r *LLMRecognizer) parse(content string) (model.IntentScore, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return model.IntentScore{}, fmt.Errorf("intent: no JSON object in completion %q", content)
	}

	var out model.IntentScore
	if err := json.Unmarshal([]byte(content[start:end+1]), &out); err != nil {
		return model.IntentScore{}, fmt.Errorf("intent: decode completion: %w", err)
	}

	out.Intent = r.canonical(out.Intent)
	if out.Score < 0 {
		out.Score = 0
	}
	if out.Score > 1 {
		out.Score = 1
	}
	return out, nil
}

// canonical maps a model-produced label onto the configured list, or None.
func (r *LLMRecognizer) canonical(label string) string {
	label = strings.TrimSpace(label)
	for _, it := range r.intents {
		if strings.EqualFold(it, label) {
			return it
		}
	}
	return model.NoneIntent
}
