// Package intent provides intent recognizers backed by LUIS or a chat LLM.
package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/capitalize-ai/chopibot/internal/model"
)

// LUISConfig holds LUIS prediction endpoint configuration.
type LUISConfig struct {
	Endpoint        string
	AppID           string
	SubscriptionKey string
	Timeout         time.Duration
}

// StatusError is returned when the prediction endpoint answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("intent: prediction returned %d: %s", e.StatusCode, e.Body)
}

// LUISRecognizer calls the LUIS v2 prediction API.
type LUISRecognizer struct {
	cfg        LUISConfig
	httpClient *http.Client
}

// NewLUISRecognizer creates a new LUIS recognizer.
func NewLUISRecognizer(cfg LUISConfig) (*LUISRecognizer, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("intent: LUIS endpoint is required")
	}
	if cfg.AppID == "" {
		return nil, errors.New("intent: LUIS app id is required")
	}
	if cfg.SubscriptionKey == "" {
		return nil, errors.New("intent: LUIS subscription key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &LUISRecognizer{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type luisResponse struct {
	Query            string              `json:"query"`
	TopScoringIntent model.IntentScore   `json:"topScoringIntent"`
	Intents          []model.IntentScore `json:"intents"`
}

func (r *LUISRecognizer) predictionURL(text string) string {
	q := url.Values{}
	q.Set("verbose", "true")
	q.Set("timezoneOffset", "0")
	q.Set("q", text)
	return strings.TrimRight(r.cfg.Endpoint, "/") + "/luis/v2.0/apps/" + url.PathEscape(r.cfg.AppID) + "?" + q.Encode()
}

// Recognize classifies the activity text.
func (r *LUISRecognizer) Recognize(ctx context.Context, activity *model.Activity) (*model.RecognizerResult, error) {
	text := strings.TrimSpace(activity.Text)
	if text == "" {
		return noneResult(text), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.predictionURL(text), nil)
	if err != nil {
		return nil, fmt.Errorf("intent: build request: %w", err)
	}
	// The key travels in a header so transport errors, which quote the URL, never carry it.
	req.Header.Set("Ocp-Apim-Subscription-Key", r.cfg.SubscriptionKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("intent: predict: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("intent: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out luisResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("intent: decode response: %w", err)
	}

	top := out.TopScoringIntent
	if top.Intent == "" {
		top = topOf(out.Intents)
	}

	return &model.RecognizerResult{
		Text:             text,
		TopScoringIntent: top,
		Intents:          out.Intents,
		Raw:              raw,
	}, nil
}

func noneResult(text string) *model.RecognizerResult {
	none := model.IntentScore{Intent: model.NoneIntent, Score: 1}
	return &model.RecognizerResult{
		Text:             text,
		TopScoringIntent: none,
		Intents:          []model.IntentScore{none},
	}
}

// topOf returns the highest scoring intent, or None when the list is empty.
func topOf(intents []model.IntentScore) model.IntentScore {
	top := model.IntentScore{Intent: model.NoneIntent}
	for i, it := range intents {
		if i == 0 || it.Score > top.Score {
			top = it
		}
	}
	return top
}
