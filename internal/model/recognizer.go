package model

import (
	"encoding/json"
)

// NoneIntent is the sentinel intent for "no confident match".
const NoneIntent = "None"

// QueryResult is one candidate answer from the question-answering service.
type QueryResult struct {
	ID        int      `json:"id"`
	Answer    string   `json:"answer"`
	Score     float64  `json:"score"`
	Questions []string `json:"questions,omitempty"`
	Source    string   `json:"source,omitempty"`
}

// IntentScore is an intent label with its confidence.
type IntentScore struct {
	Intent string  `json:"intent"`
	Score  float64 `json:"score"`
}

// RecognizerResult is the output of the intent-recognition service.
type RecognizerResult struct {
	Text             string          `json:"text"`
	TopScoringIntent IntentScore     `json:"topScoringIntent"`
	Intents          []IntentScore   `json:"intents,omitempty"`
	Raw              json.RawMessage `json:"raw,omitempty"`
}

// IsNone reports whether the top intent is the "None" sentinel or missing.
func (r *RecognizerResult) IsNone() bool {
	return r == nil || r.TopScoringIntent.Intent == "" || r.TopScoringIntent.Intent == NoneIntent
}
