// Package qna provides a client for the QnA Maker generateAnswer API.
package qna

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/capitalize-ai/chopibot/internal/model"
)

// noMatchID is the id QnA Maker assigns to its "No good match found in KB." answer.
const noMatchID = -1

// Config holds QnA Maker endpoint configuration.
type Config struct {
	Endpoint        string
	KnowledgeBaseID string
	EndpointKey     string
	Top             int
	ScoreThreshold  float64
	Timeout         time.Duration
}

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("qna: generateAnswer returned %d: %s", e.StatusCode, e.Body)
}

// Client calls a QnA Maker knowledge base.
type Client struct {
	cfg        Config
	url        string
	httpClient *http.Client
}

// NewClient creates a new QnA Maker client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("qna: endpoint is required")
	}
	if cfg.KnowledgeBaseID == "" {
		return nil, errors.New("qna: knowledge base id is required")
	}
	if cfg.EndpointKey == "" {
		return nil, errors.New("qna: endpoint key is required")
	}
	if cfg.Top <= 0 {
		cfg.Top = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		cfg:        cfg,
		url:        generateAnswerURL(cfg.Endpoint, cfg.KnowledgeBaseID),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func generateAnswerURL(endpoint, kbID string) string {
	return strings.TrimRight(endpoint, "/") + "/knowledgebases/" + kbID + "/generateAnswer"
}

type generateAnswerRequest struct {
	Question string `json:"question"`
	Top      int    `json:"top"`
}

type generateAnswerResponse struct {
	Answers []struct {
		ID        int      `json:"id"`
		Answer    string   `json:"answer"`
		Score     float64  `json:"score"`
		Questions []string `json:"questions"`
		Source    string   `json:"source"`
	} `json:"answers"`
}

// GenerateAnswer returns the answers for a question ordered by score,
// highest first. An empty slice means the knowledge base had no answer.
func (c *Client) GenerateAnswer(ctx context.Context, question string) ([]model.QueryResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, nil
	}

	body, err := json.Marshal(generateAnswerRequest{Question: question, Top: c.cfg.Top})
	if err != nil {
		return nil, fmt.Errorf("qna: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("qna: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "EndpointKey "+c.cfg.EndpointKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qna: generateAnswer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out generateAnswerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("qna: decode response: %w", err)
	}

	results := make([]model.QueryResult, 0, len(out.Answers))
	for _, a := range out.Answers {
		if a.ID == noMatchID {
			continue
		}
		// The service scores 0-100; results are exposed on a 0-1 scale.
		score := a.Score / 100
		if score < c.cfg.ScoreThreshold {
			continue
		}
		results = append(results, model.QueryResult{
			ID:        a.ID,
			Answer:    a.Answer,
			Score:     score,
			Questions: a.Questions,
			Source:    a.Source,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > c.cfg.Top {
		results = results[:c.cfg.Top]
	}

	return results, nil
}
