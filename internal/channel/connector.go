// Package channel delivers outbound activities to the channel connector.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chopibot/internal/model"
	"github.com/capitalize-ai/chopibot/pkg/logger"
	"github.com/capitalize-ai/chopibot/pkg/metrics"
)

// StatusError is returned when the connector rejects an activity.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("channel: connector returned %d: %s", e.StatusCode, e.Body)
}

// Connector posts replies to {serviceUrl}/v3/conversations/{id}/activities.
type Connector struct {
	httpClient *http.Client
	token      string
	logger     *logger.Logger
}

// NewConnector creates a connector client. token is sent as a bearer token
// when non-empty.
func NewConnector(token string, timeout time.Duration, log *logger.Logger) *Connector {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = logger.Global()
	}
	return &Connector{
		httpClient: &http.Client{Timeout: timeout},
		token:      token,
		logger:     log,
	}
}

// ActivityURL returns the endpoint a reply is posted to.
func ActivityURL(activity *model.Activity) string {
	u := strings.TrimRight(activity.ServiceURL, "/") +
		"/v3/conversations/" + url.PathEscape(activity.Conversation.ID) + "/activities"
	if activity.ReplyToID != "" {
		u += "/" + url.PathEscape(activity.ReplyToID)
	}
	return u
}

// SendActivities posts replies in order and stops at the first failure.
func (c *Connector) SendActivities(ctx context.Context, activities []model.Activity) error {
	for i := range activities {
		err := c.send(ctx, &activities[i])
		metrics.RecordReply("connector", err)
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Connector) send(ctx context.Context, activity *model.Activity) error {
	if activity.ServiceURL == "" {
		return fmt.Errorf("channel: activity %s has no service url", activity.ID)
	}

	body, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("channel: marshal activity: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ActivityURL(activity), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("channel: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("channel: send activity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	c.logger.Debug("activity delivered",
		zap.String("conversation_id", activity.Conversation.ID),
		zap.String("activity_id", activity.ID),
	)
	return nil
}
