package nats

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/chopibot/internal/model"
)

const (
	// TranscriptStream is the name of the transcript stream.
	TranscriptStream = "TRANSCRIPTS"

	// TranscriptPrefix is the prefix for all transcript subjects.
	TranscriptPrefix = "transcript"
)

type publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// TranscriptLogger records every activity passing through the bot.
type TranscriptLogger struct {
	js publisher
}

// NewTranscriptLogger creates a transcript logger over a JetStream publisher.
func NewTranscriptLogger(js publisher) *TranscriptLogger {
	return &TranscriptLogger{js: js}
}

// EnsureTranscriptStream ensures the transcript stream exists.
func EnsureTranscriptStream(ctx context.Context, client *Client) error {
	js := client.JetStream()

	if _, err := js.Stream(ctx, TranscriptStream); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        TranscriptStream,
		Subjects:    []string{fmt.Sprintf("%s.>", TranscriptPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Inbound and outbound bot activities",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// TranscriptSubject returns the subject for one conversation and direction.
func TranscriptSubject(conversationID, direction string) string {
	return fmt.Sprintf("%s.%s.%s", TranscriptPrefix, base64.RawURLEncoding.EncodeToString([]byte(conversationID)), direction)
}

// LogActivity publishes one activity to the transcript stream.
func (l *TranscriptLogger) LogActivity(ctx context.Context, direction string, activity *model.Activity) error {
	entry := model.TranscriptEntry{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: activity.Conversation.ID,
		Direction:      direction,
		Activity:       *activity,
		RecordedAt:     time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript entry: %w", err)
	}

	if _, err := l.js.Publish(ctx, TranscriptSubject(entry.ConversationID, direction), data); err != nil {
		return fmt.Errorf("failed to publish transcript entry: %w", err)
	}
	return nil
}
