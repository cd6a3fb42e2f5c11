package nats

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/chopibot/internal/model"
	"github.com/capitalize-ai/chopibot/internal/state"
)

// kvAPI is the subset of jetstream.KeyValue used by StateStore.
type kvAPI interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Create(ctx context.Context, key string, value []byte) (uint64, error)
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)
}

// StateStore keeps conversation state in a JetStream key-value bucket.
type StateStore struct {
	kv kvAPI
}

// NewStateStore wraps an existing bucket.
func NewStateStore(kv kvAPI) *StateStore {
	return &StateStore{kv: kv}
}

// EnsureStateBucket opens the bucket, creating it on first use.
func EnsureStateBucket(ctx context.Context, client *Client, bucket string) (*StateStore, error) {
	js := client.JetStream()

	kv, err := js.KeyValue(ctx, bucket)
	if err == nil {
		return NewStateStore(kv), nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, fmt.Errorf("failed to open state bucket: %w", err)
	}

	kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Per-conversation bot state",
		History:     1,
		TTL:         90 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create state bucket: %w", err)
	}
	return NewStateStore(kv), nil
}

// Name returns the store name.
func (s *StateStore) Name() string {
	return "nats"
}

// stateKey maps a channel conversation id onto the KV key alphabet.
func stateKey(conversationID string) string {
	return "conv." + base64.RawURLEncoding.EncodeToString([]byte(conversationID))
}

// Load returns the state for a conversation.
func (s *StateStore) Load(ctx context.Context, conversationID string) (model.ConversationState, uint64, error) {
	var st model.ConversationState

	entry, err := s.kv.Get(ctx, stateKey(conversationID))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return st, 0, nil
	}
	if err != nil {
		return st, 0, fmt.Errorf("state: kv get: %w", err)
	}

	if err := json.Unmarshal(entry.Value(), &st); err != nil {
		return st, 0, fmt.Errorf("state: decode entry: %w", err)
	}
	return st, entry.Revision(), nil
}

// Save commits the state, creating the key on revision 0.
func (s *StateStore) Save(ctx context.Context, conversationID string, st model.ConversationState, revision uint64) (uint64, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return 0, fmt.Errorf("state: encode entry: %w", err)
	}

	key := stateKey(conversationID)
	var next uint64
	if revision == 0 {
		next, err = s.kv.Create(ctx, key, data)
	} else {
		next, err = s.kv.Update(ctx, key, data, revision)
	}
	if err != nil {
		if isConflict(err) {
			return 0, state.ErrConflict
		}
		return 0, fmt.Errorf("state: kv write: %w", err)
	}
	return next, nil
}

func isConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}
