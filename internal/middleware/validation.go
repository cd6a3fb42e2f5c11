package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/capitalize-ai/chopibot/internal/model"
)

const (
	maxTextLength = 100000 // ~100KB
	maxIDLength   = 256
)

// ValidateActivity validates an inbound activity before it reaches the bot.
func ValidateActivity(a *model.Activity) error {
	if a.Type == "" {
		return errors.New("activity type is required")
	}
	if err := ValidateConversationID(a.Conversation.ID); err != nil {
		return err
	}
	if len(a.Text) > maxTextLength {
		return errors.New("text exceeds maximum length")
	}
	if !utf8.ValidString(a.Text) {
		return errors.New("text must be valid UTF-8")
	}
	if a.Type == model.ActivityTypeMessage && a.From.ID == "" {
		return errors.New("message sender is required")
	}
	return nil
}

// ValidateConversationID validates a channel conversation ID.
func ValidateConversationID(id string) error {
	if id == "" {
		return errors.New("conversation ID cannot be empty")
	}
	if len(id) > maxIDLength {
		return errors.New("conversation ID exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New("conversation ID must be valid UTF-8")
	}
	return nil
}
