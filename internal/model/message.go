package model

import (
	"time"
)

// ActivityType represents the type of a channel activity.
type ActivityType string

const (
	ActivityTypeMessage            ActivityType = "message"
	ActivityTypeConversationUpdate ActivityType = "conversationUpdate"
	ActivityTypeTyping             ActivityType = "typing"
	ActivityTypeEvent              ActivityType = "event"
)

// DeliveryModeExpectReplies asks the webhook to return replies in the HTTP
// response instead of posting them to the connector.
const DeliveryModeExpectReplies = "expectReplies"

// ChannelAccount identifies a participant on a channel.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ConversationAccount identifies the conversation an activity belongs to.
type ConversationAccount struct {
	ID      string `json:"id"`
	IsGroup bool   `json:"isGroup,omitempty"`
}

// CardAction is a single quick-reply button.
type CardAction struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Value string `json:"value"`
}

// SuggestedActions is a short list of pre-filled replies offered to the user.
type SuggestedActions struct {
	To      []string     `json:"to,omitempty"`
	Actions []CardAction `json:"actions"`
}

// Activity is an inbound or outbound channel event.
type Activity struct {
	// Identity
	Type      ActivityType `json:"type"`
	ID        string       `json:"id,omitempty"`
	Timestamp *time.Time   `json:"timestamp,omitempty"`
	ChannelID string       `json:"channelId,omitempty"`

	// Routing
	ServiceURL   string              `json:"serviceUrl,omitempty"`
	From         ChannelAccount      `json:"from"`
	Recipient    ChannelAccount      `json:"recipient"`
	Conversation ConversationAccount `json:"conversation"`
	ReplyToID    string              `json:"replyToId,omitempty"`
	DeliveryMode string              `json:"deliveryMode,omitempty"`

	// Content
	Text             string            `json:"text,omitempty"`
	Locale           string            `json:"locale,omitempty"`
	MembersAdded     []ChannelAccount  `json:"membersAdded,omitempty"`
	MembersRemoved   []ChannelAccount  `json:"membersRemoved,omitempty"`
	SuggestedActions *SuggestedActions `json:"suggestedActions,omitempty"`
}

// ExpectsReplies reports whether replies should be returned inline.
func (a *Activity) ExpectsReplies() bool {
	return a.DeliveryMode == DeliveryModeExpectReplies || a.ServiceURL == ""
}

// TurnResponse is the webhook response body for inline replies.
type TurnResponse struct {
	Activities []Activity `json:"activities"`
}

// TranscriptEntry is a transcript record of one activity passing through the bot.
type TranscriptEntry struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Direction      string    `json:"direction"`
	Activity       Activity  `json:"activity"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// Transcript directions.
const (
	DirectionInbound  = "in"
	DirectionOutbound = "out"
)
