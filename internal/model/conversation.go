// Package model defines data structures shared by the bot, its backends and
// the channel surface.
package model

// ConversationState is the per-conversation record persisted between turns.
type ConversationState struct {
	TurnCounter  int  `json:"turnCounter"`
	WelcomedUser bool `json:"welcomedUser"`
}

// ConversationStateResponse is returned by the state inspection endpoint.
type ConversationStateResponse struct {
	ConversationID string            `json:"conversation_id"`
	State          ConversationState `json:"state"`
}
