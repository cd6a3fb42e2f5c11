package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/chopibot/internal/model"
)

// ErrDelivery wraps failures to hand replies to the channel.
var ErrDelivery = errors.New("bot: deliver replies")

// Deliverer hands a turn's replies to the channel.
type Deliverer func(ctx context.Context, replies []model.Activity) error

// Turn is one inbound activity and the replies produced for it.
type Turn struct {
	Activity *model.Activity
	replies  []model.Activity
	deliver  Deliverer
}

// NewTurn starts a turn for an inbound activity.
func NewTurn(activity *model.Activity) *Turn {
	return &Turn{Activity: activity}
}

// DeliverWith sets the function that sends replies before state is
// committed. Without one, replies stay queued for the caller.
func (t *Turn) DeliverWith(d Deliverer) {
	t.deliver = d
}

// Deliver sends the queued replies through the turn's Deliverer.
func (t *Turn) Deliver(ctx context.Context) error {
	if t.deliver == nil || len(t.replies) == 0 {
		return nil
	}
	if err := t.deliver(ctx, t.replies); err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	return nil
}

// Replies returns the outbound activities in send order.
func (t *Turn) Replies() []model.Activity {
	return t.replies
}

// Send queues an activity addressed as a reply to the inbound activity.
func (t *Turn) Send(activity model.Activity) {
	now := time.Now().UTC()
	in := t.Activity

	if activity.Type == "" {
		activity.Type = model.ActivityTypeMessage
	}
	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}
	if activity.Timestamp == nil {
		activity.Timestamp = &now
	}
	if activity.Locale == "" {
		activity.Locale = in.Locale
	}
	activity.ChannelID = in.ChannelID
	activity.ServiceURL = in.ServiceURL
	activity.From = in.Recipient
	activity.Recipient = in.From
	activity.Conversation = in.Conversation
	activity.ReplyToID = in.ID

	t.replies = append(t.replies, activity)
}

// SendText queues a plain text reply.
func (t *Turn) SendText(text string) {
	t.Send(model.Activity{Text: text})
}

// SendSuggestedActions queues a prompt with quick-reply buttons.
func (t *Turn) SendSuggestedActions(prompt string, actions []string) {
	cards := make([]model.CardAction, len(actions))
	for i, a := range actions {
		cards[i] = model.CardAction{Type: "imBack", Title: a, Value: a}
	}
	t.Send(model.Activity{
		Text:             prompt,
		SuggestedActions: &model.SuggestedActions{Actions: cards},
	})
}
