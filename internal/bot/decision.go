package bot

import (
	"github.com/capitalize-ai/chopibot/internal/model"
)

// Kind identifies the reply policy selected for a turn.
type Kind string

const (
	KindWelcome      Kind = "welcome"
	KindQaAnswer     Kind = "qa_answer"
	KindIntentAnswer Kind = "intent_answer"
	KindFallback     Kind = "fallback"
	KindGeneric      Kind = "generic"
	KindDegraded     Kind = "degraded"
)

// Decision is the single reply policy chosen for a turn.
type Decision struct {
	Kind Kind

	// Text is the reply for every kind except KindWelcome.
	Text string

	// Members lists who to welcome for KindWelcome.
	Members []model.ChannelAccount

	// Intent is set for KindIntentAnswer and KindFallback.
	Intent *model.IntentScore
}

// Inputs is everything learned during a turn that bears on the reply.
type Inputs struct {
	Activity *model.Activity

	// Answers and Intent are the QA and intent results; Intent is only
	// consulted when Answers carry no usable answer.
	Answers []model.QueryResult
	Intent  *model.RecognizerResult

	// BackendErr is the first QA or intent failure of the turn.
	BackendErr error

	Diagnostic bool
}

// Decide selects the reply policy for a turn. It performs no I/O.
func Decide(in Inputs) Decision {
	switch in.Activity.Type {
	case model.ActivityTypeMessage:
		if in.BackendErr != nil {
			return degradedDecision()
		}
		if d, ok := answerDecision(in.Answers); ok {
			return d
		}
		return intentDecision(in.Intent, in.Diagnostic)
	case model.ActivityTypeConversationUpdate:
		return welcomeDecision(in.Activity)
	default:
		return genericDecision(in.Activity.Type)
	}
}

// HasAnswer reports whether the QA results settle the turn.
func HasAnswer(results []model.QueryResult) bool {
	_, ok := answerDecision(results)
	return ok
}

// answerDecision selects the QA answer. ok is false when the results carry
// no usable answer and the intent service must be consulted.
func answerDecision(results []model.QueryResult) (Decision, bool) {
	if len(results) == 0 || results[0].Answer == "" {
		return Decision{}, false
	}
	return Decision{Kind: KindQaAnswer, Text: results[0].Answer}, true
}

// intentDecision maps the recognizer output onto a reply. With diagnostic
// off, a recognized intent falls back to the generic "not understood" reply.
func intentDecision(res *model.RecognizerResult, diagnostic bool) Decision {
	if res.IsNone() {
		d := Decision{Kind: KindFallback, Text: FallbackText}
		if res != nil {
			top := res.TopScoringIntent
			d.Intent = &top
		}
		return d
	}

	top := res.TopScoringIntent
	if !diagnostic {
		return Decision{Kind: KindFallback, Text: FallbackText, Intent: &top}
	}
	return Decision{
		Kind:   KindIntentAnswer,
		Text:   DiagnosticText(top.Intent, top.Score),
		Intent: &top,
	}
}

// welcomeDecision lists the added members other than the bot itself.
func welcomeDecision(activity *model.Activity) Decision {
	var members []model.ChannelAccount
	for _, m := range activity.MembersAdded {
		if m.ID != activity.Recipient.ID {
			members = append(members, m)
		}
	}
	return Decision{Kind: KindWelcome, Members: members}
}

func genericDecision(activityType model.ActivityType) Decision {
	return Decision{Kind: KindGeneric, Text: GenericText(string(activityType))}
}

func degradedDecision() Decision {
	return Decision{Kind: KindDegraded, Text: DegradedText}
}
