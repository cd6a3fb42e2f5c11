// Package bot implements the turn dispatcher: greeting, QA-first answering
// with intent fallback, and member welcomes.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chopibot/internal/model"
	"github.com/capitalize-ai/chopibot/internal/state"
	"github.com/capitalize-ai/chopibot/pkg/logger"
	"github.com/capitalize-ai/chopibot/pkg/metrics"
)

// QnAMaker answers a question from a knowledge base.
type QnAMaker interface {
	GenerateAnswer(ctx context.Context, question string) ([]model.QueryResult, error)
}

// Recognizer classifies an activity into an intent.
type Recognizer interface {
	Recognize(ctx context.Context, activity *model.Activity) (*model.RecognizerResult, error)
}

// TranscriptLogger records activities.
type TranscriptLogger interface {
	LogActivity(ctx context.Context, direction string, activity *model.Activity) error
}

// Option configures a Bot.
type Option func(*Bot)

// WithDiagnosticIntents toggles the "LUIS Top Scoring Intent" reply.
func WithDiagnosticIntents(enabled bool) Option {
	return func(b *Bot) { b.diagnostic = enabled }
}

// WithTranscript records every inbound and outbound activity.
func WithTranscript(t TranscriptLogger) Option {
	return func(b *Bot) { b.transcript = t }
}

// Bot dispatches turns.
type Bot struct {
	qna        QnAMaker
	recognizer Recognizer
	store      state.Store
	transcript TranscriptLogger
	logger     *logger.Logger
	tracer     trace.Tracer
	diagnostic bool
}

// New creates a bot. Diagnostic intent replies are on by default.
func New(qna QnAMaker, recognizer Recognizer, store state.Store, log *logger.Logger, opts ...Option) (*Bot, error) {
	if qna == nil {
		return nil, errors.New("bot: qna maker is required")
	}
	if recognizer == nil {
		return nil, errors.New("bot: recognizer is required")
	}
	if store == nil {
		return nil, errors.New("bot: state store is required")
	}
	if log == nil {
		log = logger.Global()
	}

	b := &Bot{
		qna:        qna,
		recognizer: recognizer,
		store:      store,
		logger:     log,
		tracer:     otel.Tracer("github.com/capitalize-ai/chopibot/internal/bot"),
		diagnostic: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// OnTurn handles one inbound activity. State is loaded before dispatch and
// committed exactly once afterwards, whichever reply was chosen. Replies are
// delivered before the commit, so a failed delivery leaves state untouched
// and the retried turn repeats the greeting. Backend failures produce the
// degraded reply; state and delivery failures return an error.
func (b *Bot) OnTurn(ctx context.Context, turn *Turn) error {
	activity := turn.Activity
	conversationID := activity.Conversation.ID

	ctx, span := b.tracer.Start(ctx, "bot.OnTurn", trace.WithAttributes(
		attribute.String("activity.type", string(activity.Type)),
		attribute.String("conversation.id", conversationID),
	))
	defer span.End()

	log := logger.FromContext(ctx, b.logger.WithContext("", activity.ChannelID, conversationID)).
		With(zap.String("activity_type", string(activity.Type)))

	st, revision, err := b.store.Load(ctx, conversationID)
	metrics.RecordStateOp(b.store.Name(), "load", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load state")
		return fmt.Errorf("bot: load state: %w", err)
	}

	in := Inputs{Activity: activity, Diagnostic: b.diagnostic}
	if activity.Type == model.ActivityTypeMessage {
		b.onMessage(ctx, log, turn, &st, &in)
	}
	decision := Decide(in)
	b.apply(turn, decision)

	if err := turn.Deliver(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "deliver replies")
		return err
	}

	_, err = b.store.Save(ctx, conversationID, st, revision)
	metrics.RecordStateOp(b.store.Name(), "save", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save state")
		return fmt.Errorf("bot: save state: %w", err)
	}

	span.SetAttributes(attribute.String("bot.decision", string(decision.Kind)))
	metrics.RecordTurn(string(activity.Type), string(decision.Kind))
	log.Debug("turn completed",
		zap.String("decision", string(decision.Kind)),
		zap.Int("replies", len(turn.Replies())),
	)

	b.record(ctx, log, turn)
	return nil
}

// onMessage sends the one-time greeting and queries the backends. The
// recognizer is skipped once QA has an answer or a backend has failed.
func (b *Bot) onMessage(ctx context.Context, log *logger.Logger, turn *Turn, st *model.ConversationState, in *Inputs) {
	activity := turn.Activity

	if !st.WelcomedUser {
		turn.SendText(GreetingText(activity.From.Name))
		st.WelcomedUser = true
	}

	in.Answers, in.BackendErr = b.generateAnswer(ctx, activity.Text)
	if in.BackendErr != nil {
		log.Error("qna call failed", zap.Error(in.BackendErr))
		return
	}
	if HasAnswer(in.Answers) {
		return
	}

	in.Intent, in.BackendErr = b.recognize(ctx, activity)
	if in.BackendErr != nil {
		log.Error("intent recognition failed", zap.Error(in.BackendErr))
	}
}

func (b *Bot) apply(turn *Turn, d Decision) {
	if d.Kind != KindWelcome {
		turn.SendText(d.Text)
		return
	}
	for _, m := range d.Members {
		turn.SendText(WelcomeText(m.Name))
		turn.SendSuggestedActions(SuggestedActionsText, SuggestedActions)
	}
}

func (b *Bot) generateAnswer(ctx context.Context, text string) ([]model.QueryResult, error) {
	ctx, span := b.tracer.Start(ctx, "qna.GenerateAnswer")
	defer span.End()

	start := time.Now()
	results, err := b.qna.GenerateAnswer(ctx, text)
	metrics.RecordBackend("qna", err, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate answer")
		return nil, err
	}
	span.SetAttributes(attribute.Int("qna.results", len(results)))
	return results, nil
}

func (b *Bot) recognize(ctx context.Context, activity *model.Activity) (*model.RecognizerResult, error) {
	ctx, span := b.tracer.Start(ctx, "intent.Recognize")
	defer span.End()

	start := time.Now()
	res, err := b.recognizer.Recognize(ctx, activity)
	metrics.RecordBackend("intent", err, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "recognize")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("intent.top", res.TopScoringIntent.Intent),
		attribute.Float64("intent.score", res.TopScoringIntent.Score),
	)
	return res, nil
}

// record writes the turn to the transcript. Failures are logged, not returned.
func (b *Bot) record(ctx context.Context, log *logger.Logger, turn *Turn) {
	if b.transcript == nil {
		return
	}
	if err := b.transcript.LogActivity(ctx, model.DirectionInbound, turn.Activity); err != nil {
		log.Warn("transcript write failed", zap.Error(err))
		return
	}
	replies := turn.Replies()
	for i := range replies {
		if err := b.transcript.LogActivity(ctx, model.DirectionOutbound, &replies[i]); err != nil {
			log.Warn("transcript write failed", zap.Error(err))
			return
		}
	}
}
