package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chopibot/internal/model"
	"github.com/capitalize-ai/chopibot/internal/state"
	"github.com/capitalize-ai/chopibot/pkg/logger"
)

type fakeQnA struct {
	results []model.QueryResult
	err     error
	calls   int
}

func (f *fakeQnA) GenerateAnswer(_ context.Context, _ string) ([]model.QueryResult, error) {
	f.calls++
	return f.results, f.err
}

type fakeRecognizer struct {
	result *model.RecognizerResult
	err    error
	calls  int
}

func (f *fakeRecognizer) Recognize(_ context.Context, _ *model.Activity) (*model.RecognizerResult, error) {
	f.calls++
	return f.result, f.err
}

// countingStore wraps a MemoryStore and counts operations.
type countingStore struct {
	*state.MemoryStore
	loads   int
	saves   int
	loadErr error
	saveErr error
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: state.NewMemoryStore()}
}

func (s *countingStore) Load(ctx context.Context, id string) (model.ConversationState, uint64, error) {
	s.loads++
	if s.loadErr != nil {
		return model.ConversationState{}, 0, s.loadErr
	}
	return s.MemoryStore.Load(ctx, id)
}

func (s *countingStore) Save(ctx context.Context, id string, st model.ConversationState, rev uint64) (uint64, error) {
	s.saves++
	if s.saveErr != nil {
		return 0, s.saveErr
	}
	return s.MemoryStore.Save(ctx, id, st, rev)
}

type fakeTranscript struct {
	directions []string
}

func (f *fakeTranscript) LogActivity(_ context.Context, direction string, _ *model.Activity) error {
	f.directions = append(f.directions, direction)
	return nil
}

type fixture struct {
	bot        *Bot
	qna        *fakeQnA
	recognizer *fakeRecognizer
	store      *countingStore
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		qna:        &fakeQnA{},
		recognizer: &fakeRecognizer{result: &model.RecognizerResult{TopScoringIntent: model.IntentScore{Intent: model.NoneIntent, Score: 0.9}}},
		store:      newCountingStore(),
	}
	b, err := New(f.qna, f.recognizer, f.store, logger.NewNop(), opts...)
	require.NoError(t, err)
	f.bot = b
	return f
}

func messageActivity(text string) *model.Activity {
	return &model.Activity{
		Type:         model.ActivityTypeMessage,
		ID:           "act-1",
		ChannelID:    "facebook",
		ServiceURL:   "https://connector.example.com",
		From:         model.ChannelAccount{ID: "user-1", Name: "Ana"},
		Recipient:    model.ChannelAccount{ID: "bot-1", Name: "ChopiBot"},
		Conversation: model.ConversationAccount{ID: "conv-1"},
		Text:         text,
	}
}

func run(t *testing.T, b *Bot, a *model.Activity) []string {
	t.Helper()
	turn := NewTurn(a)
	require.NoError(t, b.OnTurn(context.Background(), turn))
	var texts []string
	for _, r := range turn.Replies() {
		texts = append(texts, r.Text)
	}
	return texts
}

func TestNew_RequiresDependencies(t *testing.T) {
	store := state.NewMemoryStore()
	_, err := New(nil, &fakeRecognizer{}, store, nil)
	require.Error(t, err)
	_, err = New(&fakeQnA{}, nil, store, nil)
	require.Error(t, err)
	_, err = New(&fakeQnA{}, &fakeRecognizer{}, nil, nil)
	require.Error(t, err)
}

func TestOnTurn_FirstMessageGreetsThenAnswers(t *testing.T) {
	f := newFixture(t)
	f.qna.results = []model.QueryResult{{ID: 1, Answer: "Abrimos a las 9", Score: 0.9}}

	texts := run(t, f.bot, messageActivity("¿A qué hora abren?"))

	require.Equal(t, []string{GreetingText("Ana"), "Abrimos a las 9"}, texts)
	require.Equal(t, 0, f.recognizer.calls)

	st, _, err := f.store.MemoryStore.Load(context.Background(), "conv-1")
	require.NoError(t, err)
	require.True(t, st.WelcomedUser)
}

func TestOnTurn_GreetingOnlyOncePerConversation(t *testing.T) {
	f := newFixture(t)
	f.qna.results = []model.QueryResult{{ID: 1, Answer: "Sí", Score: 0.9}}

	run(t, f.bot, messageActivity("hola"))
	texts := run(t, f.bot, messageActivity("hola otra vez"))

	require.Equal(t, []string{"Sí"}, texts)
}

func TestOnTurn_GreetingIsPerConversation(t *testing.T) {
	f := newFixture(t)
	f.qna.results = []model.QueryResult{{ID: 1, Answer: "Sí", Score: 0.9}}

	run(t, f.bot, messageActivity("hola"))
	other := messageActivity("hola")
	other.Conversation.ID = "conv-2"
	texts := run(t, f.bot, other)

	require.Equal(t, []string{GreetingText("Ana"), "Sí"}, texts)
}

func TestOnTurn_NoAnswerNoneIntentFallsBack(t *testing.T) {
	f := newFixture(t)
	f.store.MemoryStore.Save(context.Background(), "conv-1", model.ConversationState{WelcomedUser: true}, 0)

	texts := run(t, f.bot, messageActivity("qwerty"))

	require.Equal(t, []string{FallbackText}, texts)
	require.Equal(t, 1, f.qna.calls)
	require.Equal(t, 1, f.recognizer.calls)
}

func TestOnTurn_EmptyAnswerTextConsultsRecognizer(t *testing.T) {
	f := newFixture(t)
	f.store.MemoryStore.Save(context.Background(), "conv-1", model.ConversationState{WelcomedUser: true}, 0)
	f.qna.results = []model.QueryResult{{ID: 4, Answer: "", Score: 0.8}}

	texts := run(t, f.bot, messageActivity("algo"))

	require.Equal(t, []string{FallbackText}, texts)
	require.Equal(t, 1, f.recognizer.calls)
}

func TestOnTurn_RecognizedIntentDiagnostic(t *testing.T) {
	f := newFixture(t)
	f.store.MemoryStore.Save(context.Background(), "conv-1", model.ConversationState{WelcomedUser: true}, 0)
	f.recognizer.result = &model.RecognizerResult{TopScoringIntent: model.IntentScore{Intent: "StoreHours", Score: 0.82}}

	texts := run(t, f.bot, messageActivity("horario"))

	require.Equal(t, []string{"LUIS Top Scoring Intent: StoreHours, Score: 0.82"}, texts)
}

func TestOnTurn_DiagnosticDisabledFallsBack(t *testing.T) {
	f := newFixture(t, WithDiagnosticIntents(false))
	f.store.MemoryStore.Save(context.Background(), "conv-1", model.ConversationState{WelcomedUser: true}, 0)
	f.recognizer.result = &model.RecognizerResult{TopScoringIntent: model.IntentScore{Intent: "StoreHours", Score: 0.82}}

	texts := run(t, f.bot, messageActivity("horario"))

	require.Equal(t, []string{FallbackText}, texts)
}

func TestOnTurn_BackendErrorsDegradeAndCommit(t *testing.T) {
	t.Run("qna", func(t *testing.T) {
		f := newFixture(t)
		f.qna.err = errors.New("boom")

		texts := run(t, f.bot, messageActivity("hola"))

		require.Equal(t, []string{GreetingText("Ana"), DegradedText}, texts)
		require.Equal(t, 0, f.recognizer.calls)
		require.Equal(t, 1, f.store.saves)

		st, _, _ := f.store.MemoryStore.Load(context.Background(), "conv-1")
		require.True(t, st.WelcomedUser)
	})

	t.Run("recognizer", func(t *testing.T) {
		f := newFixture(t)
		f.recognizer.err = errors.New("timeout")

		texts := run(t, f.bot, messageActivity("hola"))

		require.Equal(t, []string{GreetingText("Ana"), DegradedText}, texts)
		require.Equal(t, 1, f.store.saves)
	})
}

func TestOnTurn_CommitsExactlyOncePerTurn(t *testing.T) {
	f := newFixture(t)
	f.qna.results = []model.QueryResult{{ID: 1, Answer: "Sí", Score: 0.9}}

	run(t, f.bot, messageActivity("uno"))
	run(t, f.bot, messageActivity("dos"))
	run(t, f.bot, &model.Activity{Type: model.ActivityTypeTyping, Conversation: model.ConversationAccount{ID: "conv-1"}})
	run(t, f.bot, &model.Activity{
		Type:         model.ActivityTypeConversationUpdate,
		Recipient:    model.ChannelAccount{ID: "bot-1"},
		Conversation: model.ConversationAccount{ID: "conv-1"},
		MembersAdded: []model.ChannelAccount{{ID: "user-1", Name: "Ana"}},
	})

	require.Equal(t, 4, f.store.loads)
	require.Equal(t, 4, f.store.saves)
}

func TestOnTurn_StateErrors(t *testing.T) {
	f := newFixture(t)
	f.store.loadErr = errors.New("down")
	err := f.bot.OnTurn(context.Background(), NewTurn(messageActivity("hola")))
	require.ErrorContains(t, err, "bot: load state")
	require.Equal(t, 0, f.qna.calls)

	f = newFixture(t)
	f.store.saveErr = state.ErrConflict
	err = f.bot.OnTurn(context.Background(), NewTurn(messageActivity("hola")))
	require.ErrorIs(t, err, state.ErrConflict)
	require.ErrorContains(t, err, "bot: save state")
}

func TestOnTurn_DeliveryFailureSkipsCommit(t *testing.T) {
	f := newFixture(t)
	f.qna.results = []model.QueryResult{{ID: 1, Answer: "Abrimos a las 9", Score: 0.8}}

	turn := NewTurn(messageActivity("horario"))
	turn.DeliverWith(func(context.Context, []model.Activity) error {
		return errors.New("connector down")
	})
	err := f.bot.OnTurn(context.Background(), turn)
	require.ErrorIs(t, err, ErrDelivery)
	require.Equal(t, 0, f.store.saves)

	var delivered []model.Activity
	turn = NewTurn(messageActivity("horario"))
	turn.DeliverWith(func(_ context.Context, replies []model.Activity) error {
		delivered = append(delivered, replies...)
		return nil
	})
	require.NoError(t, f.bot.OnTurn(context.Background(), turn))
	require.Equal(t, 1, f.store.saves)
	require.Len(t, delivered, 2)
	require.Equal(t, GreetingText("Ana"), delivered[0].Text)
}

func TestOnTurn_WelcomesAddedMembersExceptBot(t *testing.T) {
	f := newFixture(t)
	turn := NewTurn(&model.Activity{
		Type:         model.ActivityTypeConversationUpdate,
		Recipient:    model.ChannelAccount{ID: "bot-1", Name: "ChopiBot"},
		Conversation: model.ConversationAccount{ID: "conv-1"},
		MembersAdded: []model.ChannelAccount{
			{ID: "bot-1", Name: "ChopiBot"},
			{ID: "user-1", Name: "Ana"},
			{ID: "user-2", Name: "Luis"},
		},
	})

	require.NoError(t, f.bot.OnTurn(context.Background(), turn))

	replies := turn.Replies()
	require.Len(t, replies, 4)
	require.Equal(t, WelcomeText("Ana"), replies[0].Text)
	require.Equal(t, SuggestedActionsText, replies[1].Text)
	require.NotNil(t, replies[1].SuggestedActions)
	require.Len(t, replies[1].SuggestedActions.Actions, 2)
	require.Equal(t, "imBack", replies[1].SuggestedActions.Actions[0].Type)
	require.Equal(t, "¿Que es un bot?", replies[1].SuggestedActions.Actions[0].Value)
	require.Equal(t, WelcomeText("Luis"), replies[2].Text)
	require.Equal(t, 0, f.qna.calls)
}

func TestOnTurn_OnlyBotAddedSendsNothing(t *testing.T) {
	f := newFixture(t)
	texts := run(t, f.bot, &model.Activity{
		Type:         model.ActivityTypeConversationUpdate,
		Recipient:    model.ChannelAccount{ID: "bot-1"},
		Conversation: model.ConversationAccount{ID: "conv-1"},
		MembersAdded: []model.ChannelAccount{{ID: "bot-1"}},
	})
	require.Empty(t, texts)
	require.Equal(t, 1, f.store.saves)
}

func TestOnTurn_OtherActivityTypes(t *testing.T) {
	f := newFixture(t)
	texts := run(t, f.bot, &model.Activity{Type: model.ActivityTypeTyping, Conversation: model.ConversationAccount{ID: "conv-1"}})
	require.Equal(t, []string{"[typing event detected.]"}, texts)

	texts = run(t, f.bot, &model.Activity{Type: "endOfConversation", Conversation: model.ConversationAccount{ID: "conv-1"}})
	require.Equal(t, []string{"[endOfConversation event detected.]"}, texts)
	require.Equal(t, 0, f.qna.calls)
}

func TestOnTurn_RecordsTranscript(t *testing.T) {
	transcript := &fakeTranscript{}
	f := newFixture(t, WithTranscript(transcript))
	f.qna.results = []model.QueryResult{{ID: 1, Answer: "Sí", Score: 0.9}}

	run(t, f.bot, messageActivity("hola"))

	require.Equal(t, []string{model.DirectionInbound, model.DirectionOutbound, model.DirectionOutbound}, transcript.directions)
}

func TestTurn_ReplyAddressing(t *testing.T) {
	in := messageActivity("hola")
	in.Locale = "es-MX"
	turn := NewTurn(in)
	turn.SendText("respuesta")

	reply := turn.Replies()[0]
	require.Equal(t, model.ActivityTypeMessage, reply.Type)
	require.NotEmpty(t, reply.ID)
	require.NotNil(t, reply.Timestamp)
	require.Equal(t, in.Recipient, reply.From)
	require.Equal(t, in.From, reply.Recipient)
	require.Equal(t, in.Conversation, reply.Conversation)
	require.Equal(t, "act-1", reply.ReplyToID)
	require.Equal(t, "es-MX", reply.Locale)
	require.Equal(t, in.ServiceURL, reply.ServiceURL)
}

func TestIntentDecision(t *testing.T) {
	require.Equal(t, KindFallback, intentDecision(nil, true).Kind)
	require.Equal(t, KindFallback, intentDecision(&model.RecognizerResult{}, true).Kind)

	d := intentDecision(&model.RecognizerResult{TopScoringIntent: model.IntentScore{Intent: "Products", Score: 1}}, true)
	require.Equal(t, KindIntentAnswer, d.Kind)
	require.Equal(t, "LUIS Top Scoring Intent: Products, Score: 1", d.Text)
}

func TestAnswerDecision(t *testing.T) {
	_, ok := answerDecision(nil)
	require.False(t, ok)

	d, ok := answerDecision([]model.QueryResult{{Answer: "a"}, {Answer: "b"}})
	require.True(t, ok)
	require.Equal(t, KindQaAnswer, d.Kind)
	require.Equal(t, "a", d.Text)
}

func TestDecide(t *testing.T) {
	msg := messageActivity("hola")
	none := &model.RecognizerResult{TopScoringIntent: model.IntentScore{Intent: model.NoneIntent}}

	tests := []struct {
		name string
		in   Inputs
		want Kind
	}{
		{"qa answer", Inputs{Activity: msg, Answers: []model.QueryResult{{Answer: "a"}}}, KindQaAnswer},
		{"none intent", Inputs{Activity: msg, Intent: none}, KindFallback},
		{"backend error", Inputs{Activity: msg, Answers: []model.QueryResult{{Answer: "a"}}, BackendErr: errors.New("x")}, KindDegraded},
		{"diagnostic", Inputs{Activity: msg, Diagnostic: true, Intent: &model.RecognizerResult{TopScoringIntent: model.IntentScore{Intent: "Contact", Score: 0.5}}}, KindIntentAnswer},
		{"welcome", Inputs{Activity: &model.Activity{Type: model.ActivityTypeConversationUpdate}}, KindWelcome},
		{"generic", Inputs{Activity: &model.Activity{Type: model.ActivityTypeEvent}}, KindGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Decide(tt.in).Kind)
		})
	}
}

func TestTurn_SendKeepsExplicitFields(t *testing.T) {
	turn := NewTurn(messageActivity("hola"))
	turn.Send(model.Activity{Type: model.ActivityTypeTyping, ID: "fixed"})

	reply := turn.Replies()[0]
	require.Equal(t, model.ActivityTypeTyping, reply.Type)
	require.Equal(t, "fixed", reply.ID)
	require.Equal(t, "user-1", reply.Recipient.ID)
}
