package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chopibot/internal/bot"
	"github.com/capitalize-ai/chopibot/internal/model"
	"github.com/capitalize-ai/chopibot/internal/state"
	"github.com/capitalize-ai/chopibot/pkg/logger"
)

type echoBot struct {
	err   error
	calls int
}

func (b *echoBot) OnTurn(_ context.Context, turn *bot.Turn) error {
	b.calls++
	if b.err != nil {
		return b.err
	}
	turn.SendText("eco: " + turn.Activity.Text)
	return turn.Deliver(context.Background())
}

type staticQnA struct{ answer string }

func (q staticQnA) GenerateAnswer(_ context.Context, _ string) ([]model.QueryResult, error) {
	return []model.QueryResult{{ID: 1, Answer: q.answer, Score: 0.9}}, nil
}

type noneRecognizer struct{}

func (noneRecognizer) Recognize(_ context.Context, a *model.Activity) (*model.RecognizerResult, error) {
	none := model.IntentScore{Intent: model.NoneIntent, Score: 1}
	return &model.RecognizerResult{Text: a.Text, TopScoringIntent: none, Intents: []model.IntentScore{none}}, nil
}

type fakeSender struct {
	sent []model.Activity
	err  error
}

func (s *fakeSender) SendActivities(_ context.Context, activities []model.Activity) error {
	s.sent = append(s.sent, activities...)
	return s.err
}

const inlineActivity = `{"type":"message","id":"a1","from":{"id":"u1","name":"Ana"},
	"recipient":{"id":"bot"},"conversation":{"id":"c1"},"text":"hola","deliveryMode":"expectReplies"}`

const connectorActivity = `{"type":"message","id":"a1","serviceUrl":"https://smba.example.com",
	"from":{"id":"u1","name":"Ana"},"recipient":{"id":"bot"},"conversation":{"id":"c1"},"text":"hola"}`

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestMessageHandler_InlineReplies(t *testing.T) {
	b := &echoBot{}
	sender := &fakeSender{}
	h := NewMessageHandler(b, sender, logger.NewNop())

	rec := post(h.Post, inlineActivity)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp model.TurnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Activities, 1)
	require.Equal(t, "eco: hola", resp.Activities[0].Text)
	require.Equal(t, "u1", resp.Activities[0].Recipient.ID)
	require.Empty(t, sender.sent)
}

func TestMessageHandler_ConnectorDelivery(t *testing.T) {
	sender := &fakeSender{}
	h := NewMessageHandler(&echoBot{}, sender, logger.NewNop())

	rec := post(h.Post, connectorActivity)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, sender.sent, 1)
	require.Equal(t, "a1", sender.sent[0].ReplyToID)
	require.Equal(t, "https://smba.example.com", sender.sent[0].ServiceURL)
}

func TestMessageHandler_DeliveryFailure(t *testing.T) {
	h := NewMessageHandler(&echoBot{}, &fakeSender{err: errors.New("down")}, logger.NewNop())
	rec := post(h.Post, connectorActivity)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestMessageHandler_GreetingSurvivesFailedDelivery(t *testing.T) {
	b, err := bot.New(staticQnA{answer: "Abrimos a las 9"}, noneRecognizer{}, state.NewMemoryStore(), logger.NewNop())
	require.NoError(t, err)

	sender := &fakeSender{err: errors.New("connector down")}
	h := NewMessageHandler(b, sender, logger.NewNop())

	rec := post(h.Post, connectorActivity)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	sender.err = nil
	sender.sent = nil
	rec = post(h.Post, connectorActivity)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, sender.sent, 2)
	require.Equal(t, bot.GreetingText("Ana"), sender.sent[0].Text)
	require.Equal(t, "Abrimos a las 9", sender.sent[1].Text)

	sender.sent = nil
	rec = post(h.Post, connectorActivity)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, sender.sent, 1)
	require.Equal(t, "Abrimos a las 9", sender.sent[0].Text)
}

func TestMessageHandler_TurnError(t *testing.T) {
	b := &echoBot{err: errors.New("bot: save state: conflict")}
	rec := post(NewMessageHandler(b, &fakeSender{}, logger.NewNop()).Post, inlineActivity)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMessageHandler_BadRequests(t *testing.T) {
	b := &echoBot{}
	h := NewMessageHandler(b, &fakeSender{}, logger.NewNop())

	require.Equal(t, http.StatusBadRequest, post(h.Post, `{"type":`).Code)
	require.Equal(t, http.StatusBadRequest, post(h.Post, `{"type":"message","from":{"id":"u"}}`).Code)
	require.Equal(t, 0, b.calls)
}

func TestStateHandler_Get(t *testing.T) {
	store := state.NewMemoryStore()
	_, err := store.Save(context.Background(), "c1", model.ConversationState{WelcomedUser: true}, 0)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Get("/api/v1/conversations/{id}/state", NewStateHandler(store, logger.NewNop()).Get)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversations/c1/state", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp model.ConversationStateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "c1", resp.ConversationID)
	require.True(t, resp.State.WelcomedUser)
}

type fakeConn bool

func (c fakeConn) IsConnected() bool { return bool(c) }

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name   string
		conn   ConnectionChecker
		status int
	}{
		{"no nats", nil, http.StatusOK},
		{"connected", fakeConn(true), http.StatusOK},
		{"disconnected", fakeConn(false), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.conn).Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			require.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestMessageHandler_BodyTooLarge(t *testing.T) {
	h := NewMessageHandler(&echoBot{}, &fakeSender{}, logger.NewNop())
	body := `{"type":"message","text":"` + strings.Repeat("a", maxActivityBytes) + `"}`
	require.Equal(t, http.StatusRequestEntityTooLarge, post(h.Post, body).Code)
}
