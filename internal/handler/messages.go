// Package handler provides HTTP handlers for the bot server.
package handler

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chopibot/internal/bot"
	"github.com/capitalize-ai/chopibot/internal/middleware"
	"github.com/capitalize-ai/chopibot/internal/model"
	"github.com/capitalize-ai/chopibot/pkg/logger"
	"github.com/capitalize-ai/chopibot/pkg/metrics"
)

const maxActivityBytes = 1 << 20

// TurnHandler runs one turn of the bot.
type TurnHandler interface {
	OnTurn(ctx context.Context, turn *bot.Turn) error
}

// ReplySender delivers replies to the channel connector.
type ReplySender interface {
	SendActivities(ctx context.Context, activities []model.Activity) error
}

// MessageHandler handles the channel webhook.
type MessageHandler struct {
	bot       TurnHandler
	connector ReplySender
	logger    *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(b TurnHandler, connector ReplySender, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		bot:       b,
		connector: connector,
		logger:    log,
	}
}

// Post handles POST /api/messages
func (h *MessageHandler) Post(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var activity model.Activity
	if err := decodeJSON(w, r, &activity, maxActivityBytes); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateActivity(&activity); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log := h.logger.WithContext(
		middleware.GetCorrelationID(ctx),
		activity.ChannelID,
		activity.Conversation.ID,
	)

	ctx = logger.NewContext(ctx, log)

	turn := bot.NewTurn(&activity)
	if !activity.ExpectsReplies() {
		turn.DeliverWith(h.connector.SendActivities)
	}

	if err := h.bot.OnTurn(ctx, turn); err != nil {
		if errors.Is(err, bot.ErrDelivery) {
			log.Error("failed to deliver replies", zap.Error(err), zap.Int("replies", len(turn.Replies())))
			writeError(w, http.StatusBadGateway, "failed to deliver replies")
			return
		}
		log.Error("turn failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to process activity")
		return
	}

	if !activity.ExpectsReplies() {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	replies := turn.Replies()
	if replies == nil {
		replies = []model.Activity{}
	}
	for range replies {
		metrics.RecordReply("inline", nil)
	}
	writeJSON(w, http.StatusOK, &model.TurnResponse{Activities: replies})
}
