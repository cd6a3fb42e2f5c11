package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chopibot/internal/middleware"
	"github.com/capitalize-ai/chopibot/internal/model"
	"github.com/capitalize-ai/chopibot/internal/state"
	"github.com/capitalize-ai/chopibot/pkg/logger"
)

// StateHandler exposes stored conversation state for inspection.
type StateHandler struct {
	store  state.Store
	logger *logger.Logger
}

// NewStateHandler creates a new state handler.
func NewStateHandler(store state.Store, log *logger.Logger) *StateHandler {
	return &StateHandler{
		store:  store,
		logger: log,
	}
}

// Get handles GET /api/v1/conversations/{id}/state
func (h *StateHandler) Get(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st, _, err := h.store.Load(r.Context(), conversationID)
	if err != nil {
		h.logger.Error("failed to load state",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to load state")
		return
	}

	writeJSON(w, http.StatusOK, &model.ConversationStateResponse{
		ConversationID: conversationID,
		State:          st,
	})
}
