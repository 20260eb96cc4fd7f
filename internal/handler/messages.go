package handler

import (
	"net/http"

	"github.com/capitalize-ai/deal-conversations/internal/middleware"
	"github.com/capitalize-ai/deal-conversations/internal/model"
	"github.com/capitalize-ai/deal-conversations/internal/service"
	"github.com/capitalize-ai/deal-conversations/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	service *service.DealService
	logger  *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(svc *service.DealService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		service: svc,
		logger:  log,
	}
}

// List handles GET /api/v1/conversations/:id/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, conversationID, ok := conversationRequest(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r, 50, 500)

	resp, err := h.service.ListMessages(r.Context(), actor.UserID, conversationID, limit, offset)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Send handles POST /api/v1/conversations/:id/messages. The assistant's
// reply, if any, arrives later on the conversation stream.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	actor, conversationID, ok := conversationRequest(w, r)
	if !ok {
		return
	}

	var req model.SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.AppendMessage(r.Context(), actor.UserID, conversationID, &req)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}
