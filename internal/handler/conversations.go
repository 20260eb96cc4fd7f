// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/deal-conversations/internal/directory"
	"github.com/capitalize-ai/deal-conversations/internal/middleware"
	"github.com/capitalize-ai/deal-conversations/internal/model"
	"github.com/capitalize-ai/deal-conversations/internal/service"
	"github.com/capitalize-ai/deal-conversations/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	service *service.DealService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.DealService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		logger:  log,
	}
}

// Create handles POST /api/v1/conversations. A customer_id resolves the
// borrower through the customer directory.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req model.CreateConversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := middleware.ValidateTitle(req.Title); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		conv model.Conversation
		err  error
	)
	if req.CustomerID != "" {
		conv, err = h.service.CreateForCustomer(r.Context(), actor, req.CustomerID, &req)
	} else {
		conv, err = h.service.CreateConversation(r.Context(), actor, &req)
	}
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

// List handles GET /api/v1/conversations?filter=&sort=&limit=&offset=
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	mode, err := directory.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	key, err := directory.ParseSort(r.URL.Query().Get("sort"))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	limit, offset := pagination(r, 20, 100)

	resp, err := h.service.ListConversations(r.Context(), actor.UserID, mode, key, limit, offset)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/conversations/:id
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, conversationID, ok := conversationRequest(w, r)
	if !ok {
		return
	}

	conv, err := h.service.Get(r.Context(), actor.UserID, conversationID)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Archive handles DELETE /api/v1/conversations/:id
func (h *ConversationHandler) Archive(w http.ResponseWriter, r *http.Request) {
	actor, conversationID, ok := conversationRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.Archive(r.Context(), actor.UserID, conversationID); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AdvanceStatus handles POST /api/v1/conversations/:id/status
func (h *ConversationHandler) AdvanceStatus(w http.ResponseWriter, r *http.Request) {
	actor, conversationID, ok := conversationRequest(w, r)
	if !ok {
		return
	}

	var req model.AdvanceStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.service.AdvanceStatus(r.Context(), actor.UserID, conversationID, req.Status)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// AddParticipant handles POST /api/v1/conversations/:id/participants
func (h *ConversationHandler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	actor, conversationID, ok := conversationRequest(w, r)
	if !ok {
		return
	}

	var req model.AddParticipantRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.AddParticipant(r.Context(), actor.UserID, conversationID, &req)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// Permissions handles GET /api/v1/conversations/:id/participants/:userID/permissions
func (h *ConversationHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	actor, conversationID, ok := conversationRequest(w, r)
	if !ok {
		return
	}

	perms, err := h.service.ParticipantPermissions(r.Context(), actor.UserID, conversationID, chi.URLParam(r, "userID"))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, perms)
}

// conversationRequest resolves the actor and a well-formed conversation id.
func conversationRequest(w http.ResponseWriter, r *http.Request) (model.Actor, string, bool) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return model.Actor{}, "", false
	}
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return model.Actor{}, "", false
	}
	return actor, conversationID, true
}
