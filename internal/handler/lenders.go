package handler

import (
	"net/http"

	"github.com/capitalize-ai/deal-conversations/internal/model"
	"github.com/capitalize-ai/deal-conversations/internal/service"
	"github.com/capitalize-ai/deal-conversations/pkg/logger"
)

// LenderHandler handles lender matching endpoints.
type LenderHandler struct {
	service *service.DealService
	logger  *logger.Logger
}

// NewLenderHandler creates a new lender handler.
func NewLenderHandler(svc *service.DealService, log *logger.Logger) *LenderHandler {
	return &LenderHandler{
		service: svc,
		logger:  log,
	}
}

// Matches handles GET /api/v1/conversations/:id/lender-matches
func (h *LenderHandler) Matches(w http.ResponseWriter, r *http.Request) {
	actor, conversationID, ok := conversationRequest(w, r)
	if !ok {
		return
	}

	resp, err := h.service.RequestLenderMatches(r.Context(), actor.UserID, conversationID)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Select handles POST /api/v1/conversations/:id/lender-matches/select
func (h *LenderHandler) Select(w http.ResponseWriter, r *http.Request) {
	actor, conversationID, ok := conversationRequest(w, r)
	if !ok {
		return
	}

	var req model.SelectLenderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.SelectLender(r.Context(), actor.UserID, conversationID, req.RecommendationID)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}
