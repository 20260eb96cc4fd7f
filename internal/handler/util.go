package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/capitalize-ai/deal-conversations/internal/apperr"
	"github.com/capitalize-ai/deal-conversations/internal/middleware"
	"github.com/capitalize-ai/deal-conversations/internal/model"
	"github.com/capitalize-ai/deal-conversations/pkg/logger"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeAppError maps a service error onto its HTTP status. Unclassified
// errors are logged and reported as internal errors.
func writeAppError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	status := statusFor(appErr.Code)
	if status >= http.StatusInternalServerError {
		log.Warn("upstream failure",
			zap.String("path", r.URL.Path),
			zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
	}
	writeJSON(w, status, errorResponse{Error: appErr.Message, Code: string(appErr.Code)})
}

func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeForbidden:
		return http.StatusForbidden
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeConflict:
		return http.StatusConflict
	case apperr.CodeInvalidTransition:
		return http.StatusUnprocessableEntity
	case apperr.CodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// actorFrom returns the authenticated actor or writes 401.
func actorFrom(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok || actor.UserID == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return model.Actor{}, false
	}
	return actor, true
}

// pagination parses limit and offset; limit is clamped to max.
func pagination(r *http.Request, defaultLimit, max int) (limit, offset int) {
	limit = defaultLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= max {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
