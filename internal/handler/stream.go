package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/deal-conversations/internal/model"
	"github.com/capitalize-ai/deal-conversations/internal/service"
	"github.com/capitalize-ai/deal-conversations/pkg/logger"
	"github.com/capitalize-ai/deal-conversations/pkg/metrics"
)

// DefaultHeartbeat is how often an idle stream sends a heartbeat event.
const DefaultHeartbeat = 30 * time.Second

// StreamHandler handles SSE streaming endpoints.
type StreamHandler struct {
	service   *service.DealService
	logger    *logger.Logger
	heartbeat time.Duration
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(svc *service.DealService, log *logger.Logger, heartbeat time.Duration) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &StreamHandler{
		service:   svc,
		logger:    log,
		heartbeat: heartbeat,
	}
}

// Stream handles GET /api/v1/conversations/:id/stream. Every conversation
// event is sent as an SSE event named after its type. Clients load history
// through the messages endpoint.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	actor, conversationID, ok := conversationRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := r.Context()
	events, err := h.service.Subscribe(ctx, actor.UserID, conversationID)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	log := h.logger.WithConversation(conversationID)
	sendSSEEvent(w, flusher, "connected", map[string]interface{}{
		"conversation_id":   conversationID,
		"assistant_pending": h.service.AssistantPending(conversationID),
	})

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("SSE client disconnected", zap.String("user_id", actor.UserID))
			return

		case event, ok := <-events:
			if !ok {
				sendSSEEvent(w, flusher, "error", &model.ErrorEvent{
					Code:    "stream_closed",
					Message: "server is shutting down",
				})
				return
			}
			if err := sendSSEEvent(w, flusher, string(event.Type), event); err != nil {
				log.Warn("failed to write SSE event", zap.Error(err))
				return
			}
			if event.Type == model.EventTypeArchived {
				return
			}

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now(),
			})
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
