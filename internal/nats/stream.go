package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/deal-conversations/internal/model"
	"github.com/capitalize-ai/deal-conversations/pkg/logger"
	"github.com/capitalize-ai/deal-conversations/pkg/metrics"
)

const (
	// StreamName is the name of the deal conversations stream.
	StreamName = "DEAL_CONVERSATIONS"

	// SubjectPrefix is the prefix for all deal subjects.
	SubjectPrefix = "deal"

	publishTimeout = 5 * time.Second
)

// EnsureStream creates the deal conversations stream if it does not exist.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      365 * 24 * time.Hour,
		MaxBytes:    20 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Duplicates:  2 * time.Minute,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Deal conversation messages and lifecycle events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// MessageSubject returns the subject for an appended message.
func MessageSubject(conversationID string, messageType model.MessageType) string {
	return fmt.Sprintf("%s.%s.msg.%s", SubjectPrefix, token(conversationID), messageType)
}

// EventSubject returns the subject for a lifecycle event.
func EventSubject(conversationID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.event.%s", SubjectPrefix, token(conversationID), eventType)
}

// ConversationFilter matches every subject of one conversation.
func ConversationFilter(conversationID string) string {
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, token(conversationID))
}

// Subject returns where event is published.
func Subject(event model.ConversationEvent) string {
	if event.Type == model.EventTypeMessage && event.Message != nil {
		return MessageSubject(event.ConversationID, event.Message.MessageType)
	}
	return EventSubject(event.ConversationID, event.Type)
}

// token keeps ids from introducing extra subject levels or wildcards.
func token(s string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}

// Publisher is the subset of jetstream.JetStream used by Mirror.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Mirror copies conversation events into JetStream for downstream consumers.
type Mirror struct {
	pub    Publisher
	logger *logger.Logger
}

// NewMirror creates a mirror publishing through pub.
func NewMirror(pub Publisher, log *logger.Logger) *Mirror {
	return &Mirror{pub: pub, logger: log}
}

// Publish sends one event. The event id doubles as the JetStream message id
// so redeliveries inside the duplicate window are ignored.
func (m *Mirror) Publish(ctx context.Context, event model.ConversationEvent) (uint64, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	var opts []jetstream.PublishOpt
	if event.ID != "" {
		opts = append(opts, jetstream.WithMsgID(event.ID))
	}
	ack, err := m.pub.Publish(ctx, Subject(event), data, opts...)
	if err != nil {
		metrics.NATSPublishTotal.WithLabelValues(string(event.Type), "error").Inc()
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}
	metrics.NATSPublishTotal.WithLabelValues(string(event.Type), "ok").Inc()
	metrics.NATSStreamMessages.WithLabelValues(ack.Stream).Set(float64(ack.Sequence))
	return ack.Sequence, nil
}

// Run publishes events until the channel closes or ctx is done. Failures
// are logged and the event is skipped.
func (m *Mirror) Run(ctx context.Context, events <-chan model.ConversationEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			if _, err := m.Publish(pubCtx, event); err != nil {
				m.logger.Warn("event not mirrored to NATS",
					zap.String("conversation_id", event.ConversationID),
					zap.String("event_type", string(event.Type)),
					zap.Error(err),
				)
			}
			cancel()
		}
	}
}
