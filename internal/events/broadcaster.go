// Package events fans conversation events out to in-process subscribers.
package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/deal-conversations/internal/model"
	"github.com/capitalize-ai/deal-conversations/pkg/logger"
	"github.com/capitalize-ai/deal-conversations/pkg/metrics"
)

// AllConversations subscribes to events from every conversation.
const AllConversations = "*"

const subscriberBufferSize = 64

// Broadcaster is an in-memory pub/sub keyed by conversation id. Publish never
// blocks, so it is safe to call while a conversation lock is held; events for
// a subscriber whose buffer is full are dropped.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan model.ConversationEvent
	closed      bool
	logger      *logger.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil for the global logger.
func NewBroadcaster(log *logger.Logger) *Broadcaster {
	if log == nil {
		log = logger.Global()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan model.ConversationEvent),
		logger:      log.With(zap.String("component", "broadcaster")),
	}
}

// Subscribe registers for events of one conversation, or of all of them with
// AllConversations. The channel is closed when ctx is done, on Unsubscribe or
// on Close.
func (b *Broadcaster) Subscribe(ctx context.Context, conversationID string) (<-chan model.ConversationEvent, string) {
	subID := uuid.NewString()
	ch := make(chan model.ConversationEvent, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[conversationID]; !ok {
		b.subscribers[conversationID] = make(map[string]chan model.ConversationEvent)
	}
	b.subscribers[conversationID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		zap.String("conversation_id", conversationID),
		zap.String("sub_id", subID),
	)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(conversationID, subID)
	}()

	return ch, subID
}

// Publish delivers event to subscribers of its conversation and to
// AllConversations subscribers.
func (b *Broadcaster) Publish(event model.ConversationEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	b.deliver(b.subscribers[event.ConversationID], event)
	if event.ConversationID != AllConversations {
		b.deliver(b.subscribers[AllConversations], event)
	}
}

func (b *Broadcaster) deliver(subs map[string]chan model.ConversationEvent, event model.ConversationEvent) {
	for subID, ch := range subs {
		select {
		case ch <- event:
		default:
			metrics.EventsDroppedTotal.Inc()
			b.logger.Debug("dropped event for slow subscriber",
				zap.String("conversation_id", event.ConversationID),
				zap.String("sub_id", subID),
				zap.String("event_id", event.ID),
			)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(conversationID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[conversationID]
	if !ok {
		return
	}
	ch, ok := subs[subID]
	if !ok {
		return
	}
	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, conversationID)
	}
}

// Subscribers returns the number of live subscriptions for a key.
func (b *Broadcaster) Subscribers(conversationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[conversationID])
}

// Close closes every subscriber channel. Later publishes are no-ops.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for key, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, key)
	}
}
