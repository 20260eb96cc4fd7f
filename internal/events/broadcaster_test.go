package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/deal-conversations/internal/model"
	"github.com/capitalize-ai/deal-conversations/pkg/logger"
)

func makeEvent(id, conversationID string) model.ConversationEvent {
	return model.ConversationEvent{
		ID:             id,
		ConversationID: conversationID,
		Type:           model.EventTypeMessage,
		Message:        &model.Message{ID: "msg-" + id, ConversationID: conversationID, Content: "hello"},
		CreatedAt:      time.Now(),
	}
}

func receive(t *testing.T, ch <-chan model.ConversationEvent) model.ConversationEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return model.ConversationEvent{}
}

func TestBroadcaster_SubscribersReceiveEvent(t *testing.T) {
	b := NewBroadcaster(logger.NewNop())
	defer b.Close()

	ch1, _ := b.Subscribe(context.Background(), "conv-1")
	ch2, _ := b.Subscribe(context.Background(), "conv-1")

	b.Publish(makeEvent("evt-1", "conv-1"))

	assert.Equal(t, "evt-1", receive(t, ch1).ID)
	assert.Equal(t, "evt-1", receive(t, ch2).ID)
}

func TestBroadcaster_ConversationsAreIsolated(t *testing.T) {
	b := NewBroadcaster(logger.NewNop())
	defer b.Close()

	ch1, _ := b.Subscribe(context.Background(), "conv-1")
	ch2, _ := b.Subscribe(context.Background(), "conv-2")

	b.Publish(makeEvent("evt-1", "conv-1"))

	assert.Equal(t, "evt-1", receive(t, ch1).ID)
	select {
	case ev := <-ch2:
		t.Fatalf("conv-2 subscriber got %s", ev.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_AllConversationsSeesEverything(t *testing.T) {
	b := NewBroadcaster(logger.NewNop())
	defer b.Close()

	all, _ := b.Subscribe(context.Background(), AllConversations)

	b.Publish(makeEvent("evt-1", "conv-1"))
	b.Publish(makeEvent("evt-2", "conv-2"))

	assert.Equal(t, "evt-1", receive(t, all).ID)
	assert.Equal(t, "evt-2", receive(t, all).ID)
}

func TestBroadcaster_PreservesPublishOrder(t *testing.T) {
	b := NewBroadcaster(logger.NewNop())
	defer b.Close()

	ch, _ := b.Subscribe(context.Background(), "conv-1")
	for _, id := range []string{"a", "b", "c"} {
		b.Publish(makeEvent(id, "conv-1"))
	}

	assert.Equal(t, "a", receive(t, ch).ID)
	assert.Equal(t, "b", receive(t, ch).ID)
	assert.Equal(t, "c", receive(t, ch).ID)
}

func TestBroadcaster_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroadcaster(logger.NewNop())
	defer b.Close()

	ch, _ := b.Subscribe(context.Background(), "conv-1")

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBufferSize+10; i++ {
			b.Publish(makeEvent("evt", "conv-1"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, ch, subscriberBufferSize)
}

func TestBroadcaster_ContextCancelUnsubscribes(t *testing.T) {
	b := NewBroadcaster(logger.NewNop())
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, "conv-1")
	require.Equal(t, 1, b.Subscribers("conv-1"))

	cancel()

	require.Eventually(t, func() bool { return b.Subscribers("conv-1") == 0 }, time.Second, time.Millisecond)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestBroadcaster_UnsubscribeTwiceIsSafe(t *testing.T) {
	b := NewBroadcaster(logger.NewNop())
	defer b.Close()

	_, subID := b.Subscribe(context.Background(), "conv-1")
	b.Unsubscribe("conv-1", subID)
	b.Unsubscribe("conv-1", subID)
	b.Unsubscribe("missing", subID)

	assert.Equal(t, 0, b.Subscribers("conv-1"))
}

func TestBroadcaster_CloseClosesChannels(t *testing.T) {
	b := NewBroadcaster(logger.NewNop())

	ch, _ := b.Subscribe(context.Background(), "conv-1")
	b.Close()
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := b.Subscribe(context.Background(), "conv-1")
	_, ok = <-late
	assert.False(t, ok)

	b.Publish(makeEvent("evt", "conv-1"))
}

func TestBroadcaster_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	b := NewBroadcaster(logger.NewNop())
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		ch, _ := b.Subscribe(ctx, "conv-1")
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range ch {
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Publish(makeEvent("evt", "conv-1"))
			}
			cancel()
		}()
	}
	wg.Wait()
}
