package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/deal-conversations/internal/clock"
	"github.com/capitalize-ai/deal-conversations/internal/deal"
	"github.com/capitalize-ai/deal-conversations/internal/model"
	"github.com/capitalize-ai/deal-conversations/pkg/logger"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type synthFunc func(ctx context.Context, conv model.Conversation, trigger model.Message) (Reply, error)

func (f synthFunc) Synthesize(ctx context.Context, conv model.Conversation, trigger model.Message) (Reply, error) {
	return f(ctx, conv, trigger)
}

func newConversation(t *testing.T, clk clock.Clock) *deal.Conversation {
	t.Helper()
	c, err := deal.New(deal.Params{
		TransactionID: "TX-1001",
		Title:         "Northwind fleet refresh",
		BorrowerName:  "Northwind Logistics",
		DealAmount:    750_000,
		DealType:      model.DealEquipmentFinancing,
		Participants: []model.Participant{{
			UserID:      "u1",
			Name:        "Dana Broker",
			Role:        model.RoleBroker,
			Permissions: model.DefaultPermissions(model.RoleBroker),
		}},
	}, clk, nil)
	require.NoError(t, err)
	return c
}

func send(t *testing.T, r *Responder, c *deal.Conversation, content string) bool {
	t.Helper()
	msg, err := c.AppendMessage("u1", content, model.MessageTypeText, nil)
	require.NoError(t, err)
	return r.HandleMessage(c, msg)
}

func newResponder(synth Synthesizer, delay time.Duration, clk clock.Clock) *Responder {
	return NewResponder(synth, ResponderConfig{Delay: delay, Clock: clk, Logger: logger.NewNop()})
}

func TestResponder_RepliesToLenderQuestion(t *testing.T) {
	clk := clock.NewFake(epoch)
	c := newConversation(t, clk)
	r := newResponder(NewEngine(lenderRecommender(), nil, logger.NewNop()), 0, clk)
	defer r.Close()

	require.True(t, send(t, r, c, "EVA, what are the best lender matches for this deal?"))
	r.Wait()

	msgs := c.Snapshot().Messages
	require.Len(t, msgs, 2)
	reply := msgs[1]
	assert.Equal(t, model.AssistantID, reply.SenderID)
	assert.Equal(t, model.RoleAssistant, reply.SenderRole)
	assert.Equal(t, model.MessageTypeEvaRecommendation, reply.MessageType)
	require.NotNil(t, reply.Metadata)
	assert.Equal(t, "Summit Equipment Finance", reply.Metadata.EvaRecommendation.Data["topRecommendation"])
	assert.Equal(t, 0, r.Pending(c.ID()))
}

func TestResponder_IgnoresNonTriggers(t *testing.T) {
	clk := clock.NewFake(epoch)
	c := newConversation(t, clk)
	r := newResponder(NewEngine(lenderRecommender(), nil, logger.NewNop()), 0, clk)
	defer r.Close()

	assert.False(t, send(t, r, c, "Invoice attached, thanks"))

	fromAssistant := model.Message{SenderID: model.AssistantID, SenderRole: model.RoleAssistant, Content: "lender match ready"}
	assert.False(t, r.HandleMessage(c, fromAssistant))

	system := model.Message{SenderID: "u1", Content: "help", IsSystemMessage: true}
	assert.False(t, r.HandleMessage(c, system))

	r.Wait()
	assert.Equal(t, 1, c.MessageCount())
}

func TestResponder_RepliesInTriggerOrderAfterLaterMessages(t *testing.T) {
	clk := clock.NewFake(epoch)
	c := newConversation(t, clk)
	r := newResponder(NewEngine(lenderRecommender(), nil, logger.NewNop()), 2*time.Second, clk)
	defer r.Close()

	require.True(t, send(t, r, c, "EVA can you help?"))
	require.True(t, send(t, r, c, "and analyze the borrower"))
	require.False(t, send(t, r, c, "ok thanks"))
	assert.Equal(t, 2, r.Pending(c.ID()))

	require.Eventually(t, func() bool { return clk.Waiters() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 3, c.MessageCount(), "no reply before the delay elapses")

	clk.Advance(2 * time.Second)
	require.Eventually(t, func() bool { return clk.Waiters() == 1 && c.MessageCount() == 4 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, r.Pending(c.ID()))

	clk.Advance(2 * time.Second)
	r.Wait()

	msgs := c.Snapshot().Messages
	require.Len(t, msgs, 5)
	assert.Equal(t, "EVA can you help?", msgs[0].Content)
	assert.Equal(t, "and analyze the borrower", msgs[1].Content)
	assert.Equal(t, "ok thanks", msgs[2].Content)
	assert.Equal(t, model.MessageTypeText, msgs[3].MessageType)
	assert.Equal(t, model.AssistantID, msgs[3].SenderID)
	assert.Equal(t, model.MessageTypeEvaRecommendation, msgs[4].MessageType)
	assert.Equal(t, model.RecommendationRiskAssessment, msgs[4].Metadata.EvaRecommendation.Type)
	assert.Equal(t, 0, r.Pending(c.ID()))
}

func TestResponder_ArchiveDiscardsPendingReplies(t *testing.T) {
	clk := clock.NewFake(epoch)
	c := newConversation(t, clk)
	r := newResponder(NewEngine(lenderRecommender(), nil, logger.NewNop()), time.Minute, clk)
	defer r.Close()

	require.True(t, send(t, r, c, "lender match please"))
	require.True(t, send(t, r, c, "help"))
	require.Eventually(t, func() bool { return clk.Waiters() == 1 }, time.Second, time.Millisecond)

	c.Archive()
	r.Wait()

	assert.Equal(t, 2, c.MessageCount())
	assert.Equal(t, 0, r.Pending(c.ID()))
}

func TestResponder_SynthesisFailureAppendsFallback(t *testing.T) {
	tests := []struct {
		name  string
		synth Synthesizer
	}{
		{"error", synthFunc(func(context.Context, model.Conversation, model.Message) (Reply, error) {
			return Reply{}, errors.New("recommendation engine down")
		})},
		{"panic", synthFunc(func(context.Context, model.Conversation, model.Message) (Reply, error) {
			panic("nil catalog")
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.NewFake(epoch)
			c := newConversation(t, clk)
			r := newResponder(tt.synth, 0, clk)
			defer r.Close()

			require.True(t, send(t, r, c, "EVA help"))
			r.Wait()

			msgs := c.Snapshot().Messages
			require.Len(t, msgs, 2)
			assert.Equal(t, FallbackContent, msgs[1].Content)
			assert.Equal(t, model.MessageTypeText, msgs[1].MessageType)
			assert.Nil(t, msgs[1].Metadata)
		})
	}
}

func TestResponder_SynthesisSeesMessagesAppendedDuringDelay(t *testing.T) {
	clk := clock.NewFake(epoch)
	c := newConversation(t, clk)
	seen := make(chan int, 1)
	r := newResponder(synthFunc(func(_ context.Context, conv model.Conversation, _ model.Message) (Reply, error) {
		seen <- len(conv.Messages)
		return Reply{Content: "noted"}, nil
	}), time.Second, clk)
	defer r.Close()

	require.True(t, send(t, r, c, "help"))
	require.False(t, send(t, r, c, "one more thing"))
	require.Eventually(t, func() bool { return clk.Waiters() == 1 }, time.Second, time.Millisecond)
	clk.Advance(time.Second)
	r.Wait()

	assert.Equal(t, 2, <-seen)
}

func TestResponder_ConfirmationQueuesBehindPendingReplies(t *testing.T) {
	clk := clock.NewFake(epoch)
	c := newConversation(t, clk)
	r := newResponder(NewEngine(lenderRecommender(), nil, logger.NewNop()), 0, clk)
	defer r.Close()

	require.True(t, send(t, r, c, "help"))
	require.True(t, r.EnqueueConfirmation(c, model.LenderRecommendation{
		LenderName:     "Summit Equipment Finance",
		EstimatedRate:  8,
		EstimatedTerms: "60 months",
		TimeToClose:    7,
	}))
	r.Wait()

	msgs := c.Snapshot().Messages
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[2].Content, "Summit Equipment Finance")
	assert.Contains(t, msgs[2].Content, "about 7 days")
	assert.Equal(t, model.MessageTypeText, msgs[2].MessageType)
}

func TestResponder_ClosedRejectsWork(t *testing.T) {
	clk := clock.NewFake(epoch)
	c := newConversation(t, clk)
	r := newResponder(NewEngine(lenderRecommender(), nil, logger.NewNop()), time.Hour, clk)

	require.True(t, send(t, r, c, "help"))
	r.Close()

	assert.False(t, send(t, r, c, "help again"))
	assert.Equal(t, 2, c.MessageCount())
}

func TestResponder_WaitWhileMessagesArrive(t *testing.T) {
	clk := clock.NewFake(epoch)
	c := newConversation(t, clk)
	r := newResponder(synthFunc(func(context.Context, model.Conversation, model.Message) (Reply, error) {
		return Reply{Content: "noted"}, nil
	}), 0, clk)
	defer r.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			msg, err := c.AppendMessage("u1", "help", model.MessageTypeText, nil)
			if !assert.NoError(t, err) {
				return
			}
			r.HandleMessage(c, msg)
		}
	}()
	for i := 0; i < 10; i++ {
		r.Wait()
	}
	wg.Wait()
	r.Wait()

	assert.Equal(t, 0, r.Pending(c.ID()))
	assert.Equal(t, 100, c.MessageCount())
}

func TestResponder_ConversationsAreIndependent(t *testing.T) {
	clk := clock.NewFake(epoch)
	slow := newConversation(t, clk)
	fast := newConversation(t, clk)

	release := make(chan struct{})
	r := newResponder(synthFunc(func(_ context.Context, conv model.Conversation, _ model.Message) (Reply, error) {
		if conv.ID == slow.ID() {
			<-release
		}
		return Reply{Content: "done"}, nil
	}), 0, clk)
	defer r.Close()

	require.True(t, send(t, r, slow, "help"))
	require.True(t, send(t, r, fast, "help"))

	require.Eventually(t, func() bool { return fast.MessageCount() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, slow.MessageCount())

	close(release)
	r.Wait()
	assert.Equal(t, 2, slow.MessageCount())
}
