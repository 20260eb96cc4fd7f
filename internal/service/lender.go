package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/deal-conversations/internal/apperr"
	"github.com/capitalize-ai/deal-conversations/internal/deal"
	"github.com/capitalize-ai/deal-conversations/internal/model"
	"github.com/capitalize-ai/deal-conversations/pkg/metrics"
)

// RequestLenderMatches ranks lenders for the conversation's deal. Results
// are not stored; the same deal always yields the same ids.
func (s *DealService) RequestLenderMatches(ctx context.Context, actorID, conversationID string) (resp *model.LenderMatchResponse, err error) {
	_, span := s.tracer.Start(ctx, "DealService.RequestLenderMatches",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)))
	defer func() { endSpan(span, err) }()

	conv, err := s.lookup(conversationID)
	if err != nil {
		return nil, err
	}
	if err := authorize(conv, actorID, canFinancials, "view lender matches"); err != nil {
		return nil, err
	}

	snap := conv.Snapshot()
	start := time.Now()
	recs, err := s.lenders.RecommendFor(snap)
	if err != nil {
		metrics.RecordLenderMatch(string(snap.DealType), "error", time.Since(start).Seconds(), 0)
		return nil, err
	}
	metrics.RecordLenderMatch(string(snap.DealType), "ok", time.Since(start).Seconds(), len(recs))
	span.SetAttributes(attribute.Int("lender.matches", len(recs)))

	return &model.LenderMatchResponse{ConversationID: conversationID, Recommendations: recs}, nil
}

// SelectLender records the actor's choice of a recommended lender and
// queues the assistant's confirmation. The deal status is not changed.
func (s *DealService) SelectLender(ctx context.Context, actorID, conversationID, recommendationID string) (resp *model.SendMessageResponse, err error) {
	_, span := s.tracer.Start(ctx, "DealService.SelectLender",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("recommendation.id", recommendationID),
		))
	defer func() { endSpan(span, err) }()

	if recommendationID == "" {
		return nil, apperr.Validation("recommendation id is required")
	}
	conv, err := s.lookup(conversationID)
	if err != nil {
		return nil, err
	}
	if err := authorize(conv, actorID, canFinancials, "select a lender"); err != nil {
		return nil, err
	}

	recs, err := s.lenders.RecommendFor(conv.Snapshot())
	if err != nil {
		return nil, err
	}
	var chosen *model.LenderRecommendation
	for i := range recs {
		if recs[i].ID == recommendationID {
			chosen = &recs[i]
			break
		}
	}
	if chosen == nil {
		return nil, apperr.NotFound("recommendation %q is not a current match for this deal", recommendationID)
	}

	var pending bool
	msg, err := conv.Append(deal.Draft{
		SenderID: actorID,
		Content:  fmt.Sprintf("I've selected %s for this deal. Please proceed with the application.", chosen.LenderName),
		Type:     model.MessageTypeText,
		Then: func(model.Message) {
			pending = s.responder.EnqueueConfirmation(conv, *chosen)
		},
	})
	if err != nil {
		return nil, err
	}

	if pending {
		s.notifyPending(conv)
	}
	s.logger.WithConversation(conversationID).Info("lender selected",
		zap.String("user_id", actorID),
		zap.String("lender", chosen.LenderName),
		zap.Int("approval_probability", chosen.ApprovalProbability),
	)
	return &model.SendMessageResponse{Message: &msg, AssistantPending: pending}, nil
}
