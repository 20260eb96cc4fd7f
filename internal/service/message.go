package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/deal-conversations/internal/apperr"
	"github.com/capitalize-ai/deal-conversations/internal/attachment"
	"github.com/capitalize-ai/deal-conversations/internal/deal"
	"github.com/capitalize-ai/deal-conversations/internal/model"
)

// AppendMessage appends a participant's message and queues an assistant
// reply when the message asks for one. Attachments require upload rights.
func (s *DealService) AppendMessage(ctx context.Context, actorID, conversationID string, req *model.SendMessageRequest) (resp *model.SendMessageResponse, err error) {
	_, span := s.tracer.Start(ctx, "DealService.AppendMessage",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)))
	defer func() { endSpan(span, err) }()

	switch req.MessageType {
	case "", model.MessageTypeText, model.MessageTypeDocumentShare:
	default:
		return nil, apperr.Validation("message type %q is reserved for system messages", req.MessageType)
	}

	conv, err := s.lookup(conversationID)
	if err != nil {
		return nil, err
	}
	var need permission
	if len(req.Attachments) > 0 {
		need = canUpload
	}
	if err := authorize(conv, actorID, need, "upload documents"); err != nil {
		return nil, err
	}

	var pending bool
	msg, err := conv.Append(deal.Draft{
		SenderID:    actorID,
		Content:     req.Content,
		Type:        req.MessageType,
		Attachments: req.Attachments,
		Then:        s.queueReply(conv, &pending),
	})
	if err != nil {
		return nil, err
	}
	return s.userMessageResponse(conv, msg, pending), nil
}

// UploadAttachment stores a document and shares it in the conversation as
// a document_share message with an optional caption.
func (s *DealService) UploadAttachment(ctx context.Context, actorID, conversationID, fileName, caption string, data []byte) (resp *model.SendMessageResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "DealService.UploadAttachment",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.Int("file.size", len(data)),
		))
	defer func() { endSpan(span, err) }()

	conv, err := s.lookup(conversationID)
	if err != nil {
		return nil, err
	}
	if err := authorize(conv, actorID, canUpload, "upload documents"); err != nil {
		return nil, err
	}

	att, err := s.attachments.Put(ctx, conversationID, fileName, data)
	if err != nil {
		return nil, apperr.Upstream("attachment store", err)
	}

	var pending bool
	msg, err := conv.Append(deal.Draft{
		SenderID:    actorID,
		Content:     caption,
		Type:        model.MessageTypeDocumentShare,
		Attachments: []model.Attachment{att},
		Then:        s.queueReply(conv, &pending),
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithConversation(conversationID).Info("attachment shared",
		zap.String("user_id", actorID),
		zap.String("attachment_id", att.ID),
		zap.String("file_type", att.FileType),
		zap.Int64("file_size", att.FileSize),
	)
	return s.userMessageResponse(conv, msg, pending), nil
}

// Attachment returns a stored document to a participant of the
// conversation it was shared in.
func (s *DealService) Attachment(ctx context.Context, actorID, attachmentID string) (attachment.Object, error) {
	obj, err := s.attachments.Get(ctx, attachmentID)
	if errors.Is(err, apperr.ErrNotFound) {
		return attachment.Object{}, err
	}
	if err != nil {
		return attachment.Object{}, apperr.Upstream("attachment store", err)
	}
	conv, err := s.lookup(obj.ConversationID)
	if err != nil {
		return attachment.Object{}, err
	}
	if err := authorize(conv, actorID, nil, ""); err != nil {
		return attachment.Object{}, err
	}
	return obj, nil
}

// ListMessages returns a page of messages in append order.
func (s *DealService) ListMessages(ctx context.Context, actorID, conversationID string, limit, offset int) (*model.ListMessagesResponse, error) {
	conv, err := s.lookup(conversationID)
	if err != nil {
		return nil, err
	}
	if err := authorize(conv, actorID, nil, ""); err != nil {
		return nil, err
	}

	msgs := conv.Snapshot().Messages
	total := len(msgs)
	start, end := pageBounds(total, limit, offset)

	return &model.ListMessagesResponse{
		Messages: msgs[start:end],
		Total:    total,
		HasMore:  end < total,
	}, nil
}

// AssistantPending returns the number of assistant replies not yet appended.
func (s *DealService) AssistantPending(conversationID string) int {
	return s.responder.Pending(conversationID)
}

// WaitForAssistant blocks until queued assistant replies are appended or
// dropped.
func (s *DealService) WaitForAssistant() {
	s.responder.Wait()
}

// queueReply hands a freshly appended message to the responder while the
// conversation lock is still held.
func (s *DealService) queueReply(conv *deal.Conversation, pending *bool) func(model.Message) {
	return func(msg model.Message) {
		*pending = s.responder.HandleMessage(conv, msg)
	}
}

func (s *DealService) userMessageResponse(conv *deal.Conversation, msg model.Message, pending bool) *model.SendMessageResponse {
	if pending {
		s.notifyPending(conv)
	}
	return &model.SendMessageResponse{Message: &msg, AssistantPending: pending}
}

func (s *DealService) notifyPending(conv *deal.Conversation) {
	s.broadcaster.Publish(model.ConversationEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID(),
		Type:           model.EventTypeAssistantPending,
		CreatedAt:      s.clock.Now(),
	})
}
