// Package service coordinates deal conversations, the assistant and the
// lender engine on behalf of authenticated users.
package service

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/deal-conversations/internal/apperr"
	"github.com/capitalize-ai/deal-conversations/internal/assistant"
	"github.com/capitalize-ai/deal-conversations/internal/attachment"
	"github.com/capitalize-ai/deal-conversations/internal/clock"
	"github.com/capitalize-ai/deal-conversations/internal/customer"
	"github.com/capitalize-ai/deal-conversations/internal/deal"
	"github.com/capitalize-ai/deal-conversations/internal/directory"
	"github.com/capitalize-ai/deal-conversations/internal/events"
	"github.com/capitalize-ai/deal-conversations/internal/lender"
	"github.com/capitalize-ai/deal-conversations/internal/model"
	"github.com/capitalize-ai/deal-conversations/pkg/logger"
	"github.com/capitalize-ai/deal-conversations/pkg/metrics"
)

const tracerName = "github.com/capitalize-ai/deal-conversations/internal/service"

// Deps are the collaborators of a DealService. Nil fields get in-memory
// defaults, except Customers which disables CreateForCustomer.
type Deps struct {
	Clock       clock.Clock
	Lenders     *lender.Engine
	Responder   *assistant.Responder
	Broadcaster *events.Broadcaster
	Customers   customer.Directory
	Attachments attachment.Store
	Logger      *logger.Logger
}

// DealService handles deal conversation operations.
type DealService struct {
	clock       clock.Clock
	lenders     *lender.Engine
	responder   *assistant.Responder
	broadcaster *events.Broadcaster
	customers   customer.Directory
	attachments attachment.Store
	logger      *logger.Logger
	tracer      trace.Tracer

	// In-memory registry; persistence belongs to the hosting backend.
	conversations map[string]*deal.Conversation
	mu            sync.RWMutex
}

// NewDealService creates a new deal service.
func NewDealService(deps Deps) *DealService {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Global()
	}
	if deps.Lenders == nil {
		deps.Lenders = lender.NewEngine(nil)
	}
	if deps.Broadcaster == nil {
		deps.Broadcaster = events.NewBroadcaster(deps.Logger)
	}
	if deps.Responder == nil {
		engine := assistant.NewEngine(assistant.RecommenderFunc(deps.Lenders.RecommendFor), nil, deps.Logger)
		deps.Responder = assistant.NewResponder(engine, assistant.ResponderConfig{Clock: deps.Clock, Logger: deps.Logger})
	}
	if deps.Attachments == nil {
		deps.Attachments = attachment.NewMemoryStore("", 0, deps.Clock)
	}

	return &DealService{
		clock:         deps.Clock,
		lenders:       deps.Lenders,
		responder:     deps.Responder,
		broadcaster:   deps.Broadcaster,
		customers:     deps.Customers,
		attachments:   deps.Attachments,
		logger:        deps.Logger,
		tracer:        otel.Tracer(tracerName),
		conversations: make(map[string]*deal.Conversation),
	}
}

// CreateConversation opens a conversation owned by actor. The actor joins
// as a participant when the request does not list them.
func (s *DealService) CreateConversation(ctx context.Context, actor model.Actor, req *model.CreateConversationRequest) (conv model.Conversation, err error) {
	_, span := s.tracer.Start(ctx, "DealService.CreateConversation",
		trace.WithAttributes(attribute.String("user.id", actor.UserID)))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(actor.UserID) == "" || actor.UserID == model.AssistantID {
		return model.Conversation{}, apperr.Forbidden("an authenticated user is required")
	}

	participants := make([]model.Participant, 0, len(req.Participants)+1)
	hasActor := false
	for _, p := range req.Participants {
		participants = append(participants, participantFrom(p))
		if p.UserID == actor.UserID {
			hasActor = true
		}
	}
	if !hasActor {
		role := actor.Role
		if role == "" {
			role = model.RoleFinanceManager
		}
		participants = append([]model.Participant{participantFrom(model.AddParticipantRequest{
			UserID:  actor.UserID,
			Name:    actor.Name,
			Role:    role,
			Company: actor.Company,
		})}, participants...)
	}

	agg, err := deal.New(deal.Params{
		TransactionID:   req.TransactionID,
		Title:           req.Title,
		BorrowerName:    req.BorrowerName,
		DealAmount:      req.DealAmount,
		DealType:        req.DealType,
		Urgency:         req.Urgency,
		TargetCloseDate: req.TargetCloseDate,
		OwnerID:         actor.UserID,
		BorrowerRisk:    req.BorrowerRisk,
		Participants:    participants,
	}, s.clock, s.observe)
	if err != nil {
		return model.Conversation{}, err
	}

	s.mu.Lock()
	for _, existing := range s.conversations {
		if existing.TransactionID() == agg.TransactionID() && !existing.Archived() {
			s.mu.Unlock()
			return model.Conversation{}, apperr.Conflict("transaction %q already has a conversation", req.TransactionID)
		}
	}
	s.conversations[agg.ID()] = agg
	s.mu.Unlock()

	metrics.ConversationsTotal.WithLabelValues(string(req.DealType)).Inc()
	metrics.ConversationsOpen.Inc()
	s.logger.WithConversation(agg.ID()).Info("conversation created",
		zap.String("transaction_id", req.TransactionID),
		zap.String("deal_type", string(req.DealType)),
		zap.Float64("deal_amount", req.DealAmount),
		zap.String("owner_id", actor.UserID),
	)

	return agg.Snapshot(), nil
}

// CreateForCustomer opens a conversation for a borrower from the customer
// directory. Borrower name and risk profile come from the directory unless
// the request sets them.
func (s *DealService) CreateForCustomer(ctx context.Context, actor model.Actor, customerID string, req *model.CreateConversationRequest) (model.Conversation, error) {
	if s.customers == nil {
		return model.Conversation{}, apperr.Upstream("customer directory", errNoDirectory)
	}
	if strings.TrimSpace(customerID) == "" {
		return model.Conversation{}, apperr.Validation("customer id is required")
	}

	c, err := s.customers.Lookup(ctx, customerID)
	if err != nil {
		return model.Conversation{}, apperr.Upstream("customer directory", err)
	}

	filled := *req
	if filled.BorrowerName == "" {
		filled.BorrowerName = c.Name
	}
	if filled.BorrowerRisk == (model.BorrowerRisk{}) {
		filled.BorrowerRisk = c.Risk
	}
	if filled.Title == "" {
		filled.Title = c.Name + " " + filled.DealType.Label()
	}
	return s.CreateConversation(ctx, actor, &filled)
}

// Get returns a snapshot of a conversation the actor participates in.
func (s *DealService) Get(ctx context.Context, actorID, conversationID string) (model.Conversation, error) {
	conv, err := s.lookup(conversationID)
	if err != nil {
		return model.Conversation{}, err
	}
	if err := authorize(conv, actorID, nil, ""); err != nil {
		return model.Conversation{}, err
	}
	return conv.Snapshot(), nil
}

// ListConversations returns a filtered, sorted page of open conversations.
// The my_deals filter selects conversations the actor owns or joined.
func (s *DealService) ListConversations(ctx context.Context, actorID string, mode directory.FilterMode, key directory.SortKey, limit, offset int) (*model.ListConversationsResponse, error) {
	_, span := s.tracer.Start(ctx, "DealService.ListConversations",
		trace.WithAttributes(attribute.String("filter", string(mode)), attribute.String("sort", string(key))))
	defer span.End()

	s.mu.RLock()
	snapshots := make([]model.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		snap := conv.Snapshot()
		if !snap.Archived {
			snapshots = append(snapshots, snap)
		}
	}
	s.mu.RUnlock()

	// Registry iteration order is random; start from a stable order.
	snapshots = directory.Sort(snapshots, directory.SortRecent)
	listed := directory.List(snapshots, mode, key, directory.OwnedBy(actorID))

	total := len(listed)
	start, end := pageBounds(total, limit, offset)

	summaries := make([]model.ConversationSummary, 0, end-start)
	for _, c := range listed[start:end] {
		summaries = append(summaries, c.Summary())
	}

	return &model.ListConversationsResponse{
		Conversations: summaries,
		Total:         total,
		HasMore:       end < total,
	}, nil
}

// Archive ends a conversation. Pending assistant replies are dropped. Only
// the owner or a participant who can approve deals may archive.
func (s *DealService) Archive(ctx context.Context, actorID, conversationID string) (err error) {
	_, span := s.tracer.Start(ctx, "DealService.Archive",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)))
	defer func() { endSpan(span, err) }()

	conv, err := s.lookup(conversationID)
	if err != nil {
		return err
	}
	if conv.OwnerID() != actorID {
		if err := authorize(conv, actorID, canApprove, "archive this conversation"); err != nil {
			return err
		}
	}
	if conv.Archived() {
		return nil
	}

	conv.Archive()
	metrics.ConversationsOpen.Dec()
	s.logger.WithConversation(conversationID).Info("conversation archived", zap.String("user_id", actorID))
	return nil
}

// AddParticipant adds a member on behalf of an actor who can invite users.
// Permissions default to the role's record when the request omits them.
func (s *DealService) AddParticipant(ctx context.Context, actorID, conversationID string, req *model.AddParticipantRequest) (p model.Participant, err error) {
	_, span := s.tracer.Start(ctx, "DealService.AddParticipant",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)))
	defer func() { endSpan(span, err) }()

	conv, err := s.lookup(conversationID)
	if err != nil {
		return model.Participant{}, err
	}
	if err := authorize(conv, actorID, canInvite, "invite users"); err != nil {
		return model.Participant{}, err
	}

	added, err := conv.AddParticipant(participantFrom(*req))
	if err != nil {
		return model.Participant{}, err
	}
	s.logger.WithConversation(conversationID).Info("participant added",
		zap.String("user_id", actorID),
		zap.String("participant_id", added.UserID),
		zap.String("role", string(added.Role)),
	)
	return added, nil
}

// ParticipantPermissions returns the permissions of userID in a
// conversation the actor participates in.
func (s *DealService) ParticipantPermissions(ctx context.Context, actorID, conversationID, userID string) (model.Permissions, error) {
	conv, err := s.lookup(conversationID)
	if err != nil {
		return model.Permissions{}, err
	}
	if err := authorize(conv, actorID, nil, ""); err != nil {
		return model.Permissions{}, err
	}
	return conv.ParticipantPermissions(userID)
}

// AdvanceStatus moves a conversation to next and returns the recorded
// status_update message.
func (s *DealService) AdvanceStatus(ctx context.Context, actorID, conversationID string, next model.Status) (msg model.Message, err error) {
	_, span := s.tracer.Start(ctx, "DealService.AdvanceStatus",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("status.next", string(next)),
		))
	defer func() { endSpan(span, err) }()

	if !next.Valid() {
		return model.Message{}, apperr.Validation("unknown status %q", next)
	}
	conv, err := s.lookup(conversationID)
	if err != nil {
		return model.Message{}, err
	}
	need, action := statusPermission(next)
	if err := authorize(conv, actorID, need, action); err != nil {
		return model.Message{}, err
	}

	prev := conv.Status()
	msg, err = conv.AdvanceStatus(actorID, next)
	if err != nil {
		return model.Message{}, err
	}
	s.logger.WithConversation(conversationID).Info("deal status changed",
		zap.String("user_id", actorID),
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
	)
	return msg, nil
}

// Subscribe streams events of a conversation until ctx is done.
func (s *DealService) Subscribe(ctx context.Context, actorID, conversationID string) (<-chan model.ConversationEvent, error) {
	conv, err := s.lookup(conversationID)
	if err != nil {
		return nil, err
	}
	if err := authorize(conv, actorID, nil, ""); err != nil {
		return nil, err
	}
	ch, _ := s.broadcaster.Subscribe(ctx, conversationID)
	return ch, nil
}

// Broadcaster exposes the event fan-out for infrastructure subscribers.
func (s *DealService) Broadcaster() *events.Broadcaster {
	return s.broadcaster
}

// Close stops the assistant and closes event subscriptions.
func (s *DealService) Close() {
	s.responder.Close()
	s.broadcaster.Close()
}

// observe runs under the conversation lock and must not block.
func (s *DealService) observe(event model.ConversationEvent) {
	switch event.Type {
	case model.EventTypeMessage:
		if event.Message != nil {
			metrics.MessagesTotal.WithLabelValues(string(event.Message.MessageType), string(event.Message.SenderRole)).Inc()
		}
	case model.EventTypeStatusChanged:
		metrics.StatusTransitionsTotal.WithLabelValues(string(event.OldStatus), string(event.NewStatus)).Inc()
	}
	s.broadcaster.Publish(event)
}

func (s *DealService) lookup(conversationID string) (*deal.Conversation, error) {
	s.mu.RLock()
	conv, ok := s.conversations[conversationID]
	s.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("conversation %q not found", conversationID)
	}
	return conv, nil
}

func participantFrom(req model.AddParticipantRequest) model.Participant {
	perms := model.DefaultPermissions(req.Role)
	if req.Permissions != nil {
		perms = *req.Permissions
	}
	return model.Participant{
		UserID:      strings.TrimSpace(req.UserID),
		Name:        req.Name,
		Role:        req.Role,
		Company:     req.Company,
		Permissions: perms,
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// pageBounds clamps a limit/offset page to [0, total]. A non-positive limit
// means the rest of the list.
func pageBounds(total, limit, offset int) (start, end int) {
	start = offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end = total
	if limit > 0 && limit < total-start {
		end = start + limit
	}
	return start, end
}
