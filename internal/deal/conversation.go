// Package deal implements the deal conversation aggregate.
//
// A Conversation owns its participants, its append-only message log and its
// status. All mutation goes through the command methods, which serialize on a
// per-conversation lock; readers take consistent deep-copied snapshots.
package deal

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/deal-conversations/internal/apperr"
	"github.com/capitalize-ai/deal-conversations/internal/clock"
	"github.com/capitalize-ai/deal-conversations/internal/model"
)

// Observer is notified of every change while the conversation lock is held,
// so events arrive in the same order as the changes. It must not block and
// must not call back into the conversation.
type Observer func(event model.ConversationEvent)

// Params describe a new conversation.
type Params struct {
	ID              string
	TransactionID   string
	Title           string
	BorrowerName    string
	DealAmount      float64
	DealType        model.DealType
	Urgency         model.Urgency
	TargetCloseDate *time.Time
	OwnerID         string
	BorrowerRisk    model.BorrowerRisk
	Participants    []model.Participant
}

// Conversation is the aggregate root for a single transaction's thread.
type Conversation struct {
	mu       sync.RWMutex
	state    model.Conversation
	clock    clock.Clock
	observer Observer

	ctx    context.Context
	cancel context.CancelFunc
}

// New validates params and creates a conversation in the prospecting stage.
// The assistant participant is added automatically when absent.
func New(p Params, clk clock.Clock, observer Observer) (*Conversation, error) {
	if clk == nil {
		clk = clock.Real{}
	}
	if strings.TrimSpace(p.TransactionID) == "" {
		return nil, apperr.Validation("transaction id is required")
	}
	if !model.ValidAmount(p.DealAmount) {
		return nil, apperr.Validation("deal amount must be a positive finite number")
	}
	if !p.DealType.Valid() {
		return nil, apperr.Validation("unknown deal type %q", p.DealType)
	}
	if p.Urgency == "" {
		p.Urgency = model.UrgencyMedium
	}
	if !p.Urgency.Valid() {
		return nil, apperr.Validation("unknown urgency %q", p.Urgency)
	}
	if p.ID == "" {
		p.ID = uuid.Must(uuid.NewV7()).String()
	}

	now := clk.Now()
	c := &Conversation{
		clock:    clk,
		observer: observer,
		state: model.Conversation{
			ID:            p.ID,
			TransactionID: p.TransactionID,
			Title:         p.Title,
			BorrowerName:  p.BorrowerName,
			DealAmount:    p.DealAmount,
			DealType:      p.DealType,
			Status:        model.StatusProspecting,
			Participants:  []model.Participant{},
			Messages:      []model.Message{},
			Documents:     []model.Attachment{},
			CreatedAt:     now,
			UpdatedAt:     now,
			Urgency:       p.Urgency,
			OwnerID:       p.OwnerID,
			BorrowerRisk:  p.BorrowerRisk,
		},
	}
	if p.TargetCloseDate != nil {
		t := *p.TargetCloseDate
		c.state.TargetCloseDate = &t
	}

	hasAssistant := false
	for _, participant := range p.Participants {
		if err := c.addParticipantLocked(participant, now); err != nil {
			return nil, err
		}
		if participant.UserID == model.AssistantID {
			hasAssistant = true
		}
	}
	if !hasAssistant {
		_ = c.addParticipantLocked(model.Participant{
			UserID:  model.AssistantID,
			Name:    model.AssistantName,
			Role:    model.RoleAssistant,
			Company: "Assistant",
		}, now)
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c, nil
}

// ID returns the conversation id.
func (c *Conversation) ID() string {
	return c.state.ID
}

// TransactionID returns the transaction the conversation belongs to.
func (c *Conversation) TransactionID() string {
	return c.state.TransactionID
}

// OwnerID returns the user who opened the conversation.
func (c *Conversation) OwnerID() string {
	return c.state.OwnerID
}

// Archived reports whether Archive has been called.
func (c *Conversation) Archived() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Archived
}

// Done is closed when the conversation is archived.
func (c *Conversation) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Snapshot returns a deep copy of the current state.
func (c *Conversation) Snapshot() model.Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneState(c.state)
}

// Status returns the current lifecycle stage.
func (c *Conversation) Status() model.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Status
}

// MessageCount returns the number of appended messages.
func (c *Conversation) MessageCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.state.Messages)
}

// Participant looks up a member by user id.
func (c *Conversation) Participant(userID string) (model.Participant, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.findParticipant(userID)
	if !ok {
		return model.Participant{}, apperr.NotFound("participant %q not in conversation", userID)
	}
	return p.Clone(), nil
}

// ParticipantPermissions returns the capability record of userID.
func (c *Conversation) ParticipantPermissions(userID string) (model.Permissions, error) {
	p, err := c.Participant(userID)
	if err != nil {
		return model.Permissions{}, err
	}
	return p.Permissions, nil
}

// AddParticipant adds a member. The assistant's permissions are always
// forced to the read-only analyst record.
func (c *Conversation) AddParticipant(p model.Participant) (model.Participant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Archived {
		return model.Participant{}, apperr.NotFound("conversation %q is archived", c.state.ID)
	}
	now := c.clock.Now()
	if err := c.addParticipantLocked(p, now); err != nil {
		return model.Participant{}, err
	}
	added := c.state.Participants[len(c.state.Participants)-1].Clone()
	c.notify(model.ConversationEvent{Type: model.EventTypeParticipantAdded, Participant: &added})
	return added, nil
}

func (c *Conversation) addParticipantLocked(p model.Participant, now time.Time) error {
	if strings.TrimSpace(p.UserID) == "" {
		return apperr.Validation("participant user id is required")
	}
	if p.UserID == model.AssistantID {
		p.Role = model.RoleAssistant
	}
	if !p.Role.Valid() {
		return apperr.Validation("unknown participant role %q", p.Role)
	}
	if _, exists := c.findParticipant(p.UserID); exists {
		return apperr.Conflict("participant %q already in conversation", p.UserID)
	}
	if p.Role == model.RoleAssistant {
		p.Permissions = model.AssistantPermissions
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = now
	}
	c.state.Participants = append(c.state.Participants, p.Clone())
	return nil
}

// AppendMessage appends a user-authored message.
func (c *Conversation) AppendMessage(senderID, content string, messageType model.MessageType, attachments []model.Attachment) (model.Message, error) {
	return c.Append(Draft{
		SenderID:    senderID,
		Content:     content,
		Type:        messageType,
		Attachments: attachments,
	})
}

// Draft is a message that has not been appended yet.
type Draft struct {
	SenderID    string
	Content     string
	Type        model.MessageType
	Attachments []model.Attachment
	Metadata    *model.MessageMetadata
	System      bool
	// Then runs under the conversation lock right after the message is
	// stored, so work it queues keeps append order. It must not block or
	// call back into the conversation.
	Then func(msg model.Message)
}

// Append validates and appends a message. Content must be non-blank unless
// at least one attachment is present.
func (c *Conversation) Append(d Draft) (model.Message, error) {
	if d.Type == "" {
		d.Type = model.MessageTypeText
	}
	if !d.Type.Valid() {
		return model.Message{}, apperr.Validation("unknown message type %q", d.Type)
	}
	if strings.TrimSpace(d.Content) == "" && len(d.Attachments) == 0 {
		return model.Message{}, apperr.Validation("message content or an attachment is required")
	}
	for _, a := range d.Attachments {
		if strings.TrimSpace(a.FileName) == "" {
			return model.Message{}, apperr.Validation("attachment file name is required")
		}
		if a.FileSize < 0 {
			return model.Message{}, apperr.Validation("attachment %q has negative size", a.FileName)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Archived {
		return model.Message{}, apperr.NotFound("conversation %q is archived", c.state.ID)
	}
	sender, ok := c.findParticipant(d.SenderID)
	if !ok {
		return model.Message{}, apperr.NotFound("sender %q not in conversation", d.SenderID)
	}

	msg := c.appendLocked(sender, d)
	if d.Then != nil {
		d.Then(msg.Clone())
	}
	return msg.Clone(), nil
}

// AdvanceStatus moves the conversation to next, which must be a documented
// successor of the current status, and records a status_update message.
func (c *Conversation) AdvanceStatus(actorID string, next model.Status) (model.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Archived {
		return model.Message{}, apperr.NotFound("conversation %q is archived", c.state.ID)
	}
	actor, ok := c.findParticipant(actorID)
	if !ok {
		return model.Message{}, apperr.NotFound("participant %q not in conversation", actorID)
	}
	prev := c.state.Status
	if !prev.CanAdvanceTo(next) {
		return model.Message{}, apperr.InvalidTransition(string(prev), string(next))
	}

	c.state.Status = next
	msg := c.appendLocked(actor, Draft{
		Content: "Deal status changed from " + humanize(string(prev)) + " to " + humanize(string(next)),
		Type:    model.MessageTypeStatusUpdate,
		System:  true,
		Metadata: &model.MessageMetadata{DealUpdate: &model.DealUpdate{
			Field:    "status",
			OldValue: string(prev),
			NewValue: string(next),
		}},
	})
	c.notify(model.ConversationEvent{Type: model.EventTypeStatusChanged, OldStatus: prev, NewStatus: next})
	return msg.Clone(), nil
}

// Archive ends the conversation's lifetime. Pending work tied to Done is
// abandoned. Archiving twice is a no-op.
func (c *Conversation) Archive() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Archived {
		return
	}
	c.state.Archived = true
	c.cancel()
	c.notify(model.ConversationEvent{Type: model.EventTypeArchived})
}

// appendLocked stamps and stores a message. Timestamps never go backwards
// even if the clock does.
func (c *Conversation) appendLocked(sender model.Participant, d Draft) model.Message {
	ts := c.clock.Now()
	if n := len(c.state.Messages); n > 0 {
		if last := c.state.Messages[n-1].Timestamp; ts.Before(last) {
			ts = last
		}
	}

	msg := model.Message{
		ID:              uuid.Must(uuid.NewV7()).String(),
		ConversationID:  c.state.ID,
		SenderID:        sender.UserID,
		SenderName:      sender.Name,
		SenderRole:      sender.Role,
		Content:         d.Content,
		MessageType:     d.Type,
		IsSystemMessage: d.System,
		Metadata:        d.Metadata,
		Timestamp:       ts,
	}
	if len(d.Attachments) > 0 {
		msg.Attachments = make([]model.Attachment, len(d.Attachments))
		for i, a := range d.Attachments {
			if a.ID == "" {
				a.ID = uuid.Must(uuid.NewV7()).String()
			}
			if a.UploadedAt.IsZero() {
				a.UploadedAt = ts
			}
			msg.Attachments[i] = a
		}
	}
	msg = msg.Clone()

	c.state.Messages = append(c.state.Messages, msg)
	c.state.Documents = append(c.state.Documents, msg.Attachments...)
	if ts.After(c.state.UpdatedAt) {
		c.state.UpdatedAt = ts
	}

	out := msg.Clone()
	c.notify(model.ConversationEvent{Type: model.EventTypeMessage, Message: &out})
	return msg
}

func (c *Conversation) notify(event model.ConversationEvent) {
	if c.observer == nil {
		return
	}
	event.ID = uuid.Must(uuid.NewV7()).String()
	event.ConversationID = c.state.ID
	event.CreatedAt = c.state.UpdatedAt
	c.observer(event)
}

func (c *Conversation) findParticipant(userID string) (model.Participant, bool) {
	for _, p := range c.state.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return model.Participant{}, false
}

func cloneState(s model.Conversation) model.Conversation {
	out := s
	out.Participants = make([]model.Participant, len(s.Participants))
	for i, p := range s.Participants {
		out.Participants[i] = p.Clone()
	}
	out.Messages = make([]model.Message, len(s.Messages))
	for i, m := range s.Messages {
		out.Messages[i] = m.Clone()
	}
	out.Documents = append([]model.Attachment{}, s.Documents...)
	if s.TargetCloseDate != nil {
		t := *s.TargetCloseDate
		out.TargetCloseDate = &t
	}
	return out
}

func humanize(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}
