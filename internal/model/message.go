package model

import (
	"time"
)

// MessageType classifies a conversation message.
type MessageType string

const (
	MessageTypeText              MessageType = "text"
	MessageTypeDocumentShare     MessageType = "document_share"
	MessageTypeStatusUpdate      MessageType = "status_update"
	MessageTypeEvaRecommendation MessageType = "eva_recommendation"
	MessageTypeDealUpdate        MessageType = "deal_update"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeDocumentShare, MessageTypeStatusUpdate,
		MessageTypeEvaRecommendation, MessageTypeDealUpdate:
		return true
	}
	return false
}

// RecommendationType is the kind of structured assistant output.
type RecommendationType string

const (
	RecommendationLenderMatch     RecommendationType = "lender_match"
	RecommendationTermsSuggestion RecommendationType = "terms_suggestion"
	RecommendationRiskAssessment  RecommendationType = "risk_assessment"
)

// Attachment is file metadata owned by a single message.
type Attachment struct {
	ID         string    `json:"id"`
	FileName   string    `json:"file_name"`
	FileType   string    `json:"file_type"`
	FileSize   int64     `json:"file_size"`
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// EvaRecommendation is the structured payload of an assistant recommendation.
type EvaRecommendation struct {
	Type       RecommendationType `json:"type"`
	Confidence int                `json:"confidence"`
	Data       map[string]any     `json:"data,omitempty"`
}

// DealUpdate records a single field change on the deal.
type DealUpdate struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// MessageMetadata carries optional structured data attached to a message.
type MessageMetadata struct {
	EvaRecommendation *EvaRecommendation `json:"eva_recommendation,omitempty"`
	DealUpdate        *DealUpdate        `json:"deal_update,omitempty"`
}

// Message represents a conversation message. Messages are never modified
// after they are appended.
type Message struct {
	// Identity
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`

	// Sender
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	SenderRole Role   `json:"sender_role"`

	// Content
	Content         string           `json:"content"`
	MessageType     MessageType      `json:"message_type"`
	Attachments     []Attachment     `json:"attachments,omitempty"`
	IsSystemMessage bool             `json:"is_system_message"`
	Metadata        *MessageMetadata `json:"metadata,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Attachments != nil {
		out.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.Metadata != nil {
		md := MessageMetadata{}
		if m.Metadata.EvaRecommendation != nil {
			rec := *m.Metadata.EvaRecommendation
			if rec.Data != nil {
				rec.Data = make(map[string]any, len(m.Metadata.EvaRecommendation.Data))
				for k, v := range m.Metadata.EvaRecommendation.Data {
					rec.Data[k] = v
				}
			}
			md.EvaRecommendation = &rec
		}
		if m.Metadata.DealUpdate != nil {
			du := *m.Metadata.DealUpdate
			md.DealUpdate = &du
		}
		out.Metadata = &md
	}
	return out
}

// SendMessageRequest is the request to send a new message.
type SendMessageRequest struct {
	Content     string       `json:"content"`
	MessageType MessageType  `json:"message_type,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// SendMessageResponse is the response after sending a message.
type SendMessageResponse struct {
	Message          *Message `json:"message"`
	AssistantPending bool     `json:"assistant_pending"`
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
	HasMore  bool      `json:"has_more"`
}
