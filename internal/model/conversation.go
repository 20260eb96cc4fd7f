// Package model defines data structures for deal conversations.
package model

import (
	"math"
	"time"
)

// DealType is the financing product a conversation is about.
type DealType string

const (
	DealEquipmentFinancing DealType = "equipment_financing"
	DealWorkingCapital     DealType = "working_capital"
	DealCommercialMortgage DealType = "commercial_mortgage"
	DealSBALoan            DealType = "sba_loan"
)

// ValidAmount reports whether a deal amount is positive and finite.
func ValidAmount(amount float64) bool {
	return amount > 0 && !math.IsInf(amount, 1)
}

// Valid reports whether t is a known deal type.
func (t DealType) Valid() bool {
	switch t {
	case DealEquipmentFinancing, DealWorkingCapital, DealCommercialMortgage, DealSBALoan:
		return true
	}
	return false
}

// Label returns a human readable name for the deal type.
func (t DealType) Label() string {
	switch t {
	case DealEquipmentFinancing:
		return "equipment financing"
	case DealWorkingCapital:
		return "working capital"
	case DealCommercialMortgage:
		return "commercial mortgage"
	case DealSBALoan:
		return "SBA loan"
	default:
		return string(t)
	}
}

// Urgency is a deal-level triage tag, independent of status.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Valid reports whether u is a known urgency.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// Severity orders urgencies from most to least severe (critical = 0).
func (u Urgency) Severity() int {
	switch u {
	case UrgencyCritical:
		return 0
	case UrgencyHigh:
		return 1
	case UrgencyMedium:
		return 2
	case UrgencyLow:
		return 3
	default:
		return 4
	}
}

// BorrowerRisk holds the borrower risk inputs used for lender matching.
// Zero values mean "unknown".
type BorrowerRisk struct {
	CreditScore     int     `json:"credit_score,omitempty"`
	DSCR            float64 `json:"dscr,omitempty"`
	YearsInBusiness float64 `json:"years_in_business,omitempty"`
	HasCollateral   bool    `json:"has_collateral"`
}

// Conversation is a read-only snapshot of a deal conversation.
type Conversation struct {
	ID              string        `json:"id"`
	TransactionID   string        `json:"transaction_id"`
	Title           string        `json:"title"`
	BorrowerName    string        `json:"borrower_name"`
	DealAmount      float64       `json:"deal_amount"`
	DealType        DealType      `json:"deal_type"`
	Status          Status        `json:"status"`
	Participants    []Participant `json:"participants"`
	Messages        []Message     `json:"messages"`
	Documents       []Attachment  `json:"documents"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	Urgency         Urgency       `json:"urgency"`
	TargetCloseDate *time.Time    `json:"target_close_date,omitempty"`
	OwnerID         string        `json:"owner_id,omitempty"`
	BorrowerRisk    BorrowerRisk  `json:"borrower_risk"`
	Archived        bool          `json:"archived,omitempty"`
}

// HasParticipant reports whether userID is a member of the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// Summary drops the message history for list views.
func (c Conversation) Summary() ConversationSummary {
	s := ConversationSummary{
		ID:               c.ID,
		TransactionID:    c.TransactionID,
		Title:            c.Title,
		BorrowerName:     c.BorrowerName,
		DealAmount:       c.DealAmount,
		DealType:         c.DealType,
		Status:           c.Status,
		Urgency:          c.Urgency,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
		TargetCloseDate:  c.TargetCloseDate,
		ParticipantCount: len(c.Participants),
		MessageCount:     len(c.Messages),
	}
	if n := len(c.Messages); n > 0 {
		last := c.Messages[n-1]
		s.LastMessage = &last
	}
	return s
}

// ConversationSummary is a conversation without its message history.
type ConversationSummary struct {
	ID               string     `json:"id"`
	TransactionID    string     `json:"transaction_id"`
	Title            string     `json:"title"`
	BorrowerName     string     `json:"borrower_name"`
	DealAmount       float64    `json:"deal_amount"`
	DealType         DealType   `json:"deal_type"`
	Status           Status     `json:"status"`
	Urgency          Urgency    `json:"urgency"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	TargetCloseDate  *time.Time `json:"target_close_date,omitempty"`
	ParticipantCount int        `json:"participant_count"`
	MessageCount     int        `json:"message_count"`
	LastMessage      *Message   `json:"last_message,omitempty"`
}

// CreateConversationRequest is the request to create a new conversation.
type CreateConversationRequest struct {
	TransactionID   string                  `json:"transaction_id"`
	Title           string                  `json:"title"`
	BorrowerName    string                  `json:"borrower_name"`
	CustomerID      string                  `json:"customer_id,omitempty"`
	DealAmount      float64                 `json:"deal_amount"`
	DealType        DealType                `json:"deal_type"`
	Urgency         Urgency                 `json:"urgency,omitempty"`
	TargetCloseDate *time.Time              `json:"target_close_date,omitempty"`
	BorrowerRisk    BorrowerRisk            `json:"borrower_risk"`
	Participants    []AddParticipantRequest `json:"participants"`
}

// AdvanceStatusRequest is the request to move a conversation to its next stage.
type AdvanceStatusRequest struct {
	Status Status `json:"status"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
	Total         int                   `json:"total"`
	HasMore       bool                  `json:"has_more"`
}
