package model

import (
	"time"
)

// Role represents the role of a conversation participant.
type Role string

const (
	RoleVendor         Role = "vendor"
	RoleFinanceManager Role = "finance_manager"
	RoleBroker         Role = "broker"
	RoleLender         Role = "lender"
	RoleBorrower       Role = "borrower"
	RoleAssistant      Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleVendor, RoleFinanceManager, RoleBroker, RoleLender, RoleBorrower, RoleAssistant:
		return true
	}
	return false
}

// AssistantID is the user id of the automated participant.
const AssistantID = "assistant"

// AssistantName is the display name of the automated participant.
const AssistantName = "EVA"

// Permissions is the fixed capability record of a participant.
type Permissions struct {
	CanInviteUsers      bool `json:"can_invite_users"`
	CanUploadDocuments  bool `json:"can_upload_documents"`
	CanAccessFinancials bool `json:"can_access_financials"`
	CanSubmitToLenders  bool `json:"can_submit_to_lenders"`
	CanApproveDeal      bool `json:"can_approve_deal"`
}

// AssistantPermissions is the read-only analyst record the assistant always holds.
var AssistantPermissions = Permissions{CanAccessFinancials: true}

// DefaultPermissions returns the capability record normally granted to role.
func DefaultPermissions(role Role) Permissions {
	switch role {
	case RoleFinanceManager:
		return Permissions{true, true, true, true, true}
	case RoleBroker:
		return Permissions{CanInviteUsers: true, CanUploadDocuments: true, CanAccessFinancials: true, CanSubmitToLenders: true}
	case RoleVendor:
		return Permissions{CanInviteUsers: true, CanUploadDocuments: true}
	case RoleLender:
		return Permissions{CanUploadDocuments: true, CanAccessFinancials: true, CanApproveDeal: true}
	case RoleBorrower:
		return Permissions{CanUploadDocuments: true}
	case RoleAssistant:
		return AssistantPermissions
	default:
		return Permissions{}
	}
}

// Participant is a member of a deal conversation.
type Participant struct {
	UserID      string      `json:"user_id"`
	Name        string      `json:"name"`
	Role        Role        `json:"role"`
	Company     string      `json:"company,omitempty"`
	JoinedAt    time.Time   `json:"joined_at"`
	Permissions Permissions `json:"permissions"`
	IsOnline    bool        `json:"is_online"`
	LastSeen    *time.Time  `json:"last_seen,omitempty"`
}

// Clone returns a deep copy of the participant.
func (p Participant) Clone() Participant {
	out := p
	if p.LastSeen != nil {
		ls := *p.LastSeen
		out.LastSeen = &ls
	}
	return out
}

// AddParticipantRequest is the request to add a participant.
type AddParticipantRequest struct {
	UserID      string       `json:"user_id"`
	Name        string       `json:"name"`
	Role        Role         `json:"role"`
	Company     string       `json:"company,omitempty"`
	Permissions *Permissions `json:"permissions,omitempty"`
}

// Actor is the authenticated user performing an operation.
type Actor struct {
	UserID  string
	Name    string
	Role    Role
	Company string
}
