package service

import (
	"errors"

	"github.com/capitalize-ai/deal-conversations/internal/apperr"
	"github.com/capitalize-ai/deal-conversations/internal/deal"
	"github.com/capitalize-ai/deal-conversations/internal/model"
)

var errNoDirectory = errors.New("no customer directory configured")

type permission func(model.Permissions) bool

func canInvite(p model.Permissions) bool { return p.CanInviteUsers }
func canUpload(p model.Permissions) bool { return p.CanUploadDocuments }
func canFinancials(p model.Permissions) bool { return p.CanAccessFinancials }
func canSubmit(p model.Permissions) bool { return p.CanSubmitToLenders }
func canApprove(p model.Permissions) bool { return p.CanApproveDeal }

// authorize checks that actorID is a participant holding need. A nil need
// only requires membership. The assistant never acts through the service.
func authorize(conv *deal.Conversation, actorID string, need permission, action string) error {
	if actorID == "" || actorID == model.AssistantID {
		return apperr.Forbidden("an authenticated user is required")
	}
	perms, err := conv.ParticipantPermissions(actorID)
	if err != nil {
		return apperr.Forbidden("user %q is not a participant in this conversation", actorID)
	}
	if need != nil && !need(perms) {
		return apperr.Forbidden("user %q may not %s", actorID, action)
	}
	return nil
}

// statusPermission returns the capability required to move a deal to next.
// Early pipeline stages only require membership.
func statusPermission(next model.Status) (permission, string) {
	switch next {
	case model.StatusSubmitted:
		return canSubmit, "submit to lenders"
	case model.StatusApproved, model.StatusRejected, model.StatusFunded, model.StatusClosed:
		return canApprove, "decide on the deal"
	default:
		return nil, ""
	}
}
