// Package directory projects sets of conversations into worklists.
package directory

import (
	"sort"
	"strings"

	"github.com/capitalize-ai/deal-conversations/internal/apperr"
	"github.com/capitalize-ai/deal-conversations/internal/model"
)

// FilterMode selects which conversations appear in a worklist.
type FilterMode string

const (
	FilterAll     FilterMode = "all"
	FilterActive  FilterMode = "active"
	FilterUrgent  FilterMode = "urgent"
	FilterMyDeals FilterMode = "my_deals"
)

// SortKey orders a worklist.
type SortKey string

const (
	SortRecent  SortKey = "recent"
	SortAmount  SortKey = "amount"
	SortUrgency SortKey = "urgency"
)

// Ownership decides whether a conversation belongs to the current user.
type Ownership func(c model.Conversation) bool

// ParseFilter parses a filter mode; the empty string means all.
func ParseFilter(s string) (FilterMode, error) {
	switch mode := FilterMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case "":
		return FilterAll, nil
	case FilterAll, FilterActive, FilterUrgent, FilterMyDeals:
		return mode, nil
	default:
		return "", apperr.Validation("unknown filter %q", s)
	}
}

// ParseSort parses a sort key; the empty string means recent.
func ParseSort(s string) (SortKey, error) {
	switch key := SortKey(strings.ToLower(strings.TrimSpace(s))); key {
	case "":
		return SortRecent, nil
	case SortRecent, SortAmount, SortUrgency:
		return key, nil
	default:
		return "", apperr.Validation("unknown sort key %q", s)
	}
}

// OwnedBy reports conversations that userID created or participates in.
func OwnedBy(userID string) Ownership {
	return func(c model.Conversation) bool {
		if userID == "" {
			return false
		}
		return c.OwnerID == userID || c.HasParticipant(userID)
	}
}

// Filter returns the conversations matching mode in their original order.
// FilterMyDeals with a nil ownership predicate matches nothing.
func Filter(convs []model.Conversation, mode FilterMode, owns Ownership) []model.Conversation {
	out := make([]model.Conversation, 0, len(convs))
	for _, c := range convs {
		if matches(c, mode, owns) {
			out = append(out, c)
		}
	}
	return out
}

func matches(c model.Conversation, mode FilterMode, owns Ownership) bool {
	switch mode {
	case FilterActive:
		return c.Status.Active()
	case FilterUrgent:
		return c.Urgency == model.UrgencyHigh || c.Urgency == model.UrgencyCritical
	case FilterMyDeals:
		return owns != nil && owns(c)
	default:
		return true
	}
}

// Sort returns a stably sorted copy of convs.
func Sort(convs []model.Conversation, key SortKey) []model.Conversation {
	out := append([]model.Conversation(nil), convs...)

	var less func(a, b model.Conversation) bool
	switch key {
	case SortAmount:
		less = func(a, b model.Conversation) bool { return a.DealAmount > b.DealAmount }
	case SortUrgency:
		less = func(a, b model.Conversation) bool { return a.Urgency.Severity() < b.Urgency.Severity() }
	default:
		less = func(a, b model.Conversation) bool { return a.UpdatedAt.After(b.UpdatedAt) }
	}

	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// List filters then sorts.
func List(convs []model.Conversation, mode FilterMode, key SortKey, owns Ownership) []model.Conversation {
	return Sort(Filter(convs, mode, owns), key)
}
