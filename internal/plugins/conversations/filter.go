package conversations

import (
	"slices"
	"strings"

	"github.com/wilbur182/datachat/internal/conversation"
)

// Filter narrows the conversation list.
type Filter struct {
	Query      string // case-insensitive title or id substring
	PinnedOnly bool
}

// IsActive reports whether any criterion is set.
func (f Filter) IsActive() bool {
	return f.Query != "" || f.PinnedOnly
}

// Matches reports whether conv passes every criterion.
func (f Filter) Matches(conv conversation.Conversation) bool {
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(conv.DisplayTitle()), q) && !strings.Contains(conv.ID, q) {
			return false
		}
	}
	if f.PinnedOnly && !conv.IsPinned {
		return false
	}
	return true
}

// Apply returns the matching conversations, pinned first. Relative order
// is otherwise kept.
func (f Filter) Apply(convs []conversation.Conversation) []conversation.Conversation {
	out := make([]conversation.Conversation, 0, len(convs))
	for _, c := range convs {
		if f.Matches(c) {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b conversation.Conversation) int {
		switch {
		case a.IsPinned == b.IsPinned:
			return 0
		case a.IsPinned:
			return -1
		default:
			return 1
		}
	})
	return out
}

// String formats the active criteria for the header.
func (f Filter) String() string {
	var parts []string
	if f.Query != "" {
		parts = append(parts, `"`+f.Query+`"`)
	}
	if f.PinnedOnly {
		parts = append(parts, "[pinned]")
	}
	return strings.Join(parts, " ")
}
