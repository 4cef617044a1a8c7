// Package conversation holds the in-memory model of the active conversation:
// the message list, the single-slot streaming session, the shared
// conversation-list cache and the helpers that keep them consistent.
package conversation

import (
	"encoding/json"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SQLExecution is one query trace attached to an assistant answer.
// The core never inspects it; it is attached atomically at finalization.
type SQLExecution struct {
	Query     string   `json:"query"`
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	TotalRows int      `json:"totalRows"`
	Error     string   `json:"error,omitempty"`
}

// Message is one turn in a conversation.
type Message struct {
	ID            string         `json:"id"`
	Role          Role           `json:"role"`
	Content       string         `json:"content"`
	SQLExecutions []SQLExecution `json:"sqlExecutions,omitempty"`
	Reasoning     string         `json:"reasoning,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	SendFailed    bool           `json:"sendFailed,omitempty"`
}

// Finalization carries the extra data merged onto an assistant message when
// its stream completes.
type Finalization struct {
	SQLExecutions []SQLExecution `json:"sqlExecutions,omitempty"`
	Reasoning     string         `json:"reasoning,omitempty"`
}

// IsEmpty reports whether the finalization carries nothing to merge.
func (f Finalization) IsEmpty() bool {
	return len(f.SQLExecutions) == 0 && f.Reasoning == ""
}

// Conversation is an entry in the shared conversation list.
type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	IsPinned     bool      `json:"isPinned"`
	DatasetCount int       `json:"datasetCount"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// DisplayTitle returns the title, or a placeholder while none is generated.
func (c Conversation) DisplayTitle() string {
	if c.Title == "" {
		return "New conversation"
	}
	return c.Title
}

// ConversationPatch is a partial update of a conversation. Nil fields are
// left untouched.
type ConversationPatch struct {
	Title    *string `json:"title,omitempty"`
	IsPinned *bool   `json:"isPinned,omitempty"`
}

// SendAck acknowledges receipt of a dispatched message. It is not the answer.
type SendAck struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// EventKind classifies an event from the streaming feed.
type EventKind int

const (
	EventTokenDelta EventKind = iota + 1
	EventComplete
	EventError
	EventSideEffect
)

func (k EventKind) String() string {
	switch k {
	case EventTokenDelta:
		return "token_delta"
	case EventComplete:
		return "complete"
	case EventError:
		return "error"
	case EventSideEffect:
		return "side_effect"
	default:
		return "unknown"
	}
}

// Event is one entry of the conversation-scoped streaming feed.
type Event struct {
	Kind           EventKind
	ConversationID string
	ReplyTo        string // message id of the user turn this answers, when the server sends it
	Text           string // token delta
	Final          Finalization
	Reason         string // error reason
	Name           string // side-effect event name, e.g. "dataset.ready"
	Payload        json.RawMessage
}
