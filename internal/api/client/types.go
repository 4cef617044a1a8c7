package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/wilbur182/datachat/internal/conversation"
)

// Wire event names on the streaming feed.
const (
	EventMessageDelta    = "message.delta"
	EventMessageComplete = "message.complete"
	EventMessageError    = "message.error"
	EventServerConnected = "server.connected"
	EventServerHeartbeat = "server.heartbeat"
)

// MessageSendRequest is the request body for dispatching a message.
type MessageSendRequest struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

// ConversationListResponse is the response body for listing conversations.
type ConversationListResponse []conversation.Conversation

// MessageListResponse is the response body for a conversation's history.
type MessageListResponse []conversation.Message

// CancelResponse is the response body for cancel requests.
type CancelResponse struct {
	Success bool `json:"success"`
}

// SSEEvent represents a parsed Server-Sent Event. Websocket frames are
// converted to the same shape.
type SSEEvent struct {
	Event string
	Data  string
	ID    string
}

// DeltaPayload is the payload of message.delta events.
type DeltaPayload struct {
	ConversationID string `json:"conversationId"`
	ReplyTo        string `json:"replyTo,omitempty"`
	Content        string `json:"content"`
}

// CompletePayload is the payload of message.complete events.
type CompletePayload struct {
	ConversationID string                      `json:"conversationId"`
	ReplyTo        string                      `json:"replyTo,omitempty"`
	SQLExecutions  []conversation.SQLExecution `json:"sqlExecutions,omitempty"`
	Reasoning      string                      `json:"reasoning,omitempty"`
}

// ErrorPayload is the payload of message.error events.
type ErrorPayload struct {
	ConversationID string `json:"conversationId"`
	ReplyTo        string `json:"replyTo,omitempty"`
	Message        string `json:"message"`
}

// WSFrame is one websocket message on /api/ws.
type WSFrame struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ErrorResponse is the response body for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
	Code       int
}

func (e *APIError) Error() string {
	switch {
	case e.Message == "":
		return fmt.Sprintf("datachat: %s: status %d", e.Op, e.StatusCode)
	case e.Code != 0:
		return fmt.Sprintf("datachat: %s: status %d: %s (code=%d)", e.Op, e.StatusCode, e.Message, e.Code)
	default:
		return fmt.Sprintf("datachat: %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	}
}

// UserMessage is the text shown to the user for this failure.
func (e *APIError) UserMessage() string {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return "The server rejected your credentials. Check server.token in the config."
	case e.StatusCode == http.StatusNotFound:
		return "The conversation no longer exists on the server."
	case e.StatusCode == http.StatusTooManyRequests:
		return "Too many requests. Wait a moment and try again."
	case e.StatusCode >= 500:
		return "The server is having trouble right now. Please try again."
	default:
		return ""
	}
}

// ParseSSEEvent parses a single SSE event block.
// Format: "event: <type>\ndata: <json>\nid: <id>\n"
func ParseSSEEvent(raw string) (SSEEvent, error) {
	if raw == "" {
		return SSEEvent{}, fmt.Errorf("empty SSE event")
	}

	var event SSEEvent
	for _, line := range strings.Split(strings.TrimRight(raw, "\n"), "\n") {
		event.apply(strings.TrimRight(line, "\r"))
	}
	return event, nil
}

// apply folds one SSE field line into the event. Comment lines and unknown
// fields are ignored.
func (e *SSEEvent) apply(line string) {
	field, value, ok := strings.Cut(line, ":")
	if !ok || field == "" {
		return
	}
	value = strings.TrimPrefix(value, " ")

	switch field {
	case "event":
		e.Event = value
	case "data":
		if e.Data != "" {
			e.Data += "\n"
		}
		e.Data += value
	case "id":
		e.ID = value
	}
}

func (e SSEEvent) empty() bool {
	return e.Event == "" && e.Data == "" && e.ID == ""
}

// ParseSSEStream parses a stream of SSE events separated by blank lines.
func ParseSSEStream(raw string) []SSEEvent {
	var events []SSEEvent
	for _, block := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if event, err := ParseSSEEvent(block); err == nil && !event.empty() {
			events = append(events, event)
		}
	}
	return events
}
