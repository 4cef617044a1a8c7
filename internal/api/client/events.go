package client

import (
	"encoding/json"
	"fmt"

	"github.com/wilbur182/datachat/internal/conversation"
)

// DecodeEvent converts a raw feed event into a conversation event. The second
// return is false for transport-level events (connected, heartbeat) that the
// controller never sees.
func DecodeEvent(raw SSEEvent) (conversation.Event, bool, error) {
	switch raw.Event {
	case EventServerConnected, EventServerHeartbeat:
		return conversation.Event{}, false, nil

	case EventMessageDelta:
		var p DeltaPayload
		if err := json.Unmarshal([]byte(raw.Data), &p); err != nil {
			return conversation.Event{}, false, fmt.Errorf("datachat: decode %s: %w", raw.Event, err)
		}
		return conversation.Event{
			Kind:           conversation.EventTokenDelta,
			ConversationID: p.ConversationID,
			ReplyTo:        p.ReplyTo,
			Text:           p.Content,
		}, true, nil

	case EventMessageComplete:
		var p CompletePayload
		if raw.Data != "" {
			if err := json.Unmarshal([]byte(raw.Data), &p); err != nil {
				return conversation.Event{}, false, fmt.Errorf("datachat: decode %s: %w", raw.Event, err)
			}
		}
		return conversation.Event{
			Kind:           conversation.EventComplete,
			ConversationID: p.ConversationID,
			ReplyTo:        p.ReplyTo,
			Final: conversation.Finalization{
				SQLExecutions: p.SQLExecutions,
				Reasoning:     p.Reasoning,
			},
		}, true, nil

	case EventMessageError:
		var p ErrorPayload
		if raw.Data != "" {
			if err := json.Unmarshal([]byte(raw.Data), &p); err != nil {
				return conversation.Event{}, false, fmt.Errorf("datachat: decode %s: %w", raw.Event, err)
			}
		}
		return conversation.Event{
			Kind:           conversation.EventError,
			ConversationID: p.ConversationID,
			ReplyTo:        p.ReplyTo,
			Reason:         p.Message,
		}, true, nil

	default:
		ev := conversation.Event{Kind: conversation.EventSideEffect, Name: raw.Event}
		if ev.Name == "" {
			ev.Name = "message"
		}
		if raw.Data != "" && json.Valid([]byte(raw.Data)) {
			ev.Payload = json.RawMessage(raw.Data)
			var scope struct {
				ConversationID string `json:"conversationId"`
			}
			_ = json.Unmarshal(ev.Payload, &scope)
			ev.ConversationID = scope.ConversationID
		}
		return ev, true, nil
	}
}
