package client

import (
	"testing"

	"github.com/wilbur182/datachat/internal/conversation"
)

func TestParseSSEEventSingleEvent(t *testing.T) {
	raw := "event: message.delta\ndata: {\"content\":\"Hello\"}\nid: 123\n"

	event, err := ParseSSEEvent(raw)
	if err != nil {
		t.Fatalf("ParseSSEEvent failed: %v", err)
	}
	if event.Event != "message.delta" || event.Data != `{"content":"Hello"}` || event.ID != "123" {
		t.Errorf("unexpected event: %+v", event)
	}
}

func TestParseSSEEventMultilineData(t *testing.T) {
	raw := "event: message.complete\ndata: {\"a\":\ndata: 1}\n"

	event, err := ParseSSEEvent(raw)
	if err != nil {
		t.Fatalf("ParseSSEEvent failed: %v", err)
	}
	if event.Data != "{\"a\":\n1}" {
		t.Errorf("data lines should be joined with newlines, got %q", event.Data)
	}
}

func TestParseSSEEventNoSpaceAndComments(t *testing.T) {
	event, err := ParseSSEEvent(": comment\nevent:message.error\ndata:{}\r\n")
	if err != nil {
		t.Fatalf("ParseSSEEvent failed: %v", err)
	}
	if event.Event != "message.error" || event.Data != "{}" {
		t.Errorf("unexpected event: %+v", event)
	}
}

func TestParseSSEEventEmpty(t *testing.T) {
	if _, err := ParseSSEEvent(""); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestParseSSEStream(t *testing.T) {
	raw := "event: message.delta\ndata: {\"content\":\"a\"}\n\n" +
		": ping\n\n" +
		"event: message.delta\r\ndata: {\"content\":\"b\"}\r\n\r\n" +
		"event: message.complete\ndata: {}\n"

	events := ParseSSEStream(raw)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}
	if events[1].Data != `{"content":"b"}` || events[2].Event != "message.complete" {
		t.Errorf("unexpected events: %+v", events)
	}
	if got := ParseSSEStream(""); len(got) != 0 {
		t.Errorf("expected no events, got %+v", got)
	}
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name   string
		raw    SSEEvent
		want   conversation.EventKind
		skip   bool
		hasErr bool
		check  func(t *testing.T, ev conversation.Event)
	}{
		{
			name: "delta",
			raw:  SSEEvent{Event: EventMessageDelta, Data: `{"conversationId":"c1","replyTo":"m1","content":"72F"}`},
			want: conversation.EventTokenDelta,
			check: func(t *testing.T, ev conversation.Event) {
				if ev.Text != "72F" || ev.ReplyTo != "m1" || ev.ConversationID != "c1" {
					t.Errorf("unexpected event: %+v", ev)
				}
			},
		},
		{
			name: "complete with traces",
			raw:  SSEEvent{Event: EventMessageComplete, Data: `{"conversationId":"c1","sqlExecutions":[{"query":"SELECT 1","columns":["x"],"rows":[[1]],"totalRows":1}]}`},
			want: conversation.EventComplete,
			check: func(t *testing.T, ev conversation.Event) {
				if len(ev.Final.SQLExecutions) != 1 || ev.Final.SQLExecutions[0].Query != "SELECT 1" {
					t.Errorf("unexpected finalization: %+v", ev.Final)
				}
			},
		},
		{
			name: "complete without data",
			raw:  SSEEvent{Event: EventMessageComplete},
			want: conversation.EventComplete,
		},
		{
			name: "error",
			raw:  SSEEvent{Event: EventMessageError, Data: `{"conversationId":"c1","message":"boom"}`},
			want: conversation.EventError,
			check: func(t *testing.T, ev conversation.Event) {
				if ev.Reason != "boom" {
					t.Errorf("reason = %q", ev.Reason)
				}
			},
		},
		{
			name: "side effect",
			raw:  SSEEvent{Event: "dataset.ready", Data: `{"conversationId":"c2","dataset":"sales"}`},
			want: conversation.EventSideEffect,
			check: func(t *testing.T, ev conversation.Event) {
				if ev.Name != "dataset.ready" || ev.ConversationID != "c2" || len(ev.Payload) == 0 {
					t.Errorf("unexpected side effect: %+v", ev)
				}
			},
		},
		{
			name: "unnamed side effect",
			raw:  SSEEvent{Data: "not json"},
			want: conversation.EventSideEffect,
			check: func(t *testing.T, ev conversation.Event) {
				if ev.Name != "message" || ev.Payload != nil {
					t.Errorf("unexpected side effect: %+v", ev)
				}
			},
		},
		{name: "heartbeat", raw: SSEEvent{Event: EventServerHeartbeat}, skip: true},
		{name: "malformed delta", raw: SSEEvent{Event: EventMessageDelta, Data: "{"}, skip: true, hasErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok, err := DecodeEvent(tt.raw)
			if (err != nil) != tt.hasErr {
				t.Fatalf("err = %v, hasErr %v", err, tt.hasErr)
			}
			if ok == tt.skip {
				t.Fatalf("ok = %v, skip %v", ok, tt.skip)
			}
			if tt.skip {
				return
			}
			if ev.Kind != tt.want {
				t.Fatalf("kind = %v, want %v", ev.Kind, tt.want)
			}
			if tt.check != nil {
				tt.check(t, ev)
			}
		})
	}
}

func TestAPIErrorUserMessage(t *testing.T) {
	tests := map[int]bool{401: true, 403: true, 404: true, 429: true, 500: true, 400: false}
	for status, wantText := range tests {
		e := &APIError{Op: "send message", StatusCode: status}
		if got := e.UserMessage() != ""; got != wantText {
			t.Errorf("status %d: has user message = %v, want %v", status, got, wantText)
		}
	}
}
