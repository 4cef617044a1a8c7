package controller

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wilbur182/datachat/internal/conversation"
	"github.com/wilbur182/datachat/internal/metrics"
)

// Run folds events into the store until events is closed or ctx is done.
func (c *Controller) Run(ctx context.Context, events <-chan conversation.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.Handle(ev)
		}
	}
}

// Handle folds one event from the streaming feed into the store. Events for
// another conversation, another turn, or a turn that already ended are
// dropped silently.
func (c *Controller) Handle(ev conversation.Event) {
	t, reason, ok := c.accept(ev)
	if !ok {
		c.drop(ev, reason)
		return
	}

	switch ev.Kind {
	case conversation.EventTokenDelta:
		c.handleToken(t, ev)
	case conversation.EventComplete:
		c.handleComplete(t, ev)
	case conversation.EventError:
		c.handleError(t, ev)
	case conversation.EventSideEffect:
		c.handleSideEffect(ev)
	default:
		c.logger.Debug("unknown event kind", "kind", int(ev.Kind))
	}
}

func (c *Controller) drop(ev conversation.Event, reason string) {
	c.metrics.RecordDrop(reason)
	c.logger.Debug("event dropped", "kind", ev.Kind, "conversation", ev.ConversationID, "reason", reason)
}

// accept applies the identity checks and returns the turn the event belongs
// to. Side effects are only scoped to the conversation; turn events must
// also match the outstanding turn.
func (c *Controller) accept(ev conversation.Event) (*turn, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ev.ConversationID != "" && ev.ConversationID != c.conversationID {
		return nil, metrics.DropConversation, false
	}
	if ev.Kind == conversation.EventSideEffect {
		return c.turn, "", true
	}
	if c.turn == nil {
		return nil, metrics.DropIdle, false
	}
	if ev.ReplyTo != "" && c.turn.replyTo != "" && ev.ReplyTo != c.turn.replyTo {
		return nil, metrics.DropTurn, false
	}
	return c.turn, "", true
}

// current reports whether t is still the outstanding turn.
func (c *Controller) current(t *turn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turn == t
}

func (c *Controller) handleToken(t *turn, ev conversation.Event) {
	if c.store.Session().Phase != conversation.PhaseIdle {
		if !c.current(t) {
			c.drop(ev, metrics.DropIdle)
			return
		}
		c.store.AppendToken(ev.Text)
		return
	}

	// First token of the turn: the placeholder is created now, not at send
	// time, since a turn may fail before producing any text. The store
	// refuses it if the turn was stopped or switched away meanwhile.
	id := c.newID()
	opened, err := c.store.OpenTurn(t.gen, conversation.Message{
		ID:        id,
		Role:      conversation.RoleAssistant,
		CreatedAt: c.now(),
	}, ev.Text)
	if err != nil {
		panic(fmt.Sprintf("controller: open turn %s: %v", id, err))
	}
	if !opened || !c.current(t) {
		if opened {
			// stopped between the check and the open
			c.store.CancelTurn()
		}
		c.drop(ev, metrics.DropIdle)
		return
	}
	c.markFirstToken(t)
}

func (c *Controller) markFirstToken(t *turn) {
	c.mu.Lock()
	first := !t.sawToken
	t.sawToken = true
	c.mu.Unlock()

	if first {
		c.metrics.ObserveFirstToken(c.now().Sub(t.startedAt))
	}
}

func (c *Controller) handleComplete(t *turn, ev conversation.Event) {
	outcome := metrics.OutcomeCompleted

	switch {
	case c.store.Session().Phase != conversation.PhaseIdle:
		if !c.current(t) || !c.store.FinalizeStreaming(ev.Final) {
			c.drop(ev, metrics.DropIdle)
			return
		}
	case c.store.UIPhase() == conversation.PhaseThinking:
		// Completed without a single token. Keep whatever extras came along.
		outcome = metrics.OutcomeEmpty
		if !ev.Final.IsEmpty() {
			answer := conversation.Message{
				ID:            c.newID(),
				Role:          conversation.RoleAssistant,
				SQLExecutions: ev.Final.SQLExecutions,
				Reasoning:     ev.Final.Reasoning,
				CreatedAt:     c.now(),
			}
			if !c.store.AppendAnswer(t.gen, answer) {
				c.drop(ev, metrics.DropIdle)
				return
			}
			outcome = metrics.OutcomeCompleted
		}
	default:
		c.drop(ev, metrics.DropIdle)
		return
	}

	if !c.endTurn(t, outcome) {
		// stopped after the answer landed; the stop already settled the UI
		c.logger.Debug("turn ended by stop", "conversation", ev.ConversationID)
	}
}

func (c *Controller) handleError(t *turn, ev conversation.Event) {
	if !c.claim(t) {
		c.drop(ev, metrics.DropIdle)
		return
	}
	c.store.CancelTurn()
	c.metrics.RecordTurn(metrics.OutcomeFailed)

	reason := ev.Reason
	if reason == "" {
		reason = "The assistant could not answer. Please try again."
	}
	c.logger.Warn("stream failed", "conversation", ev.ConversationID, "reason", ev.Reason)
	c.notify.Error(reason)
}

func (c *Controller) handleSideEffect(ev conversation.Event) {
	c.logger.Debug("side effect", "name", ev.Name, "conversation", ev.ConversationID)
	if msg := sideEffectText(ev); msg != "" {
		c.notify.Info(msg)
	}
}

// sideEffectText returns the payload's "message" field, falling back to the
// event name.
func sideEffectText(ev conversation.Event) string {
	var body struct {
		Message string `json:"message"`
	}
	if len(ev.Payload) > 0 && json.Unmarshal(ev.Payload, &body) == nil && body.Message != "" {
		return body.Message
	}
	return ev.Name
}
