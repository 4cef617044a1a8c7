package controller

import (
	"context"
	"fmt"
	"strings"

	"github.com/wilbur182/datachat/internal/conversation"
	"github.com/wilbur182/datachat/internal/metrics"
)

// Retry resends a failed user message. The failed entry is removed first so
// the resend's optimistic message replaces it.
func (c *Controller) Retry(ctx context.Context, messageID string) error {
	msg, ok := c.store.Message(messageID)
	if !ok || msg.Role != conversation.RoleUser || !msg.SendFailed || c.Busy() {
		return fmt.Errorf("datachat: retry %s: %w", messageID, ErrRetryNotAllowed)
	}

	c.store.RemoveMessage(messageID)
	return c.Send(ctx, msg.Content)
}

// Edit discards messageID and everything after it, then sends text as a new
// message.
func (c *Controller) Edit(ctx context.Context, messageID, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("datachat: edit %s: %w", messageID, ErrEmptyMessage)
	}

	msg, ok := c.store.Message(messageID)
	if !ok || msg.Role != conversation.RoleUser || msg.SendFailed || c.Busy() {
		return fmt.Errorf("datachat: edit %s: %w", messageID, ErrEditNotAllowed)
	}

	c.store.TruncateFrom(messageID)
	return c.Send(ctx, text)
}

// Redo regenerates an assistant answer. The answer and everything after it
// are discarded and the preceding user message is dispatched again; that
// message stays in place.
func (c *Controller) Redo(ctx context.Context, assistantID string) error {
	msgs := c.store.Messages()

	idx := -1
	for i := range msgs {
		if msgs[i].ID == assistantID {
			idx = i
			break
		}
	}
	if idx < 0 || msgs[idx].Role != conversation.RoleAssistant || c.Busy() {
		return fmt.Errorf("datachat: redo %s: %w", assistantID, ErrRedoNotAllowed)
	}

	var question conversation.Message
	for i := idx - 1; i >= 0; i-- {
		if msgs[i].Role == conversation.RoleUser {
			question = msgs[i]
			break
		}
	}
	if question.ID == "" {
		return fmt.Errorf("datachat: redo %s: %w", assistantID, ErrRedoNotAllowed)
	}

	gen := c.store.Generation()
	c.store.TruncateFrom(assistantID)
	return c.dispatch(ctx, gen, question.ID, question.Content, false)
}

// Stop cancels the outstanding turn locally and notifies the server in the
// background. Tokens that still arrive are dropped.
func (c *Controller) Stop(ctx context.Context) {
	c.mu.Lock()
	active := c.turn != nil
	c.turn = nil
	convID := c.conversationID
	c.mu.Unlock()

	if !active && !c.Busy() {
		return
	}

	c.store.CancelTurn()
	c.metrics.RecordTurn(metrics.OutcomeCancelled)
	c.logger.Info("turn cancelled", "conversation", convID)

	if convID == "" {
		return
	}

	c.background.Add(1)
	go func() {
		defer c.background.Done()
		cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cancelTimeout)
		defer cancel()
		if err := c.backend.CancelGeneration(cancelCtx, convID); err != nil {
			c.logger.Warn("cancel notice failed", "conversation", convID, "err", err)
		}
	}()
}

// SwitchConversation makes id the active conversation with history msgs.
// Any in-flight turn is discarded; its remaining events fail the
// conversation check. The id is bound to the store only once the old
// contents are gone, so observers never pair it with the wrong messages.
func (c *Controller) SwitchConversation(id string, msgs []conversation.Message) {
	c.mu.Lock()
	c.turn = nil
	c.conversationID = id
	c.boundGen = unbound
	c.switches++
	switches := c.switches
	c.mu.Unlock()

	gen := c.store.Reset()

	c.mu.Lock()
	if c.switches == switches {
		c.boundGen = gen
	}
	c.mu.Unlock()

	if len(msgs) > 0 {
		c.store.Replace(msgs)
	}
	c.logger.Debug("conversation switched", "conversation", id, "messages", len(msgs))
}

// NewConversation clears the active conversation. The next send creates one.
func (c *Controller) NewConversation() {
	c.SwitchConversation("", nil)
}
