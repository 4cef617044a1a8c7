// Package controller coordinates a conversation's message lifecycle: the
// optimistic send path, folding of streamed events into the store, history
// rewrites (retry, edit, redo) and cancellation.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wilbur182/datachat/internal/conversation"
	"github.com/wilbur182/datachat/internal/metrics"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultCancelTimeout  = 5 * time.Second
)

// unbound marks a conversation id not yet tied to any store generation.
const unbound = ^uint64(0)

// Backend is the remote side of a conversation.
type Backend interface {
	CreateConversation(ctx context.Context) (conversation.Conversation, error)
	SendMessage(ctx context.Context, conversationID, content string) (conversation.SendAck, error)
	CancelGeneration(ctx context.Context, conversationID string) error
}

// Notifier receives user-visible messages. It must not block.
type Notifier interface {
	Error(msg string)
	Info(msg string)
}

// Options configures a Controller. Zero values select defaults.
type Options struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration // bounds create conversation and send message
	CancelTimeout  time.Duration
	FeedGrace      time.Duration // how long a turn outlives a dropped feed
	NewID          func() string
	Now            func() time.Time
}

// turn is the outstanding assistant response cycle.
type turn struct {
	gen           uint64 // store generation the turn was sent in
	userMessageID string
	replyTo       string // server id from the send acknowledgment
	startedAt     time.Time
	sawToken      bool
}

// Controller owns the message lifecycle of the active conversation.
//
// Send, Retry, Edit, Redo and Stop may be called from any goroutine, but the
// caller must not start a new send while Busy reports true. Handle must be
// called from a single goroutine.
type Controller struct {
	store   *conversation.Store
	sync    *conversation.Synchronizer
	backend Backend
	notify  Notifier

	logger         *slog.Logger
	metrics        *metrics.Metrics
	requestTimeout time.Duration
	cancelTimeout  time.Duration
	feedGrace      time.Duration
	newID          func() string
	now            func() time.Time

	mu             sync.Mutex
	conversationID string
	boundGen       uint64 // store generation conversationID belongs to
	switches       uint64
	turn           *turn

	background sync.WaitGroup
}

// New creates a controller over store. syncer receives title updates and
// lazily created conversations.
func New(store *conversation.Store, syncer *conversation.Synchronizer, backend Backend, notify Notifier, opts Options) *Controller {
	c := &Controller{
		store:          store,
		sync:           syncer,
		backend:        backend,
		notify:         notify,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		requestTimeout: opts.RequestTimeout,
		cancelTimeout:  opts.CancelTimeout,
		feedGrace:      opts.FeedGrace,
		newID:          opts.NewID,
		now:            opts.Now,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = defaultRequestTimeout
	}
	if c.cancelTimeout <= 0 {
		c.cancelTimeout = defaultCancelTimeout
	}
	if c.feedGrace <= 0 {
		c.feedGrace = defaultFeedGrace
	}
	if c.newID == nil {
		c.newID = func() string { return uuid.New().String() }
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.boundGen = store.Generation()
	return c
}

// Store returns the state container driven by this controller.
func (c *Controller) Store() *conversation.Store {
	return c.store
}

// ConversationID returns the active conversation id, or "" before the first
// send of a new conversation.
func (c *Controller) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// ConversationAt returns the active conversation id if the store contents
// at generation gen belong to it, and "" otherwise.
func (c *Controller) ConversationAt(gen uint64) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.boundGen != gen {
		return ""
	}
	return c.conversationID
}

// Busy reports whether a turn is outstanding. The UI disables sending while
// it is true.
func (c *Controller) Busy() bool {
	return c.store.UIPhase() != conversation.PhaseIdle || c.store.Session().Phase != conversation.PhaseIdle
}

// Wait blocks until background tasks (title patches, cancel notices) finish.
func (c *Controller) Wait() {
	c.background.Wait()
}

// Send appends text as an optimistic user message and dispatches it. Blank
// text is a no-op. The answer arrives later through Handle.
func (c *Controller) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	// Must be read before the optimistic append.
	isFirst := c.store.Len() == 0
	gen := c.store.Generation()

	msg := conversation.Message{
		ID:        c.newID(),
		Role:      conversation.RoleUser,
		Content:   text,
		CreatedAt: c.now(),
	}
	c.store.AppendMessage(msg)

	return c.dispatch(ctx, gen, msg.ID, text, isFirst)
}

// dispatch runs the remote part of a send for the user message userID.
func (c *Controller) dispatch(ctx context.Context, gen uint64, userID, text string, isFirst bool) error {
	t := &turn{gen: gen, userMessageID: userID, startedAt: c.now()}
	c.store.SetUIPhase(conversation.PhaseThinking)

	c.mu.Lock()
	c.turn = t
	convID := c.conversationID
	switches := c.switches
	c.mu.Unlock()

	if convID == "" {
		createCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
		conv, err := c.backend.CreateConversation(createCtx)
		cancel()
		if c.store.Generation() != gen {
			return ErrSuperseded
		}
		if err != nil {
			return c.failDispatch(t, metrics.StageCreate, fmt.Errorf("datachat: %w: %w", ErrCreateConversation, err))
		}

		// a switch during the create owns the active id now
		c.mu.Lock()
		if c.switches != switches || c.store.Generation() != gen {
			c.mu.Unlock()
			return ErrSuperseded
		}
		c.conversationID = conv.ID
		c.boundGen = gen
		c.mu.Unlock()
		c.sync.Track(conv)
		convID = conv.ID
		c.logger.Debug("conversation created", "conversation", convID)
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	ack, err := c.backend.SendMessage(sendCtx, convID, text)
	cancel()
	if c.store.Generation() != gen {
		return ErrSuperseded
	}
	if err != nil {
		return c.failDispatch(t, metrics.StageSend, fmt.Errorf("datachat: %w: %w", ErrDispatch, err))
	}

	c.mu.Lock()
	if c.turn == t {
		t.replyTo = ack.MessageID
	}
	c.mu.Unlock()
	c.logger.Debug("message dispatched", "conversation", convID, "message", ack.MessageID, "status", ack.Status)

	if isFirst {
		c.generateTitle(convID, text)
	}
	return nil
}

// failDispatch marks the user message failed and returns to idle. It does
// not retry.
func (c *Controller) failDispatch(t *turn, stage string, err error) error {
	c.store.MarkFailed(t.userMessageID)

	c.mu.Lock()
	current := c.turn == t
	if current {
		c.turn = nil
	}
	c.mu.Unlock()

	if current {
		c.store.CancelTurn()
	}

	c.metrics.RecordDispatchFailure(stage)
	c.logger.Warn("dispatch failed", "stage", stage, "message", t.userMessageID, "err", err)
	c.notify.Error(UserMessage(err))
	return err
}

// generateTitle patches the conversation title in the background. Failures
// are logged and never reach the user.
func (c *Controller) generateTitle(convID, text string) {
	title := conversation.TitleOf(text)
	if title == "" {
		return
	}

	c.background.Add(1)
	go func() {
		defer c.background.Done()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("title task panicked", "conversation", convID, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
		defer cancel()

		err := c.sync.ApplyTitle(ctx, convID, title)
		c.metrics.RecordTitlePatch(err)
		if err != nil {
			c.logger.Warn("title patch failed", "conversation", convID, "err", err)
			return
		}
		c.logger.Debug("title patched", "conversation", convID, "title", title)
	}()
}

// claim clears t if it is still the outstanding turn. Only the caller that
// claims a turn may end it.
func (c *Controller) claim(t *turn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t == nil || c.turn != t {
		return false
	}
	c.turn = nil
	return true
}

// endTurn returns the UI to idle if t is still outstanding.
func (c *Controller) endTurn(t *turn, outcome string) bool {
	if !c.claim(t) {
		return false
	}
	c.store.SetUIPhase(conversation.PhaseIdle)
	c.metrics.RecordTurn(outcome)
	return true
}
