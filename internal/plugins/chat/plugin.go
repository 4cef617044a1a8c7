// Package chat is the conversation tab: it renders the active conversation,
// takes questions and drives the controller's send, retry, edit, redo and
// stop operations.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wilbur182/datachat/internal/controller"
	"github.com/wilbur182/datachat/internal/conversation"
	"github.com/wilbur182/datachat/internal/history"
	"github.com/wilbur182/datachat/internal/keymap"
	"github.com/wilbur182/datachat/internal/logging"
	"github.com/wilbur182/datachat/internal/markdown"
	"github.com/wilbur182/datachat/internal/plugin"
	"github.com/wilbur182/datachat/internal/transcript"
	"github.com/wilbur182/datachat/internal/ui"
)

const (
	pluginID   = "chat"
	pluginName = "Chat"
	pluginIcon = "💬"

	pingTimeout = 5 * time.Second
)

// ErrNoController is returned by Init when the context carries no controller.
var ErrNoController = errors.New("chat: no controller")

// Plugin implements the chat tab.
type Plugin struct {
	ctx     *plugin.Context
	ctrl    *controller.Controller
	log     *slog.Logger
	focused bool
	width   int
	height  int

	snap      conversation.Snapshot
	connected bool
	loading   bool
	editingID string
	err       error

	input       *Input
	msgViewport MessageViewport
	md          *markdown.Renderer
	sql         *transcript.SQLHighlighter
	spinner     ui.BrailleSpinner

	runCtx  context.Context
	cancel  context.CancelFunc
	unsub   func()
	updates chan conversation.Snapshot
	feed    chan bool
}

var _ plugin.Plugin = (*Plugin)(nil)
var _ plugin.TextInputConsumer = (*Plugin)(nil)

// New creates a chat plugin.
func New() *Plugin {
	return &Plugin{}
}

// ID returns the plugin identifier.
func (p *Plugin) ID() string { return pluginID }

// Name returns the plugin display name.
func (p *Plugin) Name() string { return pluginName }

// Icon returns the plugin icon.
func (p *Plugin) Icon() string { return pluginIcon }

// Init binds the plugin to the shared controller.
func (p *Plugin) Init(ctx *plugin.Context) error {
	if ctx.Controller == nil {
		return ErrNoController
	}
	p.ctx = ctx
	p.ctrl = ctx.Controller
	p.log = ctx.Logger
	if p.log == nil {
		p.log = logging.Discard()
	}
	p.snap = ctx.Controller.Store().Snapshot()
	p.connected = ctx.EventSource() == nil
	p.input = NewInput()
	p.input.Focus()
	p.msgViewport = NewMessageViewport(80, 20)
	p.md = markdown.NewRenderer(ctx.Logger)
	p.sql = transcript.NewSQLHighlighter()
	p.spinner = ui.NewBrailleSpinner(pluginID)
	return nil
}

// Start subscribes to the store, follows the event feed and checks the
// server is reachable.
func (p *Plugin) Start() tea.Cmd {
	p.runCtx, p.cancel = context.WithCancel(context.Background())

	updates := make(chan conversation.Snapshot, 1)
	p.updates = updates
	p.unsub = p.ctrl.Store().Subscribe(func(s conversation.Snapshot) {
		// keep only the newest snapshot
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- s:
		default:
		}
	})

	cmds := []tea.Cmd{listenStore(p.runCtx, updates)}

	if src := p.ctx.EventSource(); src != nil {
		feed := make(chan bool, 4)
		p.feed = feed
		runCtx := p.runCtx
		go func() {
			err := p.ctrl.Follow(runCtx, src, func(connected bool) {
				select {
				case feed <- connected:
				case <-runCtx.Done():
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				p.log.Warn("event feed stopped", "err", err)
			}
		}()
		cmds = append(cmds, listenFeed(p.runCtx, feed))
	}

	if c := p.ctx.Client; c != nil {
		epoch := p.ctx.CurrentEpoch()
		runCtx := p.runCtx
		cmds = append(cmds, func() tea.Msg {
			pingCtx, cancel := context.WithTimeout(runCtx, pingTimeout)
			defer cancel()
			if err := c.Ping(pingCtx); err != nil {
				return ConnectionErrorMsg{
					Err:   fmt.Errorf("cannot reach %s: %w", c.BaseURL(), err),
					Epoch: epoch,
				}
			}
			return nil
		})
	}
	return tea.Batch(cmds...)
}

// Stop cancels the feed and drops the store subscription.
func (p *Plugin) Stop() {
	if p.unsub != nil {
		p.unsub()
		p.unsub = nil
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func listenStore(ctx context.Context, ch <-chan conversation.Snapshot) tea.Cmd {
	return func() tea.Msg {
		select {
		case snap := <-ch:
			return StoreChangedMsg{Snapshot: snap}
		case <-ctx.Done():
			return nil
		}
	}
}

func listenFeed(ctx context.Context, ch <-chan bool) tea.Cmd {
	return func() tea.Msg {
		select {
		case connected := <-ch:
			return FeedStateMsg{Connected: connected}
		case <-ctx.Done():
			return nil
		}
	}
}

// Update handles tea messages.
func (p *Plugin) Update(msg tea.Msg) (plugin.Plugin, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		p.width = m.Width
		p.height = m.Height
		return p, nil

	case plugin.PluginFocusedMsg:
		p.input.Focus()
		return p, nil

	case tea.KeyMsg:
		switch m.String() {
		case "pgup", "pgdown", "ctrl+u", "ctrl+d":
			return p, p.msgViewport.Update(m)
		}
		if !p.input.IsFocused() {
			return p, p.msgViewport.Update(m)
		}
		newInput, cmd := p.input.Update(m)
		p.input = newInput
		return p, cmd

	case tea.MouseMsg:
		return p, p.msgViewport.Update(m)

	case StoreChangedMsg:
		p.snap = m.Snapshot
		p.syncInput()
		return p, tea.Batch(listenStore(p.runCtx, p.updates), p.syncSpinner())

	case ui.SpinnerTickMsg:
		return p, p.spinner.Update(m)

	case FeedStateMsg:
		p.connected = m.Connected
		if m.Connected {
			p.err = nil
		}
		return p, listenFeed(p.runCtx, p.feed)

	case ConnectionErrorMsg:
		if plugin.IsStale(p.ctx, m) {
			return p, nil
		}
		p.err = m.Err
		p.log.Warn("server unreachable", "err", m.Err)
		return p, toast("Cannot reach the server. Answers will resume once it is back.", true)

	case SendPromptMsg:
		return p, p.submit(m.Content)

	case SendResultMsg:
		if plugin.IsStale(p.ctx, m) {
			return p, nil
		}
		p.syncInput()
		if m.Err != nil && !controller.Reported(m.Err) {
			return p, toast(controller.UserMessage(m.Err), true)
		}
		return p, nil

	case HistoryLoadedMsg:
		if plugin.IsStale(p.ctx, m) {
			return p, nil
		}
		return p, p.applyHistory(m)

	case plugin.SwitchConversationMsg:
		return p, p.switchTo(m.Conversation)

	case plugin.NewConversationMsg:
		p.resetForSwitch()
		p.ctrl.NewConversation()
		p.input.Focus()
		return p, nil

	case plugin.ThemeChangedMsg:
		p.sql = transcript.NewSQLHighlighter()
		return p, nil

	case plugin.CommandMsg:
		return p, p.runCommand(m.ID)
	}

	return p, nil
}

// syncSpinner runs the status spinner while an answer is pending.
func (p *Plugin) syncSpinner() tea.Cmd {
	if p.snap.UIPhase == conversation.PhaseIdle {
		p.spinner.Stop()
		return nil
	}
	return p.spinner.Start()
}

// submit sends text, or applies the pending edit.
func (p *Plugin) submit(text string) tea.Cmd {
	if p.loading || p.ctrl.Busy() {
		return nil
	}
	p.input.SetSubmitting(true, "")

	editing := p.editingID
	p.editingID = ""
	p.input.SetEditing(false)

	if editing != "" {
		return p.run(func(ctx context.Context) error { return p.ctrl.Edit(ctx, editing, text) })
	}
	return p.run(func(ctx context.Context) error { return p.ctrl.Send(ctx, text) })
}

// run executes a controller operation off the update loop.
func (p *Plugin) run(op func(ctx context.Context) error) tea.Cmd {
	epoch := p.ctx.CurrentEpoch()
	runCtx := p.baseCtx()
	return func() tea.Msg {
		return SendResultMsg{Err: op(runCtx), Epoch: epoch}
	}
}

func (p *Plugin) runCommand(id string) tea.Cmd {
	switch id {
	case keymap.CmdStop:
		if p.editingID != "" {
			p.cancelEdit()
			return nil
		}
		if p.ctrl.Busy() {
			p.ctrl.Stop(p.baseCtx())
			p.syncInput()
		}
		return nil

	case keymap.CmdRetry:
		msg, ok := p.lastMessage(func(m conversation.Message) bool {
			return m.Role == conversation.RoleUser && m.SendFailed
		})
		if !ok {
			return toast("Nothing to retry.", false)
		}
		if p.ctrl.Busy() {
			return toast(controller.UserMessage(controller.ErrRetryNotAllowed), true)
		}
		p.input.SetSubmitting(true, "")
		return p.run(func(ctx context.Context) error { return p.ctrl.Retry(ctx, msg.ID) })

	case keymap.CmdEdit:
		msg, ok := p.lastMessage(func(m conversation.Message) bool {
			return m.Role == conversation.RoleUser && !m.SendFailed
		})
		if !ok {
			return toast("Nothing to edit.", false)
		}
		if p.ctrl.Busy() {
			return toast(controller.UserMessage(controller.ErrEditNotAllowed), true)
		}
		p.editingID = msg.ID
		p.input.SetEditing(true)
		p.input.SetValue(msg.Content)
		p.input.Focus()
		return nil

	case keymap.CmdRedo:
		msg, ok := p.lastMessage(func(m conversation.Message) bool {
			return m.Role == conversation.RoleAssistant
		})
		if !ok {
			return toast("Nothing to regenerate.", false)
		}
		if p.ctrl.Busy() {
			return toast(controller.UserMessage(controller.ErrRedoNotAllowed), true)
		}
		p.input.SetSubmitting(true, "")
		return p.run(func(ctx context.Context) error { return p.ctrl.Redo(ctx, msg.ID) })

	case keymap.CmdCopy:
		answer, ok := transcript.LastAnswer(p.snap.Messages)
		if !ok {
			return toast("No answer to copy.", false)
		}
		return copyCmd(answer, "Copied answer")

	case keymap.CmdCopyAll:
		if len(p.snap.Messages) == 0 {
			return toast("Conversation is empty.", false)
		}
		conv := conversation.Conversation{ID: p.ctrl.ConversationID()}
		if c, ok := p.ctx.List().Get(conv.ID); ok {
			conv = c
		}
		return copyCmd(transcript.ExportMarkdown(conv, p.snap.Messages), "Copied conversation as markdown")

	case keymap.CmdNew:
		return func() tea.Msg { return plugin.NewConversationMsg{} }
	}
	return nil
}

// switchTo makes conv active. The store is cleared at once and its history
// loads in the background; results of an older switch are dropped by epoch.
func (p *Plugin) switchTo(conv conversation.Conversation) tea.Cmd {
	if conv.ID == p.ctrl.ConversationID() && !p.loading {
		return nil
	}
	p.resetForSwitch()
	p.ctrl.SwitchConversation(conv.ID, nil)

	loader := p.ctx.Loader
	if loader == nil {
		return nil
	}
	p.loading = true
	p.input.SetSubmitting(true, "Loading...")

	epoch := p.ctx.CurrentEpoch()
	runCtx := p.baseCtx()
	return func() tea.Msg {
		msgs, src, err := loader.Messages(runCtx, conv)
		return HistoryLoadedMsg{Conversation: conv, Messages: msgs, Source: src, Err: err, Epoch: epoch}
	}
}

// resetForSwitch abandons the current turn and edit and invalidates every
// async result tied to the previous conversation.
func (p *Plugin) resetForSwitch() {
	if p.ctrl.Busy() {
		p.ctrl.Stop(p.baseCtx())
	}
	if p.ctx.Loader != nil {
		p.ctx.Loader.Invalidate(p.ctrl.ConversationID())
	}
	p.ctx.BumpEpoch()
	p.cancelEdit()
	p.loading = false
	p.input.SetSubmitting(false, "")
}

func (p *Plugin) applyHistory(m HistoryLoadedMsg) tea.Cmd {
	p.loading = false
	p.input.SetSubmitting(false, "")

	if m.Err != nil {
		p.log.Warn("history load failed", "conversation", m.Conversation.ID, "err", m.Err)
		return toast("Could not load this conversation. Please try again.", true)
	}
	p.ctrl.SwitchConversation(m.Conversation.ID, m.Messages)
	p.snap = p.ctrl.Store().Snapshot()
	if m.Source == history.SourceOffline {
		return toast("Server unreachable, showing saved history.", false)
	}
	return nil
}

func (p *Plugin) cancelEdit() {
	if p.editingID == "" {
		return
	}
	p.editingID = ""
	p.input.SetEditing(false)
	p.input.Reset()
}

// syncInput blocks the input while a turn is outstanding.
func (p *Plugin) syncInput() {
	if p.loading {
		return
	}
	p.input.SetSubmitting(p.ctrl.Busy(), "")
}

func (p *Plugin) lastMessage(match func(conversation.Message) bool) (conversation.Message, bool) {
	msgs := p.snap.Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if match(msgs[i]) {
			return msgs[i], true
		}
	}
	return conversation.Message{}, false
}

func (p *Plugin) baseCtx() context.Context {
	if p.runCtx != nil {
		return p.runCtx
	}
	return context.Background()
}

func toast(msg string, isErr bool) tea.Cmd {
	return func() tea.Msg { return plugin.ToastMsg{Message: msg, IsError: isErr} }
}

func copyCmd(content, done string) tea.Cmd {
	return func() tea.Msg {
		if err := transcript.CopyToClipboard(content); err != nil {
			return plugin.ToastMsg{Message: "Copy failed: " + err.Error(), IsError: true}
		}
		return plugin.ToastMsg{Message: done}
	}
}

// IsFocused returns whether the plugin is focused.
func (p *Plugin) IsFocused() bool { return p.focused }

// SetFocused sets the focus state.
func (p *Plugin) SetFocused(f bool) { p.focused = f }

// Commands returns the footer commands.
func (p *Plugin) Commands() []plugin.Command {
	return []plugin.Command{
		{ID: keymap.CmdStop, Name: "Stop", Description: "Stop the answer", Category: plugin.CategoryActions, Context: keymap.ContextChat, Priority: 1},
		{ID: keymap.CmdRetry, Name: "Retry", Description: "Resend a failed question", Category: plugin.CategoryActions, Context: keymap.ContextChat, Priority: 2},
		{ID: keymap.CmdEdit, Name: "Edit", Description: "Edit the last question", Category: plugin.CategoryActions, Context: keymap.ContextChat, Priority: 3},
		{ID: keymap.CmdRedo, Name: "Redo", Description: "Regenerate the last answer", Category: plugin.CategoryActions, Context: keymap.ContextChat, Priority: 4},
		{ID: keymap.CmdCopy, Name: "Copy", Description: "Copy the last answer", Category: plugin.CategoryView, Context: keymap.ContextChat, Priority: 5},
		{ID: keymap.CmdNew, Name: "New", Description: "Start a new conversation", Category: plugin.CategoryNavigation, Context: keymap.ContextChat, Priority: 6},
	}
}

// FocusContext returns the keymap context.
func (p *Plugin) FocusContext() string {
	return keymap.ContextChat
}

// ConsumesTextInput reports whether typed keys belong to the input.
func (p *Plugin) ConsumesTextInput() bool {
	return p.input != nil && p.input.IsFocused()
}
