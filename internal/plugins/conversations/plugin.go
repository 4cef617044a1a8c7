// Package conversations is the conversation list tab. It shows the shared
// list cache and lets the user open, pin, rename and search conversations.
package conversations

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wilbur182/datachat/internal/conversation"
	"github.com/wilbur182/datachat/internal/history"
	"github.com/wilbur182/datachat/internal/keymap"
	"github.com/wilbur182/datachat/internal/logging"
	"github.com/wilbur182/datachat/internal/mouse"
	"github.com/wilbur182/datachat/internal/plugin"
)

const (
	pluginID   = "conversations"
	pluginName = "Conversations"
	pluginIcon = "☰"

	requestTimeout = 15 * time.Second
	maxTitleLength = 120

	rowRegion = "row"
)

// ErrNoSynchronizer is returned by Init when the context has no list cache.
var ErrNoSynchronizer = errors.New("conversations: no synchronizer")

type mode int

const (
	modeList mode = iota
	modeRename
	modeSearch
)

// RefreshedMsg carries a freshly loaded conversation list.
type RefreshedMsg struct {
	Conversations []conversation.Conversation
	Source        history.Source
	Err           error
}

// PinResultMsg is the outcome of a pin toggle.
type PinResultMsg struct {
	ID     string
	Pinned bool
	Err    error
}

// RenameResultMsg is the outcome of a rename.
type RenameResultMsg struct {
	ID    string
	Title string
	Err   error
}

// Plugin implements the conversation list tab.
type Plugin struct {
	ctx     *plugin.Context
	sync    *conversation.Synchronizer
	log     *slog.Logger
	focused bool
	width   int
	height  int

	all        []conversation.Conversation
	visible    []conversation.Conversation
	filter     Filter
	cursor     int
	scrollOff  int
	selectedID string
	refreshing bool

	mode     mode
	input    textinput.Model
	renaming string
	mouse    *mouse.Handler

	runCtx    context.Context
	cancel    context.CancelFunc
	unsub     func()
	coalescer *ChangeCoalescer
	changes   chan ListChangedMsg
}

var _ plugin.Plugin = (*Plugin)(nil)
var _ plugin.TextInputConsumer = (*Plugin)(nil)

// New creates a conversations plugin.
func New() *Plugin {
	return &Plugin{mouse: mouse.NewHandler()}
}

// ID returns the plugin identifier.
func (p *Plugin) ID() string { return pluginID }

// Name returns the plugin display name.
func (p *Plugin) Name() string { return pluginName }

// Icon returns the plugin icon.
func (p *Plugin) Icon() string { return pluginIcon }

// Init binds the plugin to the shared list cache.
func (p *Plugin) Init(ctx *plugin.Context) error {
	if ctx.Sync == nil {
		return ErrNoSynchronizer
	}
	p.ctx = ctx
	p.sync = ctx.Sync
	p.log = ctx.Logger
	if p.log == nil {
		p.log = logging.Discard()
	}

	p.input = textinput.New()
	p.input.CharLimit = maxTitleLength
	p.input.Prompt = ""

	p.reload()
	return nil
}

// Start follows list-cache changes and loads the list from the server.
func (p *Plugin) Start() tea.Cmd {
	p.runCtx, p.cancel = context.WithCancel(context.Background())

	p.changes = make(chan ListChangedMsg, 1)
	p.coalescer = NewChangeCoalescer(0, p.changes)
	p.unsub = p.ctx.List().Subscribe(func([]conversation.Conversation) {
		p.coalescer.Add()
	})

	return tea.Batch(listenChanges(p.runCtx, p.changes), p.refresh())
}

// Stop drops the subscription and cancels in-flight requests.
func (p *Plugin) Stop() {
	if p.unsub != nil {
		p.unsub()
		p.unsub = nil
	}
	if p.coalescer != nil {
		p.coalescer.Stop()
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func listenChanges(ctx context.Context, ch <-chan ListChangedMsg) tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-ch:
			return msg
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

	case ListChangedMsg:
		p.reload()
		return p, listenChanges(p.baseCtx(), p.changes)

	case RefreshedMsg:
		p.refreshing = false
		if m.Err != nil {
			p.log.Warn("conversation list refresh failed", "err", m.Err)
			return p, toast("Could not load conversations.", true)
		}
		p.ctx.List().Set(m.Conversations)
		p.reload()
		if m.Source == history.SourceOffline {
			return p, toast("Server unreachable, showing saved conversations.", false)
		}
		return p, nil

	case PinResultMsg:
		p.reload()
		if m.Err != nil {
			return p, toast("Could not update the pin. It was restored.", true)
		}
		return p, nil

	case RenameResultMsg:
		p.reload()
		if m.Err != nil {
			p.log.Warn("rename failed", "conversation", m.ID, "err", m.Err)
			return p, toast("Could not rename the conversation.", true)
		}
		return p, toast("Renamed to "+m.Title, false)

	case plugin.SwitchConversationMsg:
		p.selectedID = m.Conversation.ID
		p.reload()
		return p, nil

	case plugin.CommandMsg:
		return p, p.runCommand(m.ID)

	case tea.KeyMsg:
		return p, p.handleKey(m)

	case tea.MouseMsg:
		return p, p.handleMouse(m)
	}
	return p, nil
}

// handleMouse selects a row on click, opens it on double click and moves
// the selection with the wheel.
func (p *Plugin) handleMouse(m tea.MouseMsg) tea.Cmd {
	if p.mode != modeList {
		return nil
	}
	action := p.mouse.HandleMouse(m)
	switch action.Type {
	case mouse.ActionClick, mouse.ActionDoubleClick:
		idx, ok := action.Region.Data.(int)
		if !ok || idx < 0 || idx >= len(p.visible) {
			return nil
		}
		p.cursor = idx
		p.selectedID = p.visible[idx].ID
		if action.Type == mouse.ActionDoubleClick {
			return p.runCommand(keymap.CmdOpen)
		}
	case mouse.ActionScrollUp:
		p.move(-1)
	case mouse.ActionScrollDown:
		p.move(1)
	}
	return nil
}

func (p *Plugin) runCommand(id string) tea.Cmd {
	if p.mode != modeList {
		return nil
	}
	switch id {
	case keymap.CmdUp:
		p.move(-1)
	case keymap.CmdDown:
		p.move(1)
	case keymap.CmdOpen:
		if conv, ok := p.selected(); ok {
			return func() tea.Msg { return plugin.SwitchConversationMsg{Conversation: conv} }
		}
	case keymap.CmdCreate:
		return func() tea.Msg { return plugin.NewConversationMsg{} }
	case keymap.CmdRefresh:
		return p.refresh()
	case keymap.CmdPin:
		return p.togglePin()
	case keymap.CmdRename:
		conv, ok := p.selected()
		if !ok {
			return nil
		}
		p.mode = modeRename
		p.renaming = conv.ID
		p.input.SetValue(conv.Title)
		p.input.CursorEnd()
		return p.input.Focus()
	case keymap.CmdSearch:
		p.mode = modeSearch
		p.input.SetValue(p.filter.Query)
		p.input.CursorEnd()
		return p.input.Focus()
	case keymap.CmdPinned:
		p.filter.PinnedOnly = !p.filter.PinnedOnly
		p.reload()
	}
	return nil
}

// handleKey edits the rename or search input. List mode keys arrive as
// commands.
func (p *Plugin) handleKey(k tea.KeyMsg) tea.Cmd {
	switch p.mode {
	case modeRename:
		switch k.Type {
		case tea.KeyEsc:
			p.endInput()
			return nil
		case tea.KeyEnter:
			id, title := p.renaming, strings.TrimSpace(p.input.Value())
			p.endInput()
			if title == "" {
				return nil
			}
			return p.rename(id, title)
		}
	case modeSearch:
		switch k.Type {
		case tea.KeyEsc:
			p.filter.Query = ""
			p.endInput()
			p.reload()
			return nil
		case tea.KeyEnter:
			p.endInput()
			return nil
		}
	default:
		return nil
	}

	var cmd tea.Cmd
	p.input, cmd = p.input.Update(k)
	if p.mode == modeSearch {
		p.filter.Query = strings.TrimSpace(p.input.Value())
		p.cursor, p.scrollOff = 0, 0
		p.selectedID = ""
		p.reload()
	}
	return cmd
}

func (p *Plugin) endInput() {
	p.mode = modeList
	p.renaming = ""
	p.input.Blur()
	p.input.Reset()
}

func (p *Plugin) togglePin() tea.Cmd {
	conv, ok := p.selected()
	if !ok {
		return nil
	}
	pinned := !conv.IsPinned
	ctx, syncer := p.baseCtx(), p.sync
	return func() tea.Msg {
		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		return PinResultMsg{ID: conv.ID, Pinned: pinned, Err: syncer.SetPinned(reqCtx, conv.ID, pinned)}
	}
}

func (p *Plugin) rename(id, title string) tea.Cmd {
	ctx, syncer := p.baseCtx(), p.sync
	return func() tea.Msg {
		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		return RenameResultMsg{ID: id, Title: title, Err: syncer.ApplyTitle(reqCtx, id, title)}
	}
}

func (p *Plugin) refresh() tea.Cmd {
	loader := p.ctx.Loader
	if loader == nil || p.refreshing {
		return nil
	}
	p.refreshing = true
	ctx := p.baseCtx()
	return func() tea.Msg {
		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		convs, src, err := loader.Conversations(reqCtx)
		return RefreshedMsg{Conversations: convs, Source: src, Err: err}
	}
}

// reload rebuilds the visible list from the cache, keeping the selection on
// the same conversation when it is still visible.
func (p *Plugin) reload() {
	p.all = p.ctx.List().List()
	p.visible = p.filter.Apply(p.all)

	p.cursor = min(p.cursor, max(len(p.visible)-1, 0))
	if p.selectedID != "" {
		for i, c := range p.visible {
			if c.ID == p.selectedID {
				p.cursor = i
				break
			}
		}
	}
	if conv, ok := p.selected(); ok {
		p.selectedID = conv.ID
	}
}

func (p *Plugin) move(delta int) {
	if len(p.visible) == 0 {
		return
	}
	p.cursor = min(max(p.cursor+delta, 0), len(p.visible)-1)
	p.selectedID = p.visible[p.cursor].ID
}

func (p *Plugin) selected() (conversation.Conversation, bool) {
	if p.cursor < 0 || p.cursor >= len(p.visible) {
		return conversation.Conversation{}, false
	}
	return p.visible[p.cursor], true
}

func (p *Plugin) activeID() string {
	if p.ctx.Controller == nil {
		return ""
	}
	return p.ctx.Controller.ConversationID()
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

// IsFocused returns whether the plugin is focused.
func (p *Plugin) IsFocused() bool { return p.focused }

// SetFocused sets the focus state.
func (p *Plugin) SetFocused(f bool) { p.focused = f }

// Commands returns the footer commands.
func (p *Plugin) Commands() []plugin.Command {
	return []plugin.Command{
		{ID: keymap.CmdOpen, Name: "Open", Description: "Open conversation", Category: plugin.CategoryNavigation, Context: keymap.ContextConversations, Priority: 1},
		{ID: keymap.CmdCreate, Name: "New", Description: "New conversation", Category: plugin.CategoryActions, Context: keymap.ContextConversations, Priority: 2},
		{ID: keymap.CmdPin, Name: "Pin", Description: "Toggle pin", Category: plugin.CategoryActions, Context: keymap.ContextConversations, Priority: 3},
		{ID: keymap.CmdRename, Name: "Rename", Description: "Rename conversation", Category: plugin.CategoryActions, Context: keymap.ContextConversations, Priority: 4},
		{ID: keymap.CmdSearch, Name: "Search", Description: "Filter by title", Category: plugin.CategoryView, Context: keymap.ContextConversations, Priority: 5},
		{ID: keymap.CmdRefresh, Name: "Refresh", Description: "Reload from server", Category: plugin.CategoryView, Context: keymap.ContextConversations, Priority: 6},
	}
}

// FocusContext returns the keymap context for the current mode.
func (p *Plugin) FocusContext() string {
	switch p.mode {
	case modeRename:
		return keymap.ContextRename
	case modeSearch:
		return keymap.ContextSearch
	default:
		return keymap.ContextConversations
	}
}

// ConsumesTextInput reports whether the rename or search input is open.
func (p *Plugin) ConsumesTextInput() bool {
	return p.mode != modeList
}
