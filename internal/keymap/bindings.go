package keymap

import tea "github.com/charmbracelet/bubbletea"

// Command ids.
const (
	CmdQuit    = "app.quit"
	CmdNextTab = "app.next-tab"
	CmdPrevTab = "app.prev-tab"
	CmdTheme   = "app.theme"
	CmdReason  = "app.toggle-reasoning"

	CmdStop    = "chat.stop"
	CmdRetry   = "chat.retry"
	CmdEdit    = "chat.edit"
	CmdRedo    = "chat.redo"
	CmdCopy    = "chat.copy"
	CmdCopyAll = "chat.copy-all"
	CmdNew     = "chat.new"

	CmdOpen    = "conversations.open"
	CmdPin     = "conversations.pin"
	CmdRename  = "conversations.rename"
	CmdRefresh = "conversations.refresh"
	CmdCreate  = "conversations.new"
	CmdUp      = "conversations.up"
	CmdDown    = "conversations.down"
	CmdSearch  = "conversations.search"
	CmdPinned  = "conversations.pinned-only"
)

// Focus contexts.
const (
	ContextChat          = "chat"
	ContextConversations = "conversations"
	ContextRename        = "conversations-rename"
	ContextSearch        = "conversations-search"
)

// DefaultCommands lists every command with its display name and context.
func DefaultCommands() []Command {
	return []Command{
		{ID: CmdQuit, Name: "Quit", Context: GlobalContext},
		{ID: CmdNextTab, Name: "Next tab", Context: GlobalContext},
		{ID: CmdPrevTab, Name: "Prev tab", Context: GlobalContext},
		{ID: CmdTheme, Name: "Theme", Context: GlobalContext},
		{ID: CmdReason, Name: "Reasoning", Context: GlobalContext},

		{ID: CmdStop, Name: "Stop", Context: ContextChat},
		{ID: CmdRetry, Name: "Retry", Context: ContextChat},
		{ID: CmdEdit, Name: "Edit", Context: ContextChat},
		{ID: CmdRedo, Name: "Redo", Context: ContextChat},
		{ID: CmdCopy, Name: "Copy answer", Context: ContextChat},
		{ID: CmdCopyAll, Name: "Copy chat", Context: ContextChat},
		{ID: CmdNew, Name: "New", Context: ContextChat},

		{ID: CmdOpen, Name: "Open", Context: ContextConversations},
		{ID: CmdPin, Name: "Pin", Context: ContextConversations},
		{ID: CmdRename, Name: "Rename", Context: ContextConversations},
		{ID: CmdRefresh, Name: "Refresh", Context: ContextConversations},
		{ID: CmdCreate, Name: "New", Context: ContextConversations},
		{ID: CmdUp, Name: "Up", Context: ContextConversations},
		{ID: CmdDown, Name: "Down", Context: ContextConversations},
		{ID: CmdSearch, Name: "Search", Context: ContextConversations},
		{ID: CmdPinned, Name: "Pinned only", Context: ContextConversations},
	}
}

// DefaultBindings returns the built-in key bindings.
func DefaultBindings() []Binding {
	return []Binding{
		{Key: "ctrl+c", Command: CmdQuit, Context: GlobalContext},
		{Key: "tab", Command: CmdNextTab, Context: GlobalContext},
		{Key: "shift+tab", Command: CmdPrevTab, Context: GlobalContext},
		{Key: "ctrl+t", Command: CmdTheme, Context: GlobalContext},
		{Key: "ctrl+o", Command: CmdReason, Context: GlobalContext},

		{Key: "esc", Command: CmdStop, Context: ContextChat},
		{Key: "ctrl+r", Command: CmdRetry, Context: ContextChat},
		{Key: "ctrl+e", Command: CmdEdit, Context: ContextChat},
		{Key: "ctrl+g", Command: CmdRedo, Context: ContextChat},
		{Key: "ctrl+y", Command: CmdCopy, Context: ContextChat},
		{Key: "alt+y", Command: CmdCopyAll, Context: ContextChat},
		{Key: "ctrl+n", Command: CmdNew, Context: ContextChat},

		{Key: "enter", Command: CmdOpen, Context: ContextConversations},
		{Key: "p", Command: CmdPin, Context: ContextConversations},
		{Key: "r", Command: CmdRename, Context: ContextConversations},
		{Key: "ctrl+l", Command: CmdRefresh, Context: ContextConversations},
		{Key: "n", Command: CmdCreate, Context: ContextConversations},
		{Key: "up", Command: CmdUp, Context: ContextConversations},
		{Key: "k", Command: CmdUp, Context: ContextConversations},
		{Key: "down", Command: CmdDown, Context: ContextConversations},
		{Key: "j", Command: CmdDown, Context: ContextConversations},
		{Key: "/", Command: CmdSearch, Context: ContextConversations},
		{Key: "P", Command: CmdPinned, Context: ContextConversations},
	}
}

// RegisterDefaults registers the default commands and bindings. dispatch
// builds the handler of each command from its id.
func RegisterDefaults(r *Registry, dispatch func(id string) tea.Cmd) {
	for _, cmd := range DefaultCommands() {
		id := cmd.ID
		if dispatch != nil {
			cmd.Handler = func() tea.Cmd { return dispatch(id) }
		}
		r.RegisterCommand(cmd)
	}
	for _, b := range DefaultBindings() {
		r.RegisterBinding(b)
	}
}
