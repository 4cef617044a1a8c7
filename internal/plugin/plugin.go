// Package plugin defines the tab plugins hosted by the app model and the
// shared context they are initialized with.
package plugin

import tea "github.com/charmbracelet/bubbletea"

// Plugin is a tab of the application.
type Plugin interface {
	ID() string
	Name() string
	Icon() string
	Init(ctx *Context) error
	Start() tea.Cmd
	Stop()
	Update(msg tea.Msg) (Plugin, tea.Cmd)
	View(width, height int) string
	IsFocused() bool
	SetFocused(bool)
	Commands() []Command
	FocusContext() string
}

// TextInputConsumer is implemented by plugins that own a text input. While
// ConsumesTextInput is true, printable keys go to the plugin instead of the
// keymap.
type TextInputConsumer interface {
	ConsumesTextInput() bool
}

// Category groups commands in the footer.
type Category string

const (
	CategoryActions    Category = "actions"
	CategoryNavigation Category = "navigation"
	CategoryView       Category = "view"
)

// Command is a plugin action shown in the footer.
type Command struct {
	ID          string
	Name        string
	Description string
	Category    Category
	Context     string
	Priority    int // lower sorts first
}

// PluginFocusedMsg is sent to a plugin when its tab becomes active.
type PluginFocusedMsg struct{}

// CommandMsg asks the active plugin to run a keymap command.
type CommandMsg struct {
	ID string
}

// EpochMessage is an async result tagged with the epoch it was issued in.
type EpochMessage interface {
	GetEpoch() uint64
}

// IsStale reports whether msg was issued before the last conversation switch.
func IsStale(ctx *Context, msg EpochMessage) bool {
	if ctx == nil {
		return false
	}
	return msg.GetEpoch() != ctx.CurrentEpoch()
}
