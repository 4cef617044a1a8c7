// Package app hosts the root Bubble Tea model: tabs, key routing, toasts and
// config hot reload.
package app

import (
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wilbur182/datachat/internal/config"
	"github.com/wilbur182/datachat/internal/keymap"
	"github.com/wilbur182/datachat/internal/logging"
	"github.com/wilbur182/datachat/internal/mouse"
	"github.com/wilbur182/datachat/internal/plugin"
)

const (
	toastDuration = 3 * time.Second
	footerLines   = 1
	headerLines   = 1
	chatPluginID  = "chat"
)

// Options carries optional collaborators of the model.
type Options struct {
	Notices       *Notifier
	ConfigUpdates <-chan *config.Config
	Logger        *slog.Logger

	// SaveTheme persists a theme picked at runtime. Defaults to
	// config.SaveTheme.
	SaveTheme func(name string) error
}

// Model is the root Bubble Tea model for the application.
type Model struct {
	cfg *config.Config

	registry     *plugin.Registry
	activePlugin int

	keymap *keymap.Registry

	width, height int

	// Status/toast messages
	statusMsg     string
	statusExpiry  time.Time
	statusIsError bool

	notices   *Notifier
	updates   <-chan *config.Config
	saveTheme func(string) error
	logger    *slog.Logger
	now       func() time.Time

	// tab regions of the last rendered frame
	mouse *mouse.Handler
}

// New creates the application model. The first registered plugin is focused.
func New(reg *plugin.Registry, km *keymap.Registry, cfg *config.Config, opts Options) Model {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	save := opts.SaveTheme
	if save == nil {
		save = config.SaveTheme
	}
	m := Model{
		cfg:       cfg,
		registry:  reg,
		keymap:    km,
		notices:   opts.Notices,
		updates:   opts.ConfigUpdates,
		saveTheme: save,
		logger:    logger,
		now:       time.Now,
		mouse:     mouse.NewHandler(),
	}
	if p := m.ActivePlugin(); p != nil {
		p.SetFocused(true)
	}
	return m
}

// Dispatch is the keymap handler factory: every bound command becomes a
// CommandMsg routed through Update.
func Dispatch(id string) tea.Cmd {
	return func() tea.Msg { return plugin.CommandMsg{ID: id} }
}

// Init starts the plugins and the background listeners.
func (m Model) Init() tea.Cmd {
	cmds := m.registry.Start()
	cmds = append(cmds, m.notices.listen(), listenConfig(m.updates), tickCmd())
	return tea.Batch(cmds...)
}

// ActivePlugin returns the currently active plugin.
func (m Model) ActivePlugin() plugin.Plugin {
	plugins := m.registry.Plugins()
	if len(plugins) == 0 {
		return nil
	}
	if m.activePlugin >= len(plugins) {
		return plugins[0]
	}
	return plugins[m.activePlugin]
}

// SetActivePlugin focuses the plugin at idx and notifies it.
func (m *Model) SetActivePlugin(idx int) tea.Cmd {
	plugins := m.registry.Plugins()
	if idx < 0 || idx >= len(plugins) {
		return nil
	}
	if current := m.ActivePlugin(); current != nil {
		current.SetFocused(false)
	}
	m.activePlugin = idx
	next := plugins[idx]
	next.SetFocused(true)
	return func() tea.Msg { return plugin.PluginFocusedMsg{} }
}

// NextPlugin switches to the next tab.
func (m *Model) NextPlugin() tea.Cmd {
	plugins := m.registry.Plugins()
	if len(plugins) == 0 {
		return nil
	}
	return m.SetActivePlugin((m.activePlugin + 1) % len(plugins))
}

// PrevPlugin switches to the previous tab.
func (m *Model) PrevPlugin() tea.Cmd {
	plugins := m.registry.Plugins()
	if len(plugins) == 0 {
		return nil
	}
	idx := m.activePlugin - 1
	if idx < 0 {
		idx = len(plugins) - 1
	}
	return m.SetActivePlugin(idx)
}

// FocusPluginByID switches to a plugin by its id.
func (m *Model) FocusPluginByID(id string) tea.Cmd {
	for i, p := range m.registry.Plugins() {
		if p.ID() == id {
			if i == m.activePlugin {
				return nil
			}
			return m.SetActivePlugin(i)
		}
	}
	return nil
}

// ShowToast displays a temporary status message.
func (m *Model) ShowToast(msg string, isError bool) {
	m.statusMsg = msg
	m.statusIsError = isError
	m.statusExpiry = m.now().Add(toastDuration)
}

// ClearToast clears an expired toast.
func (m *Model) ClearToast() {
	if m.statusMsg != "" && m.now().After(m.statusExpiry) {
		m.statusMsg = ""
		m.statusIsError = false
	}
}

func (m Model) contentHeight() int {
	return max(m.height-headerLines-footerLines, 1)
}
