package app

import (
	"fmt"
	"slices"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wilbur182/datachat/internal/config"
	"github.com/wilbur182/datachat/internal/features"
	"github.com/wilbur182/datachat/internal/keymap"
	"github.com/wilbur182/datachat/internal/mouse"
	"github.com/wilbur182/datachat/internal/plugin"
	"github.com/wilbur182/datachat/internal/styles"
)

// TickMsg refreshes the clock and expires toasts.
type TickMsg time.Time

// ConfigReloadedMsg carries a config re-read after the file changed.
type ConfigReloadedMsg struct {
	Config *config.Config
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return TickMsg(t) })
}

// listenConfig waits for the next hot-reloaded config.
func listenConfig(ch <-chan *config.Config) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		cfg, ok := <-ch
		if !ok {
			return nil
		}
		return ConfigReloadedMsg{Config: cfg}
	}
}

// Update routes messages to the keymap, the active plugin or every plugin.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, tea.Batch(m.registry.Broadcast(tea.WindowSizeMsg{Width: msg.Width, Height: m.contentHeight()})...)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case plugin.CommandMsg:
		return m.handleCommand(msg.ID)

	case plugin.PluginFocusedMsg:
		return m, m.deliverActive(msg)

	case plugin.SwitchConversationMsg, plugin.NewConversationMsg:
		cmds := m.registry.Broadcast(msg)
		cmds = append(cmds, m.FocusPluginByID(chatPluginID))
		return m, tea.Batch(cmds...)

	case plugin.ToastMsg:
		m.ShowToast(msg.Message, msg.IsError)
		return m, nil

	case noticeMsg:
		m.ShowToast(msg.Message, msg.IsError)
		return m, m.notices.listen()

	case TickMsg:
		m.ClearToast()
		return m, tickCmd()

	case ConfigReloadedMsg:
		return m.applyConfig(msg.Config)
	}

	return m, tea.Batch(m.registry.Broadcast(msg)...)
}

// handleKey sends printable keys to a plugin that is taking text, then
// tries the keymap, then falls back to the active plugin.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	active := m.ActivePlugin()
	context := keymap.GlobalContext
	if active != nil {
		context = active.FocusContext()
		if consumesText(active) && isPrintable(msg) {
			return m, m.deliverActive(msg)
		}
	}
	if cmd := m.keymap.Handle(msg, context); cmd != nil {
		return m, cmd
	}
	return m, m.deliverActive(msg)
}

func (m Model) handleCommand(id string) (tea.Model, tea.Cmd) {
	switch id {
	case keymap.CmdQuit:
		m.registry.Stop()
		return m, tea.Quit
	case keymap.CmdNextTab:
		return m, m.NextPlugin()
	case keymap.CmdPrevTab:
		return m, m.PrevPlugin()
	case keymap.CmdTheme:
		return m, m.cycleTheme()
	case keymap.CmdReason:
		m.toggleReasoning()
		return m, nil
	}
	return m, m.deliverActive(plugin.CommandMsg{ID: id})
}

func (m Model) deliverActive(msg tea.Msg) tea.Cmd {
	active := m.ActivePlugin()
	if active == nil {
		return nil
	}
	return m.registry.Deliver(active.ID(), msg)
}

// cycleTheme applies the next registered theme and persists the choice.
func (m *Model) cycleTheme() tea.Cmd {
	names := styles.ListThemes()
	if len(names) == 0 {
		return nil
	}
	idx := slices.Index(names, styles.GetCurrentThemeName())
	next := names[(idx+1)%len(names)]

	styles.ApplyThemeWithOverrides(next, m.cfg.UI.Theme.Overrides)
	m.cfg.UI.Theme.Name = next
	if err := m.saveTheme(next); err != nil {
		m.logger.Warn("theme not saved", "theme", next, "error", err)
		m.ShowToast(fmt.Sprintf("Theme %s (not saved)", next), true)
	} else {
		m.ShowToast("Theme: "+next, false)
	}
	return tea.Batch(m.registry.Broadcast(plugin.ThemeChangedMsg{})...)
}

// toggleReasoning flips reasoning display. When the flag cannot be saved it
// still applies for this session.
func (m *Model) toggleReasoning() {
	name := features.ShowReasoning.Name
	enabled := !features.IsEnabled(name)
	if err := features.SetEnabled(name, enabled); err != nil {
		m.logger.Warn("feature not saved", "feature", name, "error", err)
		features.SetOverride(name, enabled)
	}
	if enabled {
		m.ShowToast("Reasoning shown", false)
	} else {
		m.ShowToast("Reasoning hidden", false)
	}
}

// applyConfig swaps in a hot-reloaded config.
func (m Model) applyConfig(cfg *config.Config) (tea.Model, tea.Cmd) {
	listen := listenConfig(m.updates)
	if cfg == nil {
		return m, listen
	}
	styles.ApplyThemeWithOverrides(cfg.UI.Theme.Name, cfg.UI.Theme.Overrides)
	m.keymap.ApplyOverrides(cfg.Keymap.Overrides)
	features.UpdateConfig(cfg)
	m.cfg = cfg
	m.logger.Info("config reloaded", "theme", cfg.UI.Theme.Name)

	cmds := m.registry.Broadcast(plugin.ThemeChangedMsg{})
	cmds = append(cmds, listen)
	return m, tea.Batch(cmds...)
}

func consumesText(p plugin.Plugin) bool {
	c, ok := p.(plugin.TextInputConsumer)
	return ok && c.ConsumesTextInput()
}

func isPrintable(msg tea.KeyMsg) bool {
	if msg.Alt {
		return false
	}
	return msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace
}

const tabRegion = "tab"

// handleMouse switches tabs on a tab-bar click and hands other events to
// the active plugin in its own coordinates.
func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Y < headerLines {
		action := m.mouse.HandleMouse(msg)
		if action.Type == mouse.ActionClick || action.Type == mouse.ActionDoubleClick {
			if idx, ok := action.Region.Data.(int); ok && action.Region.ID == tabRegion {
				return m, m.SetActivePlugin(idx)
			}
		}
		return m, nil
	}
	if msg.Y >= headerLines+m.contentHeight() {
		return m, nil
	}
	msg.Y -= headerLines
	return m, m.deliverActive(msg)
}
