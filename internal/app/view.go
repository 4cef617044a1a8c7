package app

import (
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/wilbur182/datachat/internal/keymap"
	"github.com/wilbur182/datachat/internal/mouse"
	"github.com/wilbur182/datachat/internal/plugin"
	"github.com/wilbur182/datachat/internal/styles"
)

// View renders the tab bar, the active plugin and the footer.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content string
	if active := m.ActivePlugin(); active != nil {
		content = active.View(m.width, m.contentHeight())
	} else {
		content = styles.Muted.Render(" No plugins available")
	}
	content = lipgloss.NewStyle().Height(m.contentHeight()).MaxHeight(m.contentHeight()).Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, m.renderTabs(), content, m.renderFooter())
}

// renderTabs draws the tab bar and records each tab's hit region.
func (m Model) renderTabs() string {
	m.mouse.Clear()
	var tabs []string
	x := 0
	for i, p := range m.registry.Plugins() {
		label := " " + p.Icon() + " " + p.Name() + " "
		style := styles.TabInactive
		if i == m.activePlugin {
			style = styles.TabActive
		}
		tab := style.Render(label)
		w := lipgloss.Width(tab)
		m.mouse.HitMap.Add(tabRegion, mouse.Rect{X: x, Y: 0, W: w, H: headerLines}, i)
		x += w
		tabs = append(tabs, tab)
	}
	bar := lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
	return ansi.Truncate(bar, m.width, "")
}

// renderFooter shows the current toast, or key hints for the active plugin.
func (m Model) renderFooter() string {
	right := ""
	if m.cfg.UI.ShowClock {
		right = styles.Muted.Render(m.now().Format("15:04"))
	}

	var left string
	switch {
	case m.statusMsg != "" && m.statusIsError:
		left = styles.ToastError.Render(" " + m.statusMsg + " ")
	case m.statusMsg != "":
		left = styles.ToastSuccess.Render(" " + m.statusMsg + " ")
	default:
		left = m.keyHints()
	}

	avail := max(m.width-lipgloss.Width(right)-1, 0)
	left = ansi.Truncate(left, avail, "…")
	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	return left + strings.Repeat(" ", gap) + right
}

// keyHints lists the active plugin's commands with their first bound key.
func (m Model) keyHints() string {
	active := m.ActivePlugin()
	if active == nil {
		return ""
	}
	cmds := active.Commands()
	slices.SortStableFunc(cmds, func(a, b plugin.Command) int { return a.Priority - b.Priority })

	context := active.FocusContext()
	var hints []string
	for _, c := range cmds {
		keys := m.keymap.KeysFor(c.ID, context)
		if len(keys) == 0 {
			continue
		}
		hints = append(hints, styles.KeyHint.Render(keys[0])+" "+styles.Muted.Render(c.Name))
	}
	if keys := m.keymap.KeysFor(keymap.CmdNextTab, keymap.GlobalContext); len(keys) > 0 {
		hints = append(hints, styles.KeyHint.Render(keys[0])+" "+styles.Muted.Render("switch"))
	}
	return " " + strings.Join(hints, "  ")
}
