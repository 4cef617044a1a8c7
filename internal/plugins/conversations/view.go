package conversations

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/wilbur182/datachat/internal/conversation"
	"github.com/wilbur182/datachat/internal/styles"
)

const headerLines = 2

// View renders the list with its header and the rename/search line.
func (p *Plugin) View(width, height int) string {
	p.width = width
	p.height = height
	p.mouse.Clear()

	var sb strings.Builder

	count := fmt.Sprintf("%d conversations", len(p.all))
	if p.filter.IsActive() {
		count = fmt.Sprintf("%d/%d %s", len(p.visible), len(p.all), p.filter.String())
	}
	title := " Conversations"
	if p.refreshing {
		title += " ⟳"
	}
	gap := max(width-lipgloss.Width(title)-lipgloss.Width(count)-1, 1)
	sb.WriteString(styles.Title.Render(title) + strings.Repeat(" ", gap) + styles.Muted.Render(count))
	sb.WriteString("\n")

	switch p.mode {
	case modeSearch:
		sb.WriteString(styles.Code.Render(" /") + p.input.View())
	case modeRename:
		sb.WriteString(styles.Code.Render(" Rename: ") + p.input.View())
	default:
		sb.WriteString(styles.Subtle.Render(strings.Repeat("━", max(width-2, 0))))
	}
	sb.WriteString("\n")

	contentHeight := max(height-headerLines, 1)
	if len(p.visible) == 0 {
		if p.filter.IsActive() {
			sb.WriteString(styles.Muted.Render(" No matching conversations"))
		} else {
			sb.WriteString(styles.Muted.Render(" No conversations yet. Press n to start one."))
		}
	} else {
		sb.WriteString(strings.Join(p.renderRows(width, contentHeight), "\n"))
	}

	return lipgloss.NewStyle().Width(width).Height(height).MaxHeight(height).Render(sb.String())
}

// renderRows renders the visible window of the list with group headers.
func (p *Plugin) renderRows(width, height int) []string {
	p.ensureVisible(height)

	now := time.Now()
	active := p.activeID()

	var lines []string
	group := ""
	for i := p.scrollOff; i < len(p.visible) && len(lines) < height; i++ {
		conv := p.visible[i]
		if g := groupOf(conv, now); g != group {
			group = g
			lines = append(lines, styles.Muted.Bold(true).Render(" "+g))
			if len(lines) >= height {
				break
			}
		}
		p.mouse.HitMap.AddRect(rowRegion, 0, headerLines+len(lines), width, 1, i)
		lines = append(lines, renderRow(conv, i == p.cursor, conv.ID == active, width, now))
	}
	return lines
}

// ensureVisible scrolls so the cursor row is on screen. Group headers take
// rows too, so half the height is kept as margin.
func (p *Plugin) ensureVisible(height int) {
	rows := max(height/2, 1)
	if p.cursor < p.scrollOff {
		p.scrollOff = p.cursor
	}
	if p.cursor >= p.scrollOff+rows {
		p.scrollOff = p.cursor - rows + 1
	}
}

func renderRow(conv conversation.Conversation, selected, active bool, width int, now time.Time) string {
	cursor := "  "
	if selected {
		cursor = styles.Code.Render("> ")
	}
	marker := " "
	if active {
		marker = lipgloss.NewStyle().Foreground(styles.Success).Render("●")
	}
	pin := " "
	if conv.IsPinned {
		pin = styles.PinBadge.Render("★")
	}

	right := formatAge(now.Sub(conv.UpdatedAt))
	if conv.UpdatedAt.IsZero() {
		right = ""
	}
	if conv.DatasetCount > 0 {
		right = fmt.Sprintf("%d datasets  %s", conv.DatasetCount, right)
	}

	prefix := cursor + marker + pin + " "
	titleWidth := max(width-lipgloss.Width(prefix)-lipgloss.Width(right)-2, 4)
	title := ansi.Truncate(conv.DisplayTitle(), titleWidth, "…")
	title += strings.Repeat(" ", max(titleWidth-ansi.StringWidth(title), 0))

	line := prefix + title + "  " + styles.Muted.Render(right)
	if selected {
		return styles.Selected.Render(line)
	}
	return styles.Body.Render(line)
}

// groupOf returns the section a conversation is listed under.
func groupOf(conv conversation.Conversation, now time.Time) string {
	if conv.IsPinned {
		return "Pinned"
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	t := conv.UpdatedAt.In(now.Location())
	switch {
	case !t.Before(today):
		return "Today"
	case !t.Before(today.AddDate(0, 0, -1)):
		return "Yesterday"
	case t.After(today.AddDate(0, 0, -7)):
		return "This Week"
	default:
		return "Older"
	}
}

// formatAge formats a duration as a short relative age.
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
