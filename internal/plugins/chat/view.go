package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/wilbur182/datachat/internal/conversation"
	"github.com/wilbur182/datachat/internal/features"
	"github.com/wilbur182/datachat/internal/markdown"
	"github.com/wilbur182/datachat/internal/styles"
	"github.com/wilbur182/datachat/internal/transcript"
)

const traceRows = 8

// View renders status bar, messages and input.
func (p *Plugin) View(width, height int) string {
	p.width = width
	p.height = height

	inputView := ""
	if p.input != nil {
		inputView = p.input.View(width)
	}
	statusView := p.renderStatusBar(width)

	vpHeight := max(height-lipgloss.Height(inputView)-lipgloss.Height(statusView), 1)
	p.msgViewport.SetSize(width, vpHeight)
	p.msgViewport.SetContent(p.renderMessages(width))

	content := lipgloss.JoinVertical(lipgloss.Left,
		statusView,
		p.msgViewport.View(),
		inputView,
	)
	return lipgloss.NewStyle().Width(width).Height(height).MaxHeight(height).Render(content)
}

// MessageViewport scrolls the rendered conversation and sticks to the
// bottom unless the user scrolled up.
type MessageViewport struct {
	viewport viewport.Model
	atBottom bool
}

// NewMessageViewport creates a viewport of the given size.
func NewMessageViewport(width, height int) MessageViewport {
	return MessageViewport{
		viewport: viewport.New(width, height),
		atBottom: true,
	}
}

// SetContent replaces the rendered content.
func (v *MessageViewport) SetContent(content string) {
	v.viewport.SetContent(content)
	if v.atBottom {
		v.viewport.GotoBottom()
	}
}

// SetSize updates the viewport dimensions.
func (v *MessageViewport) SetSize(width, height int) {
	v.viewport.Width = width
	v.viewport.Height = height
}

// Update forwards scroll keys to the viewport.
func (v *MessageViewport) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	v.viewport, cmd = v.viewport.Update(msg)
	v.atBottom = v.viewport.AtBottom()
	return cmd
}

// View returns the visible part of the content.
func (v *MessageViewport) View() string {
	return v.viewport.View()
}

// renderMessages renders the snapshot. The active streaming message shows
// the session buffer, since its list entry stays empty until finalized.
func (p *Plugin) renderMessages(width int) string {
	snap := p.snap
	if p.loading {
		return placeholder(width, "Loading conversation...")
	}
	if len(snap.Messages) == 0 && snap.UIPhase == conversation.PhaseIdle {
		return placeholder(width, "Ask a question about your data to get started")
	}

	showReasoning := features.IsEnabled(features.ShowReasoning.Name)
	showTraces := features.IsEnabled(features.SQLTraces.Name)

	var blocks []string
	for _, msg := range snap.Messages {
		if msg.Role == conversation.RoleUser {
			blocks = append(blocks, renderUser(msg, width))
			continue
		}

		if msg.ID == snap.Session.ActiveMessageID && snap.Session.Phase != conversation.PhaseIdle {
			blocks = append(blocks, renderStreaming(snap.Session.BufferedText, width))
			continue
		}
		blocks = append(blocks, p.renderAnswer(msg, width, showReasoning, showTraces))
	}

	if snap.UIPhase == conversation.PhaseThinking && snap.Session.Phase == conversation.PhaseIdle {
		blocks = append(blocks, lipgloss.NewStyle().Foreground(styles.Accent).Italic(true).Render("Thinking..."))
	}
	return strings.Join(blocks, "\n\n")
}

func placeholder(width int, text string) string {
	return lipgloss.NewStyle().
		Width(width).
		Align(lipgloss.Center).
		Foreground(styles.TextMuted).
		Render("\n\n" + text)
}

func renderUser(msg conversation.Message, width int) string {
	lines := markdown.WrapText(msg.Content, max(width-2, 10))
	for i := range lines {
		prefix := "  "
		if i == 0 {
			prefix = styles.UserPrefix.Render("> ")
		}
		lines[i] = prefix + styles.Body.Render(lines[i])
	}
	if msg.SendFailed {
		lines = append(lines, "  "+styles.FailedBadge.Render("✗ not sent")+" "+styles.Muted.Render("ctrl+r to retry"))
	}
	return strings.Join(lines, "\n")
}

func renderStreaming(text string, width int) string {
	cursor := lipgloss.NewStyle().Foreground(styles.Accent).Render("▍")
	if text == "" {
		return cursor
	}
	return strings.Join(markdown.WrapText(text, width), "\n") + cursor
}

func (p *Plugin) renderAnswer(msg conversation.Message, width int, showReasoning, showTraces bool) string {
	var sb strings.Builder

	if showReasoning && msg.Reasoning != "" {
		for _, line := range markdown.WrapText(msg.Reasoning, max(width-2, 10)) {
			sb.WriteString(styles.Subtle.Render("│ " + line))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if msg.Content != "" {
		if p.md != nil {
			sb.WriteString(strings.Join(p.md.RenderContent(msg.Content, width), "\n"))
		} else {
			sb.WriteString(strings.Join(markdown.WrapText(msg.Content, width), "\n"))
		}
	}

	if showTraces {
		for _, exec := range msg.SQLExecutions {
			sb.WriteString("\n")
			sb.WriteString(p.renderTrace(exec, width))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (p *Plugin) renderTrace(exec conversation.SQLExecution, width int) string {
	inner := max(width-4, 10)

	lines := p.sql.Highlight(exec.Query)
	switch {
	case exec.Error != "":
		lines = append(lines, "", styles.ErrorText.Render(ansi.Truncate("error: "+exec.Error, inner, "…")))
	case len(exec.Columns) > 0:
		lines = append(lines, "")
		for _, row := range transcript.Grid(exec, inner, traceRows) {
			lines = append(lines, styles.Muted.Render(row))
		}
	}
	for i := range lines {
		lines[i] = ansi.Truncate(lines[i], inner, "…")
	}

	return lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(styles.BorderNormal).
		PaddingLeft(1).
		Render(strings.Join(lines, "\n"))
}

func (p *Plugin) renderStatusBar(width int) string {
	left := " " + p.conversationTitle()

	right := "Ready"
	switch {
	case p.err != nil && !p.connected:
		right = "⚠ Offline"
	case !p.connected:
		right = "Connecting..."
	case p.loading:
		right = "Loading..."
	case p.snap.UIPhase == conversation.PhaseThinking:
		right = p.spinnerPrefix() + "Thinking..."
	case p.snap.UIPhase == conversation.PhaseStreaming:
		right = p.spinnerPrefix() + "Answering..."
	}
	right += " "

	avail := width - lipgloss.Width(right) - 1
	left = ansi.Truncate(left, max(avail, 0), "…")
	space := max(width-lipgloss.Width(left)-lipgloss.Width(right), 0)

	return styles.StatusBar.Width(width).Render(fmt.Sprintf("%s%s%s", left, strings.Repeat(" ", space), right))
}

func (p *Plugin) spinnerPrefix() string {
	if !p.spinner.IsActive() {
		return ""
	}
	return p.spinner.Frame() + " "
}

func (p *Plugin) conversationTitle() string {
	id := p.ctrl.ConversationID()
	if id == "" {
		return "New conversation"
	}
	if p.ctx != nil && p.ctx.Sync != nil {
		if conv, ok := p.ctx.List().Get(id); ok {
			return conv.DisplayTitle()
		}
	}
	return conversation.Conversation{ID: id}.DisplayTitle()
}
