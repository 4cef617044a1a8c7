package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wilbur182/datachat/internal/styles"
)

// Input is the question input backed by a bubbles textarea.
type Input struct {
	textarea   textarea.Model
	focused    bool
	submitting bool // blocks submit while a turn is outstanding
	editing    bool
	label      string
}

// NewInput creates an unfocused input.
func NewInput() *Input {
	ta := textarea.New()
	ta.Placeholder = "Ask a question about your data..."
	ta.MaxHeight = 5
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetHeight(1)
	ta.Blur()

	return &Input{textarea: ta}
}

// Update handles key input. Enter submits; alt+enter inserts a newline.
func (i *Input) Update(msg tea.Msg) (*Input, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter && !keyMsg.Alt {
		if i.submitting {
			return i, nil
		}
		val := strings.TrimSpace(i.textarea.Value())
		if val == "" {
			return i, nil
		}
		i.textarea.Reset()
		return i, func() tea.Msg { return SendPromptMsg{Content: val} }
	}
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter && keyMsg.Alt {
		i.textarea.InsertString("\n")
		return i, nil
	}

	var cmd tea.Cmd
	i.textarea, cmd = i.textarea.Update(msg)
	return i, cmd
}

// View renders the input constrained to width.
func (i *Input) View(width int) string {
	if width <= 0 {
		width = 80
	}

	// border and padding on both sides
	innerWidth := max(width-4, 1)
	i.textarea.SetWidth(innerWidth)

	border := styles.BorderNormal
	if i.focused {
		border = styles.BorderActive
	}
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Width(width - 2)

	content := i.textarea.View()
	switch {
	case i.submitting:
		content = styles.Muted.Render(content) + "\n" + lipgloss.NewStyle().Foreground(styles.Warning).Bold(true).Render(i.busyLabel())
	case i.editing:
		content = styles.KeyHint.Render("Editing (esc to cancel)") + "\n" + content
	}
	return box.Render(content)
}

func (i *Input) busyLabel() string {
	if i.label != "" {
		return i.label
	}
	return "Answering..."
}

// Focus focuses the textarea.
func (i *Input) Focus() {
	i.textarea.Focus()
	i.focused = true
}

// Blur blurs the textarea.
func (i *Input) Blur() {
	i.textarea.Blur()
	i.focused = false
}

// SetSubmitting blocks or unblocks submission. label replaces the default
// busy text when non-empty.
func (i *Input) SetSubmitting(v bool, label string) {
	i.submitting = v
	i.label = label
}

// IsSubmitting reports whether submission is blocked.
func (i *Input) IsSubmitting() bool {
	return i.submitting
}

// SetEditing toggles the edit banner.
func (i *Input) SetEditing(v bool) {
	i.editing = v
}

// IsEditing reports whether the edit banner is shown.
func (i *Input) IsEditing() bool {
	return i.editing
}

// SetValue replaces the text and moves the cursor to the end.
func (i *Input) SetValue(s string) {
	i.textarea.SetValue(s)
	i.textarea.CursorEnd()
}

// Value returns the current text.
func (i *Input) Value() string {
	return i.textarea.Value()
}

// Reset clears the text.
func (i *Input) Reset() {
	i.textarea.Reset()
}

// IsFocused reports whether the input has focus.
func (i *Input) IsFocused() bool {
	return i.focused
}
