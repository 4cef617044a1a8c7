// Package ui holds small rendering components shared by plugins.
package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wilbur182/datachat/internal/styles"
)

// SpinnerInterval is the delay between spinner frames.
const SpinnerInterval = 100 * time.Millisecond

var brailleFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// SpinnerTickMsg advances a BrailleSpinner. ID tells spinners apart and
// Gen drops ticks scheduled before the last Start.
type SpinnerTickMsg struct {
	ID  string
	Gen int
}

// BrailleSpinner renders an animated braille dot. It only ticks while
// active, so an idle screen schedules no timers.
type BrailleSpinner struct {
	id     string
	gen    int
	frame  int
	active bool
}

// NewBrailleSpinner creates an inactive spinner.
func NewBrailleSpinner(id string) BrailleSpinner {
	return BrailleSpinner{id: id}
}

// Start activates the spinner and returns the first tick, or nil when it
// is already running.
func (b *BrailleSpinner) Start() tea.Cmd {
	if b.active {
		return nil
	}
	b.active = true
	b.frame = 0
	b.gen++
	return b.tick()
}

// Stop halts the animation. A pending tick is dropped by Update.
func (b *BrailleSpinner) Stop() {
	b.active = false
}

// IsActive returns whether the spinner is running.
func (b BrailleSpinner) IsActive() bool {
	return b.active
}

// Update advances the frame on this spinner's tick and schedules the next.
func (b *BrailleSpinner) Update(msg tea.Msg) tea.Cmd {
	t, ok := msg.(SpinnerTickMsg)
	if !ok || t.ID != b.id || t.Gen != b.gen || !b.active {
		return nil
	}
	b.frame++
	return b.tick()
}

func (b BrailleSpinner) tick() tea.Cmd {
	id, gen := b.id, b.gen
	return tea.Tick(SpinnerInterval, func(time.Time) tea.Msg { return SpinnerTickMsg{ID: id, Gen: gen} })
}

// Frame returns the current glyph without styling.
func (b BrailleSpinner) Frame() string {
	return brailleFrames[b.frame%len(brailleFrames)]
}

// View renders the current frame, or nothing when inactive.
func (b BrailleSpinner) View() string {
	if !b.active {
		return ""
	}
	return lipgloss.NewStyle().Foreground(styles.Accent).Render(b.Frame())
}
