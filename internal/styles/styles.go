// Package styles holds the lipgloss colors and styles shared by all views.
package styles

import "github.com/charmbracelet/lipgloss"

// Colors of the active theme.
var (
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Accent    lipgloss.Color

	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Info    lipgloss.Color

	TextPrimary   lipgloss.Color
	TextSecondary lipgloss.Color
	TextMuted     lipgloss.Color
	TextSubtle    lipgloss.Color
	TextInverse   lipgloss.Color

	BgPrimary   lipgloss.Color
	BgSecondary lipgloss.Color
	BgTertiary  lipgloss.Color

	BorderNormal lipgloss.Color
	BorderActive lipgloss.Color
)

// Styles rebuilt on every theme change.
var (
	PanelActive   lipgloss.Style
	PanelInactive lipgloss.Style

	Title    lipgloss.Style
	Body     lipgloss.Style
	Muted    lipgloss.Style
	Subtle   lipgloss.Style
	Code     lipgloss.Style
	KeyHint  lipgloss.Style
	Selected lipgloss.Style

	TabActive   lipgloss.Style
	TabInactive lipgloss.Style

	UserPrefix  lipgloss.Style
	ErrorText   lipgloss.Style
	FailedBadge lipgloss.Style
	PinBadge    lipgloss.Style
	StatusBar   lipgloss.Style

	ToastSuccess lipgloss.Style
	ToastError   lipgloss.Style
)

func init() {
	ApplyThemeColors(DefaultTheme)
}

func rebuildStyles() {
	PanelActive = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(BorderActive).
		Padding(0, 1)

	PanelInactive = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(BorderNormal).
		Padding(0, 1)

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextPrimary)

	Body = lipgloss.NewStyle().
		Foreground(TextPrimary)

	Muted = lipgloss.NewStyle().
		Foreground(TextMuted)

	Subtle = lipgloss.NewStyle().
		Foreground(TextSubtle)

	Code = lipgloss.NewStyle().
		Foreground(Accent)

	KeyHint = lipgloss.NewStyle().
		Foreground(TextMuted).
		Background(BgTertiary).
		Padding(0, 1)

	Selected = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Background(BgTertiary).
		Bold(true)

	TabActive = lipgloss.NewStyle().
		Foreground(TextInverse).
		Background(Primary).
		Bold(true).
		Padding(0, 2)

	TabInactive = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Background(BgSecondary).
		Padding(0, 2)

	UserPrefix = lipgloss.NewStyle().
		Foreground(Secondary).
		Bold(true)

	ErrorText = lipgloss.NewStyle().
		Foreground(Error)

	FailedBadge = lipgloss.NewStyle().
		Foreground(Error).
		Bold(true)

	PinBadge = lipgloss.NewStyle().
		Foreground(Accent)

	StatusBar = lipgloss.NewStyle().
		Background(BgSecondary).
		Foreground(TextMuted)

	ToastSuccess = lipgloss.NewStyle().
		Foreground(TextInverse).
		Background(Success).
		Padding(0, 2).
		Bold(true)

	ToastError = lipgloss.NewStyle().
		Foreground(TextInverse).
		Background(Error).
		Padding(0, 2).
		Bold(true)
}
