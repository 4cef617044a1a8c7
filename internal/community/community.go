// Package community turns bundled terminal color schemes into themes.
package community

import (
	"strings"

	"github.com/wilbur182/datachat/internal/styles"
)

// Scheme is a color scheme in Windows Terminal JSON format.
type Scheme struct {
	Name                string `json:"name"`
	Black               string `json:"black"`
	Red                 string `json:"red"`
	Green               string `json:"green"`
	Yellow              string `json:"yellow"`
	Blue                string `json:"blue"`
	Purple              string `json:"purple"`
	Cyan                string `json:"cyan"`
	White               string `json:"white"`
	BrightBlack         string `json:"brightBlack"`
	BrightRed           string `json:"brightRed"`
	BrightGreen         string `json:"brightGreen"`
	BrightYellow        string `json:"brightYellow"`
	BrightBlue          string `json:"brightBlue"`
	BrightPurple        string `json:"brightPurple"`
	BrightCyan          string `json:"brightCyan"`
	BrightWhite         string `json:"brightWhite"`
	Background          string `json:"background"`
	Foreground          string `json:"foreground"`
	CursorColor         string `json:"cursorColor"`
	SelectionBackground string `json:"selectionBackground"`
}

// ThemeName is the registry name for a scheme: "Gruvbox Dark" -> "gruvbox-dark".
func ThemeName(scheme string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(scheme)), " ", "-")
}

// Theme maps the scheme's ANSI slots onto a palette. Invalid colors keep
// the default theme's value.
func (s Scheme) Theme() styles.Theme {
	base := styles.DefaultTheme.Colors
	pick := func(fallback string, candidates ...string) string {
		for _, c := range candidates {
			c = strings.ToUpper(c)
			if styles.IsValidHexColor(c) {
				return "#" + c[1:]
			}
		}
		return fallback
	}

	// Some schemes reuse the background as ANSI black.
	bgSecondary := s.Black
	if strings.EqualFold(bgSecondary, s.Background) {
		bgSecondary = s.SelectionBackground
	}

	return styles.Theme{
		Name:        ThemeName(s.Name),
		DisplayName: s.Name,
		Colors: styles.ColorPalette{
			Primary:   pick(base.Primary, s.Blue),
			Secondary: pick(base.Secondary, s.Cyan),
			Accent:    pick(base.Accent, s.Yellow),

			Success: pick(base.Success, s.Green),
			Warning: pick(base.Warning, s.Yellow),
			Error:   pick(base.Error, s.Red),
			Info:    pick(base.Info, s.Cyan),

			TextPrimary:   pick(base.TextPrimary, s.Foreground),
			TextSecondary: pick(base.TextSecondary, s.White, s.Foreground),
			TextMuted:     pick(base.TextMuted, s.BrightBlack),
			TextSubtle:    pick(base.TextSubtle, s.SelectionBackground, s.BrightBlack),
			TextInverse:   pick(base.TextInverse, s.Background),

			BgPrimary:   pick(base.BgPrimary, s.Background),
			BgSecondary: pick(base.BgSecondary, bgSecondary),
			BgTertiary:  pick(base.BgTertiary, s.SelectionBackground),

			BorderNormal: pick(base.BorderNormal, s.BrightBlack),
			BorderActive: pick(base.BorderActive, s.Blue),

			SyntaxTheme:   base.SyntaxTheme,
			MarkdownTheme: base.MarkdownTheme,
		},
	}
}

// RegisterThemes adds every bundled scheme to the theme registry and
// returns the registered names. Built-in themes keep their names.
func RegisterThemes() []string {
	names := make([]string, 0, len(SchemeIndex))
	for _, name := range SchemeIndex {
		theme := SchemeMap[name].Theme()
		if styles.IsValidTheme(theme.Name) {
			continue
		}
		styles.RegisterTheme(theme)
		names = append(names, theme.Name)
	}
	return names
}
