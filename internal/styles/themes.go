package styles

import (
	"regexp"
	"sort"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// themeMu protects themeRegistry and the current theme.
var themeMu sync.RWMutex

// hexColorRegex validates #RRGGBB or #RRGGBBAA.
var hexColorRegex = regexp.MustCompile(`^#[0-9A-Fa-f]{6}([0-9A-Fa-f]{2})?$`)

// ColorPalette holds all theme colors.
type ColorPalette struct {
	Primary   string
	Secondary string
	Accent    string

	Success string
	Warning string
	Error   string
	Info    string

	TextPrimary   string
	TextSecondary string
	TextMuted     string
	TextSubtle    string
	TextInverse   string

	BgPrimary   string
	BgSecondary string
	BgTertiary  string

	BorderNormal string
	BorderActive string

	// Chroma style for SQL highlighting and glamour style for answers.
	SyntaxTheme   string
	MarkdownTheme string
}

// Theme is a named palette.
type Theme struct {
	Name        string
	DisplayName string
	Colors      ColorPalette
}

// Built-in themes
var (
	DefaultTheme = Theme{
		Name:        "default",
		DisplayName: "Default Dark",
		Colors: ColorPalette{
			Primary:   "#7C3AED",
			Secondary: "#3B82F6",
			Accent:    "#F59E0B",

			Success: "#10B981",
			Warning: "#F59E0B",
			Error:   "#EF4444",
			Info:    "#3B82F6",

			TextPrimary:   "#F9FAFB",
			TextSecondary: "#9CA3AF",
			TextMuted:     "#6B7280",
			TextSubtle:    "#4B5563",
			TextInverse:   "#FFFFFF",

			BgPrimary:   "#111827",
			BgSecondary: "#1F2937",
			BgTertiary:  "#374151",

			BorderNormal: "#374151",
			BorderActive: "#7C3AED",

			SyntaxTheme:   "monokai",
			MarkdownTheme: "dark",
		},
	}

	DraculaTheme = Theme{
		Name:        "dracula",
		DisplayName: "Dracula",
		Colors: ColorPalette{
			Primary:   "#BD93F9",
			Secondary: "#8BE9FD",
			Accent:    "#FFB86C",

			Success: "#50FA7B",
			Warning: "#FFB86C",
			Error:   "#FF5555",
			Info:    "#8BE9FD",

			TextPrimary:   "#F8F8F2",
			TextSecondary: "#BFBFBF",
			TextMuted:     "#6272A4",
			TextSubtle:    "#44475A",
			TextInverse:   "#282A36",

			BgPrimary:   "#282A36",
			BgSecondary: "#343746",
			BgTertiary:  "#44475A",

			BorderNormal: "#44475A",
			BorderActive: "#BD93F9",

			SyntaxTheme:   "dracula",
			MarkdownTheme: "dracula",
		},
	}

	NordTheme = Theme{
		Name:        "nord",
		DisplayName: "Nord",
		Colors: ColorPalette{
			Primary:   "#88C0D0",
			Secondary: "#81A1C1",
			Accent:    "#EBCB8B",

			Success: "#A3BE8C",
			Warning: "#EBCB8B",
			Error:   "#BF616A",
			Info:    "#5E81AC",

			TextPrimary:   "#ECEFF4",
			TextSecondary: "#D8DEE9",
			TextMuted:     "#7B88A1",
			TextSubtle:    "#4C566A",
			TextInverse:   "#2E3440",

			BgPrimary:   "#2E3440",
			BgSecondary: "#3B4252",
			BgTertiary:  "#434C5E",

			BorderNormal: "#4C566A",
			BorderActive: "#88C0D0",

			SyntaxTheme:   "nord",
			MarkdownTheme: "dark",
		},
	}

	TokyoNightTheme = Theme{
		Name:        "tokyo-night",
		DisplayName: "Tokyo Night",
		Colors: ColorPalette{
			Primary:   "#7AA2F7",
			Secondary: "#7DCFFF",
			Accent:    "#E0AF68",

			Success: "#9ECE6A",
			Warning: "#E0AF68",
			Error:   "#F7768E",
			Info:    "#7DCFFF",

			TextPrimary:   "#C0CAF5",
			TextSecondary: "#A9B1D6",
			TextMuted:     "#565F89",
			TextSubtle:    "#414868",
			TextInverse:   "#1A1B26",

			BgPrimary:   "#1A1B26",
			BgSecondary: "#24283B",
			BgTertiary:  "#414868",

			BorderNormal: "#565F89",
			BorderActive: "#7AA2F7",

			SyntaxTheme:   "tokyonight-night",
			MarkdownTheme: "tokyo-night",
		},
	}
)

var themeRegistry = map[string]Theme{
	"default":     DefaultTheme,
	"dracula":     DraculaTheme,
	"nord":        NordTheme,
	"tokyo-night": TokyoNightTheme,
}

var currentTheme = "default"
var currentThemeValue = DefaultTheme

// IsValidHexColor reports whether hex is #RRGGBB or #RRGGBBAA.
func IsValidHexColor(hex string) bool {
	return hexColorRegex.MatchString(hex)
}

// IsValidTheme checks if a theme name exists in the registry.
func IsValidTheme(name string) bool {
	themeMu.RLock()
	defer themeMu.RUnlock()
	_, ok := themeRegistry[name]
	return ok
}

// GetTheme returns a theme by name, or the default theme if not found.
func GetTheme(name string) Theme {
	themeMu.RLock()
	defer themeMu.RUnlock()
	if theme, ok := themeRegistry[name]; ok {
		return theme
	}
	return DefaultTheme
}

// GetCurrentTheme returns the active theme including overrides.
func GetCurrentTheme() Theme {
	themeMu.RLock()
	defer themeMu.RUnlock()
	return currentThemeValue
}

// GetCurrentThemeName returns the name of the active theme.
func GetCurrentThemeName() string {
	themeMu.RLock()
	defer themeMu.RUnlock()
	return currentTheme
}

// ListThemes returns all theme names in sorted order.
func ListThemes() []string {
	themeMu.RLock()
	defer themeMu.RUnlock()
	names := make([]string, 0, len(themeRegistry))
	for name := range themeRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterTheme adds a custom theme to the registry.
func RegisterTheme(theme Theme) {
	themeMu.Lock()
	defer themeMu.Unlock()
	themeRegistry[theme.Name] = theme
}

// ApplyTheme applies a theme by name.
func ApplyTheme(name string) {
	ApplyThemeWithOverrides(name, nil)
}

// ApplyThemeWithOverrides applies a theme with color overrides from config.
// Keys are camelCase palette fields; invalid colors are ignored.
func ApplyThemeWithOverrides(name string, overrides map[string]string) {
	theme := GetTheme(name)
	for key, value := range overrides {
		applySingleOverride(&theme.Colors, key, value)
	}
	ApplyThemeColors(theme)
	themeMu.Lock()
	currentTheme = theme.Name
	themeMu.Unlock()
}

func applySingleOverride(palette *ColorPalette, key, value string) {
	isThemeName := key == "syntaxTheme" || key == "markdownTheme"
	if !isThemeName && !IsValidHexColor(value) {
		return
	}

	switch key {
	case "primary":
		palette.Primary = value
	case "secondary":
		palette.Secondary = value
	case "accent":
		palette.Accent = value
	case "success":
		palette.Success = value
	case "warning":
		palette.Warning = value
	case "error":
		palette.Error = value
	case "info":
		palette.Info = value
	case "textPrimary":
		palette.TextPrimary = value
	case "textSecondary":
		palette.TextSecondary = value
	case "textMuted":
		palette.TextMuted = value
	case "textSubtle":
		palette.TextSubtle = value
	case "textInverse":
		palette.TextInverse = value
	case "bgPrimary":
		palette.BgPrimary = value
	case "bgSecondary":
		palette.BgSecondary = value
	case "bgTertiary":
		palette.BgTertiary = value
	case "borderNormal":
		palette.BorderNormal = value
	case "borderActive":
		palette.BorderActive = value
	case "syntaxTheme":
		palette.SyntaxTheme = value
	case "markdownTheme":
		palette.MarkdownTheme = value
	}
}

// ApplyThemeColors updates all style package variables from a theme.
// Call it from the Bubble Tea goroutine or before the program starts.
func ApplyThemeColors(theme Theme) {
	c := theme.Colors

	Primary = lipgloss.Color(c.Primary)
	Secondary = lipgloss.Color(c.Secondary)
	Accent = lipgloss.Color(c.Accent)

	Success = lipgloss.Color(c.Success)
	Warning = lipgloss.Color(c.Warning)
	Error = lipgloss.Color(c.Error)
	Info = lipgloss.Color(c.Info)

	TextPrimary = lipgloss.Color(c.TextPrimary)
	TextSecondary = lipgloss.Color(c.TextSecondary)
	TextMuted = lipgloss.Color(c.TextMuted)
	TextSubtle = lipgloss.Color(c.TextSubtle)
	TextInverse = lipgloss.Color(c.TextInverse)

	BgPrimary = lipgloss.Color(c.BgPrimary)
	BgSecondary = lipgloss.Color(c.BgSecondary)
	BgTertiary = lipgloss.Color(c.BgTertiary)

	BorderNormal = lipgloss.Color(c.BorderNormal)
	BorderActive = lipgloss.Color(c.BorderActive)

	themeMu.Lock()
	currentThemeValue = theme
	themeMu.Unlock()

	rebuildStyles()
}

// GetSyntaxTheme returns the chroma style name of the active theme.
func GetSyntaxTheme() string {
	return GetCurrentTheme().Colors.SyntaxTheme
}

// GetMarkdownTheme returns the glamour style name of the active theme.
func GetMarkdownTheme() string {
	return GetCurrentTheme().Colors.MarkdownTheme
}
