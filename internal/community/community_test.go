package community

import (
	"testing"

	"github.com/wilbur182/datachat/internal/styles"
)

func TestListSchemesSorted(t *testing.T) {
	schemes := ListSchemes()
	if len(schemes) == 0 {
		t.Fatal("ListSchemes() returned empty")
	}
	for i := 1; i < len(schemes); i++ {
		if schemes[i] < schemes[i-1] {
			t.Errorf("ListSchemes() not sorted: %s < %s at index %d", schemes[i], schemes[i-1], i)
			break
		}
	}
}

func TestGetScheme(t *testing.T) {
	s := GetScheme("Catppuccin Mocha")
	if s == nil {
		t.Fatal("GetScheme('Catppuccin Mocha') returned nil")
	}
	if s.Background != "#1e1e2e" {
		t.Errorf("background = %s, want #1e1e2e", s.Background)
	}
	if GetScheme("nonexistent-theme-xyz") != nil {
		t.Error("GetScheme for unknown scheme should return nil")
	}
}

func TestThemeName(t *testing.T) {
	if got := ThemeName(" Gruvbox Dark "); got != "gruvbox-dark" {
		t.Errorf("ThemeName = %q, want gruvbox-dark", got)
	}
}

func TestSchemeTheme(t *testing.T) {
	theme := GetScheme("Gruvbox Dark").Theme()
	if theme.Name != "gruvbox-dark" || theme.DisplayName != "Gruvbox Dark" {
		t.Fatalf("theme = %q/%q", theme.Name, theme.DisplayName)
	}
	if theme.Colors.BgPrimary != "#282828" || theme.Colors.Error != "#CC241D" {
		t.Errorf("colors = %+v", theme.Colors)
	}
	// Black equals the background, so the selection color is used.
	if theme.Colors.BgSecondary != "#665C54" {
		t.Errorf("BgSecondary = %s, want #665C54", theme.Colors.BgSecondary)
	}
}

func TestSchemeThemeFallsBack(t *testing.T) {
	theme := Scheme{Name: "Broken", Red: "red", Blue: "#12345"}.Theme()
	if theme.Colors.Error != styles.DefaultTheme.Colors.Error {
		t.Errorf("Error = %s, want default", theme.Colors.Error)
	}
	if theme.Colors.Primary != styles.DefaultTheme.Colors.Primary {
		t.Errorf("Primary = %s, want default", theme.Colors.Primary)
	}
}

func TestRegisterThemes(t *testing.T) {
	RegisterThemes()
	for _, name := range ListSchemes() {
		if !styles.IsValidTheme(ThemeName(name)) {
			t.Errorf("theme %s not registered", ThemeName(name))
		}
	}
	if got := styles.GetTheme("solarized-dark").DisplayName; got != "Solarized Dark" {
		t.Errorf("solarized-dark display = %q", got)
	}
}
