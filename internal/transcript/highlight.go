package transcript

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	chromastyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"

	"github.com/wilbur182/datachat/internal/styles"
)

// SQLHighlighter colors SQL with chroma tokens mapped to lipgloss styles.
type SQLHighlighter struct {
	lexer chroma.Lexer
	style *chroma.Style
}

// NewSQLHighlighter uses the chroma style of the active theme.
func NewSQLHighlighter() *SQLHighlighter {
	return NewSQLHighlighterWithStyle(styles.GetSyntaxTheme())
}

// NewSQLHighlighterWithStyle uses the named chroma style, falling back to
// chroma's default when unknown.
func NewSQLHighlighterWithStyle(name string) *SQLHighlighter {
	lexer := lexers.Get("sql")
	if lexer == nil {
		lexer = lexers.Fallback
	}
	style := chromastyles.Get(name)
	if style == nil {
		style = chromastyles.Fallback
	}
	return &SQLHighlighter{
		lexer: chroma.Coalesce(lexer),
		style: style,
	}
}

// Highlight returns query as styled lines.
func (h *SQLHighlighter) Highlight(query string) []string {
	query = strings.TrimSpace(query)
	if h == nil {
		return strings.Split(query, "\n")
	}

	iterator, err := h.lexer.Tokenise(nil, query)
	if err != nil {
		return strings.Split(query, "\n")
	}

	var (
		lines []string
		line  strings.Builder
	)
	for _, token := range iterator.Tokens() {
		style := h.tokenStyle(token.Type)
		parts := strings.Split(token.Value, "\n")
		for i, part := range parts {
			if i > 0 {
				lines = append(lines, line.String())
				line.Reset()
			}
			if part != "" {
				line.WriteString(style.Render(part))
			}
		}
	}
	if line.Len() > 0 || len(lines) == 0 {
		lines = append(lines, line.String())
	}
	return lines
}

func (h *SQLHighlighter) tokenStyle(tokenType chroma.TokenType) lipgloss.Style {
	entry := h.style.Get(tokenType)
	style := lipgloss.NewStyle()

	if entry.Colour.IsSet() {
		style = style.Foreground(lipgloss.Color(entry.Colour.String()))
	}
	if entry.Bold == chroma.Yes {
		style = style.Bold(true)
	}
	if entry.Underline == chroma.Yes {
		style = style.Underline(true)
	}
	return style
}
