// Package markdown renders finalized assistant answers with glamour.
package markdown

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/glamour"

	"github.com/wilbur182/datachat/internal/styles"
)

const (
	// MinWidthForMarkdown is the narrowest width rendered with glamour.
	// Below it text is only wrapped.
	MinWidthForMarkdown = 30

	// MaxCacheEntries bounds the render cache.
	MaxCacheEntries = 100
)

// Renderer wraps glamour with a render cache keyed by content and width.
type Renderer struct {
	mu        sync.RWMutex
	renderer  *glamour.TermRenderer
	lastWidth int
	lastStyle string
	cache     map[uint64][]string
	style     func() string
	logger    *slog.Logger
}

// NewRenderer creates a renderer following the active theme's markdown style.
func NewRenderer(logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		cache:  make(map[uint64][]string),
		style:  styles.GetMarkdownTheme,
		logger: logger,
	}
}

// NewRendererWithStyle creates a renderer with a fixed glamour style, for
// output outside the TUI.
func NewRendererWithStyle(style string, logger *slog.Logger) *Renderer {
	r := NewRenderer(logger)
	r.style = func() string { return style }
	return r
}

// RenderContent renders markdown content to styled lines.
func (r *Renderer) RenderContent(content string, width int) []string {
	if content == "" {
		return []string{}
	}
	if width < MinWidthForMarkdown {
		return WrapText(content, width)
	}

	style := r.style()
	key := cacheKey(content, width, style)

	r.mu.RLock()
	if cached, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return cached
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.cache[key]; ok {
		return cached
	}

	renderer, err := r.getOrCreateRenderer(width, style)
	if err != nil {
		r.logger.Warn("glamour renderer error", "err", err)
		return WrapText(content, width)
	}

	rendered, err := renderer.Render(content)
	if err != nil {
		r.logger.Warn("glamour render error", "err", err)
		return WrapText(content, width)
	}

	rendered = strings.TrimRight(rendered, "\n\r\t ")
	lines := strings.Split(rendered, "\n")

	if len(r.cache) >= MaxCacheEntries {
		r.cache = make(map[uint64][]string)
	}
	r.cache[key] = lines

	return lines
}

// Render renders content as a single string.
func (r *Renderer) Render(content string, width int) string {
	return strings.Join(r.RenderContent(content, width), "\n")
}

func cacheKey(content string, width int, style string) uint64 {
	h := xxhash.New()
	h.WriteString(content)
	h.Write([]byte{0, byte(width >> 8), byte(width), 0})
	h.WriteString(style)
	return h.Sum64()
}

// getOrCreateRenderer must be called with the write lock held.
func (r *Renderer) getOrCreateRenderer(width int, style string) (*glamour.TermRenderer, error) {
	if r.renderer != nil && r.lastWidth == width && r.lastStyle == style {
		return r.renderer, nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStylePath(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}

	r.renderer = renderer
	r.lastWidth = width
	r.lastStyle = style
	r.cache = make(map[uint64][]string)

	return renderer, nil
}

// WrapText wraps text to fit within maxWidth.
func WrapText(text string, maxWidth int) []string {
	if maxWidth <= 0 {
		return []string{text}
	}

	text = strings.ReplaceAll(text, "\n", " ")

	var lines []string
	words := strings.Fields(text)
	if len(words) == 0 {
		return lines
	}

	currentLine := words[0]
	for _, word := range words[1:] {
		if len(currentLine)+1+len(word) <= maxWidth {
			currentLine += " " + word
		} else {
			lines = append(lines, currentLine)
			currentLine = word
		}
	}
	if currentLine != "" {
		lines = append(lines, currentLine)
	}

	return lines
}
