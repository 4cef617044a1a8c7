package conversation

import "strings"

// titleMaxLength is the number of runes kept before the ellipsis.
const titleMaxLength = 50

var newlineReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// TitleOf derives a conversation title from the first user message. Each
// line break becomes one space, so "\r\n" counts once. Surrounding
// whitespace is trimmed. Length is measured in runes, not bytes: a title
// longer than 50 runes is cut to 50 and suffixed with "...", and a multibyte
// character is never split.
func TitleOf(text string) string {
	title := strings.TrimSpace(newlineReplacer.Replace(text))
	runes := []rune(title)
	if len(runes) > titleMaxLength {
		return string(runes[:titleMaxLength]) + "..."
	}
	return title
}
