// Package transcript renders conversations outside the live view: markdown
// export, SQL highlighting and result previews.
package transcript

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/wilbur182/datachat/internal/conversation"
)

// ExportMarkdown converts a conversation and its messages to markdown.
// Failed sends are left out since the server never saw them.
func ExportMarkdown(conv conversation.Conversation, msgs []conversation.Message) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", conv.DisplayTitle())
	if !conv.UpdatedAt.IsZero() {
		fmt.Fprintf(&sb, "**Updated**: %s\n\n", conv.UpdatedAt.Format("2006-01-02 15:04"))
	}
	sb.WriteString("---\n\n")

	for _, msg := range msgs {
		if msg.SendFailed {
			continue
		}
		role := "Question"
		if msg.Role == conversation.RoleAssistant {
			role = "Answer"
		}
		if msg.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, "## %s\n\n", role)
		} else {
			fmt.Fprintf(&sb, "## %s (%s)\n\n", role, msg.CreatedAt.Format("15:04:05"))
		}

		if msg.Reasoning != "" {
			sb.WriteString("<details>\n<summary>Reasoning</summary>\n\n")
			sb.WriteString(msg.Reasoning)
			sb.WriteString("\n\n</details>\n\n")
		}

		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")

		for _, exec := range msg.SQLExecutions {
			sb.WriteString("```sql\n")
			sb.WriteString(strings.TrimSpace(exec.Query))
			sb.WriteString("\n```\n\n")
			if exec.Error != "" {
				fmt.Fprintf(&sb, "*Error: %s*\n\n", exec.Error)
				continue
			}
			if len(exec.Columns) > 0 {
				writeMarkdownTable(&sb, exec, 20)
			}
		}

		sb.WriteString("---\n\n")
	}

	return sb.String()
}

func writeMarkdownTable(sb *strings.Builder, exec conversation.SQLExecution, maxRows int) {
	sb.WriteString("| " + strings.Join(exec.Columns, " | ") + " |\n")
	sb.WriteString("|" + strings.Repeat(" --- |", len(exec.Columns)) + "\n")

	rows := exec.Rows
	if len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	for _, row := range rows {
		cells := make([]string, len(exec.Columns))
		for i := range cells {
			if i < len(row) {
				cells[i] = strings.ReplaceAll(FormatCell(row[i]), "|", `\|`)
			}
		}
		sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	if total := max(exec.TotalRows, len(exec.Rows)); total > len(rows) {
		fmt.Fprintf(sb, "\n*%d of %d rows*\n", len(rows), total)
	}
	sb.WriteString("\n")
}

// LastAnswer returns the content of the last assistant message.
func LastAnswer(msgs []conversation.Message) (string, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == conversation.RoleAssistant && msgs[i].Content != "" {
			return msgs[i].Content, true
		}
	}
	return "", false
}

// CopyToClipboard copies content to the system clipboard.
func CopyToClipboard(content string) error {
	return clipboard.WriteAll(content)
}
