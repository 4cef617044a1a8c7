package transcript

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/wilbur182/datachat/internal/conversation"
)

const (
	maxCellWidth = 24
	minCellWidth = 3
)

// FormatCell renders a result cell as plain text.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprint(x)
	}
}

// Grid renders up to maxRows rows of exec as an aligned text table no wider
// than width. Wide cells are truncated with an ellipsis, counting display
// columns so CJK and emoji line up.
func Grid(exec conversation.SQLExecution, width, maxRows int) []string {
	if len(exec.Columns) == 0 {
		return nil
	}

	rows := exec.Rows
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}

	widths := make([]int, len(exec.Columns))
	for i, col := range exec.Columns {
		widths[i] = runewidth.StringWidth(col)
	}
	cells := make([][]string, len(rows))
	for r, row := range rows {
		cells[r] = make([]string, len(exec.Columns))
		for i := range exec.Columns {
			var v any
			if i < len(row) {
				v = row[i]
			}
			text := strings.ReplaceAll(FormatCell(v), "\n", " ")
			cells[r][i] = text
			if w := runewidth.StringWidth(text); w > widths[i] {
				widths[i] = w
			}
		}
	}

	fitWidths(widths, width)

	sep := " │ "
	lines := make([]string, 0, len(rows)+3)
	lines = append(lines, joinCells(exec.Columns, widths, sep))

	rule := make([]string, len(widths))
	for i, w := range widths {
		rule[i] = strings.Repeat("─", w)
	}
	lines = append(lines, strings.Join(rule, "─┼─"))

	for _, row := range cells {
		lines = append(lines, joinCells(row, widths, sep))
	}

	total := exec.TotalRows
	if total < len(exec.Rows) {
		total = len(exec.Rows)
	}
	if total > len(rows) {
		lines = append(lines, fmt.Sprintf("… %d of %d rows", len(rows), total))
	}
	return lines
}

// fitWidths caps each column and then shrinks the widest until the row fits.
func fitWidths(widths []int, width int) {
	for i := range widths {
		if widths[i] > maxCellWidth {
			widths[i] = maxCellWidth
		}
		if widths[i] < minCellWidth {
			widths[i] = minCellWidth
		}
	}
	if width <= 0 {
		return
	}
	for rowWidth(widths) > width {
		widest := 0
		for i := range widths {
			if widths[i] > widths[widest] {
				widest = i
			}
		}
		if widths[widest] <= minCellWidth {
			return
		}
		widths[widest]--
	}
}

func rowWidth(widths []int) int {
	total := 0
	for _, w := range widths {
		total += w
	}
	return total + 3*(len(widths)-1)
}

func joinCells(values []string, widths []int, sep string) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		v = runewidth.Truncate(v, w, "…")
		parts[i] = runewidth.FillRight(v, w)
	}
	return strings.TrimRight(strings.Join(parts, sep), " ")
}
