package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// LayoutBreakpoint is a terminal width threshold.
type LayoutBreakpoint int

const (
	BreakpointNarrow LayoutBreakpoint = 60
	BreakpointMedium LayoutBreakpoint = 100
	BreakpointWide   LayoutBreakpoint = 140
)

// GetBreakpoint returns the layout breakpoint for width.
func GetBreakpoint(width int) LayoutBreakpoint {
	switch {
	case width < int(BreakpointNarrow):
		return BreakpointNarrow
	case width < int(BreakpointMedium):
		return BreakpointMedium
	default:
		return BreakpointWide
	}
}

// Panel renders content in a rounded border with title set into the top edge.
func (t *Theme) Panel(title, content string, width int) string {
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.SecondaryColor).
		Width(width-2).
		Padding(0, 1)

	rendered := style.Render(content)
	if title == "" {
		return rendered
	}

	lines := strings.Split(rendered, "\n")
	top := []rune(lines[0])
	label := t.Accent.Bold(true).Render(" " + title + " ")
	labelWidth := lipgloss.Width(label)
	if labelWidth+4 < lipgloss.Width(lines[0]) && len(top) > 2+labelWidth {
		lines[0] = string(top[:2]) + label + string(top[2+labelWidth:])
	}
	return strings.Join(lines, "\n")
}

// SideBySide joins two blocks horizontally when they fit in totalWidth and
// stacks them otherwise.
func SideBySide(left, right string, totalWidth, gap int) string {
	if lipgloss.Width(left)+lipgloss.Width(right)+gap > totalWidth {
		return left + "\n\n" + right
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, left, strings.Repeat(" ", gap), right)
}

// ProgressBar renders value/limit as a bar of width cells. The bar is green
// once most of the work is done.
func (t *Theme) ProgressBar(value, limit float64, width int) string {
	if limit <= 0 {
		limit = 1
	}
	ratio := min(max(value/limit, 0), 1)

	cells := max(width-2, 4)
	filled := int(ratio * float64(cells))
	bar := "[" + strings.Repeat("█", filled) + strings.Repeat("░", cells-filled) + "]"

	switch {
	case ratio > 0.6:
		return t.Success.Render(bar)
	case ratio > 0.3:
		return t.Warning.Render(bar)
	default:
		return t.Error.Render(bar)
	}
}

// Truncate shortens s to maxWidth cells, ending in an ellipsis.
func Truncate(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	runes := []rune(s)
	if maxWidth == 1 {
		return "…"
	}
	if len(runes) > maxWidth-1 {
		runes = runes[:maxWidth-1]
	}
	return string(runes) + "…"
}

// ContentHeight returns the rows left after chromeLines of header and footer,
// never less than five.
func ContentHeight(termHeight, chromeLines int) int {
	return max(termHeight-chromeLines, 5)
}
