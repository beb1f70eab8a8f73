package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-midirouter/theme"
)

// PadGrid mirrors the Launchpad X surface: rows 0-7 are the grid (row 0
// at the bottom), row 8 the top buttons, col 8 the scene buttons
type PadGrid [9][9]bool

// Press marks a pad, ignoring positions off the surface
func (g *PadGrid) Press(row, col int) {
	if row < 0 || row > 8 || col < 0 || col > 8 {
		return
	}
	g[row][col] = true
}

// RenderPad renders a single colored pad
func RenderPad(color theme.RGB, symbol rune) string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Hex(color)))
	return style.Render(string(symbol))
}

// RenderPadGrid renders the grid top row first. There is no pad at 8,8.
func RenderPadGrid(g PadGrid, lit, off theme.RGB, sym theme.Symbols) string {
	var lines []string
	for row := 8; row >= 0; row-- {
		var line strings.Builder
		for col := 0; col < 9; col++ {
			if col > 0 {
				line.WriteString(" ")
			}
			switch {
			case row == 8 && col == 8:
				line.WriteString(" ")
			case g[row][col]:
				line.WriteString(RenderPad(lit, sym.PadLit))
			default:
				line.WriteString(RenderPad(off, sym.PadOff))
			}
		}
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}
