package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/lox/settlersforbots/internal/game"
)

// Static styles for content elements
var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Bold(true)

	PromptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#96CEB4")).
			Bold(true)

	ActionsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700")).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#96CEB4")).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)

	InfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

var colorStyles = map[game.Color]lipgloss.Style{
	game.Red:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
	game.Blue:   lipgloss.NewStyle().Foreground(lipgloss.Color("#4D96FF")).Bold(true),
	game.White:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA")).Bold(true),
	game.Orange: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA94D")).Bold(true),
}

// colorName renders a seat color in its own color.
func colorName(c game.Color) string {
	if st, ok := colorStyles[c]; ok {
		return st.Render(string(c))
	}
	return string(c)
}
