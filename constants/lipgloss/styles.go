package lipgloss

import "github.com/charmbracelet/lipgloss"

var (
	Red     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	Green   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	Yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	BlueSky = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	Info    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	Muted   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 1)
)
