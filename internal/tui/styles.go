package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"}
	mutedColor   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	dangerColor  = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	successColor = lipgloss.AdaptiveColor{Light: "#047857", Dark: "#34D399"}

	headingStyle    = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	subheadingStyle = lipgloss.NewStyle().Foreground(mutedColor)
	chipStyle       = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor)
	fieldStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)
	focusedFieldStyle = fieldStyle.BorderForeground(primaryColor)
	titleStyle        = lipgloss.NewStyle().Bold(true)
	urlStyle          = lipgloss.NewStyle().Foreground(mutedColor)
	selectedStyle     = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	emptyStyle        = lipgloss.NewStyle().Foreground(mutedColor).Italic(true)
	helpStyle         = lipgloss.NewStyle().Foreground(mutedColor)
	toastInfoStyle    = lipgloss.NewStyle().
				Padding(0, 1).
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(successColor)
	toastErrorStyle = toastInfoStyle.Background(dangerColor)
)
