package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	Teal     = lipgloss.Color("#0d7377")
	OffWhite = lipgloss.Color("#f8f7f4")
	Amber    = lipgloss.Color("#f59e0b")
	Red      = lipgloss.Color("#ef4444")
	Gray     = lipgloss.Color("#6b7280")

	// Styles
	StatusBarStyle = lipgloss.NewStyle().
			Background(Teal).
			Foreground(OffWhite).
			Bold(true).
			Padding(0, 1)

	ChatPanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Teal).
			Padding(0, 1)

	SidePanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Teal).
			Padding(0, 1)

	InputBarStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Teal).
			Padding(0, 1)

	UserMessageStyle = lipgloss.NewStyle().
				Foreground(OffWhite).
				Bold(true)

	AssistantMessageStyle = lipgloss.NewStyle().
				Foreground(Teal)

	MarketingMessageStyle = lipgloss.NewStyle().
				Foreground(Amber)

	ErrorMessageStyle = lipgloss.NewStyle().
				Foreground(Red)

	HeadingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Teal)

	DimStyle = lipgloss.NewStyle().
			Foreground(Gray)
)
