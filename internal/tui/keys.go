package tui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	Send       key.Binding
	Suggestion key.Binding
	Quit       key.Binding
	Up         key.Binding
	Down       key.Binding
}

var DefaultKeyMap = KeyMap{
	Send: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "send"),
	),
	Suggestion: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next suggestion"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "esc"),
		key.WithHelp("esc", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("pgup"),
		key.WithHelp("pgup", "scroll up"),
	),
	Down: key.NewBinding(
		key.WithKeys("pgdown"),
		key.WithHelp("pgdn", "scroll down"),
	),
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.Suggestion, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Send, k.Suggestion, k.Quit},
		{k.Up, k.Down},
	}
}
