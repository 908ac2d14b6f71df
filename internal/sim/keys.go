package sim

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Ring      key.Binding
	Tap       key.Binding
	LongPress key.Binding
	Help      key.Binding
	Quit      key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Ring, k.Tap, k.LongPress, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Ring, k.Tap, k.LongPress},
		{k.Help, k.Quit},
	}
}

func newKeyMap() keyMap {
	return keyMap{
		Ring: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "ring"),
		),
		Tap: key.NewBinding(
			key.WithKeys("b", " "),
			key.WithHelp("b", "press button"),
		),
		LongPress: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "hold button (setup)"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}
