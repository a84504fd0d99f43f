package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Toggle key.Binding
	Speed  key.Binding
	Prev   key.Binding
	Next   key.Binding
	First  key.Binding
	Last   key.Binding
	Reload key.Binding
	Help   key.Binding
	Quit   key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Toggle: key.NewBinding(key.WithKeys(" ", "p"), key.WithHelp("space", "play/pause")),
		Speed:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "speed")),
		Prev:   key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/→", "week")),
		Next:   key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("←/→", "week")),
		First:  key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("g/G", "first/last")),
		Last:   key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("g/G", "first/last")),
		Reload: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:   key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Speed, k.Prev, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Speed},
		{k.Prev, k.First},
		{k.Reload, k.Help, k.Quit},
	}
}
