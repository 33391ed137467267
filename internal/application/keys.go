package application

import "github.com/charmbracelet/bubbles/key"

// KeyInput is a key press forwarded by the renderer. Key is the key name
// as reported by the terminal ("j", "enter", "ctrl+c"); Runes holds the
// typed text for printable keys.
type KeyInput struct {
	Key   string
	Runes []rune
}

func (k KeyInput) String() string { return k.Key }

// Text reports whether the key produced printable text.
func (k KeyInput) Text() bool { return len(k.Runes) > 0 }

// KeyMap defines all keyboard shortcuts of the dashboard.
type KeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Prev     key.Binding
	Next     key.Binding
	Search   key.Binding
	Accept   key.Binding
	Cancel   key.Binding
	Delete   key.Binding
	Help     key.Binding
	Favorite key.Binding
	Refresh  key.Binding
	Open     key.Binding
	Copy     key.Binding
	CopyLog  key.Binding
	OpenJob  key.Binding
	Reset    key.Binding
	Quit     key.Binding

	ForceQuit key.Binding

	Confirm key.Binding
	Deny    key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("↓/j", "down"),
		),
		Prev: key.NewBinding(
			key.WithKeys("h", "left"),
			key.WithHelp("←/h", "newer pipeline"),
		),
		Next: key.NewBinding(
			key.WithKeys("l", "right"),
			key.WithHelp("→/l", "older pipeline"),
		),
		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search"),
		),
		Accept: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "apply"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
		Delete: key.NewBinding(
			key.WithKeys("backspace"),
		),
		Help: key.NewBinding(
			key.WithKeys("?", "f1"),
			key.WithHelp("?", "help"),
		),
		Favorite: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "favorite"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Open: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "open in browser"),
		),
		Copy: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "copy url"),
		),
		CopyLog: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "copy failed job log"),
		),
		OpenJob: key.NewBinding(
			key.WithKeys("O"),
			key.WithHelp("O", "open failed job"),
		),
		Reset: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "reset data"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("y", "enter"),
			key.WithHelp("y", "confirm"),
		),
		Deny: key.NewBinding(
			key.WithKeys("n", "esc"),
			key.WithHelp("n", "cancel"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Search, k.Favorite, k.Refresh, k.Open, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Prev, k.Next},
		{k.Search, k.Accept, k.Cancel},
		{k.Favorite, k.Refresh, k.Open, k.Copy},
		{k.CopyLog, k.OpenJob},
		{k.Reset, k.Help, k.Quit},
	}
}
