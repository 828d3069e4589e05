package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// KeyMap defines the console key bindings.
type KeyMap struct {
	Up       Key
	Down     Key
	PageUp   Key
	PageDown Key

	Select Key
	Back   Key
	Quit   Key
	Search Key

	// Module-specific actions
	RunSweep     Key
	CycleStatus  Key
	ToggleAdjust Key
	Refresh      Key

	F1  Key
	F2  Key
	F3  Key
	F4  Key
	F10 Key
}

// Key represents a key binding.
type Key struct {
	Keys    []string
	Help    string
	Enabled bool
}

func bind(help string, keys ...string) Key {
	return Key{Keys: keys, Help: help, Enabled: true}
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:       bind("up", "up", "k"),
		Down:     bind("down", "down", "j"),
		PageUp:   bind("page up", "pgup", "ctrl+u"),
		PageDown: bind("page down", "pgdown", "ctrl+d"),

		Select: bind("select", "enter"),
		Back:   bind("back", "esc", "backspace"),
		Quit:   bind("quit", "q", "ctrl+c"),
		Search: bind("filter route", "/"),

		RunSweep:     bind("run sweep", "r"),
		CycleStatus:  bind("status filter", "s"),
		ToggleAdjust: bind("adjusted", "a"),
		Refresh:      bind("refresh", "ctrl+r"),

		F1:  bind("Help", "f1", "?"),
		F2:  bind("Dashboard", "f2"),
		F3:  bind("Indents", "f3"),
		F4:  bind("Sweeps", "f4"),
		F10: bind("Quit", "f10"),
	}
}

// Matches reports whether msg triggers k.
func (k Key) Matches(msg tea.KeyMsg) bool {
	if !k.Enabled {
		return false
	}
	s := msg.String()
	for _, key := range k.Keys {
		if s == key {
			return true
		}
	}
	return false
}

// MatchesAny reports whether msg triggers any of keys.
func MatchesAny(msg tea.KeyMsg, keys ...Key) bool {
	for _, k := range keys {
		if k.Matches(msg) {
			return true
		}
	}
	return false
}

// IsQuit reports whether msg asks to leave the console.
func (km KeyMap) IsQuit(msg tea.KeyMsg) bool {
	return km.Quit.Matches(msg) || km.F10.Matches(msg)
}

// ModuleFor returns the module a navigation key switches to.
func (km KeyMap) ModuleFor(msg tea.KeyMsg) (Module, bool) {
	switch {
	case km.F1.Matches(msg):
		return ModuleHelp, true
	case km.F2.Matches(msg):
		return ModuleDashboard, true
	case km.F3.Matches(msg):
		return ModuleIndents, true
	case km.F4.Matches(msg):
		return ModuleSweeps, true
	}
	return "", false
}

// StatusBarHelp returns the help text for the status bar.
func (km KeyMap) StatusBarHelp() string {
	return "[F1]Help [F2]Dashboard [F3]Indents [F4]Sweeps [F10]Quit"
}
