package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// VoterKeyMap holds the ballot screen bindings.
type VoterKeyMap struct {
	Yes     key.Binding
	No      key.Binding
	Abstain key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// DefaultVoterKeyMap is the built-in ballot binding set.
var DefaultVoterKeyMap = VoterKeyMap{
	Yes:     key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "yes")),
	No:      key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "no")),
	Abstain: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "abstain")),
	Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "close help")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// ModeratorKeyMap holds the console bindings.
type ModeratorKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Open   key.Binding
	Close  key.Binding
	Reveal key.Binding
	Hide   key.Binding
	Extend key.Binding
	Reset  key.Binding
	Quit   key.Binding
}

// DefaultModeratorKeyMap is the built-in console binding set.
var DefaultModeratorKeyMap = ModeratorKeyMap{
	Up:     key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("↑", "prev")),
	Down:   key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("↓", "next")),
	Open:   key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open")),
	Close:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "close")),
	Reveal: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reveal")),
	Hide:   key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "hide")),
	Extend: key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "+3s")),
	Reset:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "reset votes")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func helpLine(bindings ...key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		if !b.Enabled() {
			continue
		}
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " · ")
}
