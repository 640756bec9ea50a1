package tui

import "charm.land/bubbles/v2/key"

// keyMap represents key map data used by this package.
type keyMap struct {
	quit          key.Binding
	refresh       key.Binding
	toggleHelp    key.Binding
	columnLeft    key.Binding
	columnRight   key.Binding
	leadUp        key.Binding
	leadDown      key.Binding
	moveLeadLeft  key.Binding
	moveLeadRight key.Binding
	addLead       key.Binding
	deleteLead    key.Binding
	signIn        key.Binding
	signOut       key.Binding
}

// newKeyMap constructs key map.
func newKeyMap() keyMap {
	return keyMap{
		quit:          key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		refresh:       key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		toggleHelp:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		columnLeft:    key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "column left")),
		columnRight:   key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("l/→", "column right")),
		leadUp:        key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "lead up")),
		leadDown:      key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "lead down")),
		moveLeadLeft:  key.NewBinding(key.WithKeys("["), key.WithHelp("[", "move lead left")),
		moveLeadRight: key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "move lead right")),
		addLead:       key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new lead")),
		deleteLead:    key.NewBinding(key.WithKeys("D", "shift+d"), key.WithHelp("D", "delete lead")),
		signIn:        key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sign in")),
		signOut:       key.NewBinding(key.WithKeys("S", "shift+s"), key.WithHelp("S", "sign out")),
	}
}

// ShortHelp handles short help.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.addLead, k.moveLeadLeft, k.moveLeadRight, k.refresh, k.quit,
	}
}

// FullHelp handles full help.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.addLead, k.deleteLead, k.refresh, k.toggleHelp, k.quit},
		{k.columnLeft, k.columnRight, k.leadUp, k.leadDown, k.moveLeadLeft, k.moveLeadRight},
		{k.signIn, k.signOut},
	}
}
