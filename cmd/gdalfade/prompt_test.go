package main

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestConfirmModel(t *testing.T) {
	tests := []struct {
		key     tea.KeyMsg
		done    bool
		aborted bool
	}{
		{tea.KeyMsg{Type: tea.KeyEnter}, true, false},
		{tea.KeyMsg{Type: tea.KeyEsc}, false, true},
		{tea.KeyMsg{Type: tea.KeyCtrlC}, false, true},
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}, false, true},
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}}, false, false},
	}
	for _, tt := range tests {
		next, cmd := confirmModel{path: "lines.gpkg"}.Update(tt.key)
		m := next.(confirmModel)
		if m.done != tt.done || m.aborted != tt.aborted {
			t.Errorf("%q: done=%v aborted=%v", tt.key.String(), m.done, m.aborted)
		}
		if (cmd != nil) != (tt.done || tt.aborted) {
			t.Errorf("%q: quit cmd = %v", tt.key.String(), cmd != nil)
		}
	}
	if v := (confirmModel{path: "lines.gpkg"}).View(); v == "" {
		t.Error("empty view while waiting")
	}
}
