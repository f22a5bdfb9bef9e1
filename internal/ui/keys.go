// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/matta/mailtriage/internal/controller"
)

// KeyMap defines the keybindings of the triage screen.
type KeyMap struct {
	Up   key.Binding
	Down key.Binding

	MarkRead    key.Binding
	Unsubscribe key.Binding
	Refresh     key.Binding

	ScrollUp   key.Binding
	ScrollDown key.Binding

	Help key.Binding
	Quit key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "previous"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "next"),
		),
		MarkRead: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "mark read"),
		),
		Unsubscribe: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "unsubscribe"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("g"),
			key.WithHelp("g", "refresh"),
		),
		ScrollUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "scroll up"),
		),
		ScrollDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "scroll down"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp returns the bindings shown in the controls line.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.Up, k.Down, k.MarkRead, k.Unsubscribe,
		k.ScrollUp, k.ScrollDown, k.Quit, k.Help,
	}
}

// FullHelp returns all keybindings grouped by category.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.ScrollUp, k.ScrollDown},
		{k.MarkRead, k.Unsubscribe, k.Refresh},
		{k.Help, k.Quit},
	}
}

// Event maps a key press to a controller event.
func (k *KeyMap) Event(msg tea.KeyMsg) (controller.Event, bool) {
	switch {
	case key.Matches(msg, k.Quit):
		return controller.Quit, true
	case key.Matches(msg, k.Up):
		return controller.MoveUp, true
	case key.Matches(msg, k.Down):
		return controller.MoveDown, true
	case key.Matches(msg, k.MarkRead):
		return controller.MarkRead, true
	case key.Matches(msg, k.Unsubscribe):
		return controller.Unsubscribe, true
	case key.Matches(msg, k.ScrollUp):
		return controller.ScrollUp, true
	case key.Matches(msg, k.ScrollDown):
		return controller.ScrollDown, true
	case key.Matches(msg, k.Refresh):
		return controller.Refresh, true
	}
	return 0, false
}
