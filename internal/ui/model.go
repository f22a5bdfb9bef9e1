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

// Package ui draws the triage screen and feeds key presses to the
// controller.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gologme/log"
	"github.com/mattn/go-runewidth"

	"github.com/matta/mailtriage/internal/controller"
	"github.com/matta/mailtriage/internal/message"
)

const (
	ellipsis = "…"

	// listPercent is the share of the width given to the subject
	// list.
	listPercent = 30

	headerHeight = 1
	paneBorder   = 2
	statusHeight = 3
)

// Controller is the part of controller.Controller the screen uses.
type Controller interface {
	Handle(ctx context.Context, ev controller.Event) bool
	Snapshot() controller.Snapshot
	SetVisibleHeight(h int)
	SetWrapWidth(w int)
}

// eventDoneMsg reports that an event run in the background finished.
type eventDoneMsg struct {
	ev   controller.Event
	quit bool
}

// Model is the bubbletea model of the triage screen.
type Model struct {
	ctx     context.Context
	ctrl    Controller
	profile message.Profile
	logger  *log.Logger

	keys     *KeyMap
	help     help.Model
	spinner  spinner.Model
	viewport viewport.Model

	width, height int

	// busy is set while an event that calls out is in flight.
	busy bool
}

// New returns the screen model.  ctx bounds the remote calls made on
// behalf of key presses.
func New(ctx context.Context, ctrl Controller, profile message.Profile, logger *log.Logger) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		ctx:      ctx,
		ctrl:     ctrl,
		profile:  profile,
		logger:   logger,
		keys:     DefaultKeyMap(),
		help:     help.New(),
		spinner:  sp,
		viewport: viewport.New(0, 0),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.resize()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventDoneMsg:
		m.busy = false
		m.logger.Debugf("%v finished", msg.ev)
		if msg.quit {
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Help) {
		m.help.ShowAll = !m.help.ShowAll
		m.resize()
		return m, nil
	}
	ev, ok := m.keys.Event(msg)
	if !ok {
		return m, nil
	}
	if m.busy {
		// The in-flight event holds the controller; do not wait
		// for it to quit.
		if ev == controller.Quit {
			return m, tea.Quit
		}
		return m, nil
	}
	if ev.Remote() {
		m.busy = true
		ctx, ctrl := m.ctx, m.ctrl
		run := func() tea.Msg {
			return eventDoneMsg{ev: ev, quit: ctrl.Handle(ctx, ev)}
		}
		return m, tea.Batch(m.spinner.Tick, run)
	}
	if m.ctrl.Handle(m.ctx, ev) {
		return m, tea.Quit
	}
	return m, nil
}

// resize recomputes the body size after the window or the help view
// changed size.
func (m *Model) resize() {
	m.ctrl.SetVisibleHeight(m.bodyHeight())
	_, content := m.paneWidths()
	m.ctrl.SetWrapWidth(content)
}

func (m Model) bodyHeight() int {
	h := m.height - headerHeight - paneBorder - statusHeight - lipgloss.Height(m.help.View(m.keys))
	if h < 0 {
		return 0
	}
	return h
}

// paneWidths returns the inner widths of the list and content panes.
func (m Model) paneWidths() (int, int) {
	list := m.width*listPercent/100 - paneBorder
	if list < 1 {
		list = 1
	}
	content := m.width - list - 2*paneBorder
	if content < 1 {
		content = 1
	}
	return list, content
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	snap := m.ctrl.Snapshot()
	height := m.bodyHeight()
	listWidth, contentWidth := m.paneWidths()

	list := paneStyle.Width(listWidth).Height(height).
		Render(renderList(snap, listWidth, height))

	vp := m.viewport
	vp.Width = contentWidth
	vp.Height = height
	vp.SetContent(snap.Body)
	vp.SetYOffset(snap.Scroll)
	content := paneStyle.Width(contentWidth).Height(height).Render(vp.View())

	statusWidth := m.width - paneBorder - 2
	status := truncateStatus(snap.Status, statusWidth)
	if m.busy {
		prefix := m.spinner.View() + " "
		status = prefix + truncateStatus(snap.Status, statusWidth-lipgloss.Width(prefix))
	}
	statusBar := statusStyle.Width(m.width - paneBorder).Render(status)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderHeader(snap.Unread, len(snap.Subjects)),
		lipgloss.JoinHorizontal(lipgloss.Top, list, content),
		statusBar,
		m.help.View(m.keys),
	)
}

func (m Model) renderHeader(unread int64, shown int) string {
	title := fmt.Sprintf("mailtriage  %s  %d unread, %d shown",
		m.profile.EmailAddress, unread, shown)
	return headerStyle.Width(m.width).Render(runewidth.Truncate(title, m.width-2, ellipsis))
}

// renderList draws the subjects that fit in height lines, keeping the
// selected one in view.
func renderList(snap controller.Snapshot, width, height int) string {
	if len(snap.Subjects) == 0 {
		return emptyStyle.Render(runewidth.Truncate("No unread emails.", width, ellipsis))
	}
	start := 0
	if snap.Selected >= height {
		start = snap.Selected - height + 1
	}
	var b strings.Builder
	for i := start; i < len(snap.Subjects) && i < start+height; i++ {
		if i > start {
			b.WriteByte('\n')
		}
		subject := snap.Subjects[i]
		if subject == "" {
			subject = "(no subject)"
		}
		if i == snap.Selected {
			b.WriteString(selectedStyle.Render(runewidth.Truncate(">> "+subject, width, ellipsis)))
		} else {
			b.WriteString(runewidth.Truncate("   "+subject, width, ellipsis))
		}
	}
	return b.String()
}

// truncateStatus fits a status message on one line of width cells.
func truncateStatus(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, ellipsis)
}
