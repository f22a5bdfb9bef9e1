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
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gologme/log"
	"github.com/google/go-cmp/cmp"
	"github.com/mattn/go-runewidth"

	"github.com/matta/mailtriage/internal/controller"
	"github.com/matta/mailtriage/internal/message"
)

type fakeController struct {
	events  []controller.Event
	heights []int
	widths  []int
	snap    controller.Snapshot
}

func (f *fakeController) Handle(ctx context.Context, ev controller.Event) bool {
	f.events = append(f.events, ev)
	return ev == controller.Quit
}

func (f *fakeController) Snapshot() controller.Snapshot {
	return f.snap
}

func (f *fakeController) SetVisibleHeight(h int) {
	f.heights = append(f.heights, h)
}

func (f *fakeController) SetWrapWidth(w int) {
	f.widths = append(f.widths, w)
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newModel(f *fakeController) Model {
	return New(context.Background(), f, message.Profile{EmailAddress: "me@example.com", MessagesUnread: 3},
		log.New(io.Discard, "", 0))
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestKeyMapEvent(t *testing.T) {
	k := DefaultKeyMap()
	cases := []struct {
		msg  tea.KeyMsg
		want controller.Event
	}{
		{runes("q"), controller.Quit},
		{tea.KeyMsg{Type: tea.KeyCtrlC}, controller.Quit},
		{runes("k"), controller.MoveUp},
		{tea.KeyMsg{Type: tea.KeyUp}, controller.MoveUp},
		{runes("j"), controller.MoveDown},
		{tea.KeyMsg{Type: tea.KeyDown}, controller.MoveDown},
		{runes("r"), controller.MarkRead},
		{runes("u"), controller.Unsubscribe},
		{tea.KeyMsg{Type: tea.KeyPgUp}, controller.ScrollUp},
		{tea.KeyMsg{Type: tea.KeyPgDown}, controller.ScrollDown},
		{runes("g"), controller.Refresh},
	}
	for _, tc := range cases {
		got, ok := k.Event(tc.msg)
		if !ok || got != tc.want {
			t.Errorf("Event(%q) = %v, %v, want %v, true", tc.msg.String(), got, ok, tc.want)
		}
	}
	if got, ok := k.Event(runes("x")); ok {
		t.Errorf("Event(%q) = %v, true, want no event", "x", got)
	}
}

func TestUpdateLocalEvent(t *testing.T) {
	f := &fakeController{}
	m := newModel(f)
	_, cmd := m.Update(runes("j"))
	if cmd != nil {
		t.Errorf("Update(j) returned a command, want none")
	}
	if diff := cmp.Diff([]controller.Event{controller.MoveDown}, f.events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateRemoteEvent(t *testing.T) {
	f := &fakeController{}
	var tm tea.Model = newModel(f)

	tm, cmd := tm.Update(runes("r"))
	if cmd == nil {
		t.Fatal("Update(r) returned no command")
	}
	if len(f.events) != 0 {
		t.Errorf("events = %v before the command ran, want none", f.events)
	}
	if !tm.(Model).busy {
		t.Error("busy = false after a remote event")
	}

	// Ignored while busy.
	tm, _ = tm.Update(runes("j"))
	if len(f.events) != 0 {
		t.Errorf("events = %v, want key ignored while busy", f.events)
	}

	batch, ok := cmd().(tea.BatchMsg)
	if !ok {
		t.Fatalf("command returned %T, want tea.BatchMsg", cmd())
	}
	var done tea.Msg
	for _, c := range batch {
		if msg, ok := c().(eventDoneMsg); ok {
			done = msg
		}
	}
	if done == nil {
		t.Fatal("no eventDoneMsg from the batch")
	}
	if diff := cmp.Diff([]controller.Event{controller.MarkRead}, f.events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	tm, cmd = tm.Update(done)
	if tm.(Model).busy || cmd != nil {
		t.Errorf("after eventDoneMsg busy = %v, cmd = %v; want false, nil", tm.(Model).busy, cmd)
	}
}

func TestUpdateQuit(t *testing.T) {
	f := &fakeController{}
	m := newModel(f)
	if _, cmd := m.Update(runes("q")); !isQuit(cmd) {
		t.Error("Update(q) did not quit")
	}
	if diff := cmp.Diff([]controller.Event{controller.Quit}, f.events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateQuitWhileBusy(t *testing.T) {
	f := &fakeController{}
	m := newModel(f)
	m.busy = true
	if _, cmd := m.Update(runes("q")); !isQuit(cmd) {
		t.Error("Update(q) while busy did not quit")
	}
	if len(f.events) != 0 {
		t.Errorf("events = %v, want the controller left alone", f.events)
	}
}

func TestWindowSize(t *testing.T) {
	f := &fakeController{}
	var tm tea.Model = newModel(f)
	tm, _ = tm.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	if diff := cmp.Diff([]int{23}, f.heights); diff != "" {
		t.Errorf("visible heights mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{68}, f.widths); diff != "" {
		t.Errorf("wrap widths mismatch (-want +got):\n%s", diff)
	}
	tm.Update(runes("?"))
	if len(f.heights) != 2 || f.heights[1] >= 23 {
		t.Errorf("visible heights = %v, want a smaller height with full help", f.heights)
	}
}

func TestView(t *testing.T) {
	f := &fakeController{snap: controller.Snapshot{
		Subjects: []string{"First", "Second"},
		Selected: 1,
		Body:     "line one\nline two",
		Status:   "Email marked as read.",
		Unread:   5,
	}}
	var tm tea.Model = newModel(f)
	tm, _ = tm.Update(tea.WindowSizeMsg{Width: 100, Height: 20})
	out := tm.View()
	for _, want := range []string{"me@example.com", "5 unread", ">> Second", "First", "line two", "Email marked as read."} {
		if !strings.Contains(out, want) {
			t.Errorf("View() lacks %q:\n%s", want, out)
		}
	}
}

func TestTruncateStatus(t *testing.T) {
	cases := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"two\nlines", 20, "two lines"},
		{"anything", 0, ""},
	}
	for _, tc := range cases {
		if got := truncateStatus(tc.in, tc.width); got != tc.want {
			t.Errorf("truncateStatus(%#v, %d) = %#v, want %#v", tc.in, tc.width, got, tc.want)
		}
	}

	const long = "Error marking email as read: boom"
	got := truncateStatus(long, 12)
	if runewidth.StringWidth(got) > 12 || !strings.HasSuffix(got, ellipsis) || !strings.HasPrefix(got, "Error") {
		t.Errorf("truncateStatus(%#v, 12) = %#v, want at most 12 cells ending in %q", long, got, ellipsis)
	}
}

func TestRenderListKeepsSelectionVisible(t *testing.T) {
	snap := controller.Snapshot{Subjects: []string{"a", "b", "c", "d", "e"}, Selected: 4}
	got := renderList(snap, 20, 2)
	if strings.Contains(got, "   a") || !strings.Contains(got, "e") {
		t.Errorf("renderList() = %q, want the last two subjects", got)
	}
}

func TestViewNarrowWindowShowsWholeBody(t *testing.T) {
	var words []string
	for i := 0; i < 60; i++ {
		words = append(words, fmt.Sprintf("w%02d", i))
	}
	ctrl := controller.New(controller.Config{
		Logger:     log.New(io.Discard, "", 0),
		ScrollStep: 3,
	}, []message.Message{{ID: "a", Subject: "Long", Body: strings.Join(words, " ")}})

	var tm tea.Model = New(context.Background(), ctrl, message.Profile{EmailAddress: "me@example.com"},
		log.New(io.Discard, "", 0))
	tm, _ = tm.Update(tea.WindowSizeMsg{Width: 40, Height: 14})

	var seen strings.Builder
	for i := 0; i < 6; i++ {
		seen.WriteString(tm.View())
		tm, _ = tm.Update(tea.KeyMsg{Type: tea.KeyPgDown})
	}
	if ctrl.Snapshot().Scroll == 0 {
		t.Errorf("Scroll = 0 after paging, want the body to scroll")
	}
	for _, w := range words {
		if !strings.Contains(seen.String(), w) {
			t.Errorf("%q never shown while paging through the body", w)
		}
	}
}
