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

/*
Package controller maps user input events to mailbox mutations and
remote calls.

All reads and writes of the mailbox happen under one mutex, so a
render pass sees either the state before an event or the state after
it.  Whole events are additionally serialized by a second mutex, the
gate.  Remote calls are made while holding the gate but not the state
mutex: rendering is not blocked by network latency, and since the
mailbox is only mutated after a call returned and no other event can
run in between, the outcome of a call is always applied to the state
it was issued against.
*/
package controller

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gologme/log"

	"github.com/matta/mailtriage/internal/mailbox"
	"github.com/matta/mailtriage/internal/message"
	"github.com/matta/mailtriage/internal/render"
)

// DefaultScrollStep is the number of lines a scroll event moves.
const DefaultScrollStep = 10

// Event is a discrete user input.
type Event int

const (
	Quit Event = iota
	MoveUp
	MoveDown
	MarkRead
	Unsubscribe
	ScrollUp
	ScrollDown
	Refresh
)

var eventNames = [...]string{
	Quit:        "quit",
	MoveUp:      "move-up",
	MoveDown:    "move-down",
	MarkRead:    "mark-read",
	Unsubscribe: "unsubscribe",
	ScrollUp:    "scroll-up",
	ScrollDown:  "scroll-down",
	Refresh:     "refresh",
}

func (e Event) String() string {
	if e >= 0 && int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// Remote reports whether handling e may call out to another system
// and so block for a while.
func (e Event) Remote() bool {
	switch e {
	case MarkRead, Unsubscribe, Refresh:
		return true
	}
	return false
}

// ReadMarker changes the read state of a message in the remote store.
type ReadMarker interface {
	SetRead(ctx context.Context, id string, read bool) error
}

// Fetcher returns a fresh batch of unread messages.
type Fetcher interface {
	FetchUnread(ctx context.Context) ([]message.Message, error)
}

// UnreadCounter reports how many messages are unread in the remote
// store.
type UnreadCounter interface {
	UnreadCount(ctx context.Context) (int64, error)
}

// LinkOpener opens a URL in the user's default handler.
type LinkOpener interface {
	Open(ctx context.Context, url string) error
}

// Snapshot is a read only copy of what the display needs.
type Snapshot struct {
	Subjects []string
	Selected int

	// Body of the selected message, wrapped to the display width;
	// empty when there is none.
	Body   string
	Scroll int

	Status string

	// Unread is the remote unread count as last known.
	Unread int64
}

// Controller is the interaction state machine.
type Controller struct {
	remote  ReadMarker
	fetcher Fetcher
	counter UnreadCounter
	opener  LinkOpener
	logger  *log.Logger
	step    int

	gate sync.Mutex

	mu            sync.Mutex
	store         mailbox.Store
	scroll        int
	status        string
	visibleHeight int
	wrapWidth     int
	unread        int64
}

// Config holds the collaborators and settings of a Controller.
type Config struct {
	Remote  ReadMarker
	Fetcher Fetcher
	Opener  LinkOpener
	Logger  *log.Logger

	// Counter is optional; without it the unread count is only
	// adjusted locally.
	Counter UnreadCounter
	Unread  int64

	// Lines moved per scroll event; DefaultScrollStep if zero.
	ScrollStep int
}

// New returns a Controller whose mailbox holds initial, with the
// first message selected.
func New(cfg Config, initial []message.Message) *Controller {
	step := cfg.ScrollStep
	if step <= 0 {
		step = DefaultScrollStep
	}
	c := &Controller{
		remote:  cfg.Remote,
		fetcher: cfg.Fetcher,
		counter: cfg.Counter,
		opener:  cfg.Opener,
		logger:  cfg.Logger,
		step:    step,
		unread:  cfg.Unread,
	}
	c.store.ReplaceAll(initial)
	return c
}

// SetVisibleHeight records how many body lines the display shows.
// Scrolling down stops once the last line is visible.
func (c *Controller) SetVisibleHeight(h int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h < 0 {
		h = 0
	}
	c.visibleHeight = h
	c.clampScroll()
}

// SetWrapWidth sets the column width bodies are wrapped to for
// display.  Zero shows them as rendered.
func (c *Controller) SetWrapWidth(w int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w < 0 {
		w = 0
	}
	c.wrapWidth = w
	c.clampScroll()
}

// displayBody returns the body of m as it is shown.  Callers hold
// c.mu.
func (c *Controller) displayBody(m message.Message) string {
	return render.Wrap(m.Body, c.wrapWidth)
}

// Snapshot returns a copy of the display state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		Subjects: c.store.Subjects(),
		Selected: c.store.Selected(),
		Scroll:   c.scroll,
		Status:   c.status,
		Unread:   c.unread,
	}
	if cur, ok := c.store.Current(); ok {
		s.Body = c.displayBody(cur)
	}
	return s
}

// Handle applies ev and reports whether the loop should terminate.
// Failures never end the loop; they become the status message.
func (c *Controller) Handle(ctx context.Context, ev Event) (quit bool) {
	c.gate.Lock()
	defer c.gate.Unlock()

	c.logger.Debugf("handling %v", ev)
	switch ev {
	case Quit:
		return true
	case MoveUp:
		c.move((*mailbox.Store).SelectPrevious)
	case MoveDown:
		c.move((*mailbox.Store).SelectNext)
	case ScrollUp:
		c.mu.Lock()
		c.scroll -= c.step
		c.clampScroll()
		c.mu.Unlock()
	case ScrollDown:
		c.mu.Lock()
		c.scroll += c.step
		c.clampScroll()
		c.mu.Unlock()
	case MarkRead:
		c.markRead(ctx)
	case Unsubscribe:
		c.setStatus(c.unsubscribe(ctx))
	case Refresh:
		c.refresh(ctx)
	default:
		c.logger.Warnf("ignoring unknown event %v", ev)
	}
	return false
}

func (c *Controller) move(sel func(*mailbox.Store) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sel(&c.store)
	c.scroll = 0
}

func (c *Controller) current() (message.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Current()
}

func (c *Controller) setStatus(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
}

func (c *Controller) markRead(ctx context.Context) {
	cur, ok := c.current()
	if !ok {
		c.setStatus("No email selected.")
		return
	}
	if err := c.remote.SetRead(ctx, cur.ID, true); err != nil {
		c.logger.Warnf("marking %s read: %v", cur.ID, err)
		c.setStatus(fmt.Sprintf("Error marking email as read: %v", err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.RemoveSelected()
	c.scroll = 0
	if c.unread > 0 {
		c.unread--
	}
	c.status = "Email marked as read."
	c.logger.Infof("marked %s read; %d left", cur.ID, c.store.Len())
}

func (c *Controller) unsubscribe(ctx context.Context) string {
	cur, ok := c.current()
	if !ok {
		return "No email selected."
	}
	u := cur.Unsubscribe
	if u == nil {
		return "No unsubscribe link found for this email."
	}
	switch u.Kind {
	case message.UnsubscribeHTTP:
		if err := c.opener.Open(ctx, u.Target); err != nil {
			c.logger.Warnf("opening unsubscribe link for %s: %v", cur.ID, err)
			return fmt.Sprintf("Error unsubscribing: %v", err)
		}
		c.logger.Infof("opened unsubscribe link for %s", cur.ID)
		return "Unsubscribe link opened."
	case message.UnsubscribeMailto:
		return fmt.Sprintf("This email uses a mailto link for unsubscribing. Please send an email to %s", u.Target)
	default:
		return fmt.Sprintf("Unsupported unsubscribe method: %s", u.Target)
	}
}

func (c *Controller) refresh(ctx context.Context) {
	msgs, err := c.fetcher.FetchUnread(ctx)
	if err != nil {
		c.logger.Warnf("refresh: %v", err)
		c.setStatus(fmt.Sprintf("Error fetching emails: %v", err))
		return
	}

	unread, counted := int64(0), false
	if c.counter != nil {
		n, err := c.counter.UnreadCount(ctx)
		if err != nil {
			c.logger.Warnf("refresh: counting unread: %v", err)
		} else {
			unread, counted = n, true
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.ReplaceAll(msgs)
	c.scroll = 0
	if counted {
		c.unread = unread
	}
	c.status = fmt.Sprintf("Fetched %d unread emails.", len(msgs))
}

// clampScroll keeps scroll within [0, lineCount(body)-visibleHeight]
// where body is the displayed, wrapped body.  Callers hold c.mu.
func (c *Controller) clampScroll() {
	limit := 0
	if cur, ok := c.store.Current(); ok {
		limit = lineCount(c.displayBody(cur)) - c.visibleHeight
	}
	if c.scroll > limit {
		c.scroll = limit
	}
	if c.scroll < 0 {
		c.scroll = 0
	}
}

// lineCount counts lines the way a line iterator does: a trailing
// newline does not start another line.
func lineCount(s string) int {
	if s == "" {
		return 0
	}
	return len(strings.Split(strings.TrimSuffix(s, "\n"), "\n"))
}
