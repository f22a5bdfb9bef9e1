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

// Package mailbox holds the fetched messages and the selection cursor.
//
// A Store is not safe for concurrent use; its owner serializes access.
package mailbox

import "github.com/matta/mailtriage/internal/message"

// Store is an ordered list of messages, in fetch order, plus the index
// of the selected one.
//
// Invariant: 0 <= selected < len(msgs) when msgs is non-empty, and
// selected == 0 when it is empty.
type Store struct {
	msgs     []message.Message
	selected int
}

// ReplaceAll replaces the messages and selects the first one.
func (s *Store) ReplaceAll(msgs []message.Message) {
	s.msgs = append([]message.Message(nil), msgs...)
	s.selected = 0
}

// SelectPrevious moves the selection up one, stopping at the first
// message.
func (s *Store) SelectPrevious() bool {
	if s.selected == 0 {
		return false
	}
	s.selected--
	return true
}

// SelectNext moves the selection down one, stopping at the last
// message.
func (s *Store) SelectNext() bool {
	if s.selected+1 >= len(s.msgs) {
		return false
	}
	s.selected++
	return true
}

// RemoveSelected drops the selected message and clamps the selection.
func (s *Store) RemoveSelected() (message.Message, bool) {
	if len(s.msgs) == 0 {
		return message.Message{}, false
	}
	removed := s.msgs[s.selected]
	s.msgs = append(s.msgs[:s.selected:s.selected], s.msgs[s.selected+1:]...)
	if s.selected >= len(s.msgs) {
		s.selected = len(s.msgs) - 1
	}
	if s.selected < 0 {
		s.selected = 0
	}
	return removed, true
}

// Current returns the selected message.
func (s *Store) Current() (message.Message, bool) {
	if len(s.msgs) == 0 {
		return message.Message{}, false
	}
	return s.msgs[s.selected], true
}

func (s *Store) Len() int {
	return len(s.msgs)
}

func (s *Store) Selected() int {
	return s.selected
}

// Subjects returns the subject of every message, in order.
func (s *Store) Subjects() []string {
	out := make([]string, len(s.msgs))
	for i, m := range s.msgs {
		out[i] = m.Subject
	}
	return out
}
