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

package extract

import (
	"strings"

	"github.com/matta/mailtriage/internal/message"
)

const (
	subjectHeader     = "Subject"
	unsubscribeHeader = "List-Unsubscribe"

	mailtoPrefix = "mailto:"
)

func lookup(headers []message.Header, name string) (string, bool) {
	for _, h := range headers {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

// Subject returns the value of the first Subject header, or "".
func Subject(headers []message.Header) string {
	v, _ := lookup(headers, subjectHeader)
	return v
}

// Unsubscribe returns the action named by the first List-Unsubscribe
// header, or nil when there is none.
//
// The header holds a comma separated list of directives, usually in
// angle brackets.  The first bracketed http(s) directive wins, then
// the first bracketed directive of any kind.  A header without any
// bracketed directive is classified as a whole.
func Unsubscribe(headers []message.Header) *message.Unsubscribe {
	v, ok := lookup(headers, unsubscribeHeader)
	if !ok {
		return nil
	}

	var bracketed []string
	for _, c := range splitDirectives(v) {
		if len(c) >= 2 && c[0] == '<' && c[len(c)-1] == '>' {
			bracketed = append(bracketed, strings.TrimSpace(c[1:len(c)-1]))
		}
	}

	target := strings.TrimSpace(v)
	if len(bracketed) > 0 {
		target = bracketed[0]
		for _, c := range bracketed {
			if hasPrefixFold(c, "http") {
				target = c
				break
			}
		}
	}
	return classify(target)
}

func classify(s string) *message.Unsubscribe {
	switch {
	case hasPrefixFold(s, "http"):
		return &message.Unsubscribe{Kind: message.UnsubscribeHTTP, Target: s}
	case hasPrefixFold(s, mailtoPrefix):
		return &message.Unsubscribe{Kind: message.UnsubscribeMailto, Target: s[len(mailtoPrefix):]}
	default:
		return &message.Unsubscribe{Kind: message.UnsubscribeUnsupported, Target: s}
	}
}

// splitDirectives splits v on commas that are not inside angle
// brackets, trimming space around each piece.  URLs may legally
// contain commas.
func splitDirectives(v string) []string {
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(v[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(v[start:]))
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
