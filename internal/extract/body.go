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

	gomessage "github.com/emersion/go-message"

	"github.com/matta/mailtriage/internal/message"
	"github.com/matta/mailtriage/internal/render"
)

const (
	mimeTextPlain = "text/plain"
	mimeTextHTML  = "text/html"
)

// Body returns the rendered text of the preferred textual payload in
// the tree rooted at p, or message.NoContent.
func (e *Extractor) Body(p *message.Part) string {
	if s := e.walk(p); s != "" {
		return s
	}
	return message.NoContent
}

// walk implements Body, returning "" where Body would return the
// sentinel.
//
// A node with inline data is rendered directly.  Otherwise children
// are scanned in order: nested containers are searched depth first
// and the first one yielding content wins; text/plain and text/html
// leaves are collected separately and HTML is preferred over plain
// text when both are present at the same level.
func (e *Extractor) walk(p *message.Part) string {
	if p == nil {
		return ""
	}
	if hasData(p) {
		return e.leaf(p)
	}

	var plain, html []string
	for _, child := range p.Parts {
		if child == nil {
			continue
		}
		if len(child.Parts) > 0 {
			if s := e.walk(child); s != "" {
				return s
			}
			continue
		}
		switch mediaType(child.MimeType) {
		case mimeTextPlain:
			if s := e.leaf(child); s != "" {
				plain = append(plain, s)
			}
		case mimeTextHTML:
			if s := e.leaf(child); s != "" {
				html = append(html, s)
			}
		}
	}
	if len(html) > 0 {
		return strings.Join(html, "\n")
	}
	return strings.Join(plain, "\n")
}

// leaf decodes and renders the inline data of p.  Content that cannot
// be decoded counts as empty.
func (e *Extractor) leaf(p *message.Part) string {
	if !hasData(p) {
		return ""
	}
	b, err := render.Decode(p.Body.Data)
	if err != nil {
		e.logger.Debugf("part %q: %v", p.PartID, err)
		return ""
	}
	text, err := render.ToText(b, charsetOf(p))
	if err != nil {
		e.logger.Debugf("part %q: %v", p.PartID, err)
		return ""
	}
	return e.renderer.Render(text)
}

func hasData(p *message.Part) bool {
	return p.Body != nil && p.Body.Data != ""
}

// mediaType returns the lower cased media type without parameters.
func mediaType(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.ToLower(strings.TrimSpace(t))
}

// charsetOf returns the charset parameter of the part's own
// Content-Type header, if any.
func charsetOf(p *message.Part) string {
	var h gomessage.Header
	for _, hdr := range p.Headers {
		h.Add(hdr.Name, hdr.Value)
	}
	if !h.Has("Content-Type") {
		return ""
	}
	_, params, err := h.ContentType()
	if err != nil {
		return ""
	}
	return params["charset"]
}
