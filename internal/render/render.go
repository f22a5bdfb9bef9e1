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
Package render turns decoded message content into fixed width text.

Content that carries escaped markup entities is treated as HTML.
Everything else is treated as lightweight markup, converted to HTML
first, and then sent down the same HTML path, so there is a single
place where text is laid out.
*/
package render

import (
	"bytes"
	"reflect"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

// DefaultWidth is the line width used when none is configured.
const DefaultWidth = 80

var (
	htmlEntities = []string{"&lt;", "&gt;", "&amp;"}
	blankRuns    = regexp.MustCompile(`\n[ \t]*(\n[ \t]*)+\n`)
)

// Renderer renders text at a fixed line width.  A Renderer is safe
// for concurrent use.
type Renderer struct {
	width int
	md    goldmark.Markdown
}

// New returns a Renderer wrapping at width columns.  A width of zero
// or less selects DefaultWidth.
func New(width int) *Renderer {
	if width <= 0 {
		width = DefaultWidth
	}
	md := goldmark.New(
		goldmark.WithParser(newParser()),
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
			html.WithHardWraps(),
		),
	)
	return &Renderer{width: width, md: md}
}

// newParser returns the CommonMark parser without indented code
// blocks.  Mail bodies are often indented markup, which would
// otherwise come out as literal tags.
func newParser() parser.Parser {
	codeBlock := reflect.TypeOf(parser.NewCodeBlockParser())
	var blocks []util.PrioritizedValue
	for _, b := range parser.DefaultBlockParsers() {
		if reflect.TypeOf(b.Value) != codeBlock {
			blocks = append(blocks, b)
		}
	}
	return parser.NewParser(
		parser.WithBlockParsers(blocks...),
		parser.WithInlineParsers(parser.DefaultInlineParsers()...),
		parser.WithParagraphTransformers(parser.DefaultParagraphTransformers()...),
	)
}

// Width returns the configured line width.
func (r *Renderer) Width() int {
	return r.width
}

// IsHTML reports whether text looks like HTML, which is the case when
// it contains escaped markup entities.
func IsHTML(text string) bool {
	for _, e := range htmlEntities {
		if strings.Contains(text, e) {
			return true
		}
	}
	return false
}

// Render returns text laid out at the renderer's width.  It never
// fails; when conversion is not possible text is returned as is.
func (r *Renderer) Render(text string) string {
	if IsHTML(text) {
		return r.HTML(text)
	}
	return r.Markup(text)
}

// HTML renders an HTML document.
func (r *Renderer) HTML(src string) string {
	out, err := htmltomarkdown.ConvertString(src)
	if err != nil {
		return src
	}
	return r.layout(out)
}

// Markup renders lightweight markup by converting it to HTML and
// rendering that.
func (r *Renderer) Markup(src string) string {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return src
	}
	return r.HTML(buf.String())
}

func (r *Renderer) layout(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = wordwrap.String(s, r.width)
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Wrap fits already rendered text into width columns, breaking words
// that are longer than a line.  A width of zero or less returns s
// unchanged.
func Wrap(s string, width int) string {
	if width <= 0 {
		return s
	}
	return wrap.String(wordwrap.String(s, width), width)
}
