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

// Package extract reduces raw messages to what the user reads: a
// subject, a rendered body and an unsubscribe action.
package extract

import (
	"github.com/gologme/log"

	"github.com/matta/mailtriage/internal/message"
	"github.com/matta/mailtriage/internal/render"
)

// Extractor builds message.Message values from message.Raw values.
type Extractor struct {
	renderer *render.Renderer
	logger   *log.Logger
}

func New(r *render.Renderer, logger *log.Logger) *Extractor {
	return &Extractor{renderer: r, logger: logger}
}

// Normalize returns the displayable form of raw.  It never fails:
// parts that cannot be decoded or rendered are skipped.
func (e *Extractor) Normalize(raw *message.Raw) message.Message {
	return message.Message{
		ID:          raw.PermID,
		Subject:     Subject(raw.Headers),
		Body:        e.Body(raw.Payload),
		Unsubscribe: Unsubscribe(raw.Headers),
	}
}

// NormalizeAll normalizes each message, keeping order.
func (e *Extractor) NormalizeAll(raws []*message.Raw) []message.Message {
	msgs := make([]message.Message, 0, len(raws))
	for _, raw := range raws {
		msgs = append(msgs, e.Normalize(raw))
	}
	return msgs
}
