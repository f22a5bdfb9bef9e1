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

package sync

// This file provides the interfaces to the message storage system the
// rest of the package pulls from.

import (
	"context"

	"github.com/matta/mailtriage/internal/message"
)

// MessageLister lists message identifiers matching a query from a
// message storage system.
type MessageLister interface {
	ListUnread(ctx context.Context, query string, limit int64, handler func(message.ID) error) error
}

// MessageGetter gets complete messages from a message storage system.
type MessageGetter interface {
	GetMessage(ctx context.Context, id string) (*message.Raw, error)
}

// MessageStorage provides all possible actions available to deal with
// message storage.
type MessageStorage interface {
	MessageLister
	MessageGetter
}

// Normalizer reduces raw messages to displayable ones.
type Normalizer interface {
	NormalizeAll(raws []*message.Raw) []message.Message
}
