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

// Package sync pulls a batch of messages from a message storage
// system.
package sync

import (
	"context"

	"github.com/gologme/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/matta/mailtriage/internal/gmail"
	"github.com/matta/mailtriage/internal/message"
)

// job is a message to fetch and the position its result goes to.
type job struct {
	index int
	id    message.ID
}

func listIds(ctx context.Context, g MessageStorage, query string, limit int, jobs chan<- job) (int, error) {
	defer close(jobs)

	n := 0
	err := g.ListUnread(ctx, query, int64(limit), func(id message.ID) error {
		if n >= limit {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case jobs <- job{index: n, id: id}:
			n++
			return nil
		}
	})
	if err != nil {
		return n, errors.Wrap(err, "unable to list unread messages")
	}
	return n, nil
}

func getMessages(ctx context.Context, g MessageStorage, jobs <-chan job, out []*message.Raw, logger *log.Logger) error {
	for j := range jobs {
		raw, err := g.GetMessage(ctx, j.id.PermID)
		if err != nil {
			// The list sometimes names messages that were deleted
			// since; skip them.
			if errors.Cause(err) == gmail.ErrMessageNotFound {
				logger.Warnf("skipping message %v: %v", j.id.PermID, err)
				continue
			}
			return errors.Wrapf(err, "failed getting message %v", j.id.PermID)
		}
		out[j.index] = raw
	}
	return nil
}

// FetchUnread returns up to limit messages matching query, in the
// order the storage system listed them.  Up to concurrency messages
// are fetched at once.
func FetchUnread(ctx context.Context, g MessageStorage, query string, limit, concurrency int, logger *log.Logger) ([]*message.Raw, error) {
	if limit <= 0 {
		return nil, nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	out := make([]*message.Raw, limit)
	grp, ctx := errgroup.WithContext(ctx)
	jobs := make(chan job, limit)
	var listed int
	grp.Go(func() (err error) {
		listed, err = listIds(ctx, g, query, limit, jobs)
		return err
	})
	for i := 0; i < concurrency; i++ {
		grp.Go(func() error {
			return getMessages(ctx, g, jobs, out, logger)
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	raws := make([]*message.Raw, 0, listed)
	for _, raw := range out[:listed] {
		if raw != nil {
			raws = append(raws, raw)
		}
	}
	logger.Infof("fetched %d of %d listed messages", len(raws), listed)
	return raws, nil
}

// Puller fetches batches of unread messages and normalizes them.  It
// satisfies controller.Fetcher.
type Puller struct {
	Storage     MessageStorage
	Normalizer  Normalizer
	Query       string
	Limit       int
	Concurrency int
	Logger      *log.Logger
}

func (p *Puller) FetchUnread(ctx context.Context) ([]message.Message, error) {
	p.Logger.Infof("pulling up to %d messages matching %q", p.Limit, p.Query)
	raws, err := FetchUnread(ctx, p.Storage, p.Query, p.Limit, p.Concurrency, p.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pull messages")
	}
	return p.Normalizer.NormalizeAll(raws), nil
}
