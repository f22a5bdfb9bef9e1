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

package gmail

import (
	"context"
	"net/http"

	"github.com/gologme/log"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	gmail_api "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/matta/mailtriage/internal/message"
)

const (
	ModifyScope = gmail_api.GmailModifyScope

	unreadLabel = "UNREAD"

	// See https://developers.google.com/gmail/api/reference/quota
	quotaUnitsMessagesGet     = 5
	quotaUnitsMessagesModify  = 5
	quotaUnitsPerGetProfile   = 1
	quotaUnitsPerLabelsGet    = 1
	quotaUnitsPerMessagesList = 5

	quotaUnitsPerSecond = 250
	rateLimitPerSecond  = quotaUnitsPerSecond * 0.8
	rateLimitBurst      = quotaUnitsPerSecond
)

var (
	ErrMessageNotFound = errors.New("gmail message not found")
)

// Service provides access to messages stored in Google's GMail
// system.
type Service struct {
	service *gmail_api.Service
	limiter *rate.Limiter
	logger  *log.Logger
}

func New(ctx context.Context, client *http.Client, logger *log.Logger, opts ...option.ClientOption) (*Service, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	s, err := gmail_api.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create GMail service")
	}
	l := rate.NewLimiter(rateLimitPerSecond, rateLimitBurst)
	return &Service{service: s, limiter: l, logger: logger}, nil
}

// ListUnread calls handler for at most limit messages matching query,
// newest first.  Only the first page of results is read.
func (s *Service) ListUnread(ctx context.Context, query string, limit int64, handler func(message.ID) error) error {
	if err := s.limiter.WaitN(ctx, quotaUnitsPerMessagesList); err != nil {
		return err
	}
	page, err := s.service.Users.Messages.List("me").Q(query).MaxResults(limit).Context(ctx).Do()
	if err != nil {
		return errors.Wrapf(err, "unable to list messages matching %q", query)
	}
	s.logger.Infof("listed GMail messages matching %q; count %d; estimate %d",
		query, len(page.Messages), page.ResultSizeEstimate)
	for _, msg := range page.Messages {
		if err := handler(message.ID{PermID: msg.Id, ThreadID: msg.ThreadId}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) getMessage(ctx context.Context, call *gmail_api.UsersMessagesGetCall) (*gmail_api.Message, error) {
	for {
		if err := s.limiter.WaitN(ctx, quotaUnitsMessagesGet); err != nil {
			return nil, err
		}
		msg, err := call.Do()
		if err == nil {
			return msg, nil
		}

		switch cause := errors.Cause(err).(type) {
		case *googleapi.Error:
			if cause.Code == http.StatusTooManyRequests {
				s.logger.Debugln("rate limited by GMail; retrying")
				continue // retry
			}
			if cause.Code == http.StatusNotFound {
				s.logger.Warnln("Warning: message not found...")
				err = ErrMessageNotFound
			}
		}
		return nil, err
	}
}

// GetMessage returns the full MIME tree of the message with the given
// id.
func (s *Service) GetMessage(ctx context.Context, id string) (*message.Raw, error) {
	msg, err := s.getMessage(ctx, s.service.Users.Messages.Get("me", id).
		Context(ctx).Format("full"))
	if err != nil {
		return nil, errors.Wrapf(err, "getting message %v from gmail", id)
	}
	return toRaw(msg), nil
}

// SetRead marks the message read by removing the UNREAD label, or
// unread by adding it.
func (s *Service) SetRead(ctx context.Context, id string, read bool) error {
	if err := s.limiter.WaitN(ctx, quotaUnitsMessagesModify); err != nil {
		return err
	}
	req := &gmail_api.ModifyMessageRequest{}
	if read {
		req.RemoveLabelIds = []string{unreadLabel}
	} else {
		req.AddLabelIds = []string{unreadLabel}
	}
	_, err := s.service.Users.Messages.Modify("me", id, req).Context(ctx).Do()
	if err != nil {
		return errors.Wrapf(err, "modifying message %v in gmail", id)
	}
	return nil
}

// GetProfile returns the account address and its unread count.
func (s *Service) GetProfile(ctx context.Context) (*message.Profile, error) {
	if err := s.limiter.WaitN(ctx, quotaUnitsPerGetProfile); err != nil {
		return nil, err
	}
	u, err := s.service.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return nil, errors.Wrap(err, "getting GMail profile")
	}
	unread, err := s.UnreadCount(ctx)
	if err != nil {
		return nil, err
	}
	return &message.Profile{
		EmailAddress:   u.EmailAddress,
		MessagesUnread: unread,
	}, nil
}

// UnreadCount returns the number of messages carrying the UNREAD
// label.
func (s *Service) UnreadCount(ctx context.Context) (int64, error) {
	if err := s.limiter.WaitN(ctx, quotaUnitsPerLabelsGet); err != nil {
		return 0, err
	}
	label, err := s.service.Users.Labels.Get("me", unreadLabel).Context(ctx).Do()
	if err != nil {
		return 0, errors.Wrap(err, "getting GMail unread count")
	}
	return label.MessagesUnread, nil
}

func toRaw(msg *gmail_api.Message) *message.Raw {
	raw := &message.Raw{
		ID:       message.ID{PermID: msg.Id, ThreadID: msg.ThreadId},
		LabelIDs: msg.LabelIds,
	}
	if msg.Payload != nil {
		raw.Headers = toHeaders(msg.Payload.Headers)
		raw.Payload = toPart(msg.Payload)
	}
	return raw
}

func toPart(p *gmail_api.MessagePart) *message.Part {
	part := &message.Part{
		PartID:   p.PartId,
		MimeType: p.MimeType,
		Filename: p.Filename,
		Headers:  toHeaders(p.Headers),
	}
	if p.Body != nil {
		part.Body = &message.Body{
			Data:         p.Body.Data,
			Size:         p.Body.Size,
			AttachmentID: p.Body.AttachmentId,
		}
	}
	for _, child := range p.Parts {
		if child != nil {
			part.Parts = append(part.Parts, toPart(child))
		}
	}
	return part
}

func toHeaders(hs []*gmail_api.MessagePartHeader) []message.Header {
	out := make([]message.Header, 0, len(hs))
	for _, h := range hs {
		if h != nil {
			out = append(out, message.Header{Name: h.Name, Value: h.Value})
		}
	}
	return out
}
