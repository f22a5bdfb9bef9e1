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

// Package credential keeps the OAuth 2.0 token in the system keyring.
package credential

import (
	"context"
	"encoding/json"

	"github.com/99designs/keyring"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const (
	serviceName = "mailtriage"
	tokenKey    = "gmail-oauth-token"
)

// Open returns the system keyring, falling back to an encrypted file
// under ~/.config/mailtriage/credentials.
func Open() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/mailtriage/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mailtriage-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "opening keyring")
	}
	return ring, nil
}

// TokenStore reads and writes the token in a keyring.
type TokenStore struct {
	ring keyring.Keyring
}

func NewTokenStore(ring keyring.Keyring) *TokenStore {
	return &TokenStore{ring: ring}
}

// LoadToken returns the stored token, or nil if none was saved yet.
func (s *TokenStore) LoadToken(ctx context.Context) (*oauth2.Token, error) {
	item, err := s.ring.Get(tokenKey)
	if err == keyring.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "getting credential %q", tokenKey)
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(item.Data, tok); err != nil {
		return nil, errors.Wrapf(err, "decoding credential %q", tokenKey)
	}
	return tok, nil
}

// SaveToken replaces the stored token.
func (s *TokenStore) SaveToken(ctx context.Context, tok *oauth2.Token) error {
	b, err := json.Marshal(tok)
	if err != nil {
		return errors.Wrap(err, "encoding token")
	}
	err = s.ring.Set(keyring.Item{
		Key:         tokenKey,
		Data:        b,
		Label:       "mailtriage Gmail token",
		Description: "OAuth 2.0 token for the Gmail API",
	})
	if err != nil {
		return errors.Wrapf(err, "setting credential %q", tokenKey)
	}
	return nil
}

// DeleteToken removes the stored token so the next start asks for
// consent again.
func (s *TokenStore) DeleteToken(ctx context.Context) error {
	err := s.ring.Remove(tokenKey)
	if err != nil && err != keyring.ErrKeyNotFound {
		return errors.Wrapf(err, "deleting credential %q", tokenKey)
	}
	return nil
}
