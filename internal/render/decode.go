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

package render

import (
	"encoding/base64"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
	"github.com/pkg/errors"
)

// ErrDecode is the cause of every error returned by Decode and ToText.
var ErrDecode = errors.New("malformed encoded content")

var urlAlphabet = strings.NewReplacer("-", "+", "_", "/")

// Decode returns the bytes encoded in text, which uses the URL safe
// base64 alphabet.  Padding is optional.
func Decode(text string) ([]byte, error) {
	std := strings.TrimRight(urlAlphabet.Replace(text), "=")
	b, err := base64.RawStdEncoding.DecodeString(std)
	if err != nil {
		return nil, errors.Wrap(ErrDecode, err.Error())
	}
	return b, nil
}

// ToText converts b from the named charset to UTF-8.  An empty name
// means UTF-8.
func ToText(b []byte, name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
	default:
		r, err := charset.Reader(name, strings.NewReader(string(b)))
		if err != nil {
			return "", errors.Wrapf(ErrDecode, "charset %q: %v", name, err)
		}
		if b, err = io.ReadAll(r); err != nil {
			return "", errors.Wrapf(ErrDecode, "charset %q: %v", name, err)
		}
	}
	if !utf8.Valid(b) {
		return "", errors.Wrap(ErrDecode, "invalid UTF-8")
	}
	return string(b), nil
}
